package xdb

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Source：可定位的只读字节提供者
// 约束：ReadBlock 在 off+n 超出 Size 或底层读取失败时返回 ErrIO；返回切片只读
type Source interface {
	ReadBlock(off int64, n int) ([]byte, error)
	Size() int64
	Close() error
}

func checkRange(off int64, n int, size int64) error {
	if off < 0 || n < 0 || off+int64(n) > size {
		return fmt.Errorf("%w: read [%d,%d) beyond source size %d", ErrIO, off, off+int64(n), size)
	}
	return nil
}

// FileSource：基于文件句柄的数据源，每次查询按需读取
// 约束：使用 ReadAt（pread）定位读取，无共享游标，同一句柄可被并发调用
type FileSource struct {
	f    *os.File
	size int64
}

// OpenFile：打开库文件并记录大小
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	return &FileSource{f: f, size: fi.Size()}, nil
}

func (s *FileSource) ReadBlock(off int64, n int) ([]byte, error) {
	if err := checkRange(off, n, s.size); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := s.f.ReadAt(buf, off); err != nil {
		// 文件在构造后被截断时 ReadAt 返回 EOF
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: read %d bytes at %d: %w", ErrIO, n, off, err)
	}
	return buf, nil
}

func (s *FileSource) Size() int64 { return s.size }

func (s *FileSource) Close() error { return s.f.Close() }

// MemorySource：常驻内存的只读缓冲，查询零 I/O，可无限并发读取
type MemorySource struct {
	buf []byte
}

// NewMemorySource：包装已加载的缓冲；调用方不得再修改 buf
func NewMemorySource(buf []byte) *MemorySource { return &MemorySource{buf: buf} }

// LoadFile：一次性把整个库文件读入内存
func LoadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrIO, path, err)
	}
	return b, nil
}

// LoadMemorySource：读取文件并返回内存数据源
func LoadMemorySource(path string) (*MemorySource, error) {
	b, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemorySource(b), nil
}

func (s *MemorySource) ReadBlock(off int64, n int) ([]byte, error) {
	if err := checkRange(off, n, int64(len(s.buf))); err != nil {
		return nil, err
	}
	return s.buf[off : off+int64(n) : off+int64(n)], nil
}

func (s *MemorySource) Size() int64 { return int64(len(s.buf)) }

// Bytes 返回底层缓冲
func (s *MemorySource) Bytes() []byte { return s.buf }

func (s *MemorySource) Close() error { return nil }

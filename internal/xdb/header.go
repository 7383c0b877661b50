package xdb

import (
	"encoding/binary"
	"fmt"
)

// SuperHeader：文件头 8 字节，界定索引区
// IndexEndPtr 指向最后一个索引块（含），块数 = (End-Start)/12 + 1
type SuperHeader struct {
	IndexStartPtr uint32
	IndexEndPtr   uint32
}

// DecodeSuperHeader：解析文件头
func DecodeSuperHeader(b []byte) (SuperHeader, error) {
	if len(b) < HeaderSize {
		return SuperHeader{}, fmt.Errorf("%w: super header needs %d bytes, got %d", ErrCorruptDatabase, HeaderSize, len(b))
	}
	return SuperHeader{
		IndexStartPtr: binary.LittleEndian.Uint32(b[0:4]),
		IndexEndPtr:   binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Encode 写出 8 字节文件头
func (h SuperHeader) Encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.IndexStartPtr)
	binary.LittleEndian.PutUint32(b[4:8], h.IndexEndPtr)
	return b
}

// Validate：校验索引区位于文件内且按块对齐
func (h SuperHeader) Validate(size int64) error {
	switch {
	case h.IndexStartPtr < HeaderSize:
		return fmt.Errorf("%w: index start %d overlaps super header", ErrCorruptDatabase, h.IndexStartPtr)
	case h.IndexEndPtr < h.IndexStartPtr:
		return fmt.Errorf("%w: index end %d before start %d", ErrCorruptDatabase, h.IndexEndPtr, h.IndexStartPtr)
	case (h.IndexEndPtr-h.IndexStartPtr)%IndexBlockSize != 0:
		return fmt.Errorf("%w: index region [%d,%d] not aligned to %d bytes", ErrCorruptDatabase, h.IndexStartPtr, h.IndexEndPtr, IndexBlockSize)
	case int64(h.IndexEndPtr)+IndexBlockSize > size:
		return fmt.Errorf("%w: index end %d beyond file size %d", ErrCorruptDatabase, h.IndexEndPtr, size)
	}
	return nil
}

// BlockCount 索引块总数
func (h SuperHeader) BlockCount() int {
	return int((h.IndexEndPtr-h.IndexStartPtr)/IndexBlockSize) + 1
}

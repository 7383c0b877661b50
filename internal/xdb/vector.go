package xdb

import (
	"fmt"
	"math"
)

const (
	// VectorCells 按 IP 高两字节划分的网格数（256×256）
	VectorCells = 256 * 256

	// 构建/校验时每次顺序读取的索引块数
	scanChunkBlocks = 4096
)

// VectorIndex：按 IP 高两字节缩小二分窗口的网格
// 单元 c 记录覆盖地址 c<<16 的第一个索引块偏移；窗口为 [ptrs[c], ptrs[c+1]]
type VectorIndex struct {
	ptrs   [VectorCells]uint32
	endPtr uint32
}

// BuildVectorIndex：顺序扫描一次索引区构建网格，同时校验覆盖不变量
func BuildVectorIndex(src Source, h SuperHeader) (*VectorIndex, error) {
	v := &VectorIndex{endPtr: h.IndexEndPtr}
	filled := 0
	var cov coverage
	err := scanIndex(src, h, func(off uint32, b IndexBlock) error {
		if err := cov.add(b); err != nil {
			return err
		}
		last := int(b.EndIP >> 16)
		for c := filled; c <= last; c++ {
			v.ptrs[c] = off
		}
		if last+1 > filled {
			filled = last + 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := cov.finish(); err != nil {
		return nil, err
	}
	return v, nil
}

// Window：返回 ip 所在网格单元的二分窗口（块偏移，均含）
func (v *VectorIndex) Window(ip uint32) (low, high uint32) {
	c := ip >> 16
	low = v.ptrs[c]
	if c == VectorCells-1 {
		return low, v.endPtr
	}
	return low, v.ptrs[c+1]
}

// scanIndex：按块顺序遍历索引区，分批读取以限制单次 I/O 大小
func scanIndex(src Source, h SuperHeader, fn func(off uint32, b IndexBlock) error) error {
	total := h.BlockCount()
	for i := 0; i < total; i += scanChunkBlocks {
		n := total - i
		if n > scanChunkBlocks {
			n = scanChunkBlocks
		}
		base := h.IndexStartPtr + uint32(i)*IndexBlockSize
		buf, err := src.ReadBlock(int64(base), n*IndexBlockSize)
		if err != nil {
			return err
		}
		for j := 0; j < n; j++ {
			b, err := DecodeIndexBlock(buf[j*IndexBlockSize:])
			if err != nil {
				return err
			}
			if err := fn(base+uint32(j)*IndexBlockSize, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// coverage：校验索引块从 0 连续覆盖到 0xFFFFFFFF，无缺口无重叠
type coverage struct {
	next uint32
	done bool
}

func (c *coverage) add(b IndexBlock) error {
	switch {
	case c.done:
		return fmt.Errorf("%w: block %s-%s after end of address space", ErrCorruptDatabase, FormatIP(b.StartIP), FormatIP(b.EndIP))
	case b.StartIP > b.EndIP:
		return fmt.Errorf("%w: block start %s > end %s", ErrCorruptDatabase, FormatIP(b.StartIP), FormatIP(b.EndIP))
	case b.StartIP > c.next:
		return fmt.Errorf("%w: coverage gap %s-%s", ErrCorruptDatabase, FormatIP(c.next), FormatIP(b.StartIP-1))
	case b.StartIP < c.next:
		return fmt.Errorf("%w: block %s-%s overlaps previous block", ErrCorruptDatabase, FormatIP(b.StartIP), FormatIP(b.EndIP))
	}
	if b.EndIP == math.MaxUint32 {
		c.done = true
	} else {
		c.next = b.EndIP + 1
	}
	return nil
}

func (c *coverage) finish() error {
	if !c.done {
		return fmt.Errorf("%w: coverage ends before 255.255.255.255 (next %s)", ErrCorruptDatabase, FormatIP(c.next))
	}
	return nil
}

package xdb

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

const (
	HeaderSize     = 8
	IndexBlockSize = 12

	// 索引块第三个字：低 24 位为数据指针，高 8 位为数据长度
	DataPtrMask  = 0x00FFFFFF
	DataLenShift = 24
	DataLenMask  = 0xFF

	MaxDataPtr = DataPtrMask
	MaxDataLen = DataLenMask

	cityIDSize = 4
)

// IndexBlock：12 字节索引记录，映射 [StartIP, EndIP] 到数据区的一条记录
type IndexBlock struct {
	StartIP uint32
	EndIP   uint32
	DataPtr uint32
	DataLen uint8
}

// Contains 按无符号语义判断 ip 是否落在块内
func (b IndexBlock) Contains(ip uint32) bool { return ip >= b.StartIP && ip <= b.EndIP }

// PackDataPtr：把数据指针与长度合成一个 32 位字
func PackDataPtr(ptr uint32, n uint8) uint32 {
	return ptr&DataPtrMask | uint32(n)<<DataLenShift
}

// UnpackDataPtr：PackDataPtr 的逆运算
func UnpackDataPtr(v uint32) (ptr uint32, n uint8) {
	return v & DataPtrMask, uint8(v >> DataLenShift & DataLenMask)
}

// DecodeIndexBlock：解析 12 字节小端索引块
func DecodeIndexBlock(b []byte) (IndexBlock, error) {
	if len(b) < IndexBlockSize {
		return IndexBlock{}, fmt.Errorf("%w: index block needs %d bytes, got %d", ErrCorruptDatabase, IndexBlockSize, len(b))
	}
	ptr, n := UnpackDataPtr(binary.LittleEndian.Uint32(b[8:12]))
	return IndexBlock{
		StartIP: binary.LittleEndian.Uint32(b[0:4]),
		EndIP:   binary.LittleEndian.Uint32(b[4:8]),
		DataPtr: ptr,
		DataLen: n,
	}, nil
}

// EncodeIndexBlock：DecodeIndexBlock 的逆运算，写入 dst 前 12 字节
// 约束：仅用于测试夹具与往返校验，检索路径不依赖
func EncodeIndexBlock(dst []byte, b IndexBlock) error {
	if len(dst) < IndexBlockSize {
		return fmt.Errorf("xdb: encode index block: buffer too small (%d)", len(dst))
	}
	if b.StartIP > b.EndIP {
		return fmt.Errorf("xdb: encode index block: start %s > end %s", FormatIP(b.StartIP), FormatIP(b.EndIP))
	}
	if b.DataPtr > MaxDataPtr {
		return fmt.Errorf("xdb: encode index block: data ptr %d exceeds 24 bits", b.DataPtr)
	}
	binary.LittleEndian.PutUint32(dst[0:4], b.StartIP)
	binary.LittleEndian.PutUint32(dst[4:8], b.EndIP)
	binary.LittleEndian.PutUint32(dst[8:12], PackDataPtr(b.DataPtr, b.DataLen))
	return nil
}

// DataBlock：数据区记录，按需解码，不持久化
type DataBlock struct {
	CityID int32
	Region string
}

// Location：把原始区域串拆分为五段
func (d DataBlock) Location() (Region, error) { return ParseRegion(d.Region) }

// DecodeDataBlock：前 4 字节为 cityId，其余 length-4 字节为 UTF-8 区域串
func DecodeDataBlock(b []byte, length int) (DataBlock, error) {
	if length < cityIDSize {
		return DataBlock{}, fmt.Errorf("%w: data block length %d < %d", ErrCorruptDatabase, length, cityIDSize)
	}
	if len(b) < length {
		return DataBlock{}, fmt.Errorf("%w: data block truncated: want %d bytes, got %d", ErrCorruptDatabase, length, len(b))
	}
	region := b[cityIDSize:length]
	if !utf8.Valid(region) {
		return DataBlock{}, fmt.Errorf("%w: region is not valid utf-8", ErrCorruptDatabase)
	}
	return DataBlock{
		CityID: int32(binary.LittleEndian.Uint32(b[0:cityIDSize])),
		Region: string(region),
	}, nil
}

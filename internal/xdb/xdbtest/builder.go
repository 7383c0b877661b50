// 包 xdbtest：测试夹具，在内存中编码小型库文件
package xdbtest

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"ipregion/internal/xdb"
)

// Range：一段地址及其区域串
type Range struct {
	Start  uint32
	End    uint32
	CityID int32
	Region string
}

// DefaultRegion 用于填补缺口的占位区域
const DefaultRegion = "0|0|0|内网IP|内网IP"

// Build：按 [header | index blocks | data] 布局编码，相同 (cityId, region) 共享一条数据记录
// 约束：不校验覆盖，调用方可刻意构造缺口或重叠
func Build(ranges []Range) []byte {
	if len(ranges) == 0 {
		panic("xdbtest: no ranges")
	}
	indexStart := uint32(xdb.HeaderSize)
	indexEnd := indexStart + uint32(len(ranges)-1)*xdb.IndexBlockSize
	dataStart := indexEnd + xdb.IndexBlockSize

	type key struct {
		city   int32
		region string
	}
	ptrs := make(map[key]uint32)
	var data []byte
	blocks := make([]byte, len(ranges)*xdb.IndexBlockSize)
	for i, r := range ranges {
		k := key{r.CityID, r.Region}
		ptr, ok := ptrs[k]
		if !ok {
			ptr = dataStart + uint32(len(data))
			ptrs[k] = ptr
			var c [4]byte
			binary.LittleEndian.PutUint32(c[:], uint32(r.CityID))
			data = append(data, c[:]...)
			data = append(data, r.Region...)
		}
		n := 4 + len(r.Region)
		if n > xdb.MaxDataLen {
			panic("xdbtest: region too long: " + r.Region)
		}
		b := xdb.IndexBlock{StartIP: r.Start, EndIP: r.End, DataPtr: ptr, DataLen: uint8(n)}
		if err := xdb.EncodeIndexBlock(blocks[i*xdb.IndexBlockSize:], b); err != nil {
			panic(err)
		}
	}
	h := xdb.SuperHeader{IndexStartPtr: indexStart, IndexEndPtr: indexEnd}
	out := make([]byte, 0, int(dataStart)+len(data))
	out = append(out, h.Encode()...)
	out = append(out, blocks...)
	return append(out, data...)
}

// Cover：按起始地址排序后的区段补齐缺口，使结果覆盖整个 IPv4 空间
// 约束：输入需按 Start 升序且互不重叠
func Cover(ranges []Range) []Range {
	var out []Range
	next := uint64(0)
	for _, r := range ranges {
		if uint64(r.Start) > next {
			out = append(out, Range{Start: uint32(next), End: r.Start - 1, Region: DefaultRegion})
		}
		out = append(out, r)
		next = uint64(r.End) + 1
	}
	if next <= math.MaxUint32 {
		out = append(out, Range{Start: uint32(next), End: math.MaxUint32, Region: DefaultRegion})
	}
	return out
}

// Sample：覆盖全空间的示例库，包含共享数据记录的相邻区段
func Sample() []Range {
	return Cover([]Range{
		{Start: ip("1.0.0.0"), End: ip("1.0.0.255"), CityID: 0, Region: "澳大利亚|0|0|0|0"},
		{Start: ip("1.0.1.0"), End: ip("1.0.3.255"), CityID: 0, Region: "中国|0|福建省|福州市|电信"},
		{Start: ip("1.0.4.0"), End: ip("1.0.7.255"), CityID: 0, Region: "澳大利亚|0|维多利亚|墨尔本|0"},
		{Start: ip("8.8.8.0"), End: ip("8.8.8.255"), CityID: 0, Region: "美国|0|0|0|Level3"},
		{Start: ip("114.114.114.0"), End: ip("114.114.114.255"), CityID: 1001, Region: "中国|0|江苏省|南京市|0"},
		{Start: ip("128.0.0.0"), End: ip("128.0.255.255"), CityID: 0, Region: "美国|0|0|0|0"},
		{Start: ip("192.0.0.0"), End: ip("192.0.0.255"), CityID: 0, Region: "中国|华北|北京|北京|联通"},
		{Start: ip("192.0.1.0"), End: ip("192.0.1.255"), CityID: 0, Region: "中国|华北|北京|北京|联通"},
		{Start: ip("223.5.5.0"), End: ip("223.5.5.255"), CityID: 2, Region: "中国|0|浙江省|杭州市|阿里云"},
		{Start: ip("255.255.255.0"), End: ip("255.255.255.254"), CityID: 0, Region: "0|0|0|保留地址|0"},
	})
}

// WriteFile：把编码后的库写入临时目录并返回路径
func WriteFile(t testing.TB, ranges []Range) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ip2region.db")
	if err := os.WriteFile(p, Build(ranges), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func ip(s string) uint32 {
	v, err := xdb.ParseIP(s)
	if err != nil {
		panic(err)
	}
	return v
}

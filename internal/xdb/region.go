package xdb

import (
	"fmt"
	"strings"
)

// RegionFields 区域串固定段数：country|region|province|city|isp
const RegionFields = 5

// Region：解析后的五段归属地信息，不可变值类型
type Region struct {
	Country  string `json:"country"`
	Region   string `json:"region"`
	Province string `json:"province"`
	City     string `json:"city"`
	ISP      string `json:"isp"`
}

// ParseRegion：按 | 拆分为恰好五段，段数不符视为库损坏
// 约束：不做 "0"/空值替换，展示策略由上层决定
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, "|")
	if len(parts) != RegionFields {
		return Region{}, fmt.Errorf("%w: region %q has %d fields, want %d", ErrCorruptDatabase, s, len(parts), RegionFields)
	}
	return Region{
		Country:  parts[0],
		Region:   parts[1],
		Province: parts[2],
		City:     parts[3],
		ISP:      parts[4],
	}, nil
}

func (r Region) String() string {
	return r.Country + "|" + r.Region + "|" + r.Province + "|" + r.City + "|" + r.ISP
}

package xdb

import (
	"fmt"
	"strings"
)

// Config：构造前设定的预加载策略
//   - HeaderCache：仅预加载 8 字节文件头
//   - VectorIndexCache：预加载 256×256 网格（仅向量检索使用）
//   - TotalCache：预加载整个文件，所有算法均从内存读取
type Config struct {
	HeaderCache      bool
	VectorIndexCache bool
	TotalCache       bool
}

// DefaultConfig 文件头 + 向量网格，内存占用有界且平均延迟最低
func DefaultConfig() Config {
	return Config{HeaderCache: true, VectorIndexCache: true}
}

func (c Config) String() string {
	return fmt.Sprintf("header=%t vector=%t total=%t", c.HeaderCache, c.VectorIndexCache, c.TotalCache)
}

// Algorithm：检索算法
type Algorithm int

const (
	VectorIndexed Algorithm = iota + 1
	Binary
	Memory
)

// Algorithms 按推荐顺序列出全部算法
var Algorithms = []Algorithm{VectorIndexed, Binary, Memory}

func (a Algorithm) String() string {
	switch a {
	case VectorIndexed:
		return "vector"
	case Binary:
		return "binary"
	case Memory:
		return "memory"
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// ParseAlgorithm：按名称解析算法；未知名称返回错误，不做静默回退
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vector", "vector_indexed", "vectorindexed", "btree":
		return VectorIndexed, nil
	case "binary":
		return Binary, nil
	case "memory":
		return Memory, nil
	}
	return 0, fmt.Errorf("xdb: unknown algorithm %q (want vector, binary or memory)", s)
}

// MarshalText / UnmarshalText 便于 flag 与 JSON 使用
func (a Algorithm) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

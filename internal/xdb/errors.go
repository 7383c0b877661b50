// 包 xdb：ip2region 风格只读二进制库的解析与检索内核
package xdb

import "errors"

// 错误分类：所有失败都包装且仅包装以下之一，调用方使用 errors.Is 判定
var (
	// ErrInvalidAddress 非法 IPv4 输入，不会触发任何文件读取
	ErrInvalidAddress = errors.New("xdb: invalid ipv4 address")

	// ErrCorruptDatabase 库文件违反不变量（覆盖缺口、指针越界、记录长度非法等）
	ErrCorruptDatabase = errors.New("xdb: corrupt database")

	// ErrIO 底层读取失败或读取范围超出数据源大小
	ErrIO = errors.New("xdb: io error")
)

// KindOf：把错误映射为简短标签，供指标与日志使用
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrCorruptDatabase):
		return "corrupt_database"
	case errors.Is(err, ErrIO):
		return "io_error"
	}
	return "unknown"
}

package xdb

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ParseIP：点分十进制 IPv4 转无符号 32 位整数
// 约束：必须恰好四段，每段为纯数字且位于 [0,255]；不接受 IPv6 与主机名
func ParseIP(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidAddress)
	}
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	var v uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 || !isDigits(p) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		v = v<<8 | uint32(n)
	}
	return v, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// AddrToUint32：netip.Addr 转整数；IPv4 映射的 IPv6 地址会先解除映射
func AddrToUint32(a netip.Addr) (uint32, error) {
	a = a.Unmap()
	if !a.Is4() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAddress, a)
	}
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// FormatIP：整数转点分十进制
func FormatIP(v uint32) string {
	var b [15]byte
	buf := strconv.AppendUint(b[:0], uint64(v>>24), 10)
	buf = append(buf, '.')
	buf = strconv.AppendUint(buf, uint64(v>>16&0xFF), 10)
	buf = append(buf, '.')
	buf = strconv.AppendUint(buf, uint64(v>>8&0xFF), 10)
	buf = append(buf, '.')
	buf = strconv.AppendUint(buf, uint64(v&0xFF), 10)
	return string(buf)
}

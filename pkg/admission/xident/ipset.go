package xident

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// parseRange 解析单条名单条目。支持 3 种格式：
//   - 单 IP: "203.0.113.9"
//   - CIDR: "203.0.113.0/24"
//   - 范围: "203.0.113.1-203.0.113.100"
//
// 输入自动去除首尾空白。
func parseRange(s string) (netipx.IPRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netipx.IPRange{}, fmt.Errorf("%w: empty entry", ErrInvalidRange)
	}

	// 拒绝带 IPv6 zone ID 的输入（如 fe80::1%eth0）：
	// netipx 会静默丢弃 zone，导致名单匹配误判。
	if strings.Contains(s, "%") {
		return netipx.IPRange{}, fmt.Errorf("%w: IPv6 zone ID not supported: %s", ErrInvalidRange, s)
	}

	if idx := strings.Index(s, "-"); idx >= 0 {
		start, startErr := netip.ParseAddr(strings.TrimSpace(s[:idx]))
		end, endErr := netip.ParseAddr(strings.TrimSpace(s[idx+1:]))
		if startErr != nil || endErr != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, s)
		}
		r := netipx.IPRangeFrom(start, end)
		if !r.IsValid() {
			return netipx.IPRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, s)
		}
		return r, nil
	}

	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: invalid CIDR: %w", ErrInvalidRange, err)
		}
		return netipx.RangeOfPrefix(prefix.Masked()), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netipx.IPRange{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	return netipx.IPRangeFrom(addr, addr), nil
}

// buildIPSet 将名单条目列表构建为 IPSet。
// 任一条目无法解析即返回错误：名单属于安全配置，静默丢弃条目
// 会造成旁路/封禁误判。
func buildIPSet(entries []string) (*netipx.IPSet, error) {
	var builder netipx.IPSetBuilder
	for _, entry := range entries {
		r, err := parseRange(entry)
		if err != nil {
			return nil, err
		}
		builder.AddRange(r)
	}
	return builder.IPSet()
}

package xident

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrInvalidRange 表示名单条目无法解析为 IP/CIDR/范围
	ErrInvalidRange = errors.New("xident: invalid IP range")

	// ErrEmptySalt 表示指纹盐值为空
	ErrEmptySalt = errors.New("xident: fingerprint salt must not be empty")
)

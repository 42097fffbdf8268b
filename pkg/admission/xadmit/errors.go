package xadmit

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrGuardClosed 表示门面已关闭
	ErrGuardClosed = errors.New("xadmit: guard closed")

	// ErrInvalidThreshold 表示监控阈值配置无法解析
	ErrInvalidThreshold = errors.New("xadmit: invalid monitor threshold")
)

package xmonitor

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrInvalidConfig 表示监控配置无效
	ErrInvalidConfig = errors.New("xmonitor: invalid config")

	// ErrMonitorClosed 表示监控已关闭
	ErrMonitorClosed = errors.New("xmonitor: monitor closed")
)

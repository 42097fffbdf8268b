package xwindow

import (
	"context"
	"time"
)

// TakeResult 一次准入检查的结果。
type TakeResult struct {
	// Admitted 是否准入
	Admitted bool

	// Requests 窗口内已计数的请求数（准入时含本次）
	Requests int

	// Remaining 相对 MaxRequests 的剩余配额（突发余量内的准入为 0）
	Remaining int

	// RetryAfter 被拒绝时建议的重试等待时间
	RetryAfter time.Duration

	// Degraded 是否由降级路径（本地后端或直接放行）产生
	Degraded bool
}

// Backend 滑动日志后端接口。
// 实现必须保证 Take 的淘汰-计数-写入序列原子执行，并发安全。
type Backend interface {
	// Take 对 key 执行一次准入检查。
	// limit 为 MaxRequests，burst 为突发余量，容量 = limit + burst。
	Take(ctx context.Context, key string, limit, burst int, window time.Duration) (TakeResult, error)

	// Reset 清空 key 的窗口状态
	Reset(ctx context.Context, key string) error

	// Close 释放后端自有资源（不关闭注入的外部客户端）
	Close() error

	// Type 返回后端类型标识，用于日志和指标
	Type() string
}

// buildResult 由窗口计数和最老存活时间戳构造检查结果。
// oldest 为零值表示窗口为空（零容量拒绝），RetryAfter 取整个窗口。
func buildResult(admitted bool, requests, limit int, window time.Duration, now, oldest time.Time) TakeResult {
	res := TakeResult{
		Admitted: admitted,
		Requests: requests,
	}

	if remaining := limit - requests; remaining > 0 {
		res.Remaining = remaining
	}

	if !admitted {
		if oldest.IsZero() {
			res.RetryAfter = window
		} else if retry := window - now.Sub(oldest); retry > 0 {
			res.RetryAfter = retry
		}
	}

	return res
}

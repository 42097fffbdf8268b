package xmonitor

import (
	"context"
	"time"
)

// Kind 告警种类。
type Kind string

const (
	// KindThreshold 使用率越过配置阈值
	KindThreshold Kind = "threshold"
	// KindViolation 请求被拒绝
	KindViolation Kind = "violation"
	// KindSuspicious 可疑行为模式
	KindSuspicious Kind = "suspicious"
)

// Severity 告警级别。
type Severity string

const (
	// SeverityLow 低
	SeverityLow Severity = "low"
	// SeverityMedium 中
	SeverityMedium Severity = "medium"
	// SeverityHigh 高
	SeverityHigh Severity = "high"
	// SeverityCritical 严重
	SeverityCritical Severity = "critical"
)

// Pattern 可疑行为模式。
type Pattern string

const (
	// PatternRapidRequests 短时间内高频请求
	PatternRapidRequests Pattern = "rapid_requests"
	// PatternEndpointProbing 多端点探测
	PatternEndpointProbing Pattern = "endpoint_probing"
	// PatternAuthFailures 重复认证失败
	PatternAuthFailures Pattern = "auth_failures"
)

// Alert 一条已触发的告警。
type Alert struct {
	// ID 告警唯一标识
	ID string

	// Time 触发时间
	Time time.Time

	// Kind 告警种类
	Kind Kind

	// Severity 告警级别
	Severity Severity

	// Key 触发告警的准入键
	Key string

	// Class 端点类别
	Class string

	// Pattern 模式名，仅 KindSuspicious 时非空
	Pattern Pattern

	// Payload 种类相关的附加数据（比例、计数等）
	Payload map[string]any
}

// Event 一次准入决策事件，由准入策略产生、监控消费一次，
// 之后仅保留在有界环形缓冲中。
type Event struct {
	// Time 决策时间
	Time time.Time

	// Key 准入键
	Key string

	// Class 端点类别
	Class string

	// Requests 窗口内已计数的请求数
	Requests int

	// Limit 预算上限（MaxRequests，不含突发余量）
	Limit int

	// Admitted 是否准入
	Admitted bool

	// Bypass 是否旁路（admin/whitelisted），仅计数可见性，不参与检测
	Bypass bool

	// Degraded 是否由降级路径产生
	Degraded bool

	// Origin 来源元数据（网络来源等），仅随事件留存
	Origin map[string]string
}

// Dispatcher 告警派发接口，由外部协作方实现（邮件/IM/webhook 等）。
// 派发以 fire-and-forget 方式在独立 goroutine 中执行，返回的错误
// 仅用于监控内部的重试判定，永远不会回传到触发告警的请求路径。
type Dispatcher interface {
	Dispatch(ctx context.Context, alert Alert) error
}

// DispatcherFunc 函数式 Dispatcher 适配器。
type DispatcherFunc func(ctx context.Context, alert Alert) error

// Dispatch 实现 Dispatcher 接口。
func (f DispatcherFunc) Dispatch(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

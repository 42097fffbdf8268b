package xbudget

import (
	"fmt"
	"time"
)

// Priority 端点类别的优先级。
type Priority string

const (
	// PriorityLow 低优先级
	PriorityLow Priority = "low"
	// PriorityNormal 普通优先级（默认）
	PriorityNormal Priority = "normal"
	// PriorityHigh 高优先级
	PriorityHigh Priority = "high"
	// PriorityCritical 关键优先级
	PriorityCritical Priority = "critical"
)

// IsValid 检查优先级是否有效。空值视为 PriorityNormal。
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical, "":
		return true
	default:
		return false
	}
}

// Budget 单个端点类别的准入预算。
// 加载后不可变；Multiplier 仅在 Registry 构建时生效。
type Budget struct {
	// MaxRequests 窗口内允许的最大请求数。
	// 0 表示始终拒绝（封禁键使用的预算）。
	MaxRequests int `json:"max_requests" yaml:"max_requests" koanf:"max_requests"`

	// Window 滑动窗口时长
	Window time.Duration `json:"window" yaml:"window" koanf:"window"`

	// Burst 突发余量，在 MaxRequests 之上额外允许的请求数
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty" koanf:"burst"`

	// Priority 优先级，用于日志和告警分级
	Priority Priority `json:"priority,omitempty" yaml:"priority,omitempty" koanf:"priority"`
}

// Validate 验证预算是否有效。
func (b Budget) Validate() error {
	if b.MaxRequests < 0 {
		return fmt.Errorf("%w: max_requests cannot be negative", ErrInvalidBudget)
	}
	if b.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidBudget)
	}
	if b.Burst < 0 {
		return fmt.Errorf("%w: burst cannot be negative", ErrInvalidBudget)
	}
	if !b.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidBudget, b.Priority)
	}
	return nil
}

// Capacity 返回窗口内的总容量（MaxRequests + Burst）。
func (b Budget) Capacity() int {
	return b.MaxRequests + b.Burst
}

// EffectivePriority 返回有效优先级，空值归一化为 PriorityNormal。
func (b Budget) EffectivePriority() Priority {
	if b.Priority == "" {
		return PriorityNormal
	}
	return b.Priority
}

// scale 返回 MaxRequests 按倍率放大后的预算副本。
// MaxRequests 为 0（始终拒绝）时不放大。
func (b Budget) scale(multiplier int) Budget {
	if multiplier <= 1 || b.MaxRequests == 0 {
		return b
	}
	scaled := b
	scaled.MaxRequests = b.MaxRequests * multiplier
	return scaled
}

// DefaultBudget 返回未知端点类别使用的保守默认预算。
// 宁可放行少量超额流量也不能让未配置的端点全部被拒。
func DefaultBudget() Budget {
	return Budget{
		MaxRequests: 60,
		Window:      time.Minute,
		Priority:    PriorityNormal,
	}
}

// ZeroBudget 返回始终拒绝的预算，用于封禁键。
func ZeroBudget(window time.Duration) Budget {
	if window <= 0 {
		window = time.Minute
	}
	return Budget{
		MaxRequests: 0,
		Window:      window,
		Priority:    PriorityLow,
	}
}

package xbudget

import (
	"fmt"
	"maps"
)

// Registry 端点类别到预算的只读注册表。
// 构建后不可变，可被任意多个 goroutine 并发读取。
type Registry struct {
	budgets    map[string]Budget
	defaultB   Budget
	multiplier int
}

// NewRegistry 构建注册表。
// budgets 按端点类别键入；multiplier 在此处一次性放大所有
// MaxRequests（含默认预算），请求路径上不再缩放。
func NewRegistry(budgets map[string]Budget, multiplier int, opts ...RegistryOption) (*Registry, error) {
	if multiplier <= 0 {
		multiplier = 1
	}

	o := registryOptions{defaultBudget: DefaultBudget()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.defaultBudget.Validate(); err != nil {
		return nil, fmt.Errorf("default budget: %w", err)
	}

	scaled := make(map[string]Budget, len(budgets))
	for class, b := range budgets {
		if class == "" {
			return nil, fmt.Errorf("%w: empty endpoint class", ErrInvalidBudget)
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("budget %q: %w", class, err)
		}
		scaled[class] = b.scale(multiplier)
	}

	return &Registry{
		budgets:    scaled,
		defaultB:   o.defaultBudget.scale(multiplier),
		multiplier: multiplier,
	}, nil
}

// RegistryOption 注册表可选配置。
type RegistryOption func(*registryOptions)

type registryOptions struct {
	defaultBudget Budget
}

// WithDefaultBudget 覆盖未知端点类别使用的默认预算。
func WithDefaultBudget(b Budget) RegistryOption {
	return func(o *registryOptions) {
		o.defaultBudget = b
	}
}

// Lookup 返回端点类别的预算。
// 未知类别返回默认预算和 known=false，调用方据此记录告警日志；
// 查不到配置从不构成拒绝请求的理由。
func (r *Registry) Lookup(class string) (budget Budget, known bool) {
	if b, ok := r.budgets[class]; ok {
		return b, true
	}
	return r.defaultB, false
}

// Default 返回默认预算（已应用倍率）。
func (r *Registry) Default() Budget {
	return r.defaultB
}

// Classes 返回已配置的端点类别快照，仅用于诊断。
func (r *Registry) Classes() []string {
	classes := make([]string, 0, len(r.budgets))
	for class := range maps.Keys(r.budgets) {
		classes = append(classes, class)
	}
	return classes
}

// Multiplier 返回构建时应用的环境倍率。
func (r *Registry) Multiplier() int {
	return r.multiplier
}

// MultiplierForEnv 返回环境名对应的预算倍率。
// development ×5、test ×10、其余环境 ×1。
func MultiplierForEnv(env string) int {
	switch env {
	case "development", "dev":
		return 5
	case "test", "testing":
		return 10
	default:
		return 1
	}
}

package xmonitor

import (
	"fmt"
	"sort"
	"time"
)

// 默认参数
const (
	defaultCooldown        = 5 * time.Minute
	defaultEventBufferSize = 10_000
	defaultAlertBufferSize = 1_000
	defaultDispatchBuffer  = 256
	defaultMaxTrackedKeys  = 10_000

	defaultRapidCount  = 10
	defaultRapidWindow = time.Minute

	defaultProbeClasses = 5
	defaultProbeWindow  = 5 * time.Minute

	defaultAuthEvents = 3
	defaultAuthWindow = 5 * time.Minute
)

// ThresholdRule 使用率阈值与对应告警级别。
type ThresholdRule struct {
	// Ratio 使用率阈值（requests/limit），(0, 1] 区间
	Ratio float64

	// Severity 越过该阈值时的告警级别
	Severity Severity
}

// DefaultThresholds 返回默认阈值表：0.70→low、0.80→medium、0.95→high。
func DefaultThresholds() []ThresholdRule {
	return []ThresholdRule{
		{Ratio: 0.70, Severity: SeverityLow},
		{Ratio: 0.80, Severity: SeverityMedium},
		{Ratio: 0.95, Severity: SeverityHigh},
	}
}

// Config 监控配置。零值可用，所有字段都有默认值。
type Config struct {
	// Thresholds 使用率阈值表，空表示使用 DefaultThresholds
	Thresholds []ThresholdRule

	// Cooldown 同键同类告警的冷却时长，默认 300s
	Cooldown time.Duration

	// EventBufferSize 事件环形缓冲容量，默认 10000
	EventBufferSize int

	// AlertBufferSize 告警环形缓冲容量，默认 1000
	AlertBufferSize int

	// AuthClasses 视为认证类端点的类别名
	AuthClasses []string

	// RapidCount / RapidWindow 高频请求模式参数，默认 10 次 / 60s
	RapidCount  int
	RapidWindow time.Duration

	// ProbeClasses / ProbeWindow 多端点探测模式参数，默认 5 类 / 300s
	ProbeClasses int
	ProbeWindow  time.Duration

	// AuthEvents / AuthWindow 认证失败模式参数，默认 3 次 / 300s
	AuthEvents int
	AuthWindow time.Duration
}

// withDefaults 返回填充默认值并按阈值升序排好的配置副本。
func (c Config) withDefaults() (Config, error) {
	out := c

	if len(out.Thresholds) == 0 {
		out.Thresholds = DefaultThresholds()
	} else {
		out.Thresholds = append([]ThresholdRule(nil), out.Thresholds...)
	}
	for _, t := range out.Thresholds {
		if t.Ratio <= 0 || t.Ratio > 1 {
			return Config{}, fmt.Errorf("%w: threshold ratio %v out of (0, 1]", ErrInvalidConfig, t.Ratio)
		}
	}
	// 阈值升序评估，单次只取越过的最高档。
	sort.Slice(out.Thresholds, func(i, j int) bool {
		return out.Thresholds[i].Ratio < out.Thresholds[j].Ratio
	})

	if out.Cooldown <= 0 {
		out.Cooldown = defaultCooldown
	}
	if out.EventBufferSize <= 0 {
		out.EventBufferSize = defaultEventBufferSize
	}
	if out.AlertBufferSize <= 0 {
		out.AlertBufferSize = defaultAlertBufferSize
	}
	if out.RapidCount <= 0 {
		out.RapidCount = defaultRapidCount
	}
	if out.RapidWindow <= 0 {
		out.RapidWindow = defaultRapidWindow
	}
	if out.ProbeClasses <= 0 {
		out.ProbeClasses = defaultProbeClasses
	}
	if out.ProbeWindow <= 0 {
		out.ProbeWindow = defaultProbeWindow
	}
	if out.AuthEvents <= 0 {
		out.AuthEvents = defaultAuthEvents
	}
	if out.AuthWindow <= 0 {
		out.AuthWindow = defaultAuthWindow
	}

	return out, nil
}

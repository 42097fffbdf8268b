package xmonitor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称常量
const (
	// metricNameRequestsTotal 准入事件总数计数器
	metricNameRequestsTotal = "gatekit.requests.total"
	// metricNameRejectedTotal 拒绝事件计数器
	metricNameRejectedTotal = "gatekit.rejected.total"
	// metricNameAlertsTotal 告警计数器
	metricNameAlertsTotal = "gatekit.alerts.total"
	// metricNameStoreErrors 共享存储故障信号计数器
	metricNameStoreErrors = "gatekit.store.errors"
)

// metrics 监控指标收集器。nil 接收者安全（不收集）。
type metrics struct {
	requestsTotal metric.Int64Counter
	rejectedTotal metric.Int64Counter
	alertsTotal   metric.Int64Counter
	storeErrors   metric.Int64Counter
}

// newMetrics 创建指标收集器。meterProvider 为 nil 时返回 nil。
func newMetrics(meterProvider metric.MeterProvider) (*metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("gatekit",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	requestsTotal, err := meter.Int64Counter(
		metricNameRequestsTotal,
		metric.WithDescription("准入事件总数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rejectedTotal, err := meter.Int64Counter(
		metricNameRejectedTotal,
		metric.WithDescription("被拒绝的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	alertsTotal, err := meter.Int64Counter(
		metricNameAlertsTotal,
		metric.WithDescription("触发的告警数"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	storeErrors, err := meter.Int64Counter(
		metricNameStoreErrors,
		metric.WithDescription("共享计数存储故障信号数"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		requestsTotal: requestsTotal,
		rejectedTotal: rejectedTotal,
		alertsTotal:   alertsTotal,
		storeErrors:   storeErrors,
	}, nil
}

// recordEvent 记录一次准入事件。
// 标签只用低基数维度（类别/结果），准入键不进指标。
func (m *metrics) recordEvent(ctx context.Context, e Event) {
	if m == nil {
		return
	}

	// ctx 取消不应阻止指标记录。
	metricsCtx := context.WithoutCancel(ctx)

	attrs := []attribute.KeyValue{
		attribute.String("class", e.Class),
		attribute.Bool("admitted", e.Admitted),
		attribute.Bool("bypass", e.Bypass),
		attribute.Bool("degraded", e.Degraded),
	}

	m.requestsTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	if !e.Admitted {
		m.rejectedTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	}
}

// recordAlert 记录一次告警触发。
func (m *metrics) recordAlert(ctx context.Context, a Alert) {
	if m == nil {
		return
	}

	metricsCtx := context.WithoutCancel(ctx)

	attrs := []attribute.KeyValue{
		attribute.String("kind", string(a.Kind)),
		attribute.String("severity", string(a.Severity)),
	}
	if a.Pattern != "" {
		attrs = append(attrs, attribute.String("pattern", string(a.Pattern)))
	}

	m.alertsTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
}

// recordStoreError 记录一次存储故障信号。
func (m *metrics) recordStoreError(ctx context.Context) {
	if m == nil {
		return
	}
	m.storeErrors.Add(context.WithoutCancel(ctx), 1)
}

package xmonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMonitor_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m := newTestMonitor(t, Config{}, WithMeterProvider(mp))

	ctx := context.Background()
	m.Record(ctx, Event{Time: time.Now(), Key: "user:1", Class: "api", Requests: 1, Limit: 100, Admitted: true})
	// 拒绝事件同时推进 rejected 和 alerts 计数器
	m.Record(ctx, Event{Time: time.Now(), Key: "user:1", Class: "api", Requests: 100, Limit: 100, Admitted: false})
	m.RecordStoreError(ctx, errors.New("connection refused"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	found := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			found[met.Name] = true
		}
	}
	for _, name := range []string{
		metricNameRequestsTotal,
		metricNameRejectedTotal,
		metricNameAlertsTotal,
		metricNameStoreErrors,
	} {
		if !found[name] {
			t.Errorf("metric %s not collected", name)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics
	ctx := context.Background()

	// nil 收集器上的记录是 no-op，不崩溃
	m.recordEvent(ctx, Event{})
	m.recordAlert(ctx, Alert{})
	m.recordStoreError(ctx)

	got, err := newMetrics(nil)
	if err != nil {
		t.Fatalf("newMetrics(nil) failed: %v", err)
	}
	if got != nil {
		t.Error("newMetrics(nil) should return nil collector")
	}
}

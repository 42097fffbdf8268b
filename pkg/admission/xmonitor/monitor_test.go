//nolint:errcheck // 测试文件中的错误处理简化
package xmonitor

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// newTestMonitor 创建无派发器的监控，测试通过 RecentAlerts 断言。
func newTestMonitor(t *testing.T, cfg Config, opts ...MonitorOption) *Monitor {
	t.Helper()
	m, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// alertsOf 过滤指定种类（及可选模式）的告警。
func alertsOf(m *Monitor, kind Kind, pattern Pattern) []Alert {
	var out []Alert
	for _, a := range m.RecentAlerts(0) {
		if a.Kind == kind && a.Pattern == pattern {
			out = append(out, a)
		}
	}
	return out
}

func TestMonitor_ThresholdAlert(t *testing.T) {
	m := newTestMonitor(t, Config{Cooldown: time.Minute})
	ctx := context.Background()
	base := time.Now()

	// 70% 使用率，越过最低阈值
	m.Record(ctx, Event{Time: base, Key: "user:1", Class: "search", Requests: 7, Limit: 10, Admitted: true})

	alerts := alertsOf(m, KindThreshold, "")
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != SeverityLow {
		t.Errorf("severity = %s, want low", alerts[0].Severity)
	}
	if alerts[0].Payload["requests"] != 7 {
		t.Errorf("payload requests = %v", alerts[0].Payload["requests"])
	}

	// 冷却期内的第二次越限不再触发
	m.Record(ctx, Event{Time: base.Add(time.Second), Key: "user:1", Class: "search", Requests: 8, Limit: 10, Admitted: true})
	if got := alertsOf(m, KindThreshold, ""); len(got) != 1 {
		t.Fatalf("alerts after second crossing = %d, want still 1", len(got))
	}

	// 冷却过期后重新触发
	m.Record(ctx, Event{Time: base.Add(2 * time.Minute), Key: "user:1", Class: "search", Requests: 8, Limit: 10, Admitted: true})
	if got := alertsOf(m, KindThreshold, ""); len(got) != 2 {
		t.Fatalf("alerts after cooldown expiry = %d, want 2", len(got))
	}
}

func TestMonitor_ThresholdHighestOnly(t *testing.T) {
	m := newTestMonitor(t, Config{})
	ctx := context.Background()

	// 100% 使用率同时越过三档阈值，只触发最高档
	m.Record(ctx, Event{Time: time.Now(), Key: "user:1", Class: "api", Requests: 10, Limit: 10, Admitted: true})

	alerts := alertsOf(m, KindThreshold, "")
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(alerts))
	}
	if alerts[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", alerts[0].Severity)
	}
}

func TestMonitor_ThresholdKeysIndependent(t *testing.T) {
	m := newTestMonitor(t, Config{})
	ctx := context.Background()
	now := time.Now()

	m.Record(ctx, Event{Time: now, Key: "user:1", Class: "api", Requests: 7, Limit: 10, Admitted: true})
	m.Record(ctx, Event{Time: now, Key: "user:2", Class: "api", Requests: 7, Limit: 10, Admitted: true})

	// 冷却按键隔离，两个键各触发一次
	if got := alertsOf(m, KindThreshold, ""); len(got) != 2 {
		t.Fatalf("alerts = %d, want 2", len(got))
	}
}

func TestMonitor_ViolationAlert(t *testing.T) {
	m := newTestMonitor(t, Config{})
	ctx := context.Background()
	base := time.Now()

	m.Record(ctx, Event{Time: base, Key: "ip:1.2.3.4:ab", Class: "api", Requests: 10, Limit: 10, Admitted: false})

	alerts := alertsOf(m, KindViolation, "")
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", alerts[0].Severity)
	}

	// 冷却期内重复拒绝不再触发
	m.Record(ctx, Event{Time: base.Add(time.Second), Key: "ip:1.2.3.4:ab", Class: "api", Requests: 10, Limit: 10, Admitted: false})
	if got := alertsOf(m, KindViolation, ""); len(got) != 1 {
		t.Fatalf("alerts = %d, want still 1", len(got))
	}
}

func TestMonitor_RapidRequestsPattern(t *testing.T) {
	m := newTestMonitor(t, Config{RapidCount: 3, RapidWindow: time.Minute})
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 2; i++ {
		m.Record(ctx, Event{Time: base.Add(time.Duration(i) * time.Second), Key: "user:1", Class: "api", Requests: 1, Limit: 100, Admitted: true})
	}
	if got := alertsOf(m, KindSuspicious, PatternRapidRequests); len(got) != 0 {
		t.Fatalf("alerts before threshold = %d, want 0", len(got))
	}

	// 第 3 个事件达到阈值，恰好触发一次
	m.Record(ctx, Event{Time: base.Add(2 * time.Second), Key: "user:1", Class: "api", Requests: 1, Limit: 100, Admitted: true})
	alerts := alertsOf(m, KindSuspicious, PatternRapidRequests)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Payload["count"] != 3 {
		t.Errorf("payload count = %v, want 3", alerts[0].Payload["count"])
	}

	// 继续高频，冷却期内不再触发
	m.Record(ctx, Event{Time: base.Add(3 * time.Second), Key: "user:1", Class: "api", Requests: 1, Limit: 100, Admitted: true})
	if got := alertsOf(m, KindSuspicious, PatternRapidRequests); len(got) != 1 {
		t.Fatalf("alerts in cooldown = %d, want still 1", len(got))
	}
}

func TestMonitor_EndpointProbingPattern(t *testing.T) {
	m := newTestMonitor(t, Config{ProbeClasses: 3, ProbeWindow: 5 * time.Minute})
	ctx := context.Background()
	base := time.Now()

	for i, class := range []string{"login", "search", "export"} {
		m.Record(ctx, Event{Time: base.Add(time.Duration(i) * time.Second), Key: "ip:5.6.7.8:cd", Class: class, Requests: 1, Limit: 100, Admitted: true})
	}

	alerts := alertsOf(m, KindSuspicious, PatternEndpointProbing)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Payload["classes"] != 3 {
		t.Errorf("payload classes = %v, want 3", alerts[0].Payload["classes"])
	}
}

func TestMonitor_AuthFailuresPattern(t *testing.T) {
	m := newTestMonitor(t, Config{
		AuthClasses: []string{"login"},
		AuthEvents:  3,
		AuthWindow:  5 * time.Minute,
	})
	ctx := context.Background()
	base := time.Now()

	// 认证类端点的事件不分准入与否都计入
	m.Record(ctx, Event{Time: base, Key: "ip:9.9.9.9:ef", Class: "login", Requests: 1, Limit: 5, Admitted: true})
	m.Record(ctx, Event{Time: base.Add(time.Second), Key: "ip:9.9.9.9:ef", Class: "login", Requests: 5, Limit: 5, Admitted: false})
	m.Record(ctx, Event{Time: base.Add(2 * time.Second), Key: "ip:9.9.9.9:ef", Class: "login", Requests: 5, Limit: 5, Admitted: false})

	alerts := alertsOf(m, KindSuspicious, PatternAuthFailures)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", alerts[0].Severity)
	}
	if alerts[0].Payload["events"] != 3 {
		t.Errorf("payload events = %v, want 3", alerts[0].Payload["events"])
	}
	if alerts[0].Payload["rejected"] != 2 {
		t.Errorf("payload rejected = %v, want 2", alerts[0].Payload["rejected"])
	}

	// 非认证类端点不计入
	m2 := newTestMonitor(t, Config{AuthClasses: []string{"login"}, AuthEvents: 2})
	for i := 0; i < 3; i++ {
		m2.Record(ctx, Event{Time: base.Add(time.Duration(i) * time.Second), Key: "user:7", Class: "search", Requests: 1, Limit: 100, Admitted: true})
	}
	if got := alertsOf(m2, KindSuspicious, PatternAuthFailures); len(got) != 0 {
		t.Fatalf("alerts for non-auth class = %d, want 0", len(got))
	}
}

func TestMonitor_BypassNotEvaluated(t *testing.T) {
	m := newTestMonitor(t, Config{RapidCount: 2})
	ctx := context.Background()
	base := time.Now()

	// 旁路事件只计数，不参与任何检测
	for i := 0; i < 5; i++ {
		m.Record(ctx, Event{Time: base.Add(time.Duration(i) * time.Second), Key: "admin:10.0.0.1", Class: "api", Admitted: true, Bypass: true})
	}

	if got := m.RecentAlerts(0); len(got) != 0 {
		t.Fatalf("alerts = %d, want 0 for bypass events", len(got))
	}

	s := m.Snapshot()
	if s.Total != 5 || s.Bypassed != 5 {
		t.Errorf("Total/Bypassed = %d/%d, want 5/5", s.Total, s.Bypassed)
	}
}

func TestMonitor_DispatcherReceivesAlerts(t *testing.T) {
	received := make(chan Alert, 8)
	m := newTestMonitor(t, Config{}, WithDispatcher(DispatcherFunc(func(_ context.Context, a Alert) error {
		received <- a
		return nil
	})))

	m.Record(context.Background(), Event{Time: time.Now(), Key: "user:1", Class: "api", Requests: 10, Limit: 10, Admitted: false})

	select {
	case a := <-received:
		if a.Kind != KindViolation {
			t.Errorf("kind = %s, want violation", a.Kind)
		}
		if a.ID == "" {
			t.Error("alert ID should be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not receive the alert")
	}
}

func TestMonitor_DispatcherErrorRetried(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})

	m := newTestMonitor(t, Config{}, WithDispatcher(DispatcherFunc(func(_ context.Context, _ Alert) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})))

	m.Record(context.Background(), Event{Time: time.Now(), Key: "user:1", Class: "api", Requests: 10, Limit: 10, Admitted: false})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("dispatch was not retried after transient error")
	}
}

func TestMonitor_DispatcherPanicIsolated(t *testing.T) {
	m := newTestMonitor(t, Config{}, WithDispatcher(DispatcherFunc(func(_ context.Context, _ Alert) error {
		panic("dispatcher bug")
	})))

	ctx := context.Background()
	m.Record(ctx, Event{Time: time.Now(), Key: "user:1", Class: "api", Requests: 10, Limit: 10, Admitted: false})

	// 派发方 panic 不影响监控本身
	time.Sleep(100 * time.Millisecond)
	m.Record(ctx, Event{Time: time.Now(), Key: "user:2", Class: "api", Requests: 1, Limit: 10, Admitted: true})
	if s := m.Snapshot(); s.Total != 2 {
		t.Errorf("Total = %d, want 2", s.Total)
	}
}

func TestMonitor_DropsWhenDispatchBufferFull(t *testing.T) {
	block := make(chan struct{})
	m := newTestMonitor(t, Config{},
		WithDispatchBuffer(1),
		WithDispatcher(DispatcherFunc(func(_ context.Context, _ Alert) error {
			<-block
			return nil
		})),
	)
	defer close(block)

	ctx := context.Background()
	now := time.Now()

	// 不同键的拒绝事件各自触发告警，塞满派发缓冲
	for i := 0; i < 5; i++ {
		m.Record(ctx, Event{Time: now, Key: "user:" + strconv.Itoa(i), Class: "api", Requests: 10, Limit: 10, Admitted: false})
	}

	if s := m.Snapshot(); s.DroppedAlerts < 3 {
		t.Errorf("DroppedAlerts = %d, want >= 3", s.DroppedAlerts)
	}
}

func TestMonitor_RecordStoreError(t *testing.T) {
	m := newTestMonitor(t, Config{})
	ctx := context.Background()

	m.RecordStoreError(ctx, errors.New("connection refused"))
	m.RecordStoreError(ctx, errors.New("timeout"))

	if s := m.Snapshot(); s.StoreErrors != 2 {
		t.Errorf("StoreErrors = %d, want 2", s.StoreErrors)
	}
	// 存储故障信号不产生告警
	if got := m.RecentAlerts(0); len(got) != 0 {
		t.Errorf("alerts = %d, want 0", len(got))
	}
}

func TestMonitor_Snapshot(t *testing.T) {
	m := newTestMonitor(t, Config{})
	ctx := context.Background()
	now := time.Now()

	m.Record(ctx, Event{Time: now, Key: "user:1", Class: "api", Requests: 1, Limit: 100, Admitted: true})
	m.Record(ctx, Event{Time: now, Key: "user:1", Class: "api", Requests: 100, Limit: 100, Admitted: false})
	m.Record(ctx, Event{Time: now, Key: "user:2", Class: "login", Requests: 1, Limit: 5, Admitted: true})

	s := m.Snapshot()
	if s.Total != 3 || s.Admitted != 2 || s.Rejected != 1 {
		t.Errorf("Total/Admitted/Rejected = %d/%d/%d", s.Total, s.Admitted, s.Rejected)
	}
	if want := 1.0 / 3.0; s.RejectionRatio != want {
		t.Errorf("RejectionRatio = %v, want %v", s.RejectionRatio, want)
	}
	if cs := s.PerClass["api"]; cs.Total != 2 || cs.Rejected != 1 {
		t.Errorf("PerClass[api] = %+v", cs)
	}
	if ks := s.PerKey["user:1"]; ks.Total != 2 || ks.Admitted != 1 {
		t.Errorf("PerKey[user:1] = %+v", ks)
	}
}

func TestMonitor_RecentEvents(t *testing.T) {
	m := newTestMonitor(t, Config{EventBufferSize: 2})
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		m.Record(ctx, Event{Time: now, Key: "user:" + strconv.Itoa(i), Class: "api", Requests: 1, Limit: 100, Admitted: true})
	}

	events := m.RecentEvents(0)
	if len(events) != 2 {
		t.Fatalf("events = %d, want buffer capacity 2", len(events))
	}
	// 最新在前
	if events[0].Key != "user:2" || events[1].Key != "user:1" {
		t.Errorf("events order: %s, %s", events[0].Key, events[1].Key)
	}
}

func TestMonitor_Close(t *testing.T) {
	m, err := New(Config{}, WithDispatcher(DispatcherFunc(func(_ context.Context, _ Alert) error {
		return nil
	})))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// 幂等
	if err := m.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	// 关闭后的 Record 是安静的 no-op
	m.Record(context.Background(), Event{Time: time.Now(), Key: "user:1", Class: "api", Admitted: true})
	if s := m.Snapshot(); s.Total != 0 {
		t.Errorf("Total after close = %d, want 0", s.Total)
	}
}

package xmonitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/gatekit/pkg/observability/xlog"
)

// fireKey 告警抑制的键：同键同类告警共享一个冷却窗口。
// 可疑模式按 (key, pattern) 抑制，不区分端点类别——
// endpoint_probing 本身就是跨类别行为。
type fireKey struct {
	key     string
	class   string
	kind    Kind
	pattern Pattern
}

// keyStats 单个准入键的计数。
type keyStats struct {
	total    uint64
	admitted uint64
	rejected uint64
}

// classStats 单个端点类别的计数。
type classStats struct {
	total    uint64
	admitted uint64
	rejected uint64
}

// Monitor 滥用监控。并发安全；自身的互斥锁独立于准入策略的
// 锁，监控记账不会让不相关的键在准入路径上互相排队。
type Monitor struct {
	cfg         Config
	authClasses map[string]struct{}

	mu        sync.Mutex
	events    *ring[Event]
	alerts    *ring[Alert]
	lastFired map[fireKey]time.Time
	perClass  map[string]*classStats
	perKey    *lru.Cache[string, *keyStats]

	total       atomic.Uint64
	admitted    atomic.Uint64
	rejected    atomic.Uint64
	bypassed    atomic.Uint64
	storeErrors atomic.Uint64
	dropped     atomic.Uint64

	dispatcher Dispatcher
	alertCh    chan Alert
	done       chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool

	logger  xlog.Logger
	metrics *metrics
}

// MonitorOption 监控可选配置。
type MonitorOption func(*monitorOptions)

type monitorOptions struct {
	dispatcher     Dispatcher
	logger         xlog.Logger
	meterProvider  metric.MeterProvider
	dispatchBuffer int
}

// WithDispatcher 设置告警派发器。不设置时告警仅留存在环形缓冲中。
func WithDispatcher(d Dispatcher) MonitorOption {
	return func(o *monitorOptions) { o.dispatcher = d }
}

// WithLogger 设置日志记录器。
func WithLogger(logger xlog.Logger) MonitorOption {
	return func(o *monitorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider。
// 不设置时不收集指标。
func WithMeterProvider(mp metric.MeterProvider) MonitorOption {
	return func(o *monitorOptions) { o.meterProvider = mp }
}

// WithDispatchBuffer 设置派发 channel 容量，默认 256。
// channel 满时新告警被丢弃（计入 DroppedAlerts），绝不阻塞请求路径。
func WithDispatchBuffer(n int) MonitorOption {
	return func(o *monitorOptions) {
		if n > 0 {
			o.dispatchBuffer = n
		}
	}
}

// New 创建监控。
func New(cfg Config, opts ...MonitorOption) (*Monitor, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	o := &monitorOptions{
		logger:         xlog.Nop(),
		dispatchBuffer: defaultDispatchBuffer,
	}
	for _, opt := range opts {
		opt(o)
	}

	mets, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}

	perKey, err := lru.New[string, *keyStats](defaultMaxTrackedKeys)
	if err != nil {
		return nil, err
	}

	authClasses := make(map[string]struct{}, len(cfg.AuthClasses))
	for _, class := range cfg.AuthClasses {
		authClasses[class] = struct{}{}
	}

	m := &Monitor{
		cfg:         cfg,
		authClasses: authClasses,
		events:      newRing[Event](cfg.EventBufferSize),
		alerts:      newRing[Alert](cfg.AlertBufferSize),
		lastFired:   make(map[fireKey]time.Time),
		perClass:    make(map[string]*classStats),
		perKey:      perKey,
		dispatcher:  o.dispatcher,
		alertCh:     make(chan Alert, o.dispatchBuffer),
		done:        make(chan struct{}),
		logger:      o.logger,
		metrics:     mets,
	}

	if m.dispatcher != nil {
		m.wg.Add(1)
		go m.dispatchLoop()
	}

	return m, nil
}

// Record 记录一次准入决策事件，必要时触发告警。
// 永不阻塞、永不失败：监控内部的任何问题都不回传给调用方。
func (m *Monitor) Record(ctx context.Context, e Event) {
	if m.closed.Load() {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	var fired []Alert

	m.mu.Lock()
	m.events.add(e)
	m.countLocked(e)
	if !e.Bypass {
		fired = m.evaluateLocked(e)
		for _, a := range fired {
			m.alerts.add(a)
		}
	}
	m.mu.Unlock()

	m.metrics.recordEvent(ctx, e)
	for _, a := range fired {
		m.metrics.recordAlert(ctx, a)
		m.enqueue(ctx, a)
	}
}

// RecordStoreError 记录一次共享存储故障信号（fail-open 降级）。
func (m *Monitor) RecordStoreError(ctx context.Context, err error) {
	if m.closed.Load() {
		return
	}
	m.storeErrors.Add(1)
	m.metrics.recordStoreError(ctx)
	m.logger.Warn(ctx, "admission counter store degraded",
		slog.String("error", err.Error()),
	)
}

// countLocked 更新总量、逐类别与逐键计数。
func (m *Monitor) countLocked(e Event) {
	m.total.Add(1)
	if e.Bypass {
		m.bypassed.Add(1)
	}
	if e.Admitted {
		m.admitted.Add(1)
	} else {
		m.rejected.Add(1)
	}

	cs, ok := m.perClass[e.Class]
	if !ok {
		cs = &classStats{}
		m.perClass[e.Class] = cs
	}
	cs.total++

	ks, ok := m.perKey.Get(e.Key)
	if !ok {
		ks = &keyStats{}
		m.perKey.Add(e.Key, ks)
	}
	ks.total++

	if e.Admitted {
		cs.admitted++
		ks.admitted++
	} else {
		cs.rejected++
		ks.rejected++
	}
}

// evaluateLocked 对单个事件运行全部检测，返回本次触发的告警。
func (m *Monitor) evaluateLocked(e Event) []Alert {
	var fired []Alert

	if a, ok := m.checkThresholdLocked(e); ok {
		fired = append(fired, a)
	}
	if a, ok := m.checkViolationLocked(e); ok {
		fired = append(fired, a)
	}
	fired = append(fired, m.checkPatternsLocked(e)...)

	return fired
}

// checkThresholdLocked 评估使用率阈值。
// 阈值从低到高评估，单次只触发已越过的最高档，避免一个事件
// 同时产生多个级别的阈值告警。
func (m *Monitor) checkThresholdLocked(e Event) (Alert, bool) {
	if !e.Admitted || e.Limit <= 0 {
		return Alert{}, false
	}

	ratio := float64(e.Requests) / float64(e.Limit)

	var best *ThresholdRule
	for i := range m.cfg.Thresholds {
		if ratio >= m.cfg.Thresholds[i].Ratio {
			best = &m.cfg.Thresholds[i]
		}
	}
	if best == nil {
		return Alert{}, false
	}

	fk := fireKey{key: e.Key, class: e.Class, kind: KindThreshold}
	if !m.cooldownLocked(fk, e.Time) {
		return Alert{}, false
	}

	return m.newAlert(e, KindThreshold, best.Severity, "", map[string]any{
		"ratio":     ratio,
		"threshold": best.Ratio,
		"requests":  e.Requests,
		"limit":     e.Limit,
	}), true
}

// checkViolationLocked 评估拒绝事件。
func (m *Monitor) checkViolationLocked(e Event) (Alert, bool) {
	if e.Admitted {
		return Alert{}, false
	}

	fk := fireKey{key: e.Key, class: e.Class, kind: KindViolation}
	if !m.cooldownLocked(fk, e.Time) {
		return Alert{}, false
	}

	return m.newAlert(e, KindViolation, SeverityHigh, "", map[string]any{
		"requests": e.Requests,
		"limit":    e.Limit,
	}), true
}

// checkPatternsLocked 在事件缓冲上评估可疑行为模式。
// 单次从新到老扫描，越过最长模式窗口即终止。
func (m *Monitor) checkPatternsLocked(e Event) []Alert {
	rapidCutoff := e.Time.Add(-m.cfg.RapidWindow)
	probeCutoff := e.Time.Add(-m.cfg.ProbeWindow)
	authCutoff := e.Time.Add(-m.cfg.AuthWindow)

	earliest := rapidCutoff
	if probeCutoff.Before(earliest) {
		earliest = probeCutoff
	}
	if authCutoff.Before(earliest) {
		earliest = authCutoff
	}

	var (
		rapid        int
		classes      = make(map[string]struct{})
		authEvents   int
		authRejected int
	)

	m.events.newestFirst(func(ev Event) bool {
		if ev.Time.Before(earliest) {
			return false
		}
		if ev.Key != e.Key || ev.Bypass {
			return true
		}
		if !ev.Time.Before(rapidCutoff) {
			rapid++
		}
		if !ev.Time.Before(probeCutoff) {
			classes[ev.Class] = struct{}{}
		}
		if !ev.Time.Before(authCutoff) {
			if _, ok := m.authClasses[ev.Class]; ok {
				authEvents++
				if !ev.Admitted {
					authRejected++
				}
			}
		}
		return true
	})

	var fired []Alert

	if rapid >= m.cfg.RapidCount {
		fk := fireKey{key: e.Key, kind: KindSuspicious, pattern: PatternRapidRequests}
		if m.cooldownLocked(fk, e.Time) {
			fired = append(fired, m.newAlert(e, KindSuspicious, SeverityMedium, PatternRapidRequests, map[string]any{
				"count":  rapid,
				"window": m.cfg.RapidWindow.String(),
			}))
		}
	}

	if len(classes) >= m.cfg.ProbeClasses {
		fk := fireKey{key: e.Key, kind: KindSuspicious, pattern: PatternEndpointProbing}
		if m.cooldownLocked(fk, e.Time) {
			fired = append(fired, m.newAlert(e, KindSuspicious, SeverityMedium, PatternEndpointProbing, map[string]any{
				"classes": len(classes),
				"window":  m.cfg.ProbeWindow.String(),
			}))
		}
	}

	if authEvents >= m.cfg.AuthEvents {
		fk := fireKey{key: e.Key, kind: KindSuspicious, pattern: PatternAuthFailures}
		if m.cooldownLocked(fk, e.Time) {
			fired = append(fired, m.newAlert(e, KindSuspicious, SeverityHigh, PatternAuthFailures, map[string]any{
				"events":   authEvents,
				"rejected": authRejected,
				"window":   m.cfg.AuthWindow.String(),
			}))
		}
	}

	return fired
}

// cooldownLocked 检查并登记冷却。
// 返回 true 表示可以触发（同时记录触发时间）；冷却按事件时间惰性
// 判定，没有后台定时器，也就没有取消语义。
func (m *Monitor) cooldownLocked(fk fireKey, now time.Time) bool {
	if last, ok := m.lastFired[fk]; ok && now.Sub(last) < m.cfg.Cooldown {
		return false
	}
	m.lastFired[fk] = now
	m.pruneCooldownLocked(now)
	return true
}

// pruneCooldownLocked 清理已过期的冷却条目，限制 lastFired 的体量。
func (m *Monitor) pruneCooldownLocked(now time.Time) {
	if len(m.lastFired) < 4*defaultMaxTrackedKeys {
		return
	}
	for fk, last := range m.lastFired {
		if now.Sub(last) >= m.cfg.Cooldown {
			delete(m.lastFired, fk)
		}
	}
}

// newAlert 构造告警。
func (m *Monitor) newAlert(e Event, kind Kind, severity Severity, pattern Pattern, payload map[string]any) Alert {
	return Alert{
		ID:       uuid.NewString(),
		Time:     e.Time,
		Kind:     kind,
		Severity: severity,
		Key:      e.Key,
		Class:    e.Class,
		Pattern:  pattern,
		Payload:  payload,
	}
}

// enqueue 将告警交给派发 goroutine，channel 满时丢弃。
func (m *Monitor) enqueue(ctx context.Context, a Alert) {
	if m.dispatcher == nil {
		return
	}
	select {
	case m.alertCh <- a:
	default:
		m.dropped.Add(1)
		m.logger.Warn(ctx, "alert dispatch buffer full, dropping alert",
			slog.String("alert_id", a.ID),
			slog.String("kind", string(a.Kind)),
			slog.String("key", a.Key),
		)
	}
}

// dispatchLoop 单消费者派发循环。
func (m *Monitor) dispatchLoop() {
	defer m.wg.Done()
	for {
		select {
		case a := <-m.alertCh:
			m.deliver(a)
		case <-m.done:
			// 关闭时排空已入队的告警。
			for {
				select {
				case a := <-m.alertCh:
					m.deliver(a)
				default:
					return
				}
			}
		}
	}
}

// deliver 带重试地派发单条告警。派发方的错误和 panic 都被隔离。
func (m *Monitor) deliver(a Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := retry.New(
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	).Do(func() error {
		return m.safeDispatch(ctx, a)
	})
	if err != nil {
		m.logger.Warn(ctx, "alert dispatch failed",
			slog.String("alert_id", a.ID),
			slog.String("kind", string(a.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

// safeDispatch 调用派发器并隔离 panic。
func (m *Monitor) safeDispatch(ctx context.Context, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &dispatchPanicError{value: r}
		}
	}()
	return m.dispatcher.Dispatch(ctx, a)
}

// dispatchPanicError 将派发方 panic 包装为错误。
type dispatchPanicError struct {
	value any
}

func (e *dispatchPanicError) Error() string {
	return "xmonitor: dispatcher panicked"
}

// RecentAlerts 返回最新在前的告警快照，最多 n 条（n <= 0 表示全部）。
func (m *Monitor) RecentAlerts(n int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts.snapshot(n)
}

// RecentEvents 返回最新在前的事件快照，最多 n 条（n <= 0 表示全部）。
func (m *Monitor) RecentEvents(n int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.snapshot(n)
}

// Close 关闭监控，排空并停止派发 goroutine。幂等。
func (m *Monitor) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	close(m.done)
	m.wg.Wait()
	return nil
}

package xadmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/gatekit/pkg/admission/xident"
	"github.com/omeyang/gatekit/pkg/admission/xmonitor"
	"github.com/omeyang/gatekit/pkg/admission/xwindow"
	"github.com/omeyang/gatekit/pkg/config/xbudget"
	"github.com/omeyang/gatekit/pkg/observability/xlog"
)

// defaultClass 未指定端点类别时使用的类别名。
const defaultClass = "default"

// Guard 准入控制门面，组合键解析、预算注册表、滑动窗口策略
// 和滥用监控。并发安全。
type Guard struct {
	registry *xbudget.Registry
	resolver *xident.Resolver
	strategy *xwindow.Strategy
	monitor  *xmonitor.Monitor

	// ownsMonitor 监控是否由门面自建。注入的监控不随 Close 关闭。
	ownsMonitor bool

	logger xlog.Logger
	closed atomic.Bool
}

// New 创建以 Redis 为共享计数存储的门面。
// 存储故障时按 fail-open 契约降级到进程内窗口。
func New(rdb redis.UniversalClient, opts ...Option) (*Guard, error) {
	o := defaultGuardOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newGuard(o, func(wopts ...xwindow.Option) (*xwindow.Strategy, error) {
		return xwindow.New(rdb, wopts...)
	})
}

// NewLocal 创建纯进程内门面，不依赖任何外部存储。
// 仅单实例正确：多实例部署下跨实例预算不被强制执行。
func NewLocal(opts ...Option) (*Guard, error) {
	o := defaultGuardOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newGuard(o, func(wopts ...xwindow.Option) (*xwindow.Strategy, error) {
		return xwindow.NewLocal(wopts...), nil
	})
}

func newGuard(o *guardOptions, makeStrategy func(...xwindow.Option) (*xwindow.Strategy, error)) (*Guard, error) {
	registry := o.registry
	if registry == nil {
		var ropts []xbudget.RegistryOption
		if o.cfg.DefaultBudget != nil {
			ropts = append(ropts, xbudget.WithDefaultBudget(*o.cfg.DefaultBudget))
		}
		var err error
		registry, err = xbudget.NewRegistry(o.cfg.Budgets, o.cfg.EffectiveMultiplier(), ropts...)
		if err != nil {
			return nil, err
		}
	}

	resolver := o.resolver
	if resolver == nil {
		salt := o.cfg.FingerprintSalt
		if salt == "" {
			salt = defaultFingerprintSalt
		}
		var err error
		resolver, err = xident.NewResolver(xident.Config{
			Admins:          o.cfg.Admins,
			Whitelist:       o.cfg.Whitelist,
			Blacklist:       o.cfg.Blacklist,
			FingerprintSalt: salt,
		})
		if err != nil {
			return nil, err
		}
	}

	monitor := o.monitor
	ownsMonitor := false
	if monitor == nil {
		mcfg, err := monitorConfigFrom(o.cfg.Monitor)
		if err != nil {
			return nil, err
		}
		monitor, err = xmonitor.New(mcfg,
			xmonitor.WithDispatcher(o.dispatcher),
			xmonitor.WithLogger(o.logger),
			xmonitor.WithMeterProvider(o.meterProvider),
		)
		if err != nil {
			return nil, err
		}
		ownsMonitor = true
	}

	wopts := []xwindow.Option{
		xwindow.WithLogger(o.logger),
		// 降级信号进监控：只计数和告警日志，绝不影响准入结果。
		xwindow.WithOnDegrade(func(err error) {
			monitor.RecordStoreError(context.Background(), err)
		}),
	}
	if prefix := o.keyPrefix; prefix != "" {
		wopts = append(wopts, xwindow.WithKeyPrefix(prefix))
	} else if o.cfg.KeyPrefix != "" {
		wopts = append(wopts, xwindow.WithKeyPrefix(o.cfg.KeyPrefix))
	}
	if o.storeTimeout > 0 {
		wopts = append(wopts, xwindow.WithStoreTimeout(o.storeTimeout))
	} else if o.cfg.StoreTimeout > 0 {
		wopts = append(wopts, xwindow.WithStoreTimeout(o.cfg.StoreTimeout))
	}
	if o.maxLocalKeys > 0 {
		wopts = append(wopts, xwindow.WithMaxLocalKeys(o.maxLocalKeys))
	}

	strategy, err := makeStrategy(wopts...)
	if err != nil {
		if ownsMonitor {
			_ = monitor.Close()
		}
		return nil, err
	}

	return &Guard{
		registry:    registry,
		resolver:    resolver,
		strategy:    strategy,
		monitor:     monitor,
		ownsMonitor: ownsMonitor,
		logger:      o.logger,
	}, nil
}

// monitorConfigFrom 将配置面的监控段转换为 xmonitor.Config。
// 阈值表的键是比例字符串（"0.70"），值是告警级别名。
func monitorConfigFrom(mc xbudget.MonitorConfig) (xmonitor.Config, error) {
	cfg := xmonitor.Config{
		Cooldown:        mc.Cooldown,
		EventBufferSize: mc.EventBufferSize,
		AlertBufferSize: mc.AlertBufferSize,
		AuthClasses:     mc.AuthClasses,
	}

	for ratioStr, sevStr := range mc.Thresholds {
		ratio, err := strconv.ParseFloat(ratioStr, 64)
		if err != nil {
			return xmonitor.Config{}, fmt.Errorf("%w: ratio %q", ErrInvalidThreshold, ratioStr)
		}
		severity, err := parseSeverity(sevStr)
		if err != nil {
			return xmonitor.Config{}, err
		}
		cfg.Thresholds = append(cfg.Thresholds, xmonitor.ThresholdRule{Ratio: ratio, Severity: severity})
	}

	return cfg, nil
}

// parseSeverity 解析告警级别名。
func parseSeverity(s string) (xmonitor.Severity, error) {
	severity := xmonitor.Severity(strings.ToLower(strings.TrimSpace(s)))
	switch severity {
	case xmonitor.SeverityLow, xmonitor.SeverityMedium, xmonitor.SeverityHigh, xmonitor.SeverityCritical:
		return severity, nil
	}
	return "", fmt.Errorf("%w: severity %q", ErrInvalidThreshold, s)
}

// Admit 对请求执行一次准入检查。
//
// 流程：键解析 → 旁路判定 → 预算查找 → 滑动窗口检查 → 监控记录。
// 返回错误仅限 ErrGuardClosed 和调用方取消的 ctx；预算缺失、存储
// 故障等内部问题都在内部消化，不会以错误形式回传。
func (g *Guard) Admit(ctx context.Context, req Request) (*Decision, error) {
	if g.closed.Load() {
		return nil, ErrGuardClosed
	}

	now := time.Now()
	res := g.resolver.Resolve(req.Identity, req.Origin, req.Context)

	class := req.Class
	if class == "" {
		class = defaultClass
	}

	if res.Bypass {
		// 旁路请求不触碰窗口，但事件照常记录，保证统计可见性。
		g.monitor.Record(ctx, xmonitor.Event{
			Time:     now,
			Key:      res.Key,
			Class:    class,
			Admitted: true,
			Bypass:   true,
			Origin:   originMeta(req),
		})
		return &Decision{
			Admitted: true,
			Bypass:   true,
			Key:      res.Key,
			KeyClass: res.Class,
			Class:    class,
		}, nil
	}

	var (
		budget xbudget.Budget
		known  = true
	)
	if res.Class == xident.ClassBlacklisted {
		budget = xbudget.ZeroBudget(g.registry.Default().Window)
	} else {
		budget, known = g.registry.Lookup(class)
		if !known {
			g.logger.Warn(ctx, "unknown endpoint class, using default budget",
				slog.String("class", class),
			)
		}
	}

	tr, err := g.strategy.Check(ctx, windowKey(res.Key, class), budget)
	if err != nil {
		if errors.Is(err, xwindow.ErrStrategyClosed) {
			return nil, ErrGuardClosed
		}
		return nil, err
	}

	g.monitor.Record(ctx, xmonitor.Event{
		Time:     now,
		Key:      res.Key,
		Class:    class,
		Requests: tr.Requests,
		Limit:    budget.MaxRequests,
		Admitted: tr.Admitted,
		Degraded: tr.Degraded,
		Origin:   originMeta(req),
	})

	d := &Decision{
		Admitted:   tr.Admitted,
		Degraded:   tr.Degraded,
		Key:        res.Key,
		KeyClass:   res.Class,
		Class:      class,
		Requests:   tr.Requests,
		Limit:      budget.MaxRequests,
		Remaining:  tr.Remaining,
		RetryAfter: tr.RetryAfter,
	}
	if tr.Admitted {
		d.ResetAt = now.Add(budget.Window)
	} else {
		d.ResetAt = now.Add(tr.RetryAfter)
	}
	return d, nil
}

// windowKey 窗口状态按 (准入键, 端点类别) 隔离。
func windowKey(key, class string) string {
	return key + ":" + class
}

// originMeta 构造随事件留存的来源元数据。
func originMeta(req Request) map[string]string {
	if req.Origin == "" {
		return nil
	}
	return map[string]string{"origin": req.Origin}
}

// Reset 清空准入键在指定端点类别下的窗口状态，仅用于运维修复。
func (g *Guard) Reset(ctx context.Context, key, class string) error {
	if g.closed.Load() {
		return ErrGuardClosed
	}
	if class == "" {
		class = defaultClass
	}
	return g.strategy.Reset(ctx, windowKey(key, class))
}

// Monitor 返回门面使用的监控，用于查询统计快照和最近告警。
func (g *Guard) Monitor() *xmonitor.Monitor {
	return g.monitor
}

// Degraded 报告共享计数存储当前是否被判定不可用。
func (g *Guard) Degraded() bool {
	return g.strategy.Degraded()
}

// Close 关闭门面：停止准入策略，并关闭自建的监控。幂等。
func (g *Guard) Close() error {
	if g.closed.Swap(true) {
		return nil
	}

	var errs []error
	if err := g.strategy.Close(); err != nil {
		errs = append(errs, err)
	}
	if g.ownsMonitor {
		if err := g.monitor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

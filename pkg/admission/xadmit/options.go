package xadmit

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/gatekit/pkg/admission/xident"
	"github.com/omeyang/gatekit/pkg/admission/xmonitor"
	"github.com/omeyang/gatekit/pkg/config/xbudget"
	"github.com/omeyang/gatekit/pkg/observability/xlog"
)

// defaultFingerprintSalt 未配置盐值时的回退值。
// 生产部署应通过配置提供自己的盐值，避免指纹被离线预计算。
const defaultFingerprintSalt = "gatekit"

// guardOptions 门面构建参数。
type guardOptions struct {
	cfg xbudget.Config

	registry *xbudget.Registry
	resolver *xident.Resolver
	monitor  *xmonitor.Monitor

	dispatcher    xmonitor.Dispatcher
	logger        xlog.Logger
	meterProvider metric.MeterProvider

	keyPrefix    string
	storeTimeout time.Duration
	maxLocalKeys int
}

func defaultGuardOptions() *guardOptions {
	return &guardOptions{
		logger: xlog.Nop(),
	}
}

// Option 门面可选配置。
type Option func(*guardOptions)

// WithConfig 用完整配置构建门面：预算注册表、名单解析器和监控
// 都从 cfg 派生。WithRegistry / WithResolver / WithMonitor 设置的
// 组件优先于 cfg 中对应的部分。
func WithConfig(cfg xbudget.Config) Option {
	return func(o *guardOptions) { o.cfg = cfg }
}

// WithRegistry 直接注入预算注册表。
func WithRegistry(r *xbudget.Registry) Option {
	return func(o *guardOptions) { o.registry = r }
}

// WithResolver 直接注入键解析器。
func WithResolver(r *xident.Resolver) Option {
	return func(o *guardOptions) { o.resolver = r }
}

// WithMonitor 直接注入监控。注入的监控由调用方负责关闭，
// Guard.Close 不会关闭它。
func WithMonitor(m *xmonitor.Monitor) Option {
	return func(o *guardOptions) { o.monitor = m }
}

// WithDispatcher 设置告警派发器。仅对门面自建的监控生效。
func WithDispatcher(d xmonitor.Dispatcher) Option {
	return func(o *guardOptions) { o.dispatcher = d }
}

// WithLogger 设置日志记录器。
func WithLogger(logger xlog.Logger) Option {
	return func(o *guardOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider。
// 不设置时不收集指标。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *guardOptions) { o.meterProvider = mp }
}

// WithKeyPrefix 设置共享计数存储的键前缀，优先于配置中的 KeyPrefix。
func WithKeyPrefix(prefix string) Option {
	return func(o *guardOptions) { o.keyPrefix = prefix }
}

// WithStoreTimeout 设置共享存储单次调用超时，优先于配置中的 StoreTimeout。
func WithStoreTimeout(timeout time.Duration) Option {
	return func(o *guardOptions) { o.storeTimeout = timeout }
}

// WithMaxLocalKeys 设置本地降级后端跟踪的窗口状态上限。
func WithMaxLocalKeys(n int) Option {
	return func(o *guardOptions) { o.maxLocalKeys = n }
}

package xwindow

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/gatekit/pkg/config/xbudget"
	"github.com/omeyang/gatekit/pkg/observability/xlog"
)

// defaultStoreTimeout 共享存储单次调用的默认超时。
// 准入检查在请求关键路径上，宁可降级也不等慢存储。
const defaultStoreTimeout = 100 * time.Millisecond

// Strategy 滑动日志准入策略。
// 将共享后端与本地降级后端组合为 fail-open 整体，并发安全。
type Strategy struct {
	primary   Backend
	local     Backend
	breaker   *gobreaker.CircuitBreaker[TakeResult]
	timeout   time.Duration
	logger    xlog.Logger
	onDegrade func(err error)
	closed    atomic.Bool
}

// Option 策略可选配置。
type Option func(*options)

type options struct {
	keyPrefix    string
	storeTimeout time.Duration
	maxLocalKeys int
	logger       xlog.Logger
	onDegrade    func(err error)
}

func defaultOptions() *options {
	return &options{
		keyPrefix:    "admission:",
		storeTimeout: defaultStoreTimeout,
		logger:       xlog.Nop(),
	}
}

// WithKeyPrefix 设置共享存储的键前缀，默认 "admission:"。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

// WithStoreTimeout 设置共享存储单次调用超时，默认 100ms。
func WithStoreTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.storeTimeout = timeout
		}
	}
}

// WithMaxLocalKeys 设置本地后端窗口状态上限，默认 100000。
func WithMaxLocalKeys(n int) Option {
	return func(o *options) { o.maxLocalKeys = n }
}

// WithLogger 设置日志记录器。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOnDegrade 设置降级回调，用于向监控侧发出存储故障信号。
// 回调在请求路径上同步执行，必须轻量、不可阻塞。
func WithOnDegrade(fn func(err error)) Option {
	return func(o *options) { o.onDegrade = fn }
}

// New 创建以 Redis 为共享计数存储的策略。
// 存储出错、超时或熔断器打开时自动降级到进程内后端。
func New(rdb redis.UniversalClient, opts ...Option) (*Strategy, error) {
	if rdb == nil {
		return nil, ErrNilBackend
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return newStrategy(newRedisBackend(rdb, o.keyPrefix), o), nil
}

// NewLocal 创建纯进程内策略。
// 仅单实例正确：多实例部署下跨实例预算不被强制执行。
func NewLocal(opts ...Option) *Strategy {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newStrategy(nil, o)
}

func newStrategy(primary Backend, o *options) *Strategy {
	s := &Strategy{
		primary:   primary,
		local:     newLocalBackend(o.maxLocalKeys),
		timeout:   o.storeTimeout,
		logger:    o.logger,
		onDegrade: o.onDegrade,
	}

	if primary != nil {
		// 熔断器避免存储故障期间每个请求都先等一次超时再降级。
		s.breaker = gobreaker.NewCircuitBreaker[TakeResult](gobreaker.Settings{
			Name:    "xwindow-store",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !IsStoreError(err)
			},
		})
	}

	return s
}

// Check 对 key 执行一次准入检查。
//
// 失败语义：
//   - 零预算（封禁键）始终拒绝，不触碰任何状态，从不放行
//   - 共享存储出错/超时/熔断 → 本地后端，结果标记 Degraded
//   - 本地检查也无法完成 → 直接放行（fail-open）
//
// 返回错误仅限 ErrStrategyClosed 和调用方取消的 ctx。
func (s *Strategy) Check(ctx context.Context, key string, budget xbudget.Budget) (TakeResult, error) {
	if s.closed.Load() {
		return TakeResult{}, ErrStrategyClosed
	}

	// 封禁键：失败必须落在拒绝侧，这是唯一不 fail-open 的分支。
	if budget.Capacity() == 0 {
		return TakeResult{
			Admitted:   false,
			RetryAfter: budget.Window,
		}, nil
	}

	if s.primary != nil {
		res, err := s.takePrimary(ctx, key, budget)
		if err == nil {
			return res, nil
		}
		if !IsStoreError(err) {
			return TakeResult{}, err
		}
		s.degrade(ctx, err)
	}

	res, err := s.local.Take(ctx, key, budget.MaxRequests, budget.Burst, budget.Window)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return TakeResult{}, err
		}
		// 本地后端没有可预期的其他错误，兜底放行。
		res = TakeResult{Admitted: true, Requests: 1, Remaining: budget.MaxRequests - 1}
	}
	if s.primary != nil {
		res.Degraded = true
	}
	return res, nil
}

// takePrimary 经由熔断器调用共享后端，并附加存储超时。
func (s *Strategy) takePrimary(ctx context.Context, key string, budget xbudget.Budget) (TakeResult, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.breaker.Execute(func() (TakeResult, error) {
		return s.primary.Take(tctx, key, budget.MaxRequests, budget.Burst, budget.Window)
	})
}

// degrade 记录降级日志并通知监控侧。
func (s *Strategy) degrade(ctx context.Context, err error) {
	s.logger.Warn(ctx, "counter store unavailable, degrading to local window",
		slog.String("error", err.Error()),
	)
	if s.onDegrade != nil {
		s.onDegrade(err)
	}
}

// Reset 清空 key 在两个后端的窗口状态。
func (s *Strategy) Reset(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrStrategyClosed
	}

	var errs []error
	if s.primary != nil {
		if err := s.primary.Reset(ctx, key); err != nil && !IsStoreError(err) {
			errs = append(errs, err)
		}
	}
	if err := s.local.Reset(ctx, key); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Degraded 报告熔断器当前是否处于打开状态（共享存储被判定不可用）。
func (s *Strategy) Degraded() bool {
	return s.breaker != nil && s.breaker.State() == gobreaker.StateOpen
}

// Close 关闭策略，释放后端资源。
func (s *Strategy) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	var errs []error
	if s.primary != nil {
		if err := s.primary.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.local.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

package xadmit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/omeyang/gatekit/pkg/admission/xident"
)

// MiddlewareOptions HTTP 中间件配置选项。
type MiddlewareOptions struct {
	// ClassFunc 从请求提取端点类别名，默认使用 URL 路径
	ClassFunc func(r *http.Request) string

	// IdentityFunc 从请求提取已认证身份，默认按匿名处理
	IdentityFunc func(r *http.Request) *xident.Identity

	// OriginFunc 从请求提取网络来源，默认取 X-Forwarded-For
	// 首跳，缺失时回退 RemoteAddr
	OriginFunc func(r *http.Request) string

	// DenyHandler 请求被拒绝时的处理器
	DenyHandler func(w http.ResponseWriter, r *http.Request, d *Decision)

	// SkipFunc 返回 true 时跳过准入检查
	SkipFunc func(r *http.Request) bool

	// EnableHeaders 是否在响应中添加限流头
	EnableHeaders bool
}

// MiddlewareOption 中间件选项函数。
type MiddlewareOption func(*MiddlewareOptions)

func defaultMiddlewareOptions() *MiddlewareOptions {
	return &MiddlewareOptions{
		ClassFunc:     func(r *http.Request) string { return r.URL.Path },
		OriginFunc:    originFromRequest,
		DenyHandler:   defaultDenyHandler,
		EnableHeaders: true,
	}
}

// WithClassFunc 设置端点类别提取函数。
func WithClassFunc(fn func(r *http.Request) string) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		if fn != nil {
			opts.ClassFunc = fn
		}
	}
}

// WithIdentityFunc 设置身份提取函数。
func WithIdentityFunc(fn func(r *http.Request) *xident.Identity) MiddlewareOption {
	return func(opts *MiddlewareOptions) { opts.IdentityFunc = fn }
}

// SubjectFromHeader 返回从指定请求头读取已认证主体的身份提取函数，
// 适配认证层把主体标识写入 header（如 X-User-ID）的常见部署。
// 头缺失或为空时按匿名处理。
func SubjectFromHeader(header string) func(r *http.Request) *xident.Identity {
	return func(r *http.Request) *xident.Identity {
		subject := strings.TrimSpace(r.Header.Get(header))
		if subject == "" {
			return nil
		}
		return &xident.Identity{Subject: subject}
	}
}

// WithOriginFunc 设置网络来源提取函数。
// 部署在不受信代理后时应替换默认实现，X-Forwarded-For 可被伪造。
func WithOriginFunc(fn func(r *http.Request) string) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		if fn != nil {
			opts.OriginFunc = fn
		}
	}
}

// WithDenyHandler 设置自定义拒绝处理器。
func WithDenyHandler(fn func(w http.ResponseWriter, r *http.Request, d *Decision)) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		if fn != nil {
			opts.DenyHandler = fn
		}
	}
}

// WithSkipFunc 设置跳过函数。
func WithSkipFunc(fn func(r *http.Request) bool) MiddlewareOption {
	return func(opts *MiddlewareOptions) { opts.SkipFunc = fn }
}

// WithMiddlewareHeaders 设置是否启用限流头。
func WithMiddlewareHeaders(enable bool) MiddlewareOption {
	return func(opts *MiddlewareOptions) { opts.EnableHeaders = enable }
}

// HTTPMiddleware 创建 HTTP 准入中间件
//
// 示例:
//
//	guard, _ := xadmit.New(redisClient, xadmit.WithConfig(cfg))
//	mux := http.NewServeMux()
//	mux.Handle("/api/", xadmit.HTTPMiddleware(guard)(apiHandler))
func HTTPMiddleware(guard *Guard, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if guard == nil {
		panic("xadmit: HTTPMiddleware requires a non-nil Guard")
	}

	mopts := defaultMiddlewareOptions()
	for _, opt := range opts {
		opt(mopts)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mopts.SkipFunc != nil && mopts.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			if handleHTTPAdmit(w, r, guard, mopts) {
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// handleHTTPAdmit 执行准入检查并处理结果。
// 返回 true 表示请求已被处理（拒绝），调用方应直接返回。
func handleHTTPAdmit(w http.ResponseWriter, r *http.Request, guard *Guard, mopts *MiddlewareOptions) bool {
	req := Request{
		Origin: mopts.OriginFunc(r),
		Class:  mopts.ClassFunc(r),
		Context: xident.RequestContext{
			UserAgent:      r.UserAgent(),
			AcceptLanguage: r.Header.Get("Accept-Language"),
		},
	}
	if mopts.IdentityFunc != nil {
		req.Identity = mopts.IdentityFunc(r)
	}

	d, err := guard.Admit(r.Context(), req)
	if err != nil {
		// 门面错误不阻塞业务请求（fail-open）。
		return false
	}

	if mopts.EnableHeaders {
		d.SetHeaders(w)
	}

	if !d.Admitted {
		mopts.DenyHandler(w, r, d)
		return true
	}

	return false
}

// HTTPMiddlewareFunc 创建 HTTP 准入中间件（函数式）
// 适用于需要 http.HandlerFunc 的场景
func HTTPMiddlewareFunc(guard *Guard, opts ...MiddlewareOption) func(http.HandlerFunc) http.HandlerFunc {
	middleware := HTTPMiddleware(guard, opts...)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

// denyBody 默认拒绝响应体。
type denyBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
	Endpoint   string `json:"endpoint"`
}

// defaultDenyHandler 默认的拒绝处理器，返回 429 和 JSON 响应体。
func defaultDenyHandler(w http.ResponseWriter, _ *http.Request, d *Decision) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)

	body := denyBody{
		Error:      "rate_limited",
		Message:    "too many requests, please retry later",
		RetryAfter: int64(d.RetryAfter.Seconds()),
		Endpoint:   d.Class,
	}
	// 编码失败说明连接已断开，无法补救。
	_ = json.NewEncoder(w).Encode(body)
}

// originFromRequest 默认网络来源提取：X-Forwarded-For 首跳优先，
// 缺失时剥离 RemoteAddr 的端口。
func originFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

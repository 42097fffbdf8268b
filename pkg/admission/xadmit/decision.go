package xadmit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/omeyang/gatekit/pkg/admission/xident"
)

// Request 一次准入检查的输入事实，全部由调用方提供。
type Request struct {
	// Identity 已认证身份，nil 或 Subject 为空表示匿名请求
	Identity *xident.Identity

	// Origin 网络来源（IP 或 ip:port 字符串）
	Origin string

	// Class 端点类别名（如 "login"、"search"），空时使用 "default"
	Class string

	// Context 请求上下文事实，用于匿名来源的指纹计算
	Context xident.RequestContext
}

// Decision 一次准入检查的结果。
type Decision struct {
	// Admitted 是否准入
	Admitted bool

	// Bypass 是否旁路（admin/whitelisted 来源）
	Bypass bool

	// Degraded 是否由降级路径产生
	Degraded bool

	// Key 规范准入键
	Key string

	// KeyClass 准入键的类别（admin/whitelisted/blacklisted/user/ip）
	KeyClass xident.Class

	// Class 端点类别名
	Class string

	// Requests 窗口内已计数的请求数（准入时含本次）
	Requests int

	// Limit 预算上限（不含突发余量）；旁路决策为 0
	Limit int

	// Remaining 窗口内剩余配额
	Remaining int

	// ResetAt 配额重置时间
	ResetAt time.Time

	// RetryAfter 被拒绝时建议的重试等待时间
	RetryAfter time.Duration
}

// Headers 返回标准限流响应头
//   - X-RateLimit-Limit: 配额上限
//   - X-RateLimit-Remaining: 剩余配额
//   - X-RateLimit-Reset: 配额重置时间（Unix 时间戳）
//   - Retry-After: 重试等待秒数（仅在被拒绝时，向上取整确保最小值为 1）
func (d *Decision) Headers() map[string]string {
	headers := make(map[string]string, 4)

	if d.Limit > 0 {
		headers["X-RateLimit-Limit"] = strconv.Itoa(d.Limit)
		headers["X-RateLimit-Remaining"] = strconv.Itoa(d.Remaining)
		headers["X-RateLimit-Reset"] = strconv.FormatInt(d.ResetAt.Unix(), 10)
	}

	if d.RetryAfter > 0 {
		// 设计决策: 使用 math.Ceil 向上取整，避免亚秒级等待被截断为 0，
		// 导致客户端立即重试并放大瞬时流量。
		retryAfterSec := int64(math.Ceil(d.RetryAfter.Seconds()))
		headers["Retry-After"] = strconv.FormatInt(retryAfterSec, 10)
	}

	return headers
}

// SetHeaders 将响应头写入 http.ResponseWriter。
//
// 设计决策: Limit <= 0 时跳过配额三件头（旁路决策没有有效配额，
// 写 X-RateLimit-Limit: 0 会误导客户端），但 Retry-After 仍然写入：
// 封禁来源的预算就是零，此时重试等待是结果中唯一有意义的信息。
func (d *Decision) SetHeaders(w http.ResponseWriter) {
	for key, value := range d.Headers() {
		w.Header().Set(key, value)
	}
}

package xwindow

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/sony/gobreaker/v2"
)

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrStrategyClosed 表示策略已关闭
	ErrStrategyClosed = errors.New("xwindow: strategy closed")

	// ErrStoreUnavailable 表示共享计数存储不可用
	ErrStoreUnavailable = errors.New("xwindow: counter store unavailable")

	// ErrNilBackend 表示后端为 nil
	ErrNilBackend = errors.New("xwindow: nil backend")
)

// storeRelatedErrors 视为存储不可用的已知错误。
var storeRelatedErrors = []error{
	ErrStoreUnavailable,
	gobreaker.ErrOpenState,
	gobreaker.ErrTooManyRequests,
	context.DeadlineExceeded,
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	io.EOF,
	io.ErrUnexpectedEOF,
}

// IsStoreError 检查错误是否为存储不可用类错误（触发降级）。
// 使用错误链检查而非字符串匹配。
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range storeRelatedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return isNetworkError(err)
}

// isNetworkError 检查是否是网络相关错误。
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

package xwindow

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// defaultMaxKeys 本地后端默认的窗口状态上限。
const defaultMaxKeys = 100_000

// localBackend 进程内滑动日志后端。
//
// 窗口状态存放在有界 LRU 中：容量耗尽时最久未用的键被整体淘汰，
// 相当于该键的窗口重新开始计数。这是有意的 best-effort 取舍——
// 本地后端本就只在单实例内正确，内存有界比极端键基数下的精确性
// 更重要。
type localBackend struct {
	// mu 仅保护 get-or-create：两个并发调用方同时未命中并各自
	// 创建状态会导致双份日志，突破预算不变量。
	mu     sync.Mutex
	states *expirable.LRU[string, *windowState]
}

// windowState 单个键的时间戳日志。
// 每个状态持有自己的互斥锁，淘汰-计数-写入在锁内完成，
// 不同键的检查互不阻塞。
type windowState struct {
	mu     sync.Mutex
	stamps []time.Time
}

// newLocalBackend 创建本地后端。maxKeys <= 0 时使用默认上限。
func newLocalBackend(maxKeys int) *localBackend {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &localBackend{
		states: expirable.NewLRU[string, *windowState](maxKeys, nil, 0),
	}
}

// Type 返回后端类型。
func (b *localBackend) Type() string {
	return "local"
}

// Take 对 key 执行一次准入检查。
func (b *localBackend) Take(ctx context.Context, key string, limit, burst int, window time.Duration) (TakeResult, error) {
	if err := ctx.Err(); err != nil {
		return TakeResult{}, err
	}

	state := b.getOrCreate(key)

	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	// 淘汰过期时间戳。日志按写入时间有序，找到首个存活下标即可。
	survive := 0
	for survive < len(state.stamps) && !state.stamps[survive].After(cutoff) {
		survive++
	}
	if survive > 0 {
		state.stamps = append(state.stamps[:0], state.stamps[survive:]...)
	}

	n := len(state.stamps)
	if n < limit+burst {
		state.stamps = append(state.stamps, now)
		return buildResult(true, n+1, limit, window, now, time.Time{}), nil
	}

	var oldest time.Time
	if n > 0 {
		oldest = state.stamps[0]
	}
	return buildResult(false, n, limit, window, now, oldest), nil
}

// Reset 清空 key 的窗口状态。
func (b *localBackend) Reset(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states.Remove(key)
	return nil
}

// Close 关闭后端。
func (b *localBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states.Purge()
	return nil
}

// getOrCreate 获取或创建键的窗口状态。
func (b *localBackend) getOrCreate(key string) *windowState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state, ok := b.states.Get(key); ok {
		return state
	}
	state := &windowState{}
	b.states.Add(key, state)
	return state
}

// 确保 localBackend 实现了 Backend 接口
var _ Backend = (*localBackend)(nil)

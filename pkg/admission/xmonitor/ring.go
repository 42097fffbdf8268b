package xmonitor

// ring 固定容量环形缓冲，写满后覆盖最老条目。
// 非并发安全，由 Monitor 的互斥锁保护。
type ring[T any] struct {
	buf  []T
	head int // 下一个写入位置
	n    int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) add(v T) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *ring[T]) len() int {
	return r.n
}

// newestFirst 从最新到最老遍历，fn 返回 false 时提前终止。
// 模式检测依赖提前终止：扫描到时间窗之外即停，避免每个事件都
// 全量遍历缓冲。
func (r *ring[T]) newestFirst(fn func(v T) bool) {
	capacity := len(r.buf)
	for i := 0; i < r.n; i++ {
		idx := (r.head - 1 - i + capacity) % capacity
		if !fn(r.buf[idx]) {
			return
		}
	}
}

// snapshot 返回最新在前的副本，最多 limit 条（limit <= 0 表示全部）。
func (r *ring[T]) snapshot(limit int) []T {
	if limit <= 0 || limit > r.n {
		limit = r.n
	}
	out := make([]T, 0, limit)
	r.newestFirst(func(v T) bool {
		out = append(out, v)
		return len(out) < limit
	})
	return out
}

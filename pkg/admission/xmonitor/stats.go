package xmonitor

// ClassStats 单个端点类别的计数快照。
type ClassStats struct {
	Total    uint64
	Admitted uint64
	Rejected uint64
}

// KeyStats 单个准入键的计数快照。
type KeyStats struct {
	Total    uint64
	Admitted uint64
	Rejected uint64
}

// Stats 监控计数快照。所有计数单调递增（进程生命周期内）。
type Stats struct {
	// Total 事件总数（含旁路）
	Total uint64

	// Admitted 准入数
	Admitted uint64

	// Rejected 拒绝数
	Rejected uint64

	// Bypassed 旁路数
	Bypassed uint64

	// StoreErrors 共享存储故障信号数
	StoreErrors uint64

	// DroppedAlerts 因派发缓冲满被丢弃的告警数
	DroppedAlerts uint64

	// RejectionRatio 拒绝率 = Rejected / Total，Total 为 0 时为 0
	RejectionRatio float64

	// PerClass 逐端点类别计数
	PerClass map[string]ClassStats

	// PerKey 逐准入键计数（有界跟踪，最多 10000 个最近活跃键）
	PerKey map[string]KeyStats
}

// Snapshot 返回当前计数快照。
func (m *Monitor) Snapshot() Stats {
	s := Stats{
		Total:         m.total.Load(),
		Admitted:      m.admitted.Load(),
		Rejected:      m.rejected.Load(),
		Bypassed:      m.bypassed.Load(),
		StoreErrors:   m.storeErrors.Load(),
		DroppedAlerts: m.dropped.Load(),
	}
	if s.Total > 0 {
		s.RejectionRatio = float64(s.Rejected) / float64(s.Total)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.PerClass = make(map[string]ClassStats, len(m.perClass))
	for class, cs := range m.perClass {
		s.PerClass[class] = ClassStats{Total: cs.total, Admitted: cs.admitted, Rejected: cs.rejected}
	}

	s.PerKey = make(map[string]KeyStats, m.perKey.Len())
	for _, key := range m.perKey.Keys() {
		if ks, ok := m.perKey.Peek(key); ok {
			s.PerKey[key] = KeyStats{Total: ks.total, Admitted: ks.admitted, Rejected: ks.rejected}
		}
	}

	return s
}

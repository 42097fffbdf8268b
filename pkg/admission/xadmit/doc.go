// Package xadmit 是准入控制子系统的门面，把键解析、预算注册表、
// 滑动窗口策略和滥用监控组装为单一的 Admit 调用。
//
// # 控制流
//
//	请求 → 键解析（旁路则直接准入）→ 预算查找 → 滑动窗口检查
//	     → 监控记录（可能触发告警）→ 决策返回调用方
//
// # 快速开始
//
//	guard, err := xadmit.New(redisClient,
//	    xadmit.WithConfig(cfg),
//	    xadmit.WithDispatcher(dispatcher),
//	    xadmit.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer guard.Close()
//
//	d, err := guard.Admit(ctx, xadmit.Request{
//	    Origin:  "203.0.113.9",
//	    Class:   "login",
//	    Context: xident.RequestContext{UserAgent: ua},
//	})
//	if !d.Admitted {
//	    // 返回 429，携带 d.Headers()
//	}
//
// # HTTP 中间件
//
//	mux.Handle("/api/", xadmit.HTTPMiddleware(guard,
//	    xadmit.WithClassFunc(classOf),
//	)(apiHandler))
//
// # 失败语义
//
// Admit 的错误仅限 ErrGuardClosed 与调用方取消的 ctx；预算缺失、
// 共享存储故障等内部问题都按 fail-open 契约在内部消化（详见
// xwindow 包文档）。纯本地模式（NewLocal）只在单实例内正确，
// 跨实例预算不被强制执行。
package xadmit

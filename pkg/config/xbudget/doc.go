// Package xbudget 提供按端点类别划分的准入预算注册表。
//
// # 核心概念
//
//   - Budget：单个端点类别的准入预算（窗口内最大请求数、窗口时长、
//     突发余量、优先级）
//   - Registry：端点类别 → Budget 的只读映射，进程启动时构建一次，
//     之后不可变；未知类别返回保守默认预算而非错误
//   - Config：完整配置面（预算表、身份名单、监控阈值等），支持从
//     YAML/JSON 文件或字节数据加载
//
// # 环境倍率
//
// Multiplier 在 Registry 构建时一次性放大所有 MaxRequests（如开发
// 环境 ×5、测试环境 ×10），请求路径上不做任何缩放。
//
// # 快速开始
//
//	cfg, err := xbudget.LoadFile("admission.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry, err := xbudget.NewRegistry(cfg.Budgets, cfg.EffectiveMultiplier())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	budget, known := registry.Lookup("login")
package xbudget

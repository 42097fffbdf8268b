// Package xmonitor 消费准入决策事件，检测阈值越界与可疑行为模式，
// 并以冷却机制受控地产生告警。
//
// # 告警状态机
//
// 每个 (准入键, 端点类别, 告警种类[, 模式]) 独立维护状态：
//
//	quiet → (越界) → cooling-down → (冷却期满) → quiet
//
// 进入 cooling-down 时恰好产生一条告警；冷却期内（默认 300s）同键
// 同类的再次越界被抑制。冷却按事件到达时惰性判定，没有后台定时器。
//
// # 告警种类
//
//   - threshold：使用率越过配置比例（默认 0.70/0.80/0.95 对应
//     low/medium/high），单次评估只触发已越过的最高档
//   - violation：请求被拒绝，severity high
//   - suspicious：行为模式——rapid_requests（60s 内 ≥10 次）、
//     endpoint_probing（300s 内触达 ≥5 个端点类别）、
//     auth_failures（300s 内 ≥3 次认证类端点事件）
//
// # 隔离性
//
// 监控自身的任何失败（缓冲满、派发失败、派发方 panic）都不回传到
// 准入决策：可观测性故障不能影响可用性。事件与告警保存在有界环形
// 缓冲中，派发经带缓冲 channel 交给单独的 goroutine，channel 满时
// 丢弃而非阻塞请求路径。
package xmonitor

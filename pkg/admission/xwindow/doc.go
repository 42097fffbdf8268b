// Package xwindow 实现滑动日志准入策略。
//
// # 算法
//
// 每个 (准入键, 端点类别) 维护一份窗口内的请求时间戳日志。每次检查
// 原子地完成：淘汰过期时间戳 → 计数 → 容量内则写入当前时间戳。
// 相比固定桶，滑动日志没有窗口边界突发伪影；拒绝时的建议重试时间
// 由最老存活时间戳精确推出。
//
// # 后端
//
//   - redisBackend：共享计数存储，淘汰-计数-写入由单个 Lua 脚本
//     服务端原子执行，多进程共享同一预算时无竞态（推荐）
//   - localBackend：进程内存储，逐键互斥锁保护临界区，状态存放在
//     有界 LRU 中。仅单实例正确：多实例部署下各实例独立计数，
//     跨实例预算不被强制执行（降级模式，调用方必须知悉）
//
// # 失败语义
//
// Strategy 将两个后端组合为 fail-open 整体：共享存储出错或超时
// （含熔断器打开）时降级到本地后端并在结果上标记 Degraded；本地
// 检查也无法完成时直接放行。限流永远不能成为可用性故障的原因。
// 唯一例外是零预算（封禁键）：始终拒绝，从不放行。
package xwindow

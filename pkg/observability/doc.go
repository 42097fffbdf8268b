// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展
//
// 指标收集不单独成包：各子包通过 Option 接收 OpenTelemetry
// MeterProvider，未注入时不收集。
package observability

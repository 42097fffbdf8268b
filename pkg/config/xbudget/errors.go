package xbudget

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrInvalidBudget 表示预算配置无效
	ErrInvalidBudget = errors.New("xbudget: invalid budget")

	// ErrInvalidConfig 表示配置文件无效
	ErrInvalidConfig = errors.New("xbudget: invalid config")

	// ErrEmptyPath 表示配置文件路径为空
	ErrEmptyPath = errors.New("xbudget: empty config path")

	// ErrUnsupportedFormat 表示不支持的配置格式
	ErrUnsupportedFormat = errors.New("xbudget: unsupported config format (yaml/json only)")

	// ErrLoadFailed 表示配置读取失败
	ErrLoadFailed = errors.New("xbudget: config load failed")

	// ErrUnmarshalFailed 表示配置反序列化失败
	ErrUnmarshalFailed = errors.New("xbudget: config unmarshal failed")
)

package xbudget

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置数据格式。
type Format string

const (
	// FormatYAML YAML 格式
	FormatYAML Format = "yaml"
	// FormatJSON JSON 格式
	FormatJSON Format = "json"
)

// Config 准入控制子系统的完整配置面。
// 进程启动时加载一次，此后只读；所有字段对核心都是输入。
type Config struct {
	// Environment 部署环境名（development/test/production 等），
	// 用于推导预算倍率；Multiplier 显式设置时优先。
	Environment string `json:"environment" yaml:"environment" koanf:"environment"`

	// Multiplier 预算倍率，0 表示按 Environment 推导
	Multiplier int `json:"multiplier" yaml:"multiplier" koanf:"multiplier"`

	// Budgets 端点类别 → 预算
	Budgets map[string]Budget `json:"budgets" yaml:"budgets" koanf:"budgets"`

	// DefaultBudget 未知端点类别使用的预算，nil 时使用内置默认值
	DefaultBudget *Budget `json:"default_budget,omitempty" yaml:"default_budget,omitempty" koanf:"default_budget"`

	// Admins 管理员网络来源（IP/CIDR/范围），命中即旁路
	Admins []string `json:"admins" yaml:"admins" koanf:"admins"`

	// Whitelist 白名单网络来源，命中即旁路
	Whitelist []string `json:"whitelist" yaml:"whitelist" koanf:"whitelist"`

	// Blacklist 黑名单网络来源，命中即始终拒绝
	Blacklist []string `json:"blacklist" yaml:"blacklist" koanf:"blacklist"`

	// FingerprintSalt 网络来源键指纹的盐值
	FingerprintSalt string `json:"fingerprint_salt" yaml:"fingerprint_salt" koanf:"fingerprint_salt"`

	// KeyPrefix 共享计数存储的键前缀，默认 "admission:"
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" koanf:"key_prefix"`

	// StoreTimeout 共享计数存储单次调用超时，超时后走降级路径
	StoreTimeout time.Duration `json:"store_timeout" yaml:"store_timeout" koanf:"store_timeout"`

	// Monitor 滥用监控配置
	Monitor MonitorConfig `json:"monitor" yaml:"monitor" koanf:"monitor"`
}

// MonitorConfig 滥用监控配置。
type MonitorConfig struct {
	// Thresholds 使用率阈值 → 告警级别（如 0.70: low）。
	// 空表示使用默认阈值 0.70/0.80/0.95。
	Thresholds map[string]string `json:"thresholds" yaml:"thresholds" koanf:"thresholds"`

	// Cooldown 同键同类告警的冷却时长，默认 300s
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown" koanf:"cooldown"`

	// EventBufferSize 准入事件环形缓冲容量，默认 10000
	EventBufferSize int `json:"event_buffer_size" yaml:"event_buffer_size" koanf:"event_buffer_size"`

	// AlertBufferSize 告警环形缓冲容量，默认 1000
	AlertBufferSize int `json:"alert_buffer_size" yaml:"alert_buffer_size" koanf:"alert_buffer_size"`

	// AuthClasses 视为认证类端点的类别名，用于重复认证失败检测
	AuthClasses []string `json:"auth_classes" yaml:"auth_classes" koanf:"auth_classes"`
}

// EffectiveMultiplier 返回有效倍率：显式 Multiplier 优先，
// 否则按 Environment 推导。
func (c Config) EffectiveMultiplier() int {
	if c.Multiplier > 0 {
		return c.Multiplier
	}
	return MultiplierForEnv(c.Environment)
}

// Validate 验证配置是否有效。
func (c Config) Validate() error {
	for class, b := range c.Budgets {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: budgets[%s]: %w", ErrInvalidConfig, class, err)
		}
	}
	if c.DefaultBudget != nil {
		if err := c.DefaultBudget.Validate(); err != nil {
			return fmt.Errorf("%w: default_budget: %w", ErrInvalidConfig, err)
		}
	}
	if c.Multiplier < 0 {
		return fmt.Errorf("%w: multiplier cannot be negative", ErrInvalidConfig)
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("%w: store_timeout cannot be negative", ErrInvalidConfig)
	}
	if c.Monitor.Cooldown < 0 {
		return fmt.Errorf("%w: monitor.cooldown cannot be negative", ErrInvalidConfig)
	}
	if c.Monitor.EventBufferSize < 0 || c.Monitor.AlertBufferSize < 0 {
		return fmt.Errorf("%w: monitor buffer sizes cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadFile 从文件加载配置，按扩展名识别格式（.yaml/.yml/.json）。
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	return LoadBytes(data, format)
}

// LoadBytes 从字节数据加载配置，适用于 ConfigMap 等场景。
// 空数据返回零值配置（可用，仅含默认预算）。
func LoadBytes(data []byte, format Format) (Config, error) {
	// 阈值表的键是 "0.70" 这样的比例字符串，不能用 "." 做层级
	// 分隔符，否则扁平化时会被错误拆分。
	k := koanf.New("|")

	if len(data) > 0 {
		parser, err := parserFor(format)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// detectFormat 按文件扩展名识别配置格式。
func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// parserFor 返回格式对应的 koanf 解析器。
func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatYAML:
		return kyaml.Parser(), nil
	case FormatJSON:
		return kjson.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

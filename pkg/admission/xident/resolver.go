package xident

import (
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// Class 准入键的类别标签。
type Class string

const (
	// ClassAdmin 管理员来源，旁路准入检查
	ClassAdmin Class = "admin"
	// ClassWhitelisted 白名单来源，旁路准入检查
	ClassWhitelisted Class = "whitelisted"
	// ClassBlacklisted 黑名单来源，始终拒绝
	ClassBlacklisted Class = "blacklisted"
	// ClassUser 已认证主体
	ClassUser Class = "user"
	// ClassIP 匿名网络来源
	ClassIP Class = "ip"
)

// Identity 调用方身份事实，由外部认证层提供。
type Identity struct {
	// Subject 已认证主体标识（用户 ID 等），空表示未认证
	Subject string
}

// RequestContext 请求上下文事实，仅用于指纹计算。
type RequestContext struct {
	// UserAgent 客户端 User-Agent
	UserAgent string

	// AcceptLanguage 客户端 Accept-Language
	AcceptLanguage string

	// Extra 额外的上下文维度（header 片段等）
	Extra map[string]string
}

// Resolution 一次键解析的结果。
type Resolution struct {
	// Key 规范准入键，如 "user:42"、"ip:203.0.113.9:9f86d081e4c1a2b3"
	Key string

	// Class 键类别
	Class Class

	// Bypass 是否旁路准入策略（admin/whitelisted 为 true）
	Bypass bool
}

// Config 解析器配置。名单条目支持单 IP、CIDR 和显式范围。
type Config struct {
	// Admins 管理员网络来源
	Admins []string

	// Whitelist 白名单网络来源
	Whitelist []string

	// Blacklist 黑名单网络来源
	Blacklist []string

	// FingerprintSalt 指纹盐值，必填
	FingerprintSalt string
}

// Resolver 准入键解析器。构建后不可变，并发安全。
type Resolver struct {
	admins    *netipx.IPSet
	whitelist *netipx.IPSet
	blacklist *netipx.IPSet
	salt      string
}

// NewResolver 构建解析器。任一名单条目无法解析即返回错误。
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.FingerprintSalt == "" {
		return nil, ErrEmptySalt
	}

	admins, err := buildIPSet(cfg.Admins)
	if err != nil {
		return nil, err
	}
	whitelist, err := buildIPSet(cfg.Whitelist)
	if err != nil {
		return nil, err
	}
	blacklist, err := buildIPSet(cfg.Blacklist)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		admins:    admins,
		whitelist: whitelist,
		blacklist: blacklist,
		salt:      cfg.FingerprintSalt,
	}, nil
}

// Resolve 解析请求的准入键。先命中先生效：
// 管理员 → 白名单 → 黑名单 → 已认证主体 → 匿名网络来源。
// 畸形 origin 不会失败：跳过名单匹配，按匿名来源处理。
func (r *Resolver) Resolve(identity *Identity, origin string, rc RequestContext) Resolution {
	origin = strings.TrimSpace(origin)

	// 名单匹配只对可解析的 IP 进行；带端口的来源先剥离端口。
	if addr, ok := parseOrigin(origin); ok {
		switch {
		case r.admins.Contains(addr):
			return Resolution{Key: string(ClassAdmin) + ":" + origin, Class: ClassAdmin, Bypass: true}
		case r.whitelist.Contains(addr):
			return Resolution{Key: string(ClassWhitelisted) + ":" + origin, Class: ClassWhitelisted, Bypass: true}
		case r.blacklist.Contains(addr):
			return Resolution{Key: string(ClassBlacklisted) + ":" + origin, Class: ClassBlacklisted, Bypass: false}
		}
	}

	if identity != nil && identity.Subject != "" {
		return Resolution{Key: string(ClassUser) + ":" + identity.Subject, Class: ClassUser, Bypass: false}
	}

	if origin == "" {
		origin = "unknown"
	}
	fp := r.fingerprint(rc)
	return Resolution{Key: string(ClassIP) + ":" + origin + ":" + fp, Class: ClassIP, Bypass: false}
}

// parseOrigin 尝试将来源解析为 IP 地址，支持 "ip" 与 "ip:port" 形式。
func parseOrigin(origin string) (netip.Addr, bool) {
	if origin == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(origin); err == nil {
		return addr.Unmap(), true
	}
	if ap, err := netip.ParseAddrPort(origin); err == nil {
		return ap.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}

package xident

import (
	"encoding/hex"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// fingerprint 计算请求上下文的加盐指纹。
// xxhash64 不是密码学哈希，这里只需要不可逆且分布均匀：
// 指纹用于降低共享出口 IP 的键碰撞，不用于身份鉴别。
func (r *Resolver) fingerprint(rc RequestContext) string {
	d := xxhash.New()
	// 写入固定分隔符，避免字段拼接歧义（"ab"+"c" vs "a"+"bc"）。
	_, _ = d.WriteString(r.salt)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(rc.UserAgent)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(rc.AcceptLanguage)

	if len(rc.Extra) > 0 {
		keys := make([]string, 0, len(rc.Extra))
		for k := range rc.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(k)
			_, _ = d.WriteString("=")
			_, _ = d.WriteString(rc.Extra[k])
		}
	}

	var buf [8]byte
	sum := d.Sum64()
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:])
}

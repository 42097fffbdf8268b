// Package xident 将请求的身份与网络来源解析为规范的准入键。
//
// # 解析顺序（先命中先生效）
//
//  1. 来源属于管理员集合 → 旁路，键 admin:<origin>
//  2. 来源在白名单 → 旁路，键 whitelisted:<origin>
//  3. 来源在黑名单 → 不旁路，键 blacklisted:<origin>，
//     准入策略对该键始终拒绝
//  4. 携带已认证主体 → 键 user:<subject>
//  5. 其余 → 键 ip:<origin>:<指纹>
//
// # 上下文指纹
//
// 匿名网络来源键附加一段加盐 xxhash64 指纹（User-Agent 等请求上下文），
// 降低同一出口 IP 后多个无关用户的键碰撞。指纹不可逆，不作为个人
// 标识处理。
//
// # 容错
//
// 无法解析为 IP 的来源不会导致失败：跳过名单匹配，原样参与键拼接
// （视为匿名网络来源）。
package xident

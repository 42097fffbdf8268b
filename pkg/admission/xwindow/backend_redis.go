package xwindow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// takeScript 在服务端原子执行淘汰-计数-写入。
//
// KEYS[1] 窗口键；ARGV: now(µs)、window(µs)、capacity、member。
// 返回 {admitted, requests, oldest(µs)}。
//
// 整个序列必须是单个原子操作：拆成独立的读写调用时，两个并发
// 调用方会同时观察到 n < capacity 并双双准入，突破预算不变量。
var takeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local n = redis.call('ZCARD', key)

if n < capacity then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, math.ceil(window / 1000))
	return {1, n + 1, 0}
end

local oldest = 0
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end
return {0, n, oldest}
`)

// redisBackend 基于 Redis 有序集合的共享滑动日志后端。
type redisBackend struct {
	rdb    redis.UniversalClient
	prefix string
}

// newRedisBackend 创建 Redis 后端。
func newRedisBackend(rdb redis.UniversalClient, prefix string) *redisBackend {
	return &redisBackend{rdb: rdb, prefix: prefix}
}

// Type 返回后端类型。
func (b *redisBackend) Type() string {
	return "shared"
}

// Take 对 key 执行一次准入检查。
func (b *redisBackend) Take(ctx context.Context, key string, limit, burst int, window time.Duration) (TakeResult, error) {
	now := time.Now()
	nowMicro := now.UnixMicro()
	windowMicro := window.Microseconds()

	// member 必须全局唯一：同一微秒内的并发请求不能互相覆盖。
	member := strconv.FormatInt(nowMicro, 36) + "-" + uuid.NewString()

	raw, err := takeScript.Run(ctx, b.rdb, []string{b.prefix + key},
		nowMicro, windowMicro, limit+burst, member).Result()
	if err != nil {
		return TakeResult{}, err
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 3 {
		return TakeResult{}, fmt.Errorf("%w: unexpected script reply %T", ErrStoreUnavailable, raw)
	}

	admitted := toInt64(reply[0]) == 1
	requests := int(toInt64(reply[1]))
	oldestMicro := toInt64(reply[2])

	var oldest time.Time
	if oldestMicro > 0 {
		oldest = time.UnixMicro(oldestMicro)
	}

	return buildResult(admitted, requests, limit, window, now, oldest), nil
}

// Reset 清空 key 的窗口状态。
func (b *redisBackend) Reset(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, b.prefix+key).Err()
}

// Close 关闭后端。注入的客户端由调用方负责。
func (b *redisBackend) Close() error {
	return nil
}

// toInt64 宽松地将脚本返回值转为 int64。
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

// 确保 redisBackend 实现了 Backend 接口
var _ Backend = (*redisBackend)(nil)

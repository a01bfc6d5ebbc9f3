// internal/service/payment/infrastructure/redis_guard.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"washa/internal/pkg/redis"
)

const releaseGuardScriptName = "release_inflight_guard"

// 只允许持有者本人释放守卫，避免 TTL 过期后误删别人新拿到的守卫
var releaseGuardScript = `
-- KEYS[1]: 守卫的 Key, 例如: payment:inflight:{correlation-id}
-- ARGV[1]: 持有者标识
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

// RedisInflightGuard 是 port.InflightGuard 接口的 Redis 实现。
// SET NX + TTL：同一关联ID的第二次 Acquire 返回 false，调用方拒绝请求。
type RedisInflightGuard struct {
	client *redis.Client
	owner  string
}

// NewRedisInflightGuard 创建在途守卫，初始化时加载释放脚本。
func NewRedisInflightGuard(client *redis.Client) (*RedisInflightGuard, error) {
	if err := client.LoadScriptFromContent(releaseGuardScriptName, releaseGuardScript); err != nil {
		return nil, fmt.Errorf("failed to load guard release script: %w", err)
	}
	return &RedisInflightGuard{
		client: client,
		owner:  "guard-" + uuid.New().String()[:8],
	}, nil
}

func guardKey(correlationID string) string {
	return fmt.Sprintf("payment:inflight:{%s}", correlationID)
}

// Acquire 尝试占住关联ID。
func (g *RedisInflightGuard) Acquire(ctx context.Context, correlationID string, ttl time.Duration) (bool, error) {
	return g.client.GetClient().SetNX(ctx, guardKey(correlationID), g.owner, ttl).Result()
}

// Release 释放守卫，只有持有者本人生效。
func (g *RedisInflightGuard) Release(ctx context.Context, correlationID string) error {
	_, err := g.client.RunScript(ctx, releaseGuardScriptName, []string{guardKey(correlationID)}, g.owner)
	return err
}

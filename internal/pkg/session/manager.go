// internal/pkg/session/manager.go
package session

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "push:session:"
	sessionTTL       = 24 * time.Hour
)

// Manager 维护 "用户 -> 推送网关节点" 的会话映射。
// 推送网关是多实例部署的，下游的事件路由需要知道某个用户当前
// 连接在哪个节点上，才能把支付进度推送到正确的 WebSocket 连接。
type Manager struct {
	rdb *goredis.Client
}

// NewManager 创建一个新的会话管理器。
func NewManager(redisAddr string) *Manager {
	return &Manager{
		rdb: goredis.NewClient(&goredis.Options{Addr: redisAddr}),
	}
}

// SetUserGateway 记录用户连接到了哪个网关节点。
func (m *Manager) SetUserGateway(ctx context.Context, userID, nodeID string) error {
	return m.rdb.Set(ctx, sessionKeyPrefix+userID, nodeID, sessionTTL).Err()
}

// GetUserGateway 查询用户当前所在的网关节点，不在线时返回空串。
func (m *Manager) GetUserGateway(ctx context.Context, userID string) (string, error) {
	nodeID, err := m.rdb.Get(ctx, sessionKeyPrefix+userID).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session for user %s: %w", userID, err)
	}
	return nodeID, nil
}

// RemoveUserGateway 在连接断开时清除会话。
func (m *Manager) RemoveUserGateway(ctx context.Context, userID string) error {
	return m.rdb.Del(ctx, sessionKeyPrefix+userID).Err()
}

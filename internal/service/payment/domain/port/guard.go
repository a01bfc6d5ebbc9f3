// internal/service/payment/domain/port/guard.go
package port

import (
	"context"
	"time"
)

// InflightGuard 保证同一关联ID同时只有一次在途尝试。
// 第二次 Acquire 返回 false，调用方应当拒绝请求，而不是排队或合并。
//
// 守卫只是准入控制，不是正确性来源：守卫丢失（TTL 过期）最多放进来
// 一个竞争的发起请求，它会在网关的重复引用校验上失败。网关侧的
// 关联ID→状态映射才是唯一的共享事实。
type InflightGuard interface {
	Acquire(ctx context.Context, correlationID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, correlationID string) error
}

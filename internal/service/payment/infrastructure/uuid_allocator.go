// internal/service/payment/infrastructure/uuid_allocator.go
package infrastructure

import "github.com/google/uuid"

// UUIDAllocator 是 port.CorrelationAllocator 的 UUIDv4 实现。
// 128 位随机ID在全系统范围内的碰撞概率可以忽略，满足"关联ID同时充当
// 订单主键与网关支付引用"的要求。
type UUIDAllocator struct{}

func NewUUIDAllocator() *UUIDAllocator {
	return &UUIDAllocator{}
}

func (UUIDAllocator) NewCorrelationID() string {
	return uuid.New().String()
}

// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"errors"
)

// ErrOrderNotFound 表示订单不存在。
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository 是订单的持久化接口。
type OrderRepository interface {
	// CreateOrGet 以订单ID为键插入订单；如果已存在，返回已存在的那一条。
	// 这是整个落单链路幂等性的基石。
	CreateOrGet(ctx context.Context, order *Order) (*Order, error)

	FindByID(ctx context.Context, id string) (*Order, error)
}

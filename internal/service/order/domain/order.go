// internal/service/order/domain/order.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status 是订单的履约状态。
type Status string

const (
	StatusPendingPickup Status = "PENDING_PICKUP" // 待上门取件
	StatusInProgress    Status = "IN_PROGRESS"    // 洗护中
	StatusDelivering    Status = "DELIVERING"     // 配送中
	StatusDone          Status = "DONE"           // 已完成
)

// OrderItem 是订单里的一件衣物及其洗护服务。
type OrderItem struct {
	Garment  string          `json:"garment"`
	Service  string          `json:"service"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Subtotal 计算该行的小计。
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order 是订单聚合根。
//
// 订单的主键就是支付尝试的关联ID：订单在支付确认之前并不存在，
// 支付成功后才由草稿落单，关联ID保证同一次支付只产生一个订单。
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	PickupAddress   string      `json:"pickupAddress"`
	DeliveryAddress string      `json:"deliveryAddress"`
	Notes           string      `json:"notes,omitempty"`
	Items           []OrderItem `json:"items"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// NewOrder 从已支付的草稿创建订单。
func NewOrder(id, userID, pickupAddress, deliveryAddress, notes string, items []OrderItem) (*Order, error) {
	if id == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	amount := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %q has non-positive quantity", item.Garment)
		}
		amount = amount.Add(item.Subtotal())
	}

	return &Order{
		ID:              id,
		UserID:          userID,
		PickupAddress:   pickupAddress,
		DeliveryAddress: deliveryAddress,
		Notes:           notes,
		Items:           items,
		Amount:          amount,
		Status:          StatusPendingPickup,
		CreatedAt:       time.Now(),
	}, nil
}

// ItemCount 返回订单中的衣物总件数。
func (o *Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

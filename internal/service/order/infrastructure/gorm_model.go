// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"washa/internal/service/order/domain"
)

// OrderModel 是订单的数据库模型。
// 主键即支付尝试的关联ID，依赖主键唯一约束实现幂等落单。
type OrderModel struct {
	ID              string    `gorm:"column:id;primaryKey;size:64"`
	UserID          string    `gorm:"column:user_id;size:64;index"`
	PickupAddress   string    `gorm:"column:pickup_address;size:512"`
	DeliveryAddress string    `gorm:"column:delivery_address;size:512"`
	Notes           string    `gorm:"column:notes;size:1024"`
	ItemsJSON       string    `gorm:"column:items_json;type:json"`
	Amount          string    `gorm:"column:amount;type:decimal(14,2)"`
	Status          string    `gorm:"column:status;size:32;index"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名。
func (OrderModel) TableName() string {
	return "laundry_orders"
}

// ToOrderModel 将领域订单转换为数据库模型。
func ToOrderModel(order *domain.Order) (*OrderModel, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	return &OrderModel{
		ID:              order.ID,
		UserID:          order.UserID,
		PickupAddress:   order.PickupAddress,
		DeliveryAddress: order.DeliveryAddress,
		Notes:           order.Notes,
		ItemsJSON:       string(items),
		Amount:          order.Amount.String(),
		Status:          string(order.Status),
		CreatedAt:       order.CreatedAt,
	}, nil
}

// ToDomainOrder 将数据库模型还原为领域订单。
func ToDomainOrder(model *OrderModel) (*domain.Order, error) {
	var items []domain.OrderItem
	if model.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(model.ItemsJSON), &items); err != nil {
			return nil, err
		}
	}
	amount, err := decimal.NewFromString(model.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Order{
		ID:              model.ID,
		UserID:          model.UserID,
		PickupAddress:   model.PickupAddress,
		DeliveryAddress: model.DeliveryAddress,
		Notes:           model.Notes,
		Items:           items,
		Amount:          amount,
		Status:          domain.Status(model.Status),
		CreatedAt:       model.CreatedAt,
	}, nil
}

// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"washa/internal/service/order/domain"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建仓储实例并执行表结构迁移。
func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	if err := db.AutoMigrate(&OrderModel{}); err != nil {
		return nil, err
	}
	return &GormOrderRepository{db: db}, nil
}

// CreateOrGet 以主键冲突不更新的方式插入，随后按主键读回。
// 并发的两次调用最多一次真正插入，双方都会读到同一条订单。
func (r *GormOrderRepository) CreateOrGet(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	model, err := ToOrderModel(order)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
	if err != nil {
		return nil, err
	}

	return r.FindByID(ctx, order.ID)
}

// FindByID 按订单ID（即关联ID）查找订单。
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return ToDomainOrder(&model)
}

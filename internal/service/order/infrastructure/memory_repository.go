// internal/service/order/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"

	"washa/internal/service/order/domain"
)

// MemoryOrderRepository 是 domain.OrderRepository 的内存实现，用于测试和本地联调。
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

// NewMemoryOrderRepository 创建内存仓储。
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*domain.Order)}
}

// CreateOrGet 已存在则返回旧订单，否则存入新订单。
func (r *MemoryOrderRepository) CreateOrGet(_ context.Context, order *domain.Order) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.orders[order.ID]; ok {
		return existing, nil
	}
	r.orders[order.ID] = order
	return order, nil
}

// FindByID 按订单ID查找。
func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

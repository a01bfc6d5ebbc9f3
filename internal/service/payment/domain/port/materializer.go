// internal/service/payment/domain/port/materializer.go
package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"washa/internal/service/payment/domain"
)

// Order 是落单成功后回传给支付侧的订单视图。
type Order struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	ItemCount int
	CreatedAt time.Time
}

// OrderMaterializer 是订单子系统的出站端口，也是支付侧触达它的唯一通道。
//
// CreateOrGet 必须幂等：用同一个ID第二次及以后的调用返回已存在的订单，
// 而不是报错或产生重复。这一条幂等保证让编排器的成功路径和对账的恢复
// 路径可以安全组合，而不需要任何分布式锁。
// 传入的ID永远是支付尝试的关联ID，绝不会是另行生成的订单号。
type OrderMaterializer interface {
	CreateOrGet(ctx context.Context, correlationID string, draft domain.OrderDraft) (*Order, error)
}

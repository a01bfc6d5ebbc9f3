// internal/service/order/application/materializer.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"washa/internal/pkg/logger"
	"washa/internal/service/order/domain"
	paymentdomain "washa/internal/service/payment/domain"
	paymentport "washa/internal/service/payment/domain/port"
)

// Materializer 把已支付的订单草稿落成正式订单。
// 它实现支付侧的 OrderMaterializer 出站端口，是支付子系统触达订单子系统的唯一通道。
type Materializer struct {
	repo   domain.OrderRepository
	tracer trace.Tracer
}

// NewMaterializer 创建落单服务。
func NewMaterializer(repo domain.OrderRepository, tracer trace.Tracer) *Materializer {
	return &Materializer{repo: repo, tracer: tracer}
}

// CreateOrGet 用支付尝试的关联ID落单，重复调用返回同一条订单。
func (m *Materializer) CreateOrGet(ctx context.Context, correlationID string, draft paymentdomain.OrderDraft) (*paymentport.Order, error) {
	ctx, span := m.tracer.Start(ctx, "order.Materialize")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", correlationID))

	items := make([]domain.OrderItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		items = append(items, domain.OrderItem{
			Garment:  item.Garment,
			Service:  item.Service,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	order, err := domain.NewOrder(
		correlationID,
		draft.UserID,
		draft.PickupAddress,
		draft.DeliveryAddress,
		draft.Notes,
		items,
	)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	stored, err := m.repo.CreateOrGet(ctx, order)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", stored.ID).
		Str("user_id", stored.UserID).
		Int("item_count", stored.ItemCount()).
		Msg("order materialized")

	return &paymentport.Order{
		ID:        stored.ID,
		UserID:    stored.UserID,
		Amount:    stored.Amount,
		ItemCount: stored.ItemCount(),
		CreatedAt: stored.CreatedAt,
	}, nil
}

// internal/service/payment/domain/port/gateway.go
package port

import (
	"context"

	"github.com/shopspring/decimal"

	"washa/internal/service/payment/domain"
)

// InitiateRequest 是发给支付网关的发起请求。
// 手机号必须已归一化（MSISDN 类型本身即约束），金额必须为正。
type InitiateRequest struct {
	CorrelationID string
	Msisdn        domain.MSISDN
	Amount        decimal.Decimal
}

// PendingPayment 是网关对发起请求的应答。
// ProviderRef 是网关自己的交易号，区别于我们的关联ID。
// 由编排器独占持有，不对外共享。
type PendingPayment struct {
	ProviderRef string
	Status      domain.ProviderStatus
}

// PaymentGateway 是移动钱包服务商的出站端口。
//
// Initiate 绝不在内部重试——重试是编排器的职责，且每次重试必须复用同一个
// 关联ID，绝不为同一逻辑尝试造出第二个ID。
// Status 幂等且无副作用，可以被任意多次调用（包括编排器已到终态之后），
// 它是对账流程依赖的原语。
type PaymentGateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*PendingPayment, error)
	Status(ctx context.Context, correlationID string) (domain.ProviderStatus, error)
}

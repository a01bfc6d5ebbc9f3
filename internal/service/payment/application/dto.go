// internal/service/payment/application/dto.go
package application

import (
	"github.com/shopspring/decimal"

	"washa/internal/service/payment/domain"
	"washa/internal/service/payment/domain/port"
)

// StartPaymentRequest 是发起一次支付尝试的入参。
// CorrelationID 可选：客户端崩溃后用持久化下来的ID继续同一逻辑尝试时传入，
// 留空则由分配器生成新ID。
type StartPaymentRequest struct {
	CorrelationID string
	UserID        string
	PhoneNumber   string // 原始输入，未归一化
	Amount        decimal.Decimal
	Draft         domain.OrderDraft
}

// AttemptView 是返回给接口层的支付尝试快照。
type AttemptView struct {
	CorrelationID string             `json:"correlationId"`
	State         domain.State       `json:"state"`
	Ambiguous     bool               `json:"ambiguous"`
	Reconciled    bool               `json:"reconciled"`
	ProviderRef   string             `json:"providerRef,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
	Amount        string             `json:"amount"`
	Order         *port.Order        `json:"order,omitempty"`
	NextAction    string             `json:"nextAction,omitempty"`
}

// ReconcileResult 是一次对账的结果。
// RequiresManualIntervention 仅当网关本身无法给出确定状态时为 true；
// 网关确认的 failed/cancelled/expired 是正常的已解决结局，不算人工介入。
type ReconcileResult struct {
	Resolved                   bool                  `json:"resolved"`
	FinalStatus                domain.ProviderStatus `json:"finalStatus,omitempty"`
	Order                      *port.Order           `json:"order,omitempty"`
	RequiresManualIntervention bool                  `json:"requiresManualIntervention"`
}

func newAttemptView(a *domain.PaymentAttempt, order *port.Order) *AttemptView {
	v := &AttemptView{
		CorrelationID: a.CorrelationID,
		State:         a.State,
		Ambiguous:     a.Ambiguous,
		Reconciled:    a.Reconciled,
		ProviderRef:   a.ProviderRef,
		FailureReason: a.FailureReason,
		Amount:        a.Amount.String(),
		Order:         order,
	}
	// 失败/模糊状态必须先给出"查询支付状态"的出路，之后才允许"重试"
	switch {
	case a.Ambiguous && !a.Reconciled:
		v.NextAction = "reconcile"
	case a.CanRetryWithNewID():
		v.NextAction = "retry"
	}
	return v
}

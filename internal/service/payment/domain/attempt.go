// internal/service/payment/domain/attempt.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DraftItem 是订单草稿中的一件衣物及其处理方式。
type DraftItem struct {
	Garment  string          `json:"garment"`
	Service  string          `json:"service"` // wash / dry_clean / iron
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderDraft 是外部提供的订单草稿。
// 在整个支付尝试期间不可变，只在落单（materialization）时被消费一次。
type OrderDraft struct {
	UserID          string      `json:"userId"`
	PickupAddress   string      `json:"pickupAddress"`
	DeliveryAddress string      `json:"deliveryAddress,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	Items           []DraftItem `json:"items"`
}

// PaymentAttempt 是一次逻辑支付尝试的聚合根。
//
// 关联ID在尝试开始时生成一次，贯穿整个生命周期：同一尝试的内部重试
// 复用它，支付成功后它成为订单的主键。Ambiguous 标记终态是客户端推断
// 出来的（超时、本地取消），而非网关确认；这类尝试在对账确认之前，
// 既不允许换新ID重试，也不允许复位丢弃。
type PaymentAttempt struct {
	CorrelationID string
	UserID        string
	Msisdn        MSISDN
	Amount        decimal.Decimal
	Draft         OrderDraft

	State         State
	Ambiguous     bool   // 终态由客户端推断而非网关确认
	Reconciled    bool   // 对账已向网关确认过终态
	ProviderRef   string // 网关自己的交易号，区别于关联ID
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAttempt 创建一次新的支付尝试。
// 守卫：金额必须为正，手机号必须已归一化。不满足时立刻返回校验错误，
// 调用方不得发起任何网关调用。
func NewAttempt(correlationID, userID string, msisdn MSISDN, amount decimal.Decimal, draft OrderDraft) (*PaymentAttempt, error) {
	if correlationID == "" {
		return nil, E(KindValidation, "correlation id is required")
	}
	if msisdn == "" {
		return nil, E(KindValidation, "normalized phone number is required")
	}
	if !amount.IsPositive() {
		return nil, E(KindValidation, "amount must be positive, got %s", amount)
	}
	now := time.Now()
	return &PaymentAttempt{
		CorrelationID: correlationID,
		UserID:        userID,
		Msisdn:        msisdn,
		Amount:        amount,
		Draft:         draft,
		State:         StateIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (a *PaymentAttempt) touch() { a.UpdatedAt = time.Now() }

// BeginCreating 进入发起阶段。
func (a *PaymentAttempt) BeginCreating() error {
	if a.State != StateIdle {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot begin creating from %s", a.State)
	}
	a.State = StateCreating
	a.touch()
	return nil
}

// MarkPushSent 记录网关已向付款人手机下发推送。
func (a *PaymentAttempt) MarkPushSent(providerRef string) error {
	if a.State != StateCreating {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot mark push sent from %s", a.State)
	}
	a.State = StatePushSent
	a.ProviderRef = providerRef
	a.touch()
	return nil
}

// BeginPolling 在推送下发后立即进入轮询等待。
func (a *PaymentAttempt) BeginPolling() error {
	if a.State != StatePushSent {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot begin polling from %s", a.State)
	}
	a.State = StatePolling
	a.touch()
	return nil
}

// ApplyProviderStatus 把轮询得到的网关状态应用到状态机。
// 返回值表示是否到达终态。网关确认的终态是权威的，Ambiguous 置 false。
func (a *PaymentAttempt) ApplyProviderStatus(status ProviderStatus) (bool, error) {
	if a.State != StatePolling {
		return false, WrapE(KindConflict, ErrInvalidTransition, "cannot apply provider status from %s", a.State)
	}
	if !status.Terminal() {
		return false, nil
	}
	a.State = status.ToState()
	a.Ambiguous = false
	a.touch()
	return true, nil
}

// FailProvider 记录一次网关确认的失败（发起被拒、业务拒绝）。结局是确定的。
func (a *PaymentAttempt) FailProvider(reason string) error {
	if !a.State.InFlight() {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot fail from %s", a.State)
	}
	a.State = StateFailed
	a.Ambiguous = false
	a.FailureReason = reason
	a.touch()
	return nil
}

// FailAmbiguous 记录一次客户端推断的失败（轮询超时、发起后网络断开）。
// 请求可能已经到达网关，真实结局未知，必须走对账。
func (a *PaymentAttempt) FailAmbiguous(reason string) error {
	if !a.State.InFlight() {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot fail from %s", a.State)
	}
	a.State = StateFailed
	a.Ambiguous = true
	a.FailureReason = reason
	a.touch()
	return nil
}

// CancelLocal 记录一次用户本地取消。
// 取消只停掉客户端自己的等待循环，网关侧的扣款仍可能完成，
// 因此本地取消同样是模糊终态，随后应当触发对账。
func (a *PaymentAttempt) CancelLocal() error {
	if !a.State.InFlight() {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot cancel from %s", a.State)
	}
	a.State = StateCancelled
	a.Ambiguous = true
	a.FailureReason = "cancelled by user"
	a.touch()
	return nil
}

// ResolveFromProvider 由对账流程调用，用网关的权威状态改写本地终态。
// 允许从任何非 IDLE 状态改写：崩溃恢复时尝试可能还停留在在途状态。
func (a *PaymentAttempt) ResolveFromProvider(status ProviderStatus) error {
	if a.State == StateIdle {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot resolve an idle attempt")
	}
	if !status.Terminal() {
		return E(KindConflict, "cannot resolve with non-terminal provider status %q", status)
	}
	a.State = status.ToState()
	a.Ambiguous = false
	a.Reconciled = true
	a.touch()
	return nil
}

// MarkUnresolvable 记录一次对账查询本身失败。终态维持原样，等待下一次对账。
func (a *PaymentAttempt) MarkUnresolvable() {
	a.touch()
}

// Reset 把终态复位回 IDLE，丢弃在途的网关交易引用。
// 结局不明且未对账的尝试不允许复位：关联ID在网关侧可能仍会变成成功，
// 丢弃它等于制造一笔没有订单的扣款。
func (a *PaymentAttempt) Reset() error {
	if !a.State.Terminal() {
		return WrapE(KindConflict, ErrInvalidTransition, "cannot reset from %s", a.State)
	}
	if a.Ambiguous && !a.Reconciled {
		return ErrReconcileRequired
	}
	a.State = StateIdle
	a.ProviderRef = ""
	a.FailureReason = ""
	a.touch()
	return nil
}

// CanRetryWithNewID 判断是否允许用一个全新的关联ID重新发起。
// 成功的尝试没有重试一说；结局不明的必须先对账。
func (a *PaymentAttempt) CanRetryWithNewID() bool {
	if !a.State.Terminal() || a.State == StateCompleted {
		return false
	}
	return !a.Ambiguous || a.Reconciled
}

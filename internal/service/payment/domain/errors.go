// internal/service/payment/domain/errors.go
package domain

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind 是支付流程的错误分类。
// 每一类对应一种明确的调用方处置策略，见各常量注释。
type Kind string

const (
	// KindValidation 输入非法（手机号、金额）。快速失败，不发起网络调用，修正输入后可重试。
	KindValidation Kind = "validation"
	// KindNetwork 瞬时网络错误。只允许重试"查询"，绝不允许重试"扣款"。
	KindNetwork Kind = "network"
	// KindBusinessRejection 业务拒绝（余额不足、付款人取消、请求过期）。终态，重试必须换新的关联ID。
	KindBusinessRejection Kind = "business_rejection"
	// KindAmbiguous 请求已发出但结局未知。必须走对账，绝不能盲目重试，也不能静默放弃。
	KindAmbiguous Kind = "ambiguous"
	// KindMaterialization 支付已确认成功但订单落库失败。必须与支付失败严格区分，绝不能触发二次扣款。
	KindMaterialization Kind = "materialization"
	// KindConflict 状态机冲突（重复发起、未对账先重试等）。
	KindConflict Kind = "conflict"
)

// Error 是带分类的领域错误。
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// E 构造一个不带底层原因的领域错误。
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapE 包装一个底层错误并附加分类。底层错误带上调用栈，便于排障。
func WrapE(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// KindOf 提取错误的分类，非领域错误一律视为网络类（保守处置：可查询、不可扣款）。
func KindOf(err error) Kind {
	var de *Error
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindNetwork
}

// IsKind 判断错误是否属于指定分类。
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var (
	// ErrAttemptInFlight 同一关联ID已有在途尝试，拒绝而不是排队或合并。
	ErrAttemptInFlight = E(KindConflict, "payment attempt already in flight for this correlation id")
	// ErrReconcileRequired 结局不明的尝试必须先对账，之后才允许用新ID重试或复位。
	ErrReconcileRequired = E(KindConflict, "ambiguous outcome must be reconciled before retry or reset")
	// ErrAttemptNotFound 找不到对应的支付尝试。
	ErrAttemptNotFound = E(KindValidation, "payment attempt not found")
	// ErrInvalidTransition 非法的状态迁移。
	ErrInvalidTransition = E(KindConflict, "invalid state transition")
)

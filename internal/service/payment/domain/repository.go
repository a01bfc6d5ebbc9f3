// internal/service/payment/domain/repository.go
package domain

import (
	"context"
	"time"
)

// AttemptRepository 定义了支付尝试聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
//
// 尝试记录必须在整个生命周期内可恢复（包括进程崩溃之后），
// 这是对账流程能在"结局从未被观察到"的场景下工作的前提。
type AttemptRepository interface {
	// Save 保存一个支付尝试（用于创建或更新）。
	Save(ctx context.Context, attempt *PaymentAttempt) error

	// FindByCorrelationID 根据关联ID查找尝试，不存在时返回 ErrAttemptNotFound。
	FindByCorrelationID(ctx context.Context, correlationID string) (*PaymentAttempt, error)

	// ListUnreconciled 列出在指定时刻之前进入模糊终态、或仍停留在在途状态
	// 且尚未对账的尝试。对账工作进程用它做崩溃恢复扫描。
	ListUnreconciled(ctx context.Context, before time.Time) ([]*PaymentAttempt, error)
}

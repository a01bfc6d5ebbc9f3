// internal/service/payment/domain/port/policy.go
package port

import "context"

// ReconcileFact 是准入规则评估所需的事实。
type ReconcileFact struct {
	CorrelationID string  `json:"correlation_id"`
	Amount        float64 `json:"amount"`
	AgeSeconds    int64   `json:"age_seconds"`
	State         string  `json:"state"`
}

// ReconcilePolicy 决定一笔待对账的尝试是否允许工作进程自动处置。
// 被拒绝的尝试转入人工审核，而不是被丢弃。
// 规则本身是运行期配置（表达式），便于运营在不发版的情况下收紧口径。
type ReconcilePolicy interface {
	AllowAutoResolve(ctx context.Context, fact ReconcileFact) (bool, error)
}

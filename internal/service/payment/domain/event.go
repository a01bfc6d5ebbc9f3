// internal/service/payment/domain/event.go
package domain

import "time"

// LifecycleEvent 在状态机每次迁移时发布。
// 推送网关消费它并转发给用户的设备（onProgress / onSuccess / onError）。
type LifecycleEvent struct {
	CorrelationID string    `json:"correlationId"`
	UserID        string    `json:"userId"`
	State         State     `json:"state"`
	Ambiguous     bool      `json:"ambiguous"`
	ProviderRef   string    `json:"providerRef,omitempty"`
	Amount        string    `json:"amount"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
	TraceID       string    `json:"traceId,omitempty"`
}

// ReconcileJob 是投递给对账工作进程的任务。
// 在尝试进入模糊终态、用户本地取消、或落单失败时入队。
type ReconcileJob struct {
	CorrelationID string    `json:"correlationId"`
	Reason        string    `json:"reason"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}

// ManualReviewEvent 表示一笔无法自动处置的尝试，需要人工介入。
// 只在网关本身无法给出确定状态、或准入规则拒绝自动处理时产生。
type ManualReviewEvent struct {
	CorrelationID string    `json:"correlationId"`
	Reason        string    `json:"reason"`
	At            time.Time `json:"at"`
}

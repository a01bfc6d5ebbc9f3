// internal/service/payment/domain/port/notifier.go
package port

import (
	"context"

	"washa/internal/service/payment/domain"
)

// EventNotifier 是事件流的出站端口。
// 生命周期事件供推送网关转发给用户设备；对账任务供对账工作进程消费；
// 人工审核事件供运营侧消费。
type EventNotifier interface {
	PublishLifecycle(ctx context.Context, event domain.LifecycleEvent) error
	EnqueueReconcile(ctx context.Context, job domain.ReconcileJob) error
	PublishManualReview(ctx context.Context, event domain.ManualReviewEvent) error
}

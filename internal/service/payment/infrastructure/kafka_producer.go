// internal/service/payment/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"

	"washa/internal/pkg/mq"
	"washa/internal/service/payment/domain"
)

// EventProducerAdapter 是 port.EventNotifier 接口的 Kafka 实现。
// 三个主题分别承载生命周期事件、对账任务和人工审核事件。
// 全部以关联ID为消息 Key，保证单次尝试的事件有序。
type EventProducerAdapter struct {
	lifecycleWriter *kafka.Writer
	reconcileWriter *kafka.Writer
	manualWriter    *kafka.Writer
}

// NewEventProducerAdapter 创建事件生产者适配器。
func NewEventProducerAdapter(lifecycle, reconcile, manual *kafka.Writer) *EventProducerAdapter {
	return &EventProducerAdapter{
		lifecycleWriter: lifecycle,
		reconcileWriter: reconcile,
		manualWriter:    manual,
	}
}

// PublishLifecycle 发布一条状态机迁移事件。
func (p *EventProducerAdapter) PublishLifecycle(ctx context.Context, event domain.LifecycleEvent) error {
	TransitionsTotal.WithLabelValues(string(event.State), strconv.FormatBool(event.Ambiguous)).Inc()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, p.lifecycleWriter, []byte(event.CorrelationID), payload)
}

// EnqueueReconcile 投递一个对账任务。
func (p *EventProducerAdapter) EnqueueReconcile(ctx context.Context, job domain.ReconcileJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, p.reconcileWriter, []byte(job.CorrelationID), payload)
}

// PublishManualReview 发布一条人工审核事件。
func (p *EventProducerAdapter) PublishManualReview(ctx context.Context, event domain.ManualReviewEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, p.manualWriter, []byte(event.CorrelationID), payload)
}

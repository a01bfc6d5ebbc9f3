// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewKafkaWriter 创建一个针对特定主题的生产者。
// 使用 Hash 均衡器，保证同一个 Key（关联ID）的消息总是落在同一个分区，
// 从而保证单个支付尝试的事件是有序消费的。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaReader 创建一个属于指定消费组的消费者。
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // 手动提交
	})
}

// headerCarrier 将 kafka 消息头适配为 OTel 的 TextMapCarrier。
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// ProduceMessage 发送一条消息，并把当前的追踪上下文注入到消息头中。
func ProduceMessage(ctx context.Context, writer *kafka.Writer, key, value []byte) error {
	tracer := otel.Tracer("mq")
	ctx, span := tracer.Start(ctx, "kafka.produce", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", writer.Topic),
	)

	msg := kafka.Message{Key: key, Value: value}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})

	if err := writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ExtractTraceContext 从消费到的消息头中恢复追踪上下文。
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	headers := msg.Headers
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &headers})
}

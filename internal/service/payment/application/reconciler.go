// internal/service/payment/application/reconciler.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"washa/internal/pkg/logger"
	"washa/internal/service/payment/domain"
	"washa/internal/service/payment/domain/port"
)

// Reconciler 负责解决客户端视角与网关权威记录之间的分歧。
//
// 整个流程幂等，可以被任意多次调用：重复的 completed 解决不会产生
// 重复订单（由落单端口的幂等契约保证）。并发的同ID调用通过
// singleflight 合并为一次网关查询。
type Reconciler struct {
	repo         domain.AttemptRepository
	gateway      port.PaymentGateway
	materializer port.OrderMaterializer
	notifier     port.EventNotifier
	tracer       trace.Tracer

	group singleflight.Group
}

// NewReconciler 创建对账服务。
func NewReconciler(
	repo domain.AttemptRepository,
	gateway port.PaymentGateway,
	materializer port.OrderMaterializer,
	notifier port.EventNotifier,
	tracer trace.Tracer,
) *Reconciler {
	return &Reconciler{
		repo:         repo,
		gateway:      gateway,
		materializer: materializer,
		notifier:     notifier,
		tracer:       tracer,
	}
}

// Resolve 以网关为准重新裁定一次尝试的结局。
//
// draft 可选：对账调用方（例如崩溃恢复后的客户端）可以显式提供订单
// 草稿；缺省时使用尝试发起时随行持久化的草稿。
//
//  1. 网关报 completed：幂等落单，返回 resolved 并附上订单。
//  2. 网关确认 failed/cancelled/expired：返回 resolved，无订单，
//     此后允许用【新的】关联ID重试。
//  3. 状态查询本身失败：返回 resolved=false 且 RequiresManualIntervention=true，
//     调用方不得假定失败，更不得放行换新ID的盲目重试。
func (r *Reconciler) Resolve(ctx context.Context, correlationID string, draft *domain.OrderDraft) (*ReconcileResult, error) {
	result, err, _ := r.group.Do(correlationID, func() (interface{}, error) {
		return r.resolve(ctx, correlationID, draft)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ReconcileResult), nil
}

func (r *Reconciler) resolve(ctx context.Context, correlationID string, draft *domain.OrderDraft) (*ReconcileResult, error) {
	ctx, span := r.tracer.Start(ctx, "payment.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("payment.correlation_id", correlationID))

	attempt, err := r.repo.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	status, err := r.gateway.Status(ctx, correlationID)
	if err != nil {
		// 网关自身不可用：原始扣款的命运仍然未知，既不能当作失败，
		// 也不能放行换新ID的重试。交给人工或下一轮对账。
		span.RecordError(err)
		span.SetStatus(codes.Error, "status query failed during reconciliation")
		attempt.MarkUnresolvable()
		logger.Ctx(ctx).Warn().Err(err).Str("correlation_id", correlationID).Msg("reconciliation could not reach a definitive status")
		return &ReconcileResult{Resolved: false, RequiresManualIntervention: true}, nil
	}

	if !status.Terminal() {
		// 网关仍在 pending：不是分歧，稍后再对一次即可
		span.AddEvent("provider still pending")
		return &ReconcileResult{Resolved: false, FinalStatus: status}, nil
	}

	if err := attempt.ResolveFromProvider(status); err != nil {
		return nil, err
	}

	if status == domain.ProviderCompleted {
		effectiveDraft := attempt.Draft
		if draft != nil {
			effectiveDraft = *draft
		}
		order, err := r.materializer.CreateOrGet(ctx, correlationID, effectiveDraft)
		if err != nil {
			// 支付确认成功但订单仍未落成：保持已对账的 completed 状态，
			// 返回错误让任务重试，绝不把支付改判为失败
			span.RecordError(err)
			r.save(ctx, attempt)
			return nil, domain.WrapE(domain.KindMaterialization, err, "payment confirmed but order creation failed during reconciliation")
		}
		r.save(ctx, attempt)
		r.publish(ctx, attempt, "resolved by reconciliation: provider recorded success")
		return &ReconcileResult{Resolved: true, FinalStatus: status, Order: order}, nil
	}

	// 网关确认的非成功终态：分歧解决，允许用新的关联ID重试
	r.save(ctx, attempt)
	r.publish(ctx, attempt, "resolved by reconciliation: provider confirmed "+string(status))
	return &ReconcileResult{Resolved: true, FinalStatus: status}, nil
}

// RecoverStale 扫描长期未对账的尝试并投递对账任务。
// 覆盖"进程在轮询途中被杀、结局从未被观察到"的场景。
func (r *Reconciler) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := r.tracer.Start(ctx, "payment.RecoverStale")
	defer span.End()

	attempts, err := r.repo.ListUnreconciled(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	for _, attempt := range attempts {
		job := domain.ReconcileJob{
			CorrelationID: attempt.CorrelationID,
			Reason:        "stale attempt recovered by sweep",
			EnqueuedAt:    time.Now(),
		}
		if err := r.notifier.EnqueueReconcile(ctx, job); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("correlation_id", attempt.CorrelationID).Msg("failed to enqueue recovery job")
		}
	}
	span.SetAttributes(attribute.Int("payment.stale_attempts", len(attempts)))
	return len(attempts), nil
}

func (r *Reconciler) save(ctx context.Context, attempt *domain.PaymentAttempt) {
	if err := r.repo.Save(ctx, attempt); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("correlation_id", attempt.CorrelationID).Msg("failed to persist reconciled attempt")
	}
}

func (r *Reconciler) publish(ctx context.Context, attempt *domain.PaymentAttempt, message string) {
	event := domain.LifecycleEvent{
		CorrelationID: attempt.CorrelationID,
		UserID:        attempt.UserID,
		State:         attempt.State,
		Ambiguous:     attempt.Ambiguous,
		ProviderRef:   attempt.ProviderRef,
		Amount:        attempt.Amount.String(),
		Message:       message,
		At:            time.Now(),
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		event.TraceID = spanCtx.TraceID().String()
	}
	if err := r.notifier.PublishLifecycle(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("correlation_id", attempt.CorrelationID).Msg("failed to publish lifecycle event")
	}
}

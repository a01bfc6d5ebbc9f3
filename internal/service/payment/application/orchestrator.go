// internal/service/payment/application/orchestrator.go
package application

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"washa/internal/pkg/logger"
	"washa/internal/service/payment/domain"
	"washa/internal/service/payment/domain/port"
)

// Config 是编排器的运行参数。
type Config struct {
	DefaultCountryCode string
	PollInterval       time.Duration
	PollMaxInterval    time.Duration
	PollCeiling        time.Duration // 轮询硬上限，到达后转入模糊失败而不是无限等待
	InflightTTL        time.Duration
}

// Orchestrator 驱动单次支付尝试从请求到终态的完整状态机。
//
// 状态迁移本身是聚合上的纯方法（见 domain.PaymentAttempt），
// 编排器只负责效果边界：网关调用、持久化、事件发布、落单。
type Orchestrator struct {
	repo         domain.AttemptRepository
	gateway      port.PaymentGateway
	allocator    port.CorrelationAllocator
	materializer port.OrderMaterializer
	notifier     port.EventNotifier
	guard        port.InflightGuard
	tracer       trace.Tracer
	cfg          Config

	// 本进程内在途轮询的取消入口，按关联ID索引
	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// NewOrchestrator 创建编排器。
func NewOrchestrator(
	repo domain.AttemptRepository,
	gateway port.PaymentGateway,
	allocator port.CorrelationAllocator,
	materializer port.OrderMaterializer,
	notifier port.EventNotifier,
	guard port.InflightGuard,
	tracer trace.Tracer,
	cfg Config,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollMaxInterval <= 0 {
		cfg.PollMaxInterval = 15 * time.Second
	}
	if cfg.PollCeiling <= 0 {
		cfg.PollCeiling = 90 * time.Second
	}
	if cfg.InflightTTL <= 0 {
		cfg.InflightTTL = 5 * time.Minute
	}
	return &Orchestrator{
		repo:         repo,
		gateway:      gateway,
		allocator:    allocator,
		materializer: materializer,
		notifier:     notifier,
		guard:        guard,
		tracer:       tracer,
		cfg:          cfg,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Start 发起一次支付尝试并同步驱动到终态。
//
// 校验失败时不发起任何网关调用。同一关联ID已有在途尝试时直接拒绝。
// 返回的错误只覆盖需要调用方特殊处置的情况（校验、冲突、模糊结局、
// 落单失败）；网关确认的业务性终态通过返回的快照表达。
func (o *Orchestrator) Start(ctx context.Context, req *StartPaymentRequest) (*AttemptView, error) {
	ctx, span := o.tracer.Start(ctx, "payment.Start")
	defer span.End()

	// 1. 先归一化和校验，失败则零网关调用直接返回
	msisdn, err := domain.NormalizeMSISDN(req.PhoneNumber, o.cfg.DefaultCountryCode)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = o.allocator.NewCorrelationID()
	}
	span.SetAttributes(attribute.String("payment.correlation_id", correlationID))

	attempt, err := domain.NewAttempt(correlationID, req.UserID, msisdn, req.Amount, req.Draft)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 2. 在途守卫：同一关联ID同时只允许一次尝试，拒绝而不是排队
	acquired, err := o.guard.Acquire(ctx, correlationID, o.cfg.InflightTTL)
	if err != nil {
		return nil, domain.WrapE(domain.KindNetwork, err, "inflight guard unavailable")
	}
	if !acquired {
		return nil, domain.ErrAttemptInFlight
	}
	defer func() {
		if releaseErr := o.guard.Release(context.WithoutCancel(ctx), correlationID); releaseErr != nil {
			logger.Ctx(ctx).Warn().Err(releaseErr).Str("correlation_id", correlationID).Msg("failed to release inflight guard")
		}
	}()

	// 3. 显式传入ID时检查历史：在途的拒绝，未对账的模糊终态必须先对账
	if req.CorrelationID != "" {
		if existing, findErr := o.repo.FindByCorrelationID(ctx, correlationID); findErr == nil {
			if existing.State.InFlight() {
				return nil, domain.ErrAttemptInFlight
			}
			if existing.State.Terminal() {
				if existing.Ambiguous && !existing.Reconciled {
					return nil, domain.ErrReconcileRequired
				}
				return nil, domain.E(domain.KindConflict, "correlation id %s already reached %s; retry must use a fresh id", correlationID, existing.State)
			}
		}
	}

	return o.run(ctx, attempt)
}

// Retry 为一次已确认非成功的尝试分配全新的关联ID并重新发起。
// 结局不明（Ambiguous 且未对账）的尝试拒绝重试——原关联ID在网关侧
// 仍可能变成成功，此时重试就是二次扣款。
func (o *Orchestrator) Retry(ctx context.Context, correlationID string) (*AttemptView, error) {
	ctx, span := o.tracer.Start(ctx, "payment.Retry")
	defer span.End()

	prev, err := o.repo.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if prev.State.InFlight() {
		return nil, domain.ErrAttemptInFlight
	}
	if !prev.CanRetryWithNewID() {
		if prev.State == domain.StateCompleted {
			return nil, domain.E(domain.KindConflict, "payment %s already completed, nothing to retry", correlationID)
		}
		return nil, domain.ErrReconcileRequired
	}

	req := &StartPaymentRequest{
		UserID:      prev.UserID,
		PhoneNumber: prev.Msisdn.String(),
		Amount:      prev.Amount,
		Draft:       prev.Draft,
	}
	return o.Start(ctx, req)
}

// Cancel 取消一次在途尝试。
// 只停掉客户端自己的等待循环；网关侧的扣款可能仍会完成，
// 因此取消后固定投递一个对账任务。
func (o *Orchestrator) Cancel(ctx context.Context, correlationID string) (*AttemptView, error) {
	ctx, span := o.tracer.Start(ctx, "payment.Cancel")
	defer span.End()

	// 本进程内有轮询在跑：取消它的 context，由轮询循环完成状态落盘
	o.cancelMu.Lock()
	cancel, ok := o.cancels[correlationID]
	o.cancelMu.Unlock()
	if ok {
		cancel()
		// 给轮询循环一点时间落盘，随后返回最新快照
		time.Sleep(50 * time.Millisecond)
		return o.Status(ctx, correlationID)
	}

	// 别的实例（或已崩溃的实例）持有这次尝试：直接在存储上标记取消
	attempt, err := o.repo.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if attempt.State.Terminal() {
		return newAttemptView(attempt, nil), nil
	}
	if err := attempt.CancelLocal(); err != nil {
		return nil, err
	}
	if err := o.repo.Save(ctx, attempt); err != nil {
		return nil, domain.WrapE(domain.KindNetwork, err, "failed to persist cancellation")
	}
	o.publish(ctx, attempt, "cancelled locally; provider-side charge may still complete")
	o.enqueueReconcile(ctx, correlationID, "user cancelled during in-flight attempt")
	return newAttemptView(attempt, nil), nil
}

// Reset 把一个终态尝试复位回 IDLE。
// 未对账的模糊终态不允许复位，持久化的关联ID不能在对账确认之前被丢弃。
func (o *Orchestrator) Reset(ctx context.Context, correlationID string) (*AttemptView, error) {
	attempt, err := o.repo.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if err := attempt.Reset(); err != nil {
		return nil, err
	}
	if err := o.repo.Save(ctx, attempt); err != nil {
		return nil, domain.WrapE(domain.KindNetwork, err, "failed to persist reset")
	}
	return newAttemptView(attempt, nil), nil
}

// Status 返回一次尝试的当前快照。
func (o *Orchestrator) Status(ctx context.Context, correlationID string) (*AttemptView, error) {
	attempt, err := o.repo.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	return newAttemptView(attempt, nil), nil
}

// run 驱动已通过校验的尝试：发起、轮询、落单。
func (o *Orchestrator) run(ctx context.Context, attempt *domain.PaymentAttempt) (*AttemptView, error) {
	correlationID := attempt.CorrelationID

	if err := attempt.BeginCreating(); err != nil {
		return nil, err
	}
	if err := o.repo.Save(ctx, attempt); err != nil {
		return nil, domain.WrapE(domain.KindNetwork, err, "failed to persist new attempt")
	}
	o.publish(ctx, attempt, "initiating mobile money push")

	pending, err := o.gateway.Initiate(ctx, port.InitiateRequest{
		CorrelationID: correlationID,
		Msisdn:        attempt.Msisdn,
		Amount:        attempt.Amount,
	})
	if err != nil {
		return o.failInitiate(ctx, attempt, err)
	}

	if err := attempt.MarkPushSent(pending.ProviderRef); err != nil {
		return nil, err
	}
	o.saveBestEffort(ctx, attempt)
	o.publish(ctx, attempt, "confirmation push sent to payer device")

	if err := attempt.BeginPolling(); err != nil {
		return nil, err
	}
	o.saveBestEffort(ctx, attempt)
	o.publish(ctx, attempt, "waiting for payer confirmation")

	return o.poll(ctx, attempt)
}

// failInitiate 对发起阶段的错误分类落盘。
// 校验/业务拒绝是确定的失败；网络/模糊错误意味着请求可能已经到达
// 网关，记为模糊失败并投递对账任务，绝不盲目重试。
func (o *Orchestrator) failInitiate(ctx context.Context, attempt *domain.PaymentAttempt, cause error) (*AttemptView, error) {
	kind := domain.KindOf(cause)
	switch kind {
	case domain.KindValidation, domain.KindBusinessRejection:
		if err := attempt.FailProvider(cause.Error()); err != nil {
			return nil, err
		}
		o.saveBestEffort(ctx, attempt)
		o.publish(ctx, attempt, "payment rejected by provider")
		return newAttemptView(attempt, nil), cause
	default:
		if err := attempt.FailAmbiguous(cause.Error()); err != nil {
			return nil, err
		}
		o.saveBestEffort(ctx, attempt)
		o.publish(ctx, attempt, "initiate outcome unknown; reconciliation required")
		o.enqueueReconcile(ctx, attempt.CorrelationID, "initiate request outcome unknown")
		return newAttemptView(attempt, nil), domain.WrapE(domain.KindAmbiguous, cause, "initiate dispatched but outcome unknown")
	}
}

// poll 是有界等待：指数退避轮询网关状态，直到终态或硬上限。
// 上限到达时转入模糊失败（可对账），而不是挂起或误报取消。
func (o *Orchestrator) poll(ctx context.Context, attempt *domain.PaymentAttempt) (*AttemptView, error) {
	correlationID := attempt.CorrelationID

	pollCtx, cancel := context.WithTimeout(ctx, o.cfg.PollCeiling)
	defer cancel()
	o.registerCancel(correlationID, cancel)
	defer o.unregisterCancel(correlationID)

	interval := o.cfg.PollInterval
	for {
		select {
		case <-pollCtx.Done():
			if stderrors.Is(ctx.Err(), context.Canceled) || stderrors.Is(pollCtx.Err(), context.Canceled) {
				// 用户主动取消：只停本地等待，网关侧扣款可能仍会完成
				if err := attempt.CancelLocal(); err != nil {
					return nil, err
				}
				o.saveBestEffort(ctx, attempt)
				o.publish(ctx, attempt, "cancelled locally; provider-side charge may still complete")
				o.enqueueReconcile(ctx, correlationID, "user cancelled while polling")
				return newAttemptView(attempt, nil), nil
			}
			// 轮询天花板：客户端视角的失败，但结局未知
			if err := attempt.FailAmbiguous("client-side polling timeout"); err != nil {
				return nil, err
			}
			o.saveBestEffort(ctx, attempt)
			o.publish(ctx, attempt, "no terminal status within polling window")
			o.enqueueReconcile(ctx, correlationID, "polling timed out without terminal status")
			return newAttemptView(attempt, nil), domain.E(domain.KindAmbiguous, "no terminal status within %s; reconcile before retrying", o.cfg.PollCeiling)

		case <-time.After(interval):
			status, err := o.gateway.Status(pollCtx, correlationID)
			if err != nil {
				// 瞬时网络错误只影响查询，容忍并继续，直到天花板
				logger.Ctx(ctx).Warn().Err(err).Str("correlation_id", correlationID).Msg("status poll failed, will retry")
				interval = o.nextInterval(interval)
				continue
			}
			terminal, err := attempt.ApplyProviderStatus(status)
			if err != nil {
				return nil, err
			}
			if !terminal {
				interval = o.nextInterval(interval)
				continue
			}

			o.saveBestEffort(ctx, attempt)
			if attempt.State == domain.StateCompleted {
				return o.materialize(ctx, attempt)
			}
			o.publish(ctx, attempt, "provider reported terminal status "+string(status))
			return newAttemptView(attempt, nil), nil
		}
	}
}

// materialize 是进入 COMPLETED 的效果，不是独立状态。
// 落单失败时支付保持成功，绝不重新扣款：上报独立的落单错误并
// 投递对账任务，由对账路径幂等地补齐订单。
func (o *Orchestrator) materialize(ctx context.Context, attempt *domain.PaymentAttempt) (*AttemptView, error) {
	ctx, span := o.tracer.Start(ctx, "payment.Materialize")
	defer span.End()

	order, err := o.materializer.CreateOrGet(ctx, attempt.CorrelationID, attempt.Draft)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialization failed after completed payment")
		o.publish(ctx, attempt, "payment succeeded, order pending")
		o.enqueueReconcile(ctx, attempt.CorrelationID, "materialization failed after completed payment")
		return newAttemptView(attempt, nil), domain.WrapE(domain.KindMaterialization, err, "payment succeeded but order creation failed")
	}

	o.publish(ctx, attempt, "payment completed, order placed")
	return newAttemptView(attempt, order), nil
}

func (o *Orchestrator) nextInterval(cur time.Duration) time.Duration {
	next := cur * 2
	if next > o.cfg.PollMaxInterval {
		return o.cfg.PollMaxInterval
	}
	return next
}

func (o *Orchestrator) registerCancel(correlationID string, cancel context.CancelFunc) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	o.cancels[correlationID] = cancel
}

func (o *Orchestrator) unregisterCancel(correlationID string) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	delete(o.cancels, correlationID)
}

// saveBestEffort 持久化失败不打断主流程，网关侧状态才是事实来源。
func (o *Orchestrator) saveBestEffort(ctx context.Context, attempt *domain.PaymentAttempt) {
	if err := o.repo.Save(ctx, attempt); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("correlation_id", attempt.CorrelationID).Msg("failed to persist attempt state")
	}
}

func (o *Orchestrator) publish(ctx context.Context, attempt *domain.PaymentAttempt, message string) {
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
	if err := o.notifier.PublishLifecycle(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("correlation_id", attempt.CorrelationID).Msg("failed to publish lifecycle event")
	}
}

func (o *Orchestrator) enqueueReconcile(ctx context.Context, correlationID, reason string) {
	job := domain.ReconcileJob{
		CorrelationID: correlationID,
		Reason:        reason,
		EnqueuedAt:    time.Now(),
	}
	if err := o.notifier.EnqueueReconcile(ctx, job); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("correlation_id", correlationID).Msg("failed to enqueue reconcile job")
	}
}

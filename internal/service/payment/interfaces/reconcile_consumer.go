package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"washa/internal/pkg/logger"
	"washa/internal/pkg/mq"
	"washa/internal/pkg/zookeeper"
	"washa/internal/service/payment/application"
	"washa/internal/service/payment/domain"
	"washa/internal/service/payment/domain/port"
	"washa/internal/service/payment/infrastructure"
)

// ReconcileConsumerAdapter 是一个驱动适配器，它消费对账任务并驱动对账服务。
//
// 消费一条任务的流程：
//  1. 取出尝试，构造事实交给 CEL 准入策略；被拒的直接转人工审核。
//  2. 用 ZooKeeper 非阻塞锁抢占该关联ID，抢不到说明别的节点正在处理，跳过。
//  3. 调用对账服务解决该尝试；网关仍给不出定论的，转人工审核。
type ReconcileConsumerAdapter struct {
	reader     *kafka.Reader
	reconciler *application.Reconciler
	repo       domain.AttemptRepository
	policy     port.ReconcilePolicy
	notifier   port.EventNotifier
	zkConn     *zookeeper.Conn
	wg         sync.WaitGroup
	stopped    bool
}

// NewReconcileConsumerAdapter 创建一个新的对账任务消费者适配器。
func NewReconcileConsumerAdapter(
	reader *kafka.Reader,
	reconciler *application.Reconciler,
	repo domain.AttemptRepository,
	policy port.ReconcilePolicy,
	notifier port.EventNotifier,
	zkConn *zookeeper.Conn,
) *ReconcileConsumerAdapter {
	return &ReconcileConsumerAdapter{
		reader:     reader,
		reconciler: reconciler,
		repo:       repo,
		policy:     policy,
		notifier:   notifier,
		zkConn:     zkConn,
	}
}

// Start 开始消费对账任务主题。这是一个长期运行的方法。
func (a *ReconcileConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Logger.Info().Str("topic", a.reader.Config().Topic).Msg("✅ reconcile consumer started")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Logger.Info().Msg("🛑 reconcile consumer shutting down")
					return
				}
				logger.Logger.Error().Err(err).Msg("could not fetch reconcile job, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to commit reconcile job offset")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *ReconcileConsumerAdapter) Stop() {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Logger.Info().Msg("✅ reconcile consumer stopped")
}

func (a *ReconcileConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	var job domain.ReconcileJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		logger.Logger.Error().Err(err).Msg("failed to unmarshal reconcile job, skipping")
		return
	}

	ctx := mq.ExtractTraceContext(parentCtx, msg)
	log := logger.Ctx(ctx).With().Str("correlation_id", job.CorrelationID).Logger()

	attempt, err := a.repo.FindByCorrelationID(ctx, job.CorrelationID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			log.Warn().Msg("reconcile job references unknown attempt, skipping")
			return
		}
		log.Error().Err(err).Msg("failed to load attempt for reconcile job")
		return
	}
	if attempt.Reconciled || (attempt.State.Terminal() && !attempt.Ambiguous) {
		infrastructure.ReconciliationsTotal.WithLabelValues("already_resolved").Inc()
		return
	}

	amount, _ := attempt.Amount.Float64()
	allowed, err := a.policy.AllowAutoResolve(ctx, port.ReconcileFact{
		CorrelationID: attempt.CorrelationID,
		Amount:        amount,
		AgeSeconds:    int64(time.Since(attempt.CreatedAt).Seconds()),
		State:         string(attempt.State),
	})
	if err != nil {
		log.Error().Err(err).Msg("reconcile policy evaluation failed, deferring to manual review")
		allowed = false
	}
	if !allowed {
		infrastructure.ReconciliationsTotal.WithLabelValues("manual_review").Inc()
		a.publishManualReview(ctx, job.CorrelationID, "rejected by reconcile policy: "+job.Reason)
		return
	}

	// 同一关联ID只允许一个工作节点处理；锁是削峰手段，
	// 正确性由对账本身的幂等性保证。
	lock, err := a.zkConn.TryLock(job.CorrelationID)
	if err != nil {
		if errors.Is(err, zookeeper.ErrLockHeld) {
			log.Debug().Msg("reconcile lock held elsewhere, skipping")
			return
		}
		log.Error().Err(err).Msg("failed to acquire reconcile lock")
		return
	}
	defer lock.Unlock()

	result, err := a.reconciler.Resolve(ctx, job.CorrelationID, nil)
	if err != nil {
		infrastructure.ReconciliationsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("reconcile attempt failed")
		return
	}

	switch {
	case result.RequiresManualIntervention:
		infrastructure.ReconciliationsTotal.WithLabelValues("manual_review").Inc()
		a.publishManualReview(ctx, job.CorrelationID, "gateway could not give a definitive status")
	case result.Resolved:
		infrastructure.ReconciliationsTotal.WithLabelValues("resolved").Inc()
		log.Info().Str("final_status", string(result.FinalStatus)).Msg("attempt reconciled")
	default:
		// 仍在 pending，留给下一轮扫描
		infrastructure.ReconciliationsTotal.WithLabelValues("pending").Inc()
	}
}

func (a *ReconcileConsumerAdapter) publishManualReview(ctx context.Context, correlationID, reason string) {
	event := domain.ManualReviewEvent{
		CorrelationID: correlationID,
		Reason:        reason,
		At:            time.Now(),
	}
	if err := a.notifier.PublishManualReview(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("correlation_id", correlationID).Msg("failed to publish manual review event")
	}
}

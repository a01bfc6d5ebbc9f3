package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"washa/internal/service/payment/domain"
	"washa/internal/service/payment/domain/port"
)

type orchestratorFixture struct {
	repo         *fakeRepo
	gateway      *fakeGateway
	allocator    *fakeAllocator
	materializer *fakeMaterializer
	notifier     *fakeNotifier
	guard        *fakeGuard
	orchestrator *Orchestrator
}

func newOrchestratorFixture(ids ...string) *orchestratorFixture {
	if len(ids) == 0 {
		ids = []string{"corr-1", "corr-2"}
	}
	f := &orchestratorFixture{
		repo:         newFakeRepo(),
		gateway:      &fakeGateway{},
		allocator:    &fakeAllocator{ids: ids},
		materializer: newFakeMaterializer(),
		notifier:     &fakeNotifier{},
		guard:        newFakeGuard(),
	}
	f.orchestrator = NewOrchestrator(
		f.repo, f.gateway, f.allocator, f.materializer, f.notifier, f.guard,
		otel.Tracer("test"),
		Config{
			DefaultCountryCode: "256",
			PollInterval:       time.Millisecond,
			PollMaxInterval:    5 * time.Millisecond,
			PollCeiling:        200 * time.Millisecond,
			InflightTTL:        time.Minute,
		},
	)
	return f
}

func startRequest() *StartPaymentRequest {
	return &StartPaymentRequest{
		UserID:      "user-1",
		PhoneNumber: "0755123456",
		Amount:      decimal.NewFromInt(15000),
		Draft: domain.OrderDraft{
			UserID:        "user-1",
			PickupAddress: "Plot 4, Kampala Road",
			Items: []domain.DraftItem{
				{Garment: "shirt", Service: "wash", Quantity: 3, Price: decimal.NewFromInt(5000)},
			},
		},
	}
}

func TestStart_CompletesAndMaterializesOrder(t *testing.T) {
	f := newOrchestratorFixture("corr-1")

	view, err := f.orchestrator.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, "corr-1", view.CorrelationID)
	require.Equal(t, domain.StateCompleted, view.State)
	require.NotNil(t, view.Order)
	require.Equal(t, "corr-1", view.Order.ID)
	require.Equal(t, 1, f.materializer.orderCount())
	require.Equal(t, 1, f.gateway.initiateCalls)

	saved := f.repo.get("corr-1")
	require.Equal(t, domain.StateCompleted, saved.State)
	require.Equal(t, domain.MSISDN("+256755123456"), saved.Msisdn)
}

func TestStart_InvalidPhoneMakesZeroGatewayCalls(t *testing.T) {
	f := newOrchestratorFixture()

	req := startRequest()
	req.PhoneNumber = "12345"
	_, err := f.orchestrator.Start(context.Background(), req)

	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindValidation))
	require.Zero(t, f.gateway.initiateCalls)
	require.Zero(t, f.gateway.statusCalls)
}

func TestStart_NonPositiveAmountRejected(t *testing.T) {
	f := newOrchestratorFixture()

	req := startRequest()
	req.Amount = decimal.Zero
	_, err := f.orchestrator.Start(context.Background(), req)

	require.True(t, domain.IsKind(err, domain.KindValidation))
	require.Zero(t, f.gateway.initiateCalls)
}

func TestStart_InflightGuardRejectsConcurrentAttempt(t *testing.T) {
	f := newOrchestratorFixture("corr-1")
	f.guard.deny = true

	_, err := f.orchestrator.Start(context.Background(), startRequest())
	require.ErrorIs(t, err, domain.ErrAttemptInFlight)
	require.Zero(t, f.gateway.initiateCalls)
}

func TestStart_BusinessRejectionIsDefinitiveFailure(t *testing.T) {
	f := newOrchestratorFixture("corr-1")
	f.gateway.initiateFn = func(port.InitiateRequest) (*port.PendingPayment, error) {
		return nil, domain.E(domain.KindBusinessRejection, "insufficient funds")
	}

	view, err := f.orchestrator.Start(context.Background(), startRequest())
	require.True(t, domain.IsKind(err, domain.KindBusinessRejection))
	require.Equal(t, domain.StateFailed, view.State)
	require.False(t, view.Ambiguous)
	require.Equal(t, "retry", view.NextAction)
	// 确定的失败不需要对账
	require.Zero(t, f.notifier.reconcileJobCount())
}

func TestStart_TransportErrorOnInitiateIsAmbiguous(t *testing.T) {
	f := newOrchestratorFixture("corr-1")
	f.gateway.initiateFn = func(port.InitiateRequest) (*port.PendingPayment, error) {
		return nil, domain.E(domain.KindAmbiguous, "connection reset mid-request")
	}

	view, err := f.orchestrator.Start(context.Background(), startRequest())
	require.True(t, domain.IsKind(err, domain.KindAmbiguous))
	require.Equal(t, domain.StateFailed, view.State)
	require.True(t, view.Ambiguous)
	require.Equal(t, "reconcile", view.NextAction)
	require.Equal(t, 1, f.notifier.reconcileJobCount())
}

func TestStart_PollTimeoutBecomesAmbiguousFailure(t *testing.T) {
	f := newOrchestratorFixture("corr-1")
	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		return domain.ProviderPending, nil
	}

	view, err := f.orchestrator.Start(context.Background(), startRequest())
	require.True(t, domain.IsKind(err, domain.KindAmbiguous))
	require.Equal(t, domain.StateFailed, view.State)
	require.True(t, view.Ambiguous)
	require.Equal(t, "reconcile", view.NextAction)
	require.Equal(t, 1, f.notifier.reconcileJobCount())
	require.Zero(t, f.materializer.orderCount())
}

func TestStart_TransientStatusErrorsAreTolerated(t *testing.T) {
	f := newOrchestratorFixture("corr-1")
	calls := 0
	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		calls++
		if calls < 3 {
			return "", domain.E(domain.KindNetwork, "gateway hiccup")
		}
		return domain.ProviderCompleted, nil
	}

	view, err := f.orchestrator.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, view.State)
}

func TestStart_ProviderFailureDuringPolling(t *testing.T) {
	f := newOrchestratorFixture("corr-1")
	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		return domain.ProviderFailed, nil
	}

	view, err := f.orchestrator.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, view.State)
	require.False(t, view.Ambiguous)
	require.Equal(t, "retry", view.NextAction)
	require.Zero(t, f.materializer.orderCount())
}

func TestStart_MaterializationFailureKeepsPaymentCompleted(t *testing.T) {
	f := newOrchestratorFixture("corr-1")
	f.materializer.err = domain.E(domain.KindNetwork, "order store down")

	view, err := f.orchestrator.Start(context.Background(), startRequest())
	require.True(t, domain.IsKind(err, domain.KindMaterialization))
	require.Equal(t, domain.StateCompleted, view.State)
	require.Nil(t, view.Order)
	// 支付保持成功，绝不重新扣款
	require.Equal(t, 1, f.gateway.initiateCalls)
	require.Equal(t, 1, f.notifier.reconcileJobCount())
}

func TestStart_ExplicitIDWithUnreconciledAmbiguousHistoryIsBlocked(t *testing.T) {
	f := newOrchestratorFixture()
	prev := mustAttempt(t, "corr-old")
	require.NoError(t, prev.BeginCreating())
	require.NoError(t, prev.FailAmbiguous("timeout"))
	f.repo.put(prev)

	req := startRequest()
	req.CorrelationID = "corr-old"
	_, err := f.orchestrator.Start(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrReconcileRequired)
	require.Zero(t, f.gateway.initiateCalls)
}

func TestRetry_RequiresDefinitiveOutcome(t *testing.T) {
	f := newOrchestratorFixture("corr-new")
	prev := mustAttempt(t, "corr-old")
	require.NoError(t, prev.BeginCreating())
	require.NoError(t, prev.FailAmbiguous("timeout"))
	f.repo.put(prev)

	_, err := f.orchestrator.Retry(context.Background(), "corr-old")
	require.ErrorIs(t, err, domain.ErrReconcileRequired)
	require.Zero(t, f.gateway.initiateCalls)
}

func TestRetry_UsesFreshCorrelationID(t *testing.T) {
	f := newOrchestratorFixture("corr-new")
	prev := mustAttempt(t, "corr-old")
	require.NoError(t, prev.BeginCreating())
	require.NoError(t, prev.FailProvider("insufficient funds"))
	f.repo.put(prev)

	view, err := f.orchestrator.Retry(context.Background(), "corr-old")
	require.NoError(t, err)
	require.Equal(t, "corr-new", view.CorrelationID)
	require.Equal(t, domain.StateCompleted, view.State)
	require.NotNil(t, view.Order)
	require.Equal(t, "corr-new", view.Order.ID)
}

func TestRetry_CompletedPaymentIsConflict(t *testing.T) {
	f := newOrchestratorFixture()
	prev := mustAttempt(t, "corr-done")
	require.NoError(t, prev.BeginCreating())
	require.NoError(t, prev.MarkPushSent("MM-1"))
	require.NoError(t, prev.BeginPolling())
	_, err := prev.ApplyProviderStatus(domain.ProviderCompleted)
	require.NoError(t, err)
	f.repo.put(prev)

	_, err = f.orchestrator.Retry(context.Background(), "corr-done")
	require.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestCancel_PersistedAttemptWithoutLocalPoller(t *testing.T) {
	f := newOrchestratorFixture()
	attempt := mustAttempt(t, "corr-1")
	require.NoError(t, attempt.BeginCreating())
	require.NoError(t, attempt.MarkPushSent("MM-1"))
	require.NoError(t, attempt.BeginPolling())
	f.repo.put(attempt)

	view, err := f.orchestrator.Cancel(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateCancelled, view.State)
	require.True(t, view.Ambiguous)
	// 网关侧扣款可能仍会完成，取消后必须对账
	require.Equal(t, 1, f.notifier.reconcileJobCount())
}

func TestCancel_TerminalAttemptIsNoop(t *testing.T) {
	f := newOrchestratorFixture()
	attempt := mustAttempt(t, "corr-1")
	require.NoError(t, attempt.BeginCreating())
	require.NoError(t, attempt.FailProvider("rejected"))
	f.repo.put(attempt)

	view, err := f.orchestrator.Cancel(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, view.State)
	require.Zero(t, f.notifier.reconcileJobCount())
}

func TestStatus_UnknownAttempt(t *testing.T) {
	f := newOrchestratorFixture()
	_, err := f.orchestrator.Status(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func mustAttempt(t *testing.T, correlationID string) *domain.PaymentAttempt {
	t.Helper()
	attempt, err := domain.NewAttempt(correlationID, "user-1", "+256755123456", decimal.NewFromInt(15000), domain.OrderDraft{
		UserID:        "user-1",
		PickupAddress: "Plot 4, Kampala Road",
		Items:         []domain.DraftItem{{Garment: "shirt", Service: "wash", Quantity: 3, Price: decimal.NewFromInt(5000)}},
	})
	require.NoError(t, err)
	return attempt
}

package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"washa/internal/service/payment/domain"
)

type reconcilerFixture struct {
	repo         *fakeRepo
	gateway      *fakeGateway
	materializer *fakeMaterializer
	notifier     *fakeNotifier
	reconciler   *Reconciler
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		repo:         newFakeRepo(),
		gateway:      &fakeGateway{},
		materializer: newFakeMaterializer(),
		notifier:     &fakeNotifier{},
	}
	f.reconciler = NewReconciler(f.repo, f.gateway, f.materializer, f.notifier, otel.Tracer("test"))
	return f
}

func (f *reconcilerFixture) seedAmbiguousFailure(t *testing.T, correlationID string) {
	t.Helper()
	attempt := mustAttempt(t, correlationID)
	require.NoError(t, attempt.BeginCreating())
	require.NoError(t, attempt.MarkPushSent("MM-1"))
	require.NoError(t, attempt.BeginPolling())
	require.NoError(t, attempt.FailAmbiguous("client-side polling timeout"))
	f.repo.put(attempt)
}

func TestResolve_CompletedProducesExactlyOneOrder(t *testing.T) {
	f := newReconcilerFixture()
	f.seedAmbiguousFailure(t, "corr-1")
	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		return domain.ProviderCompleted, nil
	}

	// 对账可以被任意多次调用，订单只会落一单
	for i := 0; i < 3; i++ {
		result, err := f.reconciler.Resolve(context.Background(), "corr-1", nil)
		require.NoError(t, err)
		require.True(t, result.Resolved)
		require.Equal(t, domain.ProviderCompleted, result.FinalStatus)
		require.False(t, result.RequiresManualIntervention)
		require.NotNil(t, result.Order)
		require.Equal(t, "corr-1", result.Order.ID)
	}
	require.Equal(t, 1, f.materializer.orderCount())

	saved := f.repo.get("corr-1")
	require.Equal(t, domain.StateCompleted, saved.State)
	require.True(t, saved.Reconciled)
	require.False(t, saved.Ambiguous)
}

func TestResolve_ConfirmedNonSuccessAllowsFreshRetry(t *testing.T) {
	f := newReconcilerFixture()
	f.seedAmbiguousFailure(t, "corr-1")
	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		return domain.ProviderCancelled, nil
	}

	result, err := f.reconciler.Resolve(context.Background(), "corr-1", nil)
	require.NoError(t, err)
	require.True(t, result.Resolved)
	require.Equal(t, domain.ProviderCancelled, result.FinalStatus)
	require.Nil(t, result.Order)
	require.Zero(t, f.materializer.orderCount())

	saved := f.repo.get("corr-1")
	require.True(t, saved.CanRetryWithNewID())
}

func TestResolve_StatusQueryFailureRequiresManualIntervention(t *testing.T) {
	f := newReconcilerFixture()
	f.seedAmbiguousFailure(t, "corr-1")
	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		return "", domain.E(domain.KindNetwork, "gateway unreachable")
	}

	result, err := f.reconciler.Resolve(context.Background(), "corr-1", nil)
	require.NoError(t, err)
	require.False(t, result.Resolved)
	require.True(t, result.RequiresManualIntervention)

	// 分歧未解决：仍然不允许换新ID重试
	saved := f.repo.get("corr-1")
	require.False(t, saved.CanRetryWithNewID())
}

func TestResolve_ProviderStillPending(t *testing.T) {
	f := newReconcilerFixture()
	f.seedAmbiguousFailure(t, "corr-1")
	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		return domain.ProviderPending, nil
	}

	result, err := f.reconciler.Resolve(context.Background(), "corr-1", nil)
	require.NoError(t, err)
	require.False(t, result.Resolved)
	require.Equal(t, domain.ProviderPending, result.FinalStatus)
	require.False(t, result.RequiresManualIntervention)
}

func TestResolve_RecoversCrashedInFlightAttempt(t *testing.T) {
	// 进程死在轮询途中：尝试停留在 POLLING，对账直接改写为网关终态
	f := newReconcilerFixture()
	attempt := mustAttempt(t, "corr-1")
	require.NoError(t, attempt.BeginCreating())
	require.NoError(t, attempt.MarkPushSent("MM-1"))
	require.NoError(t, attempt.BeginPolling())
	f.repo.put(attempt)

	f.gateway.statusFn = func(string) (domain.ProviderStatus, error) {
		return domain.ProviderCompleted, nil
	}

	result, err := f.reconciler.Resolve(context.Background(), "corr-1", nil)
	require.NoError(t, err)
	require.True(t, result.Resolved)
	require.NotNil(t, result.Order)
	require.Equal(t, 1, f.materializer.orderCount())
}

func TestResolve_ExplicitDraftWinsOverPersistedDraft(t *testing.T) {
	f := newReconcilerFixture()
	f.seedAmbiguousFailure(t, "corr-1")

	draft := domain.OrderDraft{
		UserID:        "user-1",
		PickupAddress: "Plot 9, Entebbe Road",
		Items:         mustAttempt(t, "x").Draft.Items,
	}
	result, err := f.reconciler.Resolve(context.Background(), "corr-1", &draft)
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	require.Equal(t, "user-1", result.Order.UserID)
}

func TestResolve_MaterializationFailureKeepsResolvedState(t *testing.T) {
	f := newReconcilerFixture()
	f.seedAmbiguousFailure(t, "corr-1")
	f.materializer.err = domain.E(domain.KindNetwork, "order store down")

	_, err := f.reconciler.Resolve(context.Background(), "corr-1", nil)
	require.True(t, domain.IsKind(err, domain.KindMaterialization))

	// 支付维持已对账的 completed，下一轮任务重试落单即可
	saved := f.repo.get("corr-1")
	require.Equal(t, domain.StateCompleted, saved.State)
	require.True(t, saved.Reconciled)
}

func TestResolve_UnknownAttempt(t *testing.T) {
	f := newReconcilerFixture()
	_, err := f.reconciler.Resolve(context.Background(), "missing", nil)
	require.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestRecoverStale_EnqueuesJobs(t *testing.T) {
	f := newReconcilerFixture()
	f.seedAmbiguousFailure(t, "corr-1")
	f.seedAmbiguousFailure(t, "corr-2")

	count, err := f.reconciler.RecoverStale(context.Background(), -time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 2, f.notifier.reconcileJobCount())
}

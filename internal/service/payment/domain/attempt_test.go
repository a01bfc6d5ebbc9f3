package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestAttempt(t *testing.T) *PaymentAttempt {
	t.Helper()
	attempt, err := NewAttempt("corr-1", "user-1", "+256755123456", decimal.NewFromInt(15000), OrderDraft{
		UserID:        "user-1",
		PickupAddress: "Plot 4, Kampala Road",
		Items:         []DraftItem{{Garment: "shirt", Service: "wash", Quantity: 3, Price: decimal.NewFromInt(5000)}},
	})
	require.NoError(t, err)
	return attempt
}

func TestNewAttempt_Validation(t *testing.T) {
	_, err := NewAttempt("", "user-1", "+256755123456", decimal.NewFromInt(100), OrderDraft{})
	require.True(t, IsKind(err, KindValidation))

	_, err = NewAttempt("corr-1", "user-1", "", decimal.NewFromInt(100), OrderDraft{})
	require.True(t, IsKind(err, KindValidation))

	_, err = NewAttempt("corr-1", "user-1", "+256755123456", decimal.Zero, OrderDraft{})
	require.True(t, IsKind(err, KindValidation))

	_, err = NewAttempt("corr-1", "user-1", "+256755123456", decimal.NewFromInt(-5), OrderDraft{})
	require.True(t, IsKind(err, KindValidation))
}

func TestAttempt_HappyPathToCompleted(t *testing.T) {
	a := newTestAttempt(t)
	require.Equal(t, StateIdle, a.State)

	require.NoError(t, a.BeginCreating())
	require.NoError(t, a.MarkPushSent("MM-998877"))
	require.Equal(t, "MM-998877", a.ProviderRef)
	require.NoError(t, a.BeginPolling())

	terminal, err := a.ApplyProviderStatus(ProviderPending)
	require.NoError(t, err)
	require.False(t, terminal)

	terminal, err = a.ApplyProviderStatus(ProviderCompleted)
	require.NoError(t, err)
	require.True(t, terminal)
	require.Equal(t, StateCompleted, a.State)
	require.False(t, a.Ambiguous)
	require.False(t, a.CanRetryWithNewID())
}

func TestAttempt_InvalidTransitions(t *testing.T) {
	a := newTestAttempt(t)

	require.Error(t, a.MarkPushSent("ref"))
	require.Error(t, a.BeginPolling())
	_, err := a.ApplyProviderStatus(ProviderCompleted)
	require.Error(t, err)

	require.NoError(t, a.BeginCreating())
	require.Error(t, a.BeginCreating())
}

func TestAttempt_FailProviderIsDefinitive(t *testing.T) {
	a := newTestAttempt(t)
	require.NoError(t, a.BeginCreating())
	require.NoError(t, a.FailProvider("insufficient funds"))

	require.Equal(t, StateFailed, a.State)
	require.False(t, a.Ambiguous)
	require.True(t, a.CanRetryWithNewID())
	require.NoError(t, a.Reset())
	require.Equal(t, StateIdle, a.State)
	require.Empty(t, a.ProviderRef)
	require.Empty(t, a.FailureReason)
}

func TestAttempt_AmbiguousOutcomeBlocksRetryAndReset(t *testing.T) {
	a := newTestAttempt(t)
	require.NoError(t, a.BeginCreating())
	require.NoError(t, a.MarkPushSent("MM-1"))
	require.NoError(t, a.BeginPolling())
	require.NoError(t, a.FailAmbiguous("client-side polling timeout"))

	require.Equal(t, StateFailed, a.State)
	require.True(t, a.Ambiguous)
	require.False(t, a.CanRetryWithNewID())
	require.ErrorIs(t, a.Reset(), ErrReconcileRequired)
}

func TestAttempt_CancelLocalIsAmbiguous(t *testing.T) {
	a := newTestAttempt(t)
	require.NoError(t, a.BeginCreating())
	require.NoError(t, a.MarkPushSent("MM-1"))
	require.NoError(t, a.BeginPolling())
	require.NoError(t, a.CancelLocal())

	require.Equal(t, StateCancelled, a.State)
	require.True(t, a.Ambiguous)
	require.False(t, a.CanRetryWithNewID())
}

func TestAttempt_ResolveFromProviderUnblocksRetry(t *testing.T) {
	a := newTestAttempt(t)
	require.NoError(t, a.BeginCreating())
	require.NoError(t, a.MarkPushSent("MM-1"))
	require.NoError(t, a.BeginPolling())
	require.NoError(t, a.FailAmbiguous("timeout"))

	require.NoError(t, a.ResolveFromProvider(ProviderFailed))
	require.Equal(t, StateFailed, a.State)
	require.False(t, a.Ambiguous)
	require.True(t, a.Reconciled)
	require.True(t, a.CanRetryWithNewID())
}

func TestAttempt_ResolveFromProviderOverridesInFlight(t *testing.T) {
	// 崩溃恢复：进程死在轮询途中，对账直接用网关终态改写在途状态
	a := newTestAttempt(t)
	require.NoError(t, a.BeginCreating())
	require.NoError(t, a.MarkPushSent("MM-1"))
	require.NoError(t, a.BeginPolling())

	require.NoError(t, a.ResolveFromProvider(ProviderCompleted))
	require.Equal(t, StateCompleted, a.State)
	require.True(t, a.Reconciled)
}

func TestAttempt_ResolveRejectsNonTerminalStatus(t *testing.T) {
	a := newTestAttempt(t)
	require.NoError(t, a.BeginCreating())
	require.Error(t, a.ResolveFromProvider(ProviderPending))
}

package infrastructure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"washa/internal/service/payment/domain/port"
)

func TestCELReconcilePolicy_DefaultExpression(t *testing.T) {
	policy, err := NewCELReconcilePolicy(`amount <= 1000000.0 && age_seconds < 172800`)
	require.NoError(t, err)

	allowed, err := policy.AllowAutoResolve(context.Background(), port.ReconcileFact{
		CorrelationID: "corr-1",
		Amount:        15000,
		AgeSeconds:    3600,
		State:         "FAILED",
	})
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = policy.AllowAutoResolve(context.Background(), port.ReconcileFact{
		CorrelationID: "corr-2",
		Amount:        5000000,
		AgeSeconds:    3600,
		State:         "FAILED",
	})
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = policy.AllowAutoResolve(context.Background(), port.ReconcileFact{
		CorrelationID: "corr-3",
		Amount:        15000,
		AgeSeconds:    200000,
		State:         "FAILED",
	})
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestCELReconcilePolicy_StateVariable(t *testing.T) {
	policy, err := NewCELReconcilePolicy(`state != "COMPLETED"`)
	require.NoError(t, err)

	allowed, err := policy.AllowAutoResolve(context.Background(), port.ReconcileFact{State: "FAILED"})
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = policy.AllowAutoResolve(context.Background(), port.ReconcileFact{State: "COMPLETED"})
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestCELReconcilePolicy_RejectsInvalidExpression(t *testing.T) {
	_, err := NewCELReconcilePolicy(`amount <=`)
	require.Error(t, err)
}

func TestCELReconcilePolicy_RejectsNonBoolExpression(t *testing.T) {
	_, err := NewCELReconcilePolicy(`amount + 1.0`)
	require.Error(t, err)
}

func TestCELReconcilePolicy_RejectsUnknownVariable(t *testing.T) {
	_, err := NewCELReconcilePolicy(`merchant_id == "x"`)
	require.Error(t, err)
}

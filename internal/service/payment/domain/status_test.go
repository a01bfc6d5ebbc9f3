package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProviderStatus_Aliases(t *testing.T) {
	cases := map[string]ProviderStatus{
		"pending":    ProviderPending,
		"PROCESSING": ProviderPending,
		"accepted":   ProviderPending,
		"completed":  ProviderCompleted,
		"SUCCESS":    ProviderCompleted,
		"successful": ProviderCompleted,
		"succeeded":  ProviderCompleted,
		"failed":     ProviderFailed,
		"failure":    ProviderFailed,
		"cancelled":  ProviderCancelled,
		"canceled":   ProviderCancelled,
		"expired":    ProviderExpired,
		"timeout":    ProviderExpired,
		" Completed ": ProviderCompleted,
	}
	for raw, want := range cases {
		got, err := ParseProviderStatus(raw)
		require.NoError(t, err, "raw=%q", raw)
		require.Equal(t, want, got, "raw=%q", raw)
	}
}

func TestParseProviderStatus_Unknown(t *testing.T) {
	_, err := ParseProviderStatus("exploded")
	require.Error(t, err)
}

func TestProviderStatus_ToState(t *testing.T) {
	require.Equal(t, StateCompleted, ProviderCompleted.ToState())
	require.Equal(t, StateCancelled, ProviderCancelled.ToState())
	require.Equal(t, StateExpired, ProviderExpired.ToState())
	require.Equal(t, StateFailed, ProviderFailed.ToState())
}

func TestProviderStatus_Terminal(t *testing.T) {
	require.False(t, ProviderPending.Terminal())
	require.True(t, ProviderCompleted.Terminal())
	require.True(t, ProviderFailed.Terminal())
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_ComputesAmountFromItems(t *testing.T) {
	order, err := NewOrder("corr-1", "user-1", "Plot 4", "Plot 9", "", []OrderItem{
		{Garment: "shirt", Service: "wash", Quantity: 3, Price: decimal.NewFromInt(4000)},
		{Garment: "suit", Service: "dry_clean", Quantity: 1, Price: decimal.NewFromInt(12000)},
	})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(24000).Equal(order.Amount))
	require.Equal(t, 4, order.ItemCount())
	require.Equal(t, StatusPendingPickup, order.Status)
}

func TestNewOrder_Validation(t *testing.T) {
	items := []OrderItem{{Garment: "shirt", Service: "wash", Quantity: 1, Price: decimal.NewFromInt(4000)}}

	_, err := NewOrder("", "user-1", "a", "b", "", items)
	require.Error(t, err)

	_, err = NewOrder("corr-1", "", "a", "b", "", items)
	require.Error(t, err)

	_, err = NewOrder("corr-1", "user-1", "a", "b", "", nil)
	require.Error(t, err)

	_, err = NewOrder("corr-1", "user-1", "a", "b", "", []OrderItem{
		{Garment: "shirt", Service: "wash", Quantity: 0, Price: decimal.NewFromInt(4000)},
	})
	require.Error(t, err)
}

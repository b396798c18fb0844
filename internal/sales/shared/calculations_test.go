package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalculateTotals(t *testing.T) {
	totals := CalculateTotals(
		[]Line{{Quantity: 10, UnitPrice: 5}, {Quantity: 0.3, UnitPrice: 33.33}},
		Charges{ShippingFee: 20, BankCharge: 5, Discount: 10},
	)
	require.InDelta(t, 60.0, totals.Subtotal, 0.001)
	require.InDelta(t, 75.0, totals.Total, 0.001)
}

func TestCalculateTotalsNeverNegative(t *testing.T) {
	totals := CalculateTotals([]Line{{Quantity: 1, UnitPrice: 1}}, Charges{Discount: 50})
	require.Zero(t, totals.Total)
}

func TestFormatNumber(t *testing.T) {
	at := time.Date(2025, time.August, 3, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2025.08.001", FormatNumber("", at, 1))
	require.Equal(t, "DR-2025.08.012", FormatNumber("DR", at, 12))
}

func TestNextRevision(t *testing.T) {
	require.Equal(t, "R1", NextRevision("R0"))
	require.Equal(t, "R10", NextRevision("r9"))
	require.Equal(t, "R1", NextRevision(""))
}

package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
)

func TestRenderPackingList(t *testing.T) {
	r := NewRenderer("en")
	pdf, err := r.RenderPackingList(PackingList{
		DocNumber:      "DR-2025.08.001",
		JobOrderNumber: "2025.08.001",
		CustomerCode:   "CUST-01",
		CreatedAt:      time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC),
		Lines:          []PackingListLine{{LineNumber: 1, ProductName: "Widget", Slot: 2, Quantity: 4}},
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, err = r.RenderPackingList(PackingList{DocNumber: "  "})
	require.Error(t, err)
}

func TestRenderJobOrder(t *testing.T) {
	jo := joborders.JobOrder{
		ID: 1, Number: "2025.08.001", CustomerCode: "CUST-01", Status: joborders.StatusInProduction,
		Items: []joborders.Item{{ID: 11, ProductName: "Widget", OrderQuantity: 10, ReservedQuantity: 10,
			Shipments: []joborders.Shipment{{Slot: 1, Quantity: 4}}}},
	}
	pdf, err := NewRenderer("id").RenderJobOrder(joborders.NewReceipt(jo, joborders.DefaultMaxShipmentSlots, time.Now()))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestQuantityFormatting(t *testing.T) {
	require.Equal(t, "1,250", NewRenderer("en").qty(1250))
	require.Equal(t, "2.50", NewRenderer("en").qty(2.5))
	require.Equal(t, "1.250", NewRenderer("de").qty(1250))
	require.Equal(t, "-", orDash(" "))
}

package joborders_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/platform/cache"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
	"github.com/odyssey-erp/cascade/testing/memory"
)

const widget = int64(501)

func newService(t *testing.T, receipts *cache.Versioned) (*joborders.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	stock := warehouse.NewService(store.Warehouse(), store, store, nil, warehouse.DefaultConfig(), nil)
	svc := joborders.NewService(store.JobOrders(), stock, store, store, nil, receipts, joborders.Config{}, nil)
	return svc, store
}

// generate creates a job order whose single item has its whole quantity reserved.
func generate(t *testing.T, svc *joborders.Service, store *memory.Store, order, reserved float64) joborders.JobOrder {
	t.Helper()
	store.SetStock(widget, warehouse.PoolReserved, reserved)
	jo, created, err := svc.Generate(context.Background(), joborders.GenerateRequest{
		SalesOrderID: 1,
		Number:       "2025.08.001",
		CustomerCode: "CUST-01",
		Revision:     "R0",
		Lines: []joborders.GenerateLine{
			{SalesOrderLineID: 11, ProductID: widget, ProductName: "Widget", OrderQuantity: order, ReservedQuantity: reserved},
		},
	})
	require.NoError(t, err)
	require.True(t, created)
	return jo
}

func TestDeriveHoldsTheReconciliation(t *testing.T) {
	cases := []struct {
		order, reserved float64
		slots           []float64
	}{
		{10, 10, []float64{4}},
		{10, 6, nil},
		{12, 12, []float64{3, 3, 6}},
		{7.5, 2.25, []float64{1.25}},
	}
	for _, tc := range cases {
		var shipments []joborders.Shipment
		for i, q := range tc.slots {
			shipments = append(shipments, joborders.Shipment{Slot: i + 1, Quantity: q})
		}
		q := joborders.Derive(tc.order, tc.reserved, shipments)
		require.InDelta(t, tc.order, q.ReadyQuantity+q.ToProduceQuantity+q.ShippedQuantity, 1e-9)
		require.InDelta(t, tc.order-q.ShippedQuantity, q.OrderBalance, 1e-9)
	}

	q := joborders.Derive(10, 10, []joborders.Shipment{{Slot: 1, Quantity: 4}})
	require.Equal(t, 4.0, q.ShippedQuantity)
	require.Equal(t, 6.0, q.ReadyQuantity)
	require.Equal(t, 0.0, q.ToProduceQuantity)
	require.Equal(t, 6.0, q.OrderBalance)
	require.Equal(t, 40.0, q.CompletionPercentage)
}

func TestGenerateReturnsActiveJobOrder(t *testing.T) {
	svc, store := newService(t, nil)
	jo := generate(t, svc, store, 10, 10)
	require.Equal(t, joborders.StatusPending, jo.Status)
	require.Equal(t, "2025.08.001", jo.Number)
	require.Len(t, jo.Items, 1)
	require.Len(t, jo.Items[0].Slots, joborders.DefaultMaxShipmentSlots)

	again, created, err := svc.Generate(context.Background(), joborders.GenerateRequest{
		SalesOrderID: 1,
		Lines:        []joborders.GenerateLine{{SalesOrderLineID: 11, ProductID: widget, OrderQuantity: 10}},
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, jo.ID, again.ID)

	_, _, err = svc.Generate(context.Background(), joborders.GenerateRequest{SalesOrderID: 2})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateShipmentDerivesQuantities(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	jo := generate(t, svc, store, 10, 10)
	itemID := jo.Items[0].ID

	item, err := svc.UpdateShipment(ctx, jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 4.0, item.ShippedQuantity)
	require.Equal(t, 6.0, item.ReadyQuantity)
	require.Equal(t, 6.0, item.OrderBalance)
	require.Equal(t, 4.0, item.Slots[0])
	require.Equal(t, 6.0, store.Stock(widget).Reserved)

	_, err = svc.UpdateShipment(ctx, jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 2, Quantity: 7})
	require.ErrorIs(t, err, joborders.ErrInsufficientReady)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stale := item.Version - 1
	_, err = svc.UpdateShipment(ctx, jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 2, Quantity: 1, Version: &stale})
	require.ErrorIs(t, err, shared.ErrVersionConflict)

	item, err = svc.UpdateShipment(ctx, jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 0})
	require.NoError(t, err)
	require.Empty(t, item.Shipments)
	require.Equal(t, 10.0, item.ReadyQuantity)
	require.Equal(t, 10.0, store.Stock(widget).Reserved)
}

func TestShipmentSlotBounds(t *testing.T) {
	svc, store := newService(t, nil)
	jo := generate(t, svc, store, 10, 10)
	itemID := jo.Items[0].ID

	for _, slot := range []int{0, 9, -1} {
		_, err := svc.UpdateShipment(context.Background(), jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: slot, Quantity: 1})
		require.ErrorIs(t, err, joborders.ErrShipmentSlotOutOfRange, "slot %d", slot)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
	_, err := svc.UpdateShipment(context.Background(), jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 8, Quantity: 1})
	require.NoError(t, err)
}

func TestRecordDeliveryFillsNextSlotUntilFull(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	jo := generate(t, svc, store, 10, 10)
	itemID := jo.Items[0].ID

	_, err := svc.UpdateShipment(ctx, jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 4})
	require.NoError(t, err)

	for slot := 2; slot <= joborders.DefaultMaxShipmentSlots; slot++ {
		out, err := svc.RecordDelivery(ctx, jo.ID, int64(100+slot), []joborders.DeliveryLine{{ItemID: itemID, Quantity: 0.5}})
		require.NoError(t, err)
		require.Len(t, out, 1)
		require.Equal(t, slot, out[0].Shipment.Slot)
		require.NotNil(t, out[0].Shipment.DeliveryReceiptID)
	}

	_, err = svc.RecordDelivery(ctx, jo.ID, 200, []joborders.DeliveryLine{{ItemID: itemID, Quantity: 0.5}})
	require.ErrorIs(t, err, joborders.ErrShipmentSlotsFull)
	require.ErrorIs(t, err, shared.ErrConflict)

	got, err := svc.Get(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, 7.5, got.Items[0].ShippedQuantity)
	require.Equal(t, 2.5, got.Items[0].ReadyQuantity)
	require.Equal(t, 2.5, store.Stock(widget).Reserved)
}

func TestRecordDeliveryRejectsBadLines(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	jo := generate(t, svc, store, 10, 4)
	itemID := jo.Items[0].ID

	_, err := svc.RecordDelivery(ctx, jo.ID, 0, []joborders.DeliveryLine{{ItemID: itemID, Quantity: 5}})
	require.ErrorIs(t, err, joborders.ErrInsufficientReady)
	_, err = svc.RecordDelivery(ctx, jo.ID, 0, []joborders.DeliveryLine{{ItemID: 999, Quantity: 1}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	out, err := svc.RecordDelivery(ctx, jo.ID, 0, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 4.0, out[0].Shipment.Quantity)
	require.Nil(t, out[0].Shipment.DeliveryReceiptID)

	_, err = svc.RecordDelivery(ctx, jo.ID, 0, nil)
	require.ErrorIs(t, err, joborders.ErrNothingReady)
}

func TestFullShipmentCompletesAndCorrectionReopens(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	jo := generate(t, svc, store, 10, 10)
	itemID := jo.Items[0].ID

	_, err := svc.UpdateShipment(ctx, jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 10})
	require.NoError(t, err)
	got, err := svc.Get(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, joborders.StatusCompleted, got.Status)

	_, err = svc.RecordDelivery(ctx, jo.ID, 0, nil)
	require.ErrorIs(t, err, joborders.ErrInvalidStatus)

	_, err = svc.UpdateShipment(ctx, jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 6})
	require.NoError(t, err)
	got, err = svc.Get(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, joborders.StatusInProduction, got.Status)
	require.Equal(t, 4.0, got.Items[0].OrderBalance)
}

func TestProductionLifecycle(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	jo := generate(t, svc, store, 10, 6)
	itemID := jo.Items[0].ID
	require.Equal(t, 4.0, jo.Items[0].ToProduceQuantity)

	_, err := svc.PauseProduction(ctx, jo.ID, joborders.TransitionRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	jo, err = svc.StartProduction(ctx, jo.ID, joborders.TransitionRequest{Version: &jo.Version})
	require.NoError(t, err)
	require.Equal(t, joborders.StatusInProduction, jo.Status)

	store.SetStock(widget, warehouse.PoolWIP, 4)
	item, err := svc.ReceiveProduction(ctx, jo.ID, itemID, joborders.ProductionReceiptRequest{Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 10.0, item.ReservedQuantity)
	require.Equal(t, 0.0, item.ToProduceQuantity)
	require.Equal(t, 10.0, store.Stock(widget).Reserved)

	_, err = svc.ReceiveProduction(ctx, jo.ID, itemID, joborders.ProductionReceiptRequest{Quantity: 1})
	require.ErrorIs(t, err, joborders.ErrExceedsOrder)

	jo, err = svc.PauseProduction(ctx, jo.ID, joborders.TransitionRequest{})
	require.NoError(t, err)
	jo, err = svc.CompleteProduction(ctx, jo.ID, joborders.TransitionRequest{})
	require.NoError(t, err)
	require.Equal(t, joborders.StatusCompleted, jo.Status)
	require.Len(t, store.AuditLogs("job_order.complete"), 1)
}

func TestCancelBySalesOrder(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	jo := generate(t, svc, store, 10, 10)

	n, err := svc.CancelBySalesOrder(ctx, jo.SalesOrderID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = svc.CancelBySalesOrder(ctx, jo.SalesOrderID)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = svc.UpdateShipment(ctx, jo.ID, jo.Items[0].ID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 1})
	require.ErrorIs(t, err, joborders.ErrInvalidStatus)

	regenerated, created, err := svc.Generate(ctx, joborders.GenerateRequest{
		SalesOrderID: jo.SalesOrderID,
		Number:       jo.Number + "-2",
		Lines:        []joborders.GenerateLine{{SalesOrderLineID: 11, ProductID: widget, OrderQuantity: 10}},
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, jo.ID, regenerated.ID)
}

func TestReceiptIsCachedUntilChange(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc, store := newService(t, cache.NewVersioned(client, "joborders", time.Minute))
	ctx := context.Background()
	jo := generate(t, svc, store, 10, 10)

	rec, err := svc.Receipt(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, jo.Number, rec.JobOrderNumber)
	require.Equal(t, joborders.DefaultMaxShipmentSlots, rec.SlotCount)
	require.Equal(t, 0.0, rec.Totals.ShippedQuantity)
	require.NotEmpty(t, mr.Keys())

	_, err = svc.UpdateShipment(ctx, jo.ID, jo.Items[0].ID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 4})
	require.NoError(t, err)

	rec, err = svc.Receipt(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, 4.0, rec.Totals.ShippedQuantity)
	require.Equal(t, 6.0, rec.Totals.OrderBalance)
	require.Equal(t, 6.0, rec.Lines[0].ReadyQuantity)
	require.Equal(t, 4.0, rec.Lines[0].Slots[0])

	_, err = svc.Receipt(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

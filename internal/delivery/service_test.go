package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
	"github.com/odyssey-erp/cascade/testing/memory"
)

const widget = int64(501)

type notifier struct {
	numbers []string
	err     error
}

func (n *notifier) NotifyDelivery(_ context.Context, _ int64, number string) error {
	n.numbers = append(n.numbers, number)
	return n.err
}

type fixture struct {
	store *memory.Store
	jobs  *joborders.Service
	svc   *delivery.Service
	jo    joborders.JobOrder
}

func newFixture(t *testing.T, n delivery.Notifier) fixture {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC) }
	store := memory.New().WithClock(now)
	stock := warehouse.NewService(store.Warehouse(), store, store, nil, warehouse.DefaultConfig(), nil)
	jobs := joborders.NewService(store.JobOrders(), stock, store, store, nil, nil, joborders.Config{}, nil).WithClock(now)
	svc := delivery.NewService(store.Delivery(), jobs, store, store, store, n, nil).WithClock(now)

	store.SetStock(widget, warehouse.PoolReserved, 6)
	jo, _, err := jobs.Generate(context.Background(), joborders.GenerateRequest{
		SalesOrderID: 1,
		Number:       "2025.08.001",
		CustomerCode: "CUST-01",
		Lines: []joborders.GenerateLine{
			{SalesOrderLineID: 11, ProductID: widget, ProductName: "Widget", OrderQuantity: 10, ReservedQuantity: 6},
		},
	})
	require.NoError(t, err)
	return fixture{store: store, jobs: jobs, svc: svc, jo: jo}
}

func TestCreateReceipt(t *testing.T) {
	n := &notifier{}
	f := newFixture(t, n)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{UserID: 3})
	itemID := f.jo.Items[0].ID

	rec, err := f.svc.Create(ctx, f.jo.ID, delivery.CreateRequest{
		Items: []joborders.DeliveryLine{{ItemID: itemID, Quantity: 4}},
		Notes: "gate 2",
	})
	require.NoError(t, err)
	require.Equal(t, "DR-2025.08.001", rec.Number)
	require.Equal(t, f.jo.Number, rec.JobOrderNumber)
	require.Equal(t, int64(3), rec.CreatedBy)
	require.Len(t, rec.Lines, 1)
	require.Equal(t, 1, rec.Lines[0].Slot)
	require.Equal(t, 4.0, rec.TotalQuantity())
	require.Equal(t, []string{"DR-2025.08.001"}, n.numbers)

	jo, err := f.jobs.Get(ctx, f.jo.ID)
	require.NoError(t, err)
	require.Equal(t, 4.0, jo.Items[0].ShippedQuantity)
	require.Equal(t, rec.ID, *jo.Items[0].Shipments[0].DeliveryReceiptID)
	require.Equal(t, 2.0, f.store.Stock(widget).Reserved)

	second, err := f.svc.Create(ctx, f.jo.ID, delivery.CreateRequest{})
	require.NoError(t, err)
	require.Equal(t, "DR-2025.08.002", second.Number)
	require.Equal(t, 2, second.Lines[0].Slot)
	require.Equal(t, 2.0, second.Lines[0].Quantity)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "CUST-01", got.CustomerCode)
	require.Equal(t, "gate 2", got.Notes)
	require.Len(t, got.Lines, 1)

	list, err := f.svc.List(ctx, delivery.ListFilter{JobOrderID: f.jo.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
}

func TestCreateReceiptRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.jo.ID, delivery.CreateRequest{
		Items: []joborders.DeliveryLine{{ItemID: f.jo.Items[0].ID, Quantity: 7}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	list, err := f.svc.List(ctx, delivery.ListFilter{JobOrderID: f.jo.ID})
	require.NoError(t, err)
	require.Empty(t, list)
	require.Equal(t, 6.0, f.store.Stock(widget).Reserved)
	require.Empty(t, f.store.AuditLogs("delivery_receipt.create"))

	rec, err := f.svc.Create(ctx, f.jo.ID, delivery.CreateRequest{})
	require.NoError(t, err)
	require.Equal(t, "DR-2025.08.001", rec.Number, "number is taken inside the failed transaction")

	_, err = f.svc.Create(ctx, 999, delivery.CreateRequest{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestNotifierFailureKeepsReceipt(t *testing.T) {
	n := &notifier{err: errors.New("queue down")}
	f := newFixture(t, n)

	rec, err := f.svc.Create(context.Background(), f.jo.ID, delivery.CreateRequest{})
	require.NoError(t, err)
	require.NotZero(t, rec.ID)
	require.Len(t, n.numbers, 1)
}

func TestReceiptSlotsAreReadOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	itemID := f.jo.Items[0].ID

	rec, err := f.svc.Create(ctx, f.jo.ID, delivery.CreateRequest{
		Items: []joborders.DeliveryLine{{ItemID: itemID, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.Lines[0].Slot)

	_, err = f.jobs.UpdateShipment(ctx, f.jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 0})
	require.ErrorIs(t, err, joborders.ErrShipmentSlotLocked)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.jobs.UpdateShipment(ctx, f.jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 2})
	require.ErrorIs(t, err, joborders.ErrShipmentSlotLocked)

	jo, err := f.jobs.Get(ctx, f.jo.ID)
	require.NoError(t, err)
	require.Equal(t, 4.0, jo.Items[0].ShippedQuantity)
	require.Equal(t, rec.ID, *jo.Items[0].Shipments[0].DeliveryReceiptID)
	require.Equal(t, 2.0, f.store.Stock(widget).Reserved)

	item, err := f.jobs.UpdateShipment(ctx, f.jo.ID, itemID, joborders.UpdateShipmentRequest{ShipmentNumber: 2, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, 6.0, item.ShippedQuantity)
}

package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/sales/invoices"
	"github.com/odyssey-erp/cascade/internal/sales/orders"
	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
	"github.com/odyssey-erp/cascade/testing/memory"
)

const widget = int64(501)

type fixture struct {
	store      *memory.Store
	orders     *orders.Service
	quotations *quotations.Service
	jobs       *joborders.Service
}

func newFixture(t *testing.T, cfg orders.Config) fixture {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC) }
	store := memory.New().WithClock(now)
	stock := warehouse.NewService(store.Warehouse(), store, store, nil, warehouse.DefaultConfig(), nil)
	jobs := joborders.NewService(store.JobOrders(), stock, store, store, nil, nil, joborders.Config{}, nil).WithClock(now)
	quotes := quotations.NewService(store.Quotations(), store, store, store, nil, nil).WithClock(now)
	svc := orders.NewService(orders.Deps{
		Repo:       store.Orders(),
		Sequencer:  store,
		Quotations: quotes,
		Stock:      stock,
		JobOrders:  jobs,
		Invoices:   invoices.NewService(store.Invoices(), store, store, nil),
		Tx:         store,
		Audit:      store,
	}, cfg).WithClock(now)
	return fixture{store: store, orders: svc, quotations: quotes, jobs: jobs}
}

func createOrder(t *testing.T, f fixture, qty float64) orders.SalesOrder {
	t.Helper()
	o, err := f.orders.Create(context.Background(), orders.CreateRequest{
		CustomerCode: "CUST-01",
		Lines:        []orders.LineRequest{{ProductID: widget, ProductName: "Widget", Quantity: qty, UnitPrice: 3}},
	})
	require.NoError(t, err)
	return o
}

func TestQuotationToShipment(t *testing.T) {
	f := newFixture(t, orders.Config{AutoGenerateJobOrder: true})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 10)

	q, err := f.quotations.Create(ctx, quotations.CreateRequest{
		CustomerCode: "CUST-01",
		Lines:        []quotations.LineRequest{{ProductID: widget, ProductName: "Widget", Quantity: 10, UnitPrice: 5}},
	})
	require.NoError(t, err)
	_, err = f.quotations.Submit(ctx, q.ID, quotations.TransitionRequest{})
	require.NoError(t, err)
	_, err = f.quotations.Approve(ctx, q.ID, quotations.TransitionRequest{})
	require.NoError(t, err)

	so, err := f.orders.ConvertFromQuotation(ctx, q.ID, orders.ConvertRequest{})
	require.NoError(t, err)
	require.Equal(t, q.Number, so.Number)
	require.Equal(t, orders.StatusDraft, so.Status)
	require.False(t, so.IsConfirmed)
	require.NotNil(t, so.QuotationID)
	require.Equal(t, 50.0, so.Lines[0].LineTotal)
	require.Equal(t, 50.0, so.Total)

	q, err = f.quotations.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, quotations.StatusConverted, q.Status)
	_, err = f.orders.ConvertFromQuotation(ctx, q.ID, orders.ConvertRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	confirmed, err := f.orders.Confirm(ctx, so.ID, orders.TransitionRequest{Version: &so.Version})
	require.NoError(t, err)
	require.True(t, confirmed.SalesOrder.IsConfirmed)
	require.NotNil(t, confirmed.JobOrder)
	jo := *confirmed.JobOrder
	require.Equal(t, so.Number, jo.Number)
	require.Equal(t, 10.0, jo.Items[0].OrderQuantity)
	require.Equal(t, 10.0, jo.Items[0].ReservedQuantity)
	require.Equal(t, 10.0, jo.Items[0].ReadyQuantity)
	require.Equal(t, 10.0, f.store.Stock(widget).Reserved)

	item, err := f.jobs.UpdateShipment(ctx, jo.ID, jo.Items[0].ID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 4.0, item.ShippedQuantity)
	require.Equal(t, 6.0, item.ReadyQuantity)
	require.Equal(t, 6.0, item.OrderBalance)
	require.Equal(t, 0.0, item.ToProduceQuantity)

	_, err = f.jobs.UpdateShipment(ctx, jo.ID, jo.Items[0].ID, joborders.UpdateShipmentRequest{ShipmentNumber: 9, Quantity: 1})
	require.ErrorIs(t, err, joborders.ErrShipmentSlotOutOfRange)
}

func TestConfirmTwiceFails(t *testing.T) {
	f := newFixture(t, orders.Config{})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolPH, 5)
	o := createOrder(t, f, 5)

	res, err := f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.NoError(t, err)
	require.Nil(t, res.JobOrder)
	require.Equal(t, orders.StatusConfirmed, res.SalesOrder.Status)

	_, err = f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, 5.0, f.store.Stock(widget).Reserved)
	require.Len(t, f.store.AuditLogs("warehouse.reserve"), 1)
}

func TestConfirmWithoutStockStaysDraft(t *testing.T) {
	f := newFixture(t, orders.Config{AutoGenerateJobOrder: true})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 2)
	o := createOrder(t, f, 5)

	_, err := f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusDraft, got.Status)
	require.False(t, got.IsConfirmed)
	require.Equal(t, 2.0, f.store.Stock(widget).NG)
	jobs, err := f.jobs.ListBySalesOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestCancelDraftReleasesNothing(t *testing.T) {
	f := newFixture(t, orders.Config{})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 10)
	o := createOrder(t, f, 4)

	res, err := f.orders.Cancel(ctx, o.ID, orders.TransitionRequest{Reason: "customer withdrew"})
	require.NoError(t, err)
	require.Equal(t, orders.StatusCancelled, res.SalesOrder.Status)
	require.Equal(t, "customer withdrew", res.SalesOrder.CancellationReason)
	require.Empty(t, res.Released)
	require.Zero(t, res.CancelledJobOrders)
	require.Equal(t, 10.0, f.store.Stock(widget).NG)
	require.Empty(t, f.store.AuditLogs("warehouse.release"))

	_, err = f.orders.Cancel(ctx, o.ID, orders.TransitionRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelConfirmedRestoresPools(t *testing.T) {
	f := newFixture(t, orders.Config{AutoGenerateJobOrder: true})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 10)
	o := createOrder(t, f, 10)

	res, err := f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.NoError(t, err)
	jo := *res.JobOrder
	_, err = f.jobs.UpdateShipment(ctx, jo.ID, jo.Items[0].ID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 4})
	require.NoError(t, err)

	cancelled, err := f.orders.Cancel(ctx, o.ID, orders.TransitionRequest{Reason: "stop"})
	require.NoError(t, err)
	require.Equal(t, 1, cancelled.CancelledJobOrders)
	require.Equal(t, 6.0, cancelled.Released[o.Lines[0].ID])

	stock := f.store.Stock(widget)
	require.Equal(t, 6.0, stock.NG)
	require.Equal(t, 0.0, stock.Reserved)

	got, err := f.jobs.Get(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, joborders.StatusCancelled, got.Status)
	allocs, err := f.store.Warehouse().Allocations(ctx, o.ID)
	require.NoError(t, err)
	require.Empty(t, allocs)
}

func TestInvoiceOncePerOrder(t *testing.T) {
	f := newFixture(t, orders.Config{})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 10)
	o := createOrder(t, f, 2)

	_, err := f.orders.GenerateInvoice(ctx, o.ID)
	require.ErrorIs(t, err, orders.ErrNotConfirmed)

	_, err = f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.NoError(t, err)
	res, err := f.orders.GenerateInvoice(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.Number, res.InvoiceNumber)
	require.Equal(t, o.Total, res.Invoice.Total)
	require.Equal(t, invoices.PaymentPending, res.Invoice.PaymentStatus)

	_, err = f.orders.GenerateInvoice(ctx, o.ID)
	require.ErrorIs(t, err, invoices.ErrAlreadyInvoiced)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestGenerateJobOrderIsIdempotent(t *testing.T) {
	f := newFixture(t, orders.Config{})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 3)
	f.store.SetStock(widget, warehouse.PoolPH, 3)
	o := createOrder(t, f, 6)

	_, err := f.orders.GenerateJobOrder(ctx, o.ID)
	require.ErrorIs(t, err, orders.ErrNotConfirmed)

	_, err = f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.NoError(t, err)
	first, err := f.orders.GenerateJobOrder(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, 6.0, first.JobOrder.Items[0].ReservedQuantity)

	second, err := f.orders.GenerateJobOrder(ctx, o.ID)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.JobOrder.ID, second.JobOrder.ID)
}

func TestCompleteWaitsForJobOrders(t *testing.T) {
	f := newFixture(t, orders.Config{AutoGenerateJobOrder: true})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 3)
	o := createOrder(t, f, 3)

	res, err := f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.NoError(t, err)
	_, err = f.orders.Complete(ctx, o.ID, orders.TransitionRequest{})
	require.ErrorIs(t, err, orders.ErrOpenJobOrders)

	jo := *res.JobOrder
	_, err = f.jobs.RecordDelivery(ctx, jo.ID, 0, nil)
	require.NoError(t, err)

	done, err := f.orders.Complete(ctx, o.ID, orders.TransitionRequest{})
	require.NoError(t, err)
	require.Equal(t, orders.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
}

func TestUpdateAndDuplicate(t *testing.T) {
	f := newFixture(t, orders.Config{})
	ctx := context.Background()
	f.store.SetStock(widget, warehouse.PoolNG, 10)
	o := createOrder(t, f, 2)

	fee := 4.0
	lines := []orders.LineRequest{{ProductID: widget, ProductName: "Widget", Quantity: 3, UnitPrice: 3}}
	o, err := f.orders.Update(ctx, o.ID, orders.UpdateRequest{ShippingFee: &fee, Lines: &lines, Version: &o.Version})
	require.NoError(t, err)
	require.Equal(t, 9.0, o.Subtotal)
	require.Equal(t, 13.0, o.Total)

	_, err = f.orders.Confirm(ctx, o.ID, orders.TransitionRequest{})
	require.NoError(t, err)
	_, err = f.orders.Update(ctx, o.ID, orders.UpdateRequest{ShippingFee: &fee})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	dup, err := f.orders.Duplicate(ctx, o.ID)
	require.NoError(t, err)
	require.NotEqual(t, o.Number, dup.Number)
	require.Equal(t, orders.StatusDraft, dup.Status)
	require.Equal(t, "R0", dup.Revision)
	require.False(t, dup.IsConfirmed)
	require.Equal(t, o.Total, dup.Total)
}

package warehouse_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
	"github.com/odyssey-erp/cascade/testing/memory"
)

const widget = int64(501)

func newService(t *testing.T, cfg warehouse.Config) (*warehouse.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return warehouse.NewService(store.Warehouse(), store, store, nil, cfg, nil), store
}

func TestReserveTakesSourcePoolsInOrder(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	store.SetStock(widget, warehouse.PoolNG, 6)
	store.SetStock(widget, warehouse.PoolPH, 10)

	res, err := svc.Reserve(context.Background(), warehouse.ReserveRequest{
		SalesOrderID: 1,
		Lines:        []warehouse.ReserveLine{{SalesOrderLineID: 11, ProductID: widget, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, 10.0, res.Reserved[11])
	require.Len(t, res.Allocations, 2)
	require.Equal(t, warehouse.PoolNG, res.Allocations[0].Pool)
	require.Equal(t, 6.0, res.Allocations[0].Quantity)
	require.Equal(t, warehouse.PoolPH, res.Allocations[1].Pool)
	require.Equal(t, 4.0, res.Allocations[1].Quantity)

	stock := store.Stock(widget)
	require.Equal(t, 0.0, stock.NG)
	require.Equal(t, 6.0, stock.PH)
	require.Equal(t, 10.0, stock.Reserved)
	require.Equal(t, 16.0, stock.Total)
	require.Len(t, store.AuditLogs("warehouse.reserve"), 1)
}

func TestReserveStrictFailsWithoutWriting(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	store.SetStock(widget, warehouse.PoolNG, 3)

	_, err := svc.Reserve(context.Background(), warehouse.ReserveRequest{
		SalesOrderID: 1,
		Lines:        []warehouse.ReserveLine{{SalesOrderLineID: 11, ProductID: widget, Quantity: 5}},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, shared.ErrInsufficientStock))

	stock := store.Stock(widget)
	require.Equal(t, 3.0, stock.NG)
	require.Equal(t, 0.0, stock.Reserved)
	allocs, err := svc.Allocations(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, allocs)
}

func TestReservePartialLeavesRemainder(t *testing.T) {
	svc, store := newService(t, warehouse.Config{SourcePools: []warehouse.Pool{warehouse.PoolPH}, Policy: warehouse.PolicyPartial})
	store.SetStock(widget, warehouse.PoolNG, 50)
	store.SetStock(widget, warehouse.PoolPH, 3)

	res, err := svc.Reserve(context.Background(), warehouse.ReserveRequest{
		SalesOrderID: 2,
		Lines:        []warehouse.ReserveLine{{SalesOrderLineID: 21, ProductID: widget, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, 3.0, res.Reserved[21])

	stock := store.Stock(widget)
	require.Equal(t, 50.0, stock.NG, "NG is not a configured source")
	require.Equal(t, 0.0, stock.PH)
	require.Equal(t, 3.0, stock.Reserved)
}

func TestReserveSharesAvailabilityAcrossLines(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	store.SetStock(widget, warehouse.PoolNG, 8)

	_, err := svc.Reserve(context.Background(), warehouse.ReserveRequest{
		SalesOrderID: 3,
		Lines: []warehouse.ReserveLine{
			{SalesOrderLineID: 31, ProductID: widget, Quantity: 5},
			{SalesOrderLineID: 32, ProductID: widget, Quantity: 5},
		},
	})
	require.ErrorIs(t, err, warehouse.ErrInsufficientStock)
	require.Equal(t, 8.0, store.Stock(widget).NG)
}

func TestReleaseRestoresPoolsMinusShipped(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	ctx := context.Background()
	store.SetStock(widget, warehouse.PoolNG, 6)
	store.SetStock(widget, warehouse.PoolPH, 10)

	_, err := svc.Reserve(ctx, warehouse.ReserveRequest{
		SalesOrderID: 4,
		Lines:        []warehouse.ReserveLine{{SalesOrderLineID: 41, ProductID: widget, Quantity: 10}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Ship(ctx, warehouse.ShipRequest{ProductID: widget, Quantity: 3, RefType: "job_order", RefID: 9}))

	released, err := svc.Release(ctx, warehouse.ReleaseRequest{SalesOrderID: 4, Shipped: map[int64]float64{41: 3}})
	require.NoError(t, err)
	require.Equal(t, 7.0, released[41])

	stock := store.Stock(widget)
	require.Equal(t, 0.0, stock.Reserved)
	// Newest allocation (PH, 4) is returned first, the rest goes back to NG.
	require.Equal(t, 10.0, stock.PH)
	require.Equal(t, 3.0, stock.NG)
	require.Equal(t, 13.0, stock.Total)

	allocs, err := svc.Allocations(ctx, 4)
	require.NoError(t, err)
	require.Empty(t, allocs)
}

func TestReleaseWithoutReservationIsNoop(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	store.SetStock(widget, warehouse.PoolNG, 5)

	released, err := svc.Release(context.Background(), warehouse.ReleaseRequest{SalesOrderID: 99})
	require.NoError(t, err)
	require.Empty(t, released)
	require.Equal(t, 5.0, store.Stock(widget).NG)
	require.Empty(t, store.AuditLogs("warehouse.release"))
}

func TestShipCorrectionReturnsStock(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	ctx := context.Background()
	store.SetStock(widget, warehouse.PoolReserved, 4)

	require.NoError(t, svc.Ship(ctx, warehouse.ShipRequest{ProductID: widget, Quantity: 4}))
	require.Equal(t, 0.0, store.Stock(widget).Reserved)
	require.ErrorIs(t, svc.Ship(ctx, warehouse.ShipRequest{ProductID: widget, Quantity: 1}), shared.ErrInsufficientStock)

	require.NoError(t, svc.Ship(ctx, warehouse.ShipRequest{ProductID: widget, Quantity: -2}))
	require.Equal(t, 2.0, store.Stock(widget).Reserved)
	require.NoError(t, svc.Ship(ctx, warehouse.ShipRequest{ProductID: widget, Quantity: 0}))
}

func TestReceiveProductionMovesWIP(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	store.SetStock(widget, warehouse.PoolWIP, 5)

	alloc, err := svc.ReceiveProduction(context.Background(), warehouse.ProductionRequest{
		SalesOrderID: 7, SalesOrderLineID: 71, ProductID: widget, Quantity: 5, RefID: 70,
	})
	require.NoError(t, err)
	require.Equal(t, warehouse.PoolWIP, alloc.Pool)

	stock := store.Stock(widget)
	require.Equal(t, 0.0, stock.WIP)
	require.Equal(t, 5.0, stock.Reserved)

	_, err = svc.ReceiveProduction(context.Background(), warehouse.ProductionRequest{SalesOrderID: 7, ProductID: widget, Quantity: 1})
	require.ErrorIs(t, err, warehouse.ErrInsufficientStock)
}

func TestAdjustAndTransfer(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	ctx := context.Background()

	stock, err := svc.Adjust(ctx, warehouse.AdjustInput{ProductID: widget, Pool: "ng", Quantity: 12, Reason: "count"})
	require.NoError(t, err)
	require.Equal(t, 12.0, stock.NG)

	_, err = svc.Adjust(ctx, warehouse.AdjustInput{ProductID: widget, Pool: "NG", Quantity: -13, Reason: "damage"})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stock, err = svc.Transfer(ctx, warehouse.TransferInput{ProductID: widget, From: "NG", To: "RED", Quantity: 2, Reason: "reject"})
	require.NoError(t, err)
	require.Equal(t, 10.0, stock.NG)
	require.Equal(t, 2.0, stock.Red)
	require.Equal(t, 12.0, stock.Total)

	_, err = svc.Adjust(ctx, warehouse.AdjustInput{ProductID: widget, Pool: "RESERVED", Quantity: 1, Reason: "x"})
	require.ErrorIs(t, err, warehouse.ErrReservedPoolManaged)
	_, err = svc.Transfer(ctx, warehouse.TransferInput{ProductID: widget, From: "NG", To: "RESERVED", Quantity: 1, Reason: "x"})
	require.ErrorIs(t, err, warehouse.ErrReservedPoolManaged)
	_, err = svc.Adjust(ctx, warehouse.AdjustInput{ProductID: widget, Pool: "BLUE", Quantity: 1, Reason: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	moves, err := svc.Movements(ctx, warehouse.MovementFilter{ProductID: widget})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	require.Equal(t, "transfer", moves[0].RefType)
	require.Len(t, store.AuditLogs("warehouse.adjust"), 1)
}

func TestLowStock(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	store.SetStock(1, warehouse.PoolNG, 2)
	store.SetStock(1, warehouse.PoolPH, 1)
	store.SetStock(2, warehouse.PoolNG, 40)
	store.SetStock(3, warehouse.PoolReserved, 9)

	low, err := svc.LowStock(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, low, 2)
	require.Equal(t, int64(1), low[0].ProductID)
	require.Equal(t, int64(3), low[1].ProductID)
}

func TestParsePools(t *testing.T) {
	pools, err := warehouse.ParsePools("ph, ng")
	require.NoError(t, err)
	require.Equal(t, []warehouse.Pool{warehouse.PoolPH, warehouse.PoolNG}, pools)

	for _, raw := range []string{"", "NG,NG", "RESERVED", "NG,XX"} {
		_, err := warehouse.ParsePools(raw)
		require.ErrorIs(t, err, shared.ErrValidation, raw)
	}
}

func TestFractionalQuantitiesStayNonNegative(t *testing.T) {
	svc, store := newService(t, warehouse.DefaultConfig())
	ctx := context.Background()
	store.SetStock(widget, warehouse.PoolNG, 2.5)

	stock, err := svc.Adjust(ctx, warehouse.AdjustInput{ProductID: widget, Pool: "NG", Quantity: -2.25, Reason: "trim"})
	require.NoError(t, err)
	require.InDelta(t, 0.25, stock.NG, 1e-9)

	_, err = svc.Adjust(ctx, warehouse.AdjustInput{ProductID: widget, Pool: "NG", Quantity: -0.5, Reason: "trim"})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 0.25, store.Stock(widget).NG, 1e-9)
}

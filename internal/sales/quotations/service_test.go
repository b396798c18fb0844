package quotations_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/testing/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*quotations.Service, *memory.Store, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC)}
	store := memory.New().WithClock(clk.now)
	svc := quotations.NewService(store.Quotations(), store, store, store, nil, nil).WithClock(clk.now)
	return svc, store, clk
}

func createRequest() quotations.CreateRequest {
	return quotations.CreateRequest{
		CustomerCode: "CUST-01",
		Country:      "ID",
		ShippingFee:  7,
		Discount:     2,
		Lines: []quotations.LineRequest{
			{ProductID: 501, ProductName: "Widget", Quantity: 10, UnitPrice: 5},
		},
	}
}

func TestCreateNumbersAndTotals(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.Equal(t, "2025.08.001", q.Number)
	require.Equal(t, "R0", q.Revision)
	require.Equal(t, quotations.StatusDraft, q.Status)
	require.Equal(t, 50.0, q.Subtotal)
	require.Equal(t, 55.0, q.Total)
	require.Len(t, q.Lines, 1)
	require.Equal(t, 50.0, q.Lines[0].LineTotal)

	second, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.Equal(t, "2025.08.002", second.Number)
}

func TestTransitions(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, q.ID, quotations.TransitionRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	q, err = svc.Submit(ctx, q.ID, quotations.TransitionRequest{})
	require.NoError(t, err)
	require.Equal(t, quotations.StatusPending, q.Status)

	stale := q.Version - 1
	_, err = svc.Approve(ctx, q.ID, quotations.TransitionRequest{Version: &stale})
	require.ErrorIs(t, err, shared.ErrVersionConflict)

	ctx = shared.ContextWithActor(ctx, shared.Actor{UserID: 7})
	q, err = svc.Approve(ctx, q.ID, quotations.TransitionRequest{Version: &q.Version})
	require.NoError(t, err)
	require.Equal(t, quotations.StatusApproved, q.Status)
	require.NotNil(t, q.ApprovedBy)
	require.Equal(t, int64(7), *q.ApprovedBy)

	_, err = svc.Reject(ctx, q.ID, quotations.TransitionRequest{Reason: "late"})
	require.ErrorIs(t, err, quotations.ErrInvalidStatus)

	q, err = svc.MarkConverted(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, quotations.StatusConverted, q.Status)
	require.True(t, q.Status.Terminal())

	_, err = svc.MarkConverted(ctx, q.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	logs := store.AuditLogs("quotation.approve")
	require.Len(t, logs, 1)
	require.Equal(t, int64(7), logs[0].ActorID)
}

func TestRejectKeepsReason(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, q.ID, quotations.TransitionRequest{})
	require.NoError(t, err)

	q, err = svc.Reject(ctx, q.ID, quotations.TransitionRequest{Reason: "price too high"})
	require.NoError(t, err)
	require.Equal(t, quotations.StatusRejected, q.Status)
	require.Equal(t, "price too high", q.RejectionReason)

	_, err = svc.Submit(ctx, q.ID, quotations.TransitionRequest{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRevisionLock(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.True(t, svc.Editable(q))

	notes := "revised"
	lines := []quotations.LineRequest{{ProductID: 501, ProductName: "Widget", Quantity: 12, UnitPrice: 5}}
	q, err = svc.Update(ctx, q.ID, quotations.UpdateRequest{Notes: &notes, Lines: &lines})
	require.NoError(t, err)
	require.Equal(t, "R1", q.Revision)
	require.Equal(t, 60.0, q.Subtotal)
	require.Equal(t, "revised", q.Notes)

	q, err = svc.Update(ctx, q.ID, quotations.UpdateRequest{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, "R2", q.Revision)

	clk.t = clk.t.Add(24 * time.Hour)
	require.False(t, svc.Editable(q))
	_, err = svc.Update(ctx, q.ID, quotations.UpdateRequest{Notes: &notes})
	require.ErrorIs(t, err, quotations.ErrRevisionLocked)
}

func TestApprovedQuotationIsLocked(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, q.ID, quotations.TransitionRequest{})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, q.ID, quotations.TransitionRequest{})
	require.NoError(t, err)

	notes := "x"
	_, err = svc.Update(ctx, q.ID, quotations.UpdateRequest{Notes: &notes})
	require.ErrorIs(t, err, quotations.ErrRevisionLocked)
}

func TestDuplicate(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	req := createRequest()
	until := clk.t.AddDate(0, 0, 5)
	req.ValidUntil = &until
	src, err := svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, src.ID, quotations.TransitionRequest{})
	require.NoError(t, err)
	_, err = svc.Reject(ctx, src.ID, quotations.TransitionRequest{Reason: "no"})
	require.NoError(t, err)

	dup, err := svc.Duplicate(ctx, src.ID)
	require.NoError(t, err)
	require.NotEqual(t, src.ID, dup.ID)
	require.NotEqual(t, src.Number, dup.Number)
	require.Equal(t, "R1", dup.Revision)
	require.Equal(t, quotations.StatusPending, dup.Status)
	require.Empty(t, dup.RejectionReason)
	require.Equal(t, src.Total, dup.Total)
	require.Len(t, dup.Lines, 1)
	require.NotEqual(t, src.Lines[0].ID, dup.Lines[0].ID)
	require.Equal(t, clk.t.AddDate(0, 0, quotations.DefaultValidityDays), *dup.ValidUntil)

	_, err = svc.Duplicate(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestExpiry(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	req := createRequest()
	until := clk.t
	req.ValidUntil = &until

	q, err := svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, q.ID, quotations.TransitionRequest{})
	require.NoError(t, err)

	n, err := svc.ExpireDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "valid through the end of its last day")

	clk.t = clk.t.Add(24 * time.Hour)
	_, err = svc.Approve(ctx, q.ID, quotations.TransitionRequest{})
	require.ErrorIs(t, err, quotations.ErrExpired)

	n, err = svc.ExpireDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	q, err = svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, quotations.StatusExpired, q.Status)
}

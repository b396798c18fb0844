// Package memory keeps every repository of the cascade in process memory.
// Transactions snapshot the whole store and restore it when fn fails, so
// services see the same all-or-nothing behaviour they get from PostgreSQL.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/sales/invoices"
	"github.com/odyssey-erp/cascade/internal/sales/orders"
	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	salesshared "github.com/odyssey-erp/cascade/internal/sales/shared"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
)

type stockKey struct {
	productID int64
	pool      warehouse.Pool
}

type state struct {
	nextID int64

	stock       map[stockKey]float64
	movements   []warehouse.Movement
	allocations []warehouse.Allocation

	quotations     map[int64]quotations.Quotation
	quotationLines map[int64][]quotations.Line
	orders         map[int64]orders.SalesOrder
	orderLines     map[int64][]orders.Line
	invoices       map[int64]invoices.Invoice

	jobOrders map[int64]joborders.JobOrder
	items     map[int64]joborders.Item
	shipments map[int64]joborders.Shipment

	receipts     map[int64]delivery.Receipt
	receiptLines map[int64][]delivery.Line

	sequences map[string]int64
	audit     []shared.AuditLog
	idem      map[string]time.Time
}

func newState() state {
	return state{
		stock:          map[stockKey]float64{},
		quotations:     map[int64]quotations.Quotation{},
		quotationLines: map[int64][]quotations.Line{},
		orders:         map[int64]orders.SalesOrder{},
		orderLines:     map[int64][]orders.Line{},
		invoices:       map[int64]invoices.Invoice{},
		jobOrders:      map[int64]joborders.JobOrder{},
		items:          map[int64]joborders.Item{},
		shipments:      map[int64]joborders.Shipment{},
		receipts:       map[int64]delivery.Receipt{},
		receiptLines:   map[int64][]delivery.Line{},
		sequences:      map[string]int64{},
		idem:           map[string]time.Time{},
	}
}

// clone copies every map and slice header. Stored values are replaced on
// write and never mutated in place, so a shallow copy is a full snapshot.
func (s state) clone() state {
	return state{
		nextID:         s.nextID,
		stock:          maps.Clone(s.stock),
		movements:      slices.Clone(s.movements),
		allocations:    slices.Clone(s.allocations),
		quotations:     maps.Clone(s.quotations),
		quotationLines: maps.Clone(s.quotationLines),
		orders:         maps.Clone(s.orders),
		orderLines:     maps.Clone(s.orderLines),
		invoices:       maps.Clone(s.invoices),
		jobOrders:      maps.Clone(s.jobOrders),
		items:          maps.Clone(s.items),
		shipments:      maps.Clone(s.shipments),
		receipts:       maps.Clone(s.receipts),
		receiptLines:   maps.Clone(s.receiptLines),
		sequences:      maps.Clone(s.sequences),
		audit:          slices.Clone(s.audit),
		idem:           maps.Clone(s.idem),
	}
}

// Store implements every repository port plus TxRunner, AuditPort,
// IdempotencyChecker and Sequencer.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data state
	now  func() time.Time
}

func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

// WithClock sets the time used for created and updated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

type txKey struct{}

// InTx serialises transactions. Nested calls join the outer one.
func (s *Store) InTx(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Record implements shared.AuditPort.
func (s *Store) Record(ctx context.Context, log shared.AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.ActorID == 0 {
		log.ActorID = shared.ActorID(ctx)
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.audit = append(s.data.audit, log)
	return nil
}

// AuditLogs returns committed audit records, optionally only those of action.
func (s *Store) AuditLogs(action string) []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shared.AuditLog
	for _, l := range s.data.audit {
		if action == "" || l.Action == action {
			out = append(out, l)
		}
	}
	return out
}

// CheckAndInsert implements shared.IdempotencyChecker.
func (s *Store) CheckAndInsert(_ context.Context, key, module string) error {
	if key == "" || module == "" {
		return errors.New("idempotency key and module required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.idem[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.data.idem[key] = s.now()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.idem, key)
	return nil
}

// Cleanup drops keys recorded before now minus olderThan.
func (s *Store) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	var removed int64
	for key, at := range s.data.idem {
		if at.Before(cutoff) {
			delete(s.data.idem, key)
			removed++
		}
	}
	return removed, nil
}

// Next implements salesshared.Sequencer with the PostgreSQL numbering rules.
func (s *Store) Next(_ context.Context, series string, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := series + "/" + at.Format("2006-01")
	s.data.sequences[key]++
	prefix := ""
	if series != salesshared.SeriesSales {
		prefix = series
	}
	return salesshared.FormatNumber(prefix, at, s.data.sequences[key]), nil
}

func page[T any](items []T, limit, offset, defaultLimit int) []T {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

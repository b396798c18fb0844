package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/cascade/internal/sales/invoices"
	"github.com/odyssey-erp/cascade/internal/sales/orders"
	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	"github.com/odyssey-erp/cascade/internal/shared"
)

func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// Quotations returns the quotations.Repository view of the store.
func (s *Store) Quotations() quotations.Repository {
	return quotationRepo{s}
}

type quotationRepo struct{ s *Store }

func (r quotationRepo) get(id int64) (quotations.Quotation, bool) {
	q, ok := r.s.data.quotations[id]
	if !ok {
		return quotations.Quotation{}, false
	}
	q.Lines = slices.Clone(r.s.data.quotationLines[id])
	return q, true
}

func (r quotationRepo) Get(_ context.Context, id int64) (quotations.Quotation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.get(id)
	if !ok {
		return quotations.Quotation{}, quotations.ErrNotFound
	}
	return q, nil
}

func (r quotationRepo) List(_ context.Context, filter quotations.ListFilter) ([]quotations.Quotation, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []quotations.Quotation
	for id, q := range r.s.data.quotations {
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if filter.CustomerCode != "" && q.CustomerCode != filter.CustomerCode {
			continue
		}
		if !matches(filter.Search, q.Number, q.CustomerCode) {
			continue
		}
		full, _ := r.get(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset, 20), len(out), nil
}

func (r quotationRepo) Create(_ context.Context, q *quotations.Quotation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.quotations {
		if existing.Number == q.Number {
			return fmt.Errorf("quotation number %s already used: %w", q.Number, shared.ErrConflict)
		}
	}
	q.ID = r.s.id()
	q.Version = 1
	q.CreatedAt = r.s.now()
	q.UpdatedAt = q.CreatedAt
	q.Lines = r.replaceLines(q.ID, q.Lines)
	header := *q
	header.Lines = nil
	r.s.data.quotations[q.ID] = header
	return nil
}

func (r quotationRepo) Update(_ context.Context, q *quotations.Quotation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.quotations[q.ID]
	if !ok || stored.Version != q.Version {
		return quotations.ErrVersionConflict
	}
	q.Version++
	q.UpdatedAt = r.s.now()
	header := *q
	header.Number, header.CustomerID, header.CustomerCode = stored.Number, stored.CustomerID, stored.CustomerCode
	header.CreatedBy, header.CreatedAt = stored.CreatedBy, stored.CreatedAt
	header.Lines = nil
	r.s.data.quotations[q.ID] = header
	return nil
}

func (r quotationRepo) ReplaceLines(_ context.Context, quotationID int64, lines []quotations.Line) ([]quotations.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.replaceLines(quotationID, lines), nil
}

func (r quotationRepo) replaceLines(quotationID int64, lines []quotations.Line) []quotations.Line {
	out := make([]quotations.Line, 0, len(lines))
	for _, l := range lines {
		l.ID = r.s.id()
		l.QuotationID = quotationID
		out = append(out, l)
	}
	r.s.data.quotationLines[quotationID] = out
	return slices.Clone(out)
}

func (r quotationRepo) DueForExpiry(_ context.Context, cutoff time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, q := range r.s.data.quotations {
		if q.Status != quotations.StatusPending && q.Status != quotations.StatusApproved {
			continue
		}
		if q.ValidUntil != nil && q.ValidUntil.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Orders returns the orders.Repository view of the store.
func (s *Store) Orders() orders.Repository {
	return orderRepo{s}
}

type orderRepo struct{ s *Store }

func (r orderRepo) get(id int64) (orders.SalesOrder, bool) {
	o, ok := r.s.data.orders[id]
	if !ok {
		return orders.SalesOrder{}, false
	}
	o.Lines = slices.Clone(r.s.data.orderLines[id])
	return o, true
}

func (r orderRepo) Get(_ context.Context, id int64) (orders.SalesOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.get(id)
	if !ok {
		return orders.SalesOrder{}, orders.ErrNotFound
	}
	return o, nil
}

func (r orderRepo) List(_ context.Context, filter orders.ListFilter) ([]orders.SalesOrder, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []orders.SalesOrder
	for id, o := range r.s.data.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.CustomerCode != "" && o.CustomerCode != filter.CustomerCode {
			continue
		}
		if filter.QuotationID > 0 && (o.QuotationID == nil || *o.QuotationID != filter.QuotationID) {
			continue
		}
		if !matches(filter.Search, o.Number, o.CustomerCode) {
			continue
		}
		full, _ := r.get(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset, 20), len(out), nil
}

func (r orderRepo) Create(_ context.Context, o *orders.SalesOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.orders {
		if existing.Number == o.Number {
			return fmt.Errorf("sales order number %s already used: %w", o.Number, shared.ErrConflict)
		}
	}
	o.ID = r.s.id()
	o.Version = 1
	o.CreatedAt = r.s.now()
	o.UpdatedAt = o.CreatedAt
	o.Lines = r.replaceLines(o.ID, o.Lines)
	header := *o
	header.Lines = nil
	r.s.data.orders[o.ID] = header
	return nil
}

func (r orderRepo) Update(_ context.Context, o *orders.SalesOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.orders[o.ID]
	if !ok || stored.Version != o.Version {
		return orders.ErrVersionConflict
	}
	o.Version++
	o.UpdatedAt = r.s.now()
	header := *o
	header.Number, header.QuotationID, header.CreatedBy, header.CreatedAt = stored.Number, stored.QuotationID, stored.CreatedBy, stored.CreatedAt
	header.Lines = nil
	r.s.data.orders[o.ID] = header
	return nil
}

func (r orderRepo) ReplaceLines(_ context.Context, salesOrderID int64, lines []orders.Line) ([]orders.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.replaceLines(salesOrderID, lines), nil
}

func (r orderRepo) replaceLines(salesOrderID int64, lines []orders.Line) []orders.Line {
	out := make([]orders.Line, 0, len(lines))
	for _, l := range lines {
		l.ID = r.s.id()
		l.SalesOrderID = salesOrderID
		out = append(out, l)
	}
	r.s.data.orderLines[salesOrderID] = out
	return slices.Clone(out)
}

// Invoices returns the invoices.Repository view of the store.
func (s *Store) Invoices() invoices.Repository {
	return invoiceRepo{s}
}

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) Create(_ context.Context, inv *invoices.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.invoices {
		if existing.SalesOrderID == inv.SalesOrderID || existing.Number == inv.Number {
			return invoices.ErrAlreadyInvoiced
		}
	}
	inv.ID = r.s.id()
	inv.CreatedAt = r.s.now()
	r.s.data.invoices[inv.ID] = *inv
	return nil
}

func (r invoiceRepo) Get(_ context.Context, id int64) (invoices.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.data.invoices[id]
	if !ok {
		return invoices.Invoice{}, invoices.ErrNotFound
	}
	return inv, nil
}

func (r invoiceRepo) GetBySalesOrder(_ context.Context, salesOrderID int64) (invoices.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.data.invoices {
		if inv.SalesOrderID == salesOrderID {
			return inv, nil
		}
	}
	return invoices.Invoice{}, invoices.ErrNotFound
}

func (r invoiceRepo) List(_ context.Context, filter invoices.ListFilter) ([]invoices.Invoice, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []invoices.Invoice
	for _, inv := range r.s.data.invoices {
		if filter.CustomerCode != "" && inv.CustomerCode != filter.CustomerCode {
			continue
		}
		if filter.PaymentStatus != "" && inv.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset, 20), len(out), nil
}

package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
)

// JobOrders returns the joborders.Repository view of the store.
func (s *Store) JobOrders() joborders.Repository {
	return jobOrderRepo{s}
}

type jobOrderRepo struct{ s *Store }

func (r jobOrderRepo) load(jo joborders.JobOrder) joborders.JobOrder {
	jo.Items = nil
	for _, it := range r.s.data.items {
		if it.JobOrderID != jo.ID {
			continue
		}
		it.Shipments = nil
		for _, sh := range r.s.data.shipments {
			if sh.ItemID == it.ID {
				it.Shipments = append(it.Shipments, sh)
			}
		}
		sort.Slice(it.Shipments, func(i, j int) bool { return it.Shipments[i].Slot < it.Shipments[j].Slot })
		jo.Items = append(jo.Items, it)
	}
	sort.Slice(jo.Items, func(i, j int) bool { return jo.Items[i].ID < jo.Items[j].ID })
	return jo
}

func (r jobOrderRepo) Create(_ context.Context, jo *joborders.JobOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	jo.ID = r.s.id()
	jo.Version = 1
	jo.CreatedAt = r.s.now()
	jo.UpdatedAt = jo.CreatedAt
	for i := range jo.Items {
		it := &jo.Items[i]
		it.ID = r.s.id()
		it.JobOrderID = jo.ID
		it.Version = 1
		stored := *it
		stored.Shipments, stored.Slots = nil, nil
		r.s.data.items[it.ID] = stored
	}
	header := *jo
	header.Items = nil
	r.s.data.jobOrders[jo.ID] = header
	return nil
}

func (r jobOrderRepo) Get(_ context.Context, id int64) (joborders.JobOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	jo, ok := r.s.data.jobOrders[id]
	if !ok {
		return joborders.JobOrder{}, joborders.ErrNotFound
	}
	return r.load(jo), nil
}

func (r jobOrderRepo) List(_ context.Context, filter joborders.ListFilter) ([]joborders.JobOrder, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []joborders.JobOrder
	for _, jo := range r.s.data.jobOrders {
		if filter.SalesOrderID > 0 && jo.SalesOrderID != filter.SalesOrderID {
			continue
		}
		if filter.Status != "" && jo.Status != filter.Status {
			continue
		}
		if !matches(filter.Search, jo.Number, jo.CustomerCode) {
			continue
		}
		out = append(out, jo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset, 20), len(out), nil
}

func (r jobOrderRepo) ListBySalesOrder(_ context.Context, salesOrderID int64) ([]joborders.JobOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []joborders.JobOrder
	for _, jo := range r.s.data.jobOrders {
		if jo.SalesOrderID == salesOrderID {
			out = append(out, r.load(jo))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r jobOrderRepo) Update(_ context.Context, jo *joborders.JobOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.jobOrders[jo.ID]
	if !ok || stored.Version != jo.Version {
		return joborders.ErrVersionConflict
	}
	jo.Version++
	jo.UpdatedAt = r.s.now()
	stored.Status, stored.DueDate, stored.Instructions = jo.Status, jo.DueDate, jo.Instructions
	stored.Version, stored.UpdatedAt = jo.Version, jo.UpdatedAt
	r.s.data.jobOrders[jo.ID] = stored
	return nil
}

func (r jobOrderRepo) UpdateItem(_ context.Context, item *joborders.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.items[item.ID]
	if !ok || stored.Version != item.Version {
		return joborders.ErrVersionConflict
	}
	item.Version++
	stored.ReservedQuantity, stored.Version = item.ReservedQuantity, item.Version
	r.s.data.items[item.ID] = stored
	return nil
}

func (r jobOrderRepo) UpsertShipment(_ context.Context, sh joborders.Shipment) (joborders.Shipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.data.shipments {
		if existing.ItemID == sh.ItemID && existing.Slot == sh.Slot {
			sh.ID = id
			r.s.data.shipments[id] = sh
			return sh, nil
		}
	}
	sh.ID = r.s.id()
	r.s.data.shipments[sh.ID] = sh
	return sh, nil
}

func (r jobOrderRepo) DeleteShipment(_ context.Context, itemID int64, slot int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.data.shipments {
		if existing.ItemID == itemID && existing.Slot == slot {
			delete(r.s.data.shipments, id)
		}
	}
	return nil
}

// Delivery returns the delivery.Repository view of the store.
func (s *Store) Delivery() delivery.Repository {
	return deliveryRepo{s}
}

type deliveryRepo struct{ s *Store }

func (r deliveryRepo) header(rec delivery.Receipt) delivery.Receipt {
	if jo, ok := r.s.data.jobOrders[rec.JobOrderID]; ok {
		rec.JobOrderNumber, rec.SalesOrderID, rec.CustomerCode = jo.Number, jo.SalesOrderID, jo.CustomerCode
	}
	rec.Lines = nil
	return rec
}

func (r deliveryRepo) Create(_ context.Context, rec *delivery.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec.ID = r.s.id()
	rec.CreatedAt = r.s.now()
	stored := *rec
	stored.Lines = nil
	r.s.data.receipts[rec.ID] = stored
	return nil
}

func (r deliveryRepo) InsertLines(_ context.Context, receiptID int64, lines []delivery.Line) ([]delivery.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := slices.Clone(r.s.data.receiptLines[receiptID])
	for _, l := range lines {
		l.ID = r.s.id()
		l.ReceiptID = receiptID
		out = append(out, l)
	}
	r.s.data.receiptLines[receiptID] = out
	return slices.Clone(out), nil
}

func (r deliveryRepo) Get(_ context.Context, id int64) (delivery.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.data.receipts[id]
	if !ok {
		return delivery.Receipt{}, delivery.ErrNotFound
	}
	rec = r.header(rec)
	rec.Lines = slices.Clone(r.s.data.receiptLines[id])
	return rec, nil
}

func (r deliveryRepo) List(_ context.Context, filter delivery.ListFilter) ([]delivery.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []delivery.Receipt
	for _, rec := range r.s.data.receipts {
		if filter.JobOrderID > 0 && rec.JobOrderID != filter.JobOrderID {
			continue
		}
		out = append(out, r.header(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Limit, filter.Offset, 50), nil
}

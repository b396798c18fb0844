package joborders

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/odyssey-erp/cascade/internal/observability"
	"github.com/odyssey-erp/cascade/internal/platform/cache"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
)

// StockPort is the part of the warehouse ledger driven by job orders.
type StockPort interface {
	Ship(ctx context.Context, req warehouse.ShipRequest) error
	ReceiveProduction(ctx context.Context, req warehouse.ProductionRequest) (warehouse.Allocation, error)
}

type Config struct {
	MaxShipmentSlots int
}

type Service struct {
	repo    Repository
	stock   StockPort
	tx      shared.TxRunner
	audit   shared.AuditPort
	metrics *observability.Metrics
	cache   *cache.Versioned
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, stock StockPort, tx shared.TxRunner, audit shared.AuditPort, metrics *observability.Metrics, receipts *cache.Versioned, cfg Config, logger *slog.Logger) *Service {
	if tx == nil {
		tx = shared.DirectRunner{}
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if cfg.MaxShipmentSlots <= 0 {
		cfg.MaxShipmentSlots = DefaultMaxShipmentSlots
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, tx: tx, audit: audit, metrics: metrics, cache: receipts, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// MaxShipmentSlots returns the configured slot cap.
func (s *Service) MaxShipmentSlots() int {
	return s.cfg.MaxShipmentSlots
}

// Generate creates the job order of a confirmed sales order. When the sales
// order already has an active job order, that one is returned and created is false.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (jo JobOrder, created bool, err error) {
	if len(req.Lines) == 0 {
		return JobOrder{}, false, fmt.Errorf("%w: job order needs at least one line", shared.ErrValidation)
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.ListBySalesOrder(ctx, req.SalesOrderID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Status != StatusCancelled {
				jo = e
				return nil
			}
		}
		jo = JobOrder{
			Number:       req.Number,
			SalesOrderID: req.SalesOrderID,
			CustomerCode: req.CustomerCode,
			Revision:     req.Revision,
			Status:       StatusPending,
			DueDate:      req.DueDate,
			Instructions: req.Instructions,
		}
		for _, l := range req.Lines {
			jo.Items = append(jo.Items, Item{
				SalesOrderLineID: l.SalesOrderLineID,
				ProductID:        l.ProductID,
				ProductName:      l.ProductName,
				Specification:    l.Specification,
				OrderQuantity:    l.OrderQuantity,
				ReservedQuantity: math.Min(l.ReservedQuantity, l.OrderQuantity),
			})
		}
		if err := s.repo.Create(ctx, &jo); err != nil {
			return fmt.Errorf("create job order: %w", err)
		}
		created = true
		return s.record(ctx, "job_order.generate", jo, map[string]any{"sales_order_id": req.SalesOrderID})
	})
	if err != nil {
		return JobOrder{}, false, err
	}
	jo.Refresh(s.cfg.MaxShipmentSlots)
	if created {
		s.metrics.Transition("job_order", string(StatusPending))
		s.logger.Info("job order generated", slog.Int64("id", jo.ID), slog.String("number", jo.Number))
	}
	return jo, created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (JobOrder, error) {
	jo, err := s.repo.Get(ctx, id)
	if err != nil {
		return JobOrder{}, err
	}
	jo.Refresh(s.cfg.MaxShipmentSlots)
	return jo, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]JobOrder, int, error) {
	return s.repo.List(ctx, filter)
}

// ListBySalesOrder returns every job order of a sales order with items.
func (s *Service) ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]JobOrder, error) {
	orders, err := s.repo.ListBySalesOrder(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Refresh(s.cfg.MaxShipmentSlots)
	}
	return orders, nil
}

// ShippedByLine sums shipments of a sales order's job orders per sales order line.
func (s *Service) ShippedByLine(ctx context.Context, salesOrderID int64) (map[int64]float64, error) {
	orders, err := s.ListBySalesOrder(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}
	shipped := make(map[int64]float64)
	for _, jo := range orders {
		for _, it := range jo.Items {
			shipped[it.SalesOrderLineID] += it.ShippedQuantity
		}
	}
	return shipped, nil
}

// UpdateShipment sets one shipment slot of an item. Quantity zero clears the
// slot. Slots written by a delivery receipt are read-only. The shipped total may never exceed the reserved quantity, and the
// change in shipped quantity leaves or returns to the RESERVED pool.
func (s *Service) UpdateShipment(ctx context.Context, jobOrderID, itemID int64, req UpdateShipmentRequest) (Item, error) {
	if req.ShipmentNumber < 1 || req.ShipmentNumber > s.cfg.MaxShipmentSlots {
		return Item{}, fmt.Errorf("%w: %d not in 1..%d", ErrShipmentSlotOutOfRange, req.ShipmentNumber, s.cfg.MaxShipmentSlots)
	}
	if req.Quantity < 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return Item{}, fmt.Errorf("%w: quantity must not be negative", shared.ErrValidation)
	}
	var result Item
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		jo, item, err := s.loadItem(ctx, jobOrderID, itemID, req.Version)
		if err != nil {
			return err
		}
		if jo.Status == StatusCancelled {
			return fmt.Errorf("%w: job order is cancelled", ErrInvalidStatus)
		}
		current, exists := item.Shipment(req.ShipmentNumber)
		if exists && current.DeliveryReceiptID != nil {
			return fmt.Errorf("%w: slot %d, receipt %d", ErrShipmentSlotLocked, req.ShipmentNumber, *current.DeliveryReceiptID)
		}
		q := Derive(item.OrderQuantity, item.ReservedQuantity, item.Shipments)
		shipped := q.ShippedQuantity - current.Quantity + req.Quantity
		if shipped > item.ReservedQuantity+epsilon {
			return fmt.Errorf("%w: shipped %.2f would exceed reserved %.2f", ErrInsufficientReady, shipped, item.ReservedQuantity)
		}
		delta := req.Quantity - current.Quantity
		if err := s.stock.Ship(ctx, warehouse.ShipRequest{
			ProductID: item.ProductID,
			Quantity:  delta,
			RefType:   "job_order",
			RefID:     jo.ID,
		}); err != nil {
			return err
		}
		switch {
		case req.Quantity == 0 && exists:
			if err := s.repo.DeleteShipment(ctx, item.ID, req.ShipmentNumber); err != nil {
				return err
			}
			item.Shipments = removeSlot(item.Shipments, req.ShipmentNumber)
		case req.Quantity > 0:
			saved, err := s.repo.UpsertShipment(ctx, Shipment{
				ItemID:    item.ID,
				Slot:      req.ShipmentNumber,
				Quantity:  req.Quantity,
				ShippedAt: s.now(),
			})
			if err != nil {
				return err
			}
			item.Shipments = append(removeSlot(item.Shipments, req.ShipmentNumber), saved)
		}
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return err
		}
		if err := s.settleStatus(ctx, &jo); err != nil {
			return err
		}
		item.Refresh(s.cfg.MaxShipmentSlots)
		result = *item
		return s.record(ctx, "job_order.shipment", jo, map[string]any{
			"item_id":  item.ID,
			"slot":     req.ShipmentNumber,
			"quantity": req.Quantity,
		})
	})
	if err != nil {
		return Item{}, err
	}
	s.metrics.Shipment("slot")
	s.invalidate(ctx)
	return result, nil
}

// RecordDelivery appends the delivered quantities to the next free slot of each
// item. Without lines it delivers the whole ready quantity of every item.
func (s *Service) RecordDelivery(ctx context.Context, jobOrderID int64, receiptID int64, lines []DeliveryLine) ([]Delivered, error) {
	var out []Delivered
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		jo, err := s.repo.Get(ctx, jobOrderID)
		if err != nil {
			return err
		}
		if jo.Status == StatusCancelled || jo.Status == StatusCompleted {
			return fmt.Errorf("%w: cannot deliver a %s job order", ErrInvalidStatus, jo.Status)
		}
		if len(lines) == 0 {
			for _, it := range jo.Items {
				if ready := Derive(it.OrderQuantity, it.ReservedQuantity, it.Shipments).ReadyQuantity; ready > epsilon {
					lines = append(lines, DeliveryLine{ItemID: it.ID, Quantity: ready})
				}
			}
			if len(lines) == 0 {
				return ErrNothingReady
			}
		}
		var receiptRef *int64
		if receiptID > 0 {
			receiptRef = &receiptID
		}
		for _, line := range lines {
			item, ok := jo.Item(line.ItemID)
			if !ok {
				return fmt.Errorf("%w: %d", ErrItemNotFound, line.ItemID)
			}
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: delivery quantity must be positive", shared.ErrValidation)
			}
			ready := Derive(item.OrderQuantity, item.ReservedQuantity, item.Shipments).ReadyQuantity
			if ready <= epsilon {
				return fmt.Errorf("%w: item %d", ErrNothingReady, item.ID)
			}
			if line.Quantity > ready+epsilon {
				return fmt.Errorf("%w: item %d has %.2f ready, asked %.2f", ErrInsufficientReady, item.ID, ready, line.Quantity)
			}
			slot, ok := item.NextFreeSlot(s.cfg.MaxShipmentSlots)
			if !ok {
				return fmt.Errorf("%w: item %d", ErrShipmentSlotsFull, item.ID)
			}
			if err := s.stock.Ship(ctx, warehouse.ShipRequest{
				ProductID: item.ProductID,
				Quantity:  line.Quantity,
				RefType:   "delivery_receipt",
				RefID:     receiptID,
			}); err != nil {
				return err
			}
			saved, err := s.repo.UpsertShipment(ctx, Shipment{
				ItemID:            item.ID,
				Slot:              slot,
				Quantity:          line.Quantity,
				ShippedAt:         s.now(),
				DeliveryReceiptID: receiptRef,
			})
			if err != nil {
				return err
			}
			item.Shipments = append(item.Shipments, saved)
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return err
			}
			item.Refresh(s.cfg.MaxShipmentSlots)
			out = append(out, Delivered{Item: *item, Shipment: saved})
		}
		if err := s.settleStatus(ctx, &jo); err != nil {
			return err
		}
		return s.record(ctx, "job_order.delivery", jo, map[string]any{"receipt_id": receiptID, "lines": len(out)})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Shipment("delivery_receipt")
	s.invalidate(ctx)
	return out, nil
}

// ReceiveProduction books finished goods of an item from WIP into RESERVED.
func (s *Service) ReceiveProduction(ctx context.Context, jobOrderID, itemID int64, req ProductionReceiptRequest) (Item, error) {
	if req.Quantity <= 0 {
		return Item{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var result Item
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		jo, item, err := s.loadItem(ctx, jobOrderID, itemID, req.Version)
		if err != nil {
			return err
		}
		if !jo.Status.Active() {
			return fmt.Errorf("%w: job order is %s", ErrInvalidStatus, jo.Status)
		}
		if item.ReservedQuantity+req.Quantity > item.OrderQuantity+epsilon {
			return fmt.Errorf("%w: %.2f reserved of %.2f ordered", ErrExceedsOrder, item.ReservedQuantity, item.OrderQuantity)
		}
		if _, err := s.stock.ReceiveProduction(ctx, warehouse.ProductionRequest{
			SalesOrderID:     jo.SalesOrderID,
			SalesOrderLineID: item.SalesOrderLineID,
			ProductID:        item.ProductID,
			Quantity:         req.Quantity,
			RefID:            jo.ID,
		}); err != nil {
			return err
		}
		item.ReservedQuantity += req.Quantity
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return err
		}
		item.Refresh(s.cfg.MaxShipmentSlots)
		result = *item
		return s.record(ctx, "job_order.production_receipt", jo, map[string]any{"item_id": item.ID, "quantity": req.Quantity})
	})
	if err != nil {
		return Item{}, err
	}
	s.invalidate(ctx)
	return result, nil
}

// StartProduction moves a pending or paused job order into production.
func (s *Service) StartProduction(ctx context.Context, id int64, req TransitionRequest) (JobOrder, error) {
	return s.transition(ctx, id, req, "job_order.start", func(jo *JobOrder) error {
		if jo.Status != StatusPending && jo.Status != StatusPaused {
			return fmt.Errorf("%w: cannot start from %s", ErrInvalidStatus, jo.Status)
		}
		jo.Status = StatusInProduction
		return nil
	})
}

// PauseProduction pauses a job order in production.
func (s *Service) PauseProduction(ctx context.Context, id int64, req TransitionRequest) (JobOrder, error) {
	return s.transition(ctx, id, req, "job_order.pause", func(jo *JobOrder) error {
		if jo.Status != StatusInProduction {
			return fmt.Errorf("%w: cannot pause from %s", ErrInvalidStatus, jo.Status)
		}
		jo.Status = StatusPaused
		return nil
	})
}

// CompleteProduction closes a job order in production.
func (s *Service) CompleteProduction(ctx context.Context, id int64, req TransitionRequest) (JobOrder, error) {
	return s.transition(ctx, id, req, "job_order.complete", func(jo *JobOrder) error {
		if jo.Status != StatusInProduction && jo.Status != StatusPaused {
			return fmt.Errorf("%w: cannot complete from %s", ErrInvalidStatus, jo.Status)
		}
		jo.Status = StatusCompleted
		return nil
	})
}

// CancelBySalesOrder cancels every job order of a sales order that is not
// already cancelled and returns how many changed.
func (s *Service) CancelBySalesOrder(ctx context.Context, salesOrderID int64) (int, error) {
	cancelled := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		orders, err := s.repo.ListBySalesOrder(ctx, salesOrderID)
		if err != nil {
			return err
		}
		for i := range orders {
			jo := &orders[i]
			if jo.Status == StatusCancelled {
				continue
			}
			jo.Status = StatusCancelled
			if err := s.repo.Update(ctx, jo); err != nil {
				return err
			}
			if err := s.record(ctx, "job_order.cancel", *jo, map[string]any{"sales_order_id": salesOrderID}); err != nil {
				return err
			}
			cancelled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := 0; i < cancelled; i++ {
		s.metrics.Transition("job_order", string(StatusCancelled))
	}
	if cancelled > 0 {
		s.invalidate(ctx)
	}
	return cancelled, nil
}

// Receipt returns the printable projection of a job order, served from cache
// until the next change to any job order.
func (s *Service) Receipt(ctx context.Context, id int64) (Receipt, error) {
	key, err := s.cache.Key(ctx, "receipt", strconv.FormatInt(id, 10))
	if err != nil {
		s.logger.Warn("receipt cache key", slog.Any("error", err))
		return s.buildReceipt(ctx, id)
	}
	var out Receipt
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.buildReceipt(ctx, id)
	})
	return out, err
}

func (s *Service) buildReceipt(ctx context.Context, id int64) (Receipt, error) {
	jo, err := s.Get(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	return NewReceipt(jo, s.cfg.MaxShipmentSlots, s.now()), nil
}

func (s *Service) transition(ctx context.Context, id int64, req TransitionRequest, action string, apply func(*JobOrder) error) (JobOrder, error) {
	var jo JobOrder
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		jo, err = s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Version != nil && *req.Version != jo.Version {
			return fmt.Errorf("%w: expected version %d, found %d", ErrVersionConflict, *req.Version, jo.Version)
		}
		if err := apply(&jo); err != nil {
			return err
		}
		if req.Instructions != nil {
			jo.Instructions = *req.Instructions
		}
		if err := s.repo.Update(ctx, &jo); err != nil {
			return err
		}
		return s.record(ctx, action, jo, nil)
	})
	if err != nil {
		return JobOrder{}, err
	}
	jo.Refresh(s.cfg.MaxShipmentSlots)
	s.metrics.Transition("job_order", string(jo.Status))
	s.invalidate(ctx)
	return jo, nil
}

// settleStatus completes a fully shipped job order and reopens a completed one
// whose shipments were corrected down.
func (s *Service) settleStatus(ctx context.Context, jo *JobOrder) error {
	next := jo.Status
	switch {
	case jo.FullyShipped() && jo.Status.Active():
		next = StatusCompleted
	case !jo.FullyShipped() && jo.Status == StatusCompleted:
		next = StatusInProduction
	}
	if next == jo.Status {
		return nil
	}
	jo.Status = next
	if err := s.repo.Update(ctx, jo); err != nil {
		return err
	}
	s.metrics.Transition("job_order", string(next))
	return nil
}

func (s *Service) loadItem(ctx context.Context, jobOrderID, itemID int64, version *int64) (JobOrder, *Item, error) {
	jo, err := s.repo.Get(ctx, jobOrderID)
	if err != nil {
		return JobOrder{}, nil, err
	}
	item, ok := jo.Item(itemID)
	if !ok {
		return JobOrder{}, nil, fmt.Errorf("%w: %d on job order %d", ErrItemNotFound, itemID, jobOrderID)
	}
	if version != nil && *version != item.Version {
		return JobOrder{}, nil, fmt.Errorf("%w: item expected version %d, found %d", ErrVersionConflict, *version, item.Version)
	}
	return jo, item, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump receipt cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, jo JobOrder, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = jo.Number
	meta["status"] = string(jo.Status)
	return s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "job_order",
		EntityID: strconv.FormatInt(jo.ID, 10),
		Meta:     meta,
	})
}

func removeSlot(shipments []Shipment, slot int) []Shipment {
	out := shipments[:0:0]
	for _, s := range shipments {
		if s.Slot != slot {
			out = append(out, s)
		}
	}
	return out
}

package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/cascade/internal/observability"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/sales/invoices"
	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	salesshared "github.com/odyssey-erp/cascade/internal/sales/shared"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
)

// QuotationPort closes quotations converted into sales orders.
type QuotationPort interface {
	MarkConverted(ctx context.Context, id int64) (quotations.Quotation, error)
}

// StockPort reserves and releases stock for sales orders.
type StockPort interface {
	Reserve(ctx context.Context, req warehouse.ReserveRequest) (warehouse.Reservation, error)
	Release(ctx context.Context, req warehouse.ReleaseRequest) (map[int64]float64, error)
	Allocations(ctx context.Context, salesOrderID int64) ([]warehouse.Allocation, error)
}

// JobOrderPort drives the job orders of a sales order.
type JobOrderPort interface {
	Generate(ctx context.Context, req joborders.GenerateRequest) (joborders.JobOrder, bool, error)
	ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]joborders.JobOrder, error)
	ShippedByLine(ctx context.Context, salesOrderID int64) (map[int64]float64, error)
	CancelBySalesOrder(ctx context.Context, salesOrderID int64) (int, error)
}

// InvoicePort issues invoices.
type InvoicePort interface {
	Generate(ctx context.Context, d invoices.Draft) (invoices.Invoice, error)
}

type Config struct {
	// AutoGenerateJobOrder creates the job order as part of confirmation.
	AutoGenerateJobOrder bool
}

type Service struct {
	repo       Repository
	seq        salesshared.Sequencer
	quotations QuotationPort
	stock      StockPort
	jobs       JobOrderPort
	invoices   InvoicePort
	tx         shared.TxRunner
	audit      shared.AuditPort
	metrics    *observability.Metrics
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo       Repository
	Sequencer  salesshared.Sequencer
	Quotations QuotationPort
	Stock      StockPort
	JobOrders  JobOrderPort
	Invoices   InvoicePort
	Tx         shared.TxRunner
	Audit      shared.AuditPort
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		repo:       deps.Repo,
		seq:        deps.Sequencer,
		quotations: deps.Quotations,
		stock:      deps.Stock,
		jobs:       deps.JobOrders,
		invoices:   deps.Invoices,
		tx:         deps.Tx,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     deps.Logger,
		now:        time.Now,
	}
	if s.tx == nil {
		s.tx = shared.DirectRunner{}
	}
	if s.audit == nil {
		s.audit = shared.NopAudit{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (SalesOrder, error) {
	o := SalesOrder{
		CustomerID:   req.CustomerID,
		CustomerCode: req.CustomerCode,
		Country:      req.Country,
		Revision:     "R0",
		Status:       StatusDraft,
		DueDate:      req.DueDate,
		Notes:        req.Notes,
		ShippingFee:  req.ShippingFee,
		BankCharge:   req.BankCharge,
		Discount:     req.Discount,
		Others:       req.Others,
		CreatedBy:    shared.ActorID(ctx),
		Lines:        linesFromRequest(req.Lines),
	}
	o.Recalculate()
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		number, err := s.seq.Next(ctx, salesshared.SeriesSales, s.now())
		if err != nil {
			return err
		}
		o.Number = number
		if err := s.repo.Create(ctx, &o); err != nil {
			return fmt.Errorf("create sales order: %w", err)
		}
		return s.record(ctx, "sales_order.create", o, nil)
	})
	if err != nil {
		return SalesOrder{}, err
	}
	return o, nil
}

// ConvertFromQuotation creates a draft sales order from an approved quotation,
// keeping its number and revision, and marks the quotation converted.
func (s *Service) ConvertFromQuotation(ctx context.Context, quotationID int64, req ConvertRequest) (SalesOrder, error) {
	var o SalesOrder
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		q, err := s.quotations.MarkConverted(ctx, quotationID)
		if err != nil {
			return err
		}
		qid := q.ID
		o = SalesOrder{
			Number:       q.Number,
			QuotationID:  &qid,
			CustomerID:   q.CustomerID,
			CustomerCode: q.CustomerCode,
			Country:      q.Country,
			Revision:     q.Revision,
			Status:       StatusDraft,
			DueDate:      req.DueDate,
			Notes:        q.Notes,
			ShippingFee:  q.ShippingFee,
			BankCharge:   q.BankCharge,
			Discount:     q.Discount,
			Others:       q.Others,
			CreatedBy:    shared.ActorID(ctx),
		}
		for _, l := range q.Lines {
			o.Lines = append(o.Lines, Line{
				ProductID:     l.ProductID,
				ProductName:   l.ProductName,
				Specification: l.Specification,
				Quantity:      l.Quantity,
				UnitPrice:     l.UnitPrice,
				LineOrder:     l.LineOrder,
			})
		}
		o.Recalculate()
		if err := s.repo.Create(ctx, &o); err != nil {
			return fmt.Errorf("create sales order: %w", err)
		}
		return s.record(ctx, "sales_order.convert", o, map[string]any{"quotation_id": q.ID})
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.logger.Info("quotation converted", slog.Int64("quotation_id", quotationID), slog.Int64("sales_order_id", o.ID))
	return o, nil
}

func (s *Service) Get(ctx context.Context, id int64) (SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	return s.repo.List(ctx, filter)
}

// Update edits a draft sales order.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (SalesOrder, error) {
	var o SalesOrder
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.load(ctx, id, req.Version)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft {
			return fmt.Errorf("%w: only draft orders can be edited, got %s", ErrInvalidStatus, o.Status)
		}
		if req.Country != nil {
			o.Country = *req.Country
		}
		if req.DueDate != nil {
			o.DueDate = req.DueDate
		}
		if req.Notes != nil {
			o.Notes = *req.Notes
		}
		if req.ShippingFee != nil {
			o.ShippingFee = *req.ShippingFee
		}
		if req.BankCharge != nil {
			o.BankCharge = *req.BankCharge
		}
		if req.Discount != nil {
			o.Discount = *req.Discount
		}
		if req.Others != nil {
			o.Others = *req.Others
		}
		if req.Lines != nil {
			o.Lines = linesFromRequest(*req.Lines)
		}
		o.Recalculate()
		if err := s.repo.Update(ctx, &o); err != nil {
			return err
		}
		if req.Lines != nil {
			lines, err := s.repo.ReplaceLines(ctx, o.ID, o.Lines)
			if err != nil {
				return err
			}
			o.Lines = lines
		}
		return s.record(ctx, "sales_order.update", o, nil)
	})
	if err != nil {
		return SalesOrder{}, err
	}
	return o, nil
}

// Confirm is the one-way gate from draft to confirmed. It reserves stock for
// every line and, when configured, generates the job order in the same unit.
func (s *Service) Confirm(ctx context.Context, id int64, req TransitionRequest) (ConfirmResult, error) {
	var result ConfirmResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id, req.Version)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft || o.IsConfirmed {
			return fmt.Errorf("%w: cannot confirm from %s", ErrInvalidStatus, o.Status)
		}
		lines := make([]warehouse.ReserveLine, 0, len(o.Lines))
		for _, l := range o.Lines {
			lines = append(lines, warehouse.ReserveLine{SalesOrderLineID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity})
		}
		reservation, err := s.stock.Reserve(ctx, warehouse.ReserveRequest{SalesOrderID: o.ID, Lines: lines})
		if err != nil {
			return err
		}
		now := s.now()
		actor := shared.ActorID(ctx)
		o.Status = StatusConfirmed
		o.IsConfirmed = true
		o.ConfirmedAt = &now
		o.ConfirmedBy = &actor
		if err := s.repo.Update(ctx, &o); err != nil {
			return err
		}
		result.SalesOrder = o
		if s.cfg.AutoGenerateJobOrder {
			jo, _, err := s.jobs.Generate(ctx, generateRequest(o, reservedByLine(reservation.Allocations)))
			if err != nil {
				return err
			}
			result.JobOrder = &jo
		}
		return s.record(ctx, "sales_order.confirm", o, map[string]any{"reserved": reservation.Reserved})
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	s.metrics.Transition("sales_order", string(StatusConfirmed))
	s.logger.Info("sales order confirmed", slog.Int64("id", id), slog.Bool("job_order", result.JobOrder != nil))
	return result, nil
}

// Cancel cancels a draft or confirmed sales order. A confirmed order gives
// back its unshipped reservation and cancels its job orders.
func (s *Service) Cancel(ctx context.Context, id int64, req TransitionRequest) (CancelResult, error) {
	var result CancelResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id, req.Version)
		if err != nil {
			return err
		}
		switch o.Status {
		case StatusDraft:
		case StatusConfirmed:
			shipped, err := s.jobs.ShippedByLine(ctx, o.ID)
			if err != nil {
				return err
			}
			released, err := s.stock.Release(ctx, warehouse.ReleaseRequest{SalesOrderID: o.ID, Shipped: shipped})
			if err != nil {
				return err
			}
			result.Released = released
			if result.CancelledJobOrders, err = s.jobs.CancelBySalesOrder(ctx, o.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidStatus, o.Status)
		}
		now := s.now()
		actor := shared.ActorID(ctx)
		o.Status = StatusCancelled
		o.CancelledAt = &now
		o.CancelledBy = &actor
		o.CancellationReason = req.Reason
		if err := s.repo.Update(ctx, &o); err != nil {
			return err
		}
		result.SalesOrder = o
		return s.record(ctx, "sales_order.cancel", o, map[string]any{
			"released":             result.Released,
			"cancelled_job_orders": result.CancelledJobOrders,
		})
	})
	if err != nil {
		return CancelResult{}, err
	}
	if result.Released == nil {
		result.Released = map[int64]float64{}
	}
	s.metrics.Transition("sales_order", string(StatusCancelled))
	return result, nil
}

// Complete closes a confirmed order whose job orders are all completed.
func (s *Service) Complete(ctx context.Context, id int64, req TransitionRequest) (SalesOrder, error) {
	var o SalesOrder
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.load(ctx, id, req.Version)
		if err != nil {
			return err
		}
		if o.Status != StatusConfirmed {
			return fmt.Errorf("%w: cannot complete from %s", ErrInvalidStatus, o.Status)
		}
		jobs, err := s.jobs.ListBySalesOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, jo := range jobs {
			if jo.Status != joborders.StatusCompleted && jo.Status != joborders.StatusCancelled {
				return fmt.Errorf("%w: job order %s is %s", ErrOpenJobOrders, jo.Number, jo.Status)
			}
		}
		now := s.now()
		o.Status = StatusCompleted
		o.CompletedAt = &now
		if err := s.repo.Update(ctx, &o); err != nil {
			return err
		}
		return s.record(ctx, "sales_order.complete", o, nil)
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.metrics.Transition("sales_order", string(StatusCompleted))
	return o, nil
}

// GenerateInvoice issues the invoice of a confirmed order under the order's number.
func (s *Service) GenerateInvoice(ctx context.Context, id int64) (InvoiceResult, error) {
	var result InvoiceResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !o.IsConfirmed || o.Status == StatusCancelled {
			return fmt.Errorf("%w: status %s", ErrNotConfirmed, o.Status)
		}
		inv, err := s.invoices.Generate(ctx, invoices.Draft{
			SalesOrderID: o.ID,
			Number:       o.Number,
			CustomerID:   o.CustomerID,
			CustomerCode: o.CustomerCode,
			Subtotal:     o.Subtotal,
			ShippingFee:  o.ShippingFee,
			BankCharge:   o.BankCharge,
			Discount:     o.Discount,
			Others:       o.Others,
			Total:        o.Total,
			DueDate:      o.DueDate,
		})
		if err != nil {
			return err
		}
		result = InvoiceResult{InvoiceNumber: inv.Number, Invoice: inv}
		return nil
	})
	return result, err
}

// GenerateJobOrder returns the active job order of a confirmed sales order,
// creating it from the reservation when there is none.
func (s *Service) GenerateJobOrder(ctx context.Context, id int64) (JobOrderResult, error) {
	var result JobOrderResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusConfirmed {
			return fmt.Errorf("%w: status %s", ErrNotConfirmed, o.Status)
		}
		allocs, err := s.stock.Allocations(ctx, o.ID)
		if err != nil {
			return err
		}
		jo, created, err := s.jobs.Generate(ctx, generateRequest(o, reservedByLine(allocs)))
		if err != nil {
			return err
		}
		result = JobOrderResult{JobOrder: jo, Created: created}
		return nil
	})
	return result, err
}

// Duplicate copies a sales order as a new draft with a new number.
func (s *Service) Duplicate(ctx context.Context, id int64) (SalesOrder, error) {
	var dup SalesOrder
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		src, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		number, err := s.seq.Next(ctx, salesshared.SeriesSales, s.now())
		if err != nil {
			return err
		}
		dup = SalesOrder{
			Number:       number,
			CustomerID:   src.CustomerID,
			CustomerCode: src.CustomerCode,
			Country:      src.Country,
			Revision:     "R0",
			Status:       StatusDraft,
			DueDate:      src.DueDate,
			Notes:        src.Notes,
			ShippingFee:  src.ShippingFee,
			BankCharge:   src.BankCharge,
			Discount:     src.Discount,
			Others:       src.Others,
			CreatedBy:    shared.ActorID(ctx),
		}
		for _, l := range src.Lines {
			l.ID, l.SalesOrderID = 0, 0
			dup.Lines = append(dup.Lines, l)
		}
		dup.Recalculate()
		if err := s.repo.Create(ctx, &dup); err != nil {
			return fmt.Errorf("duplicate sales order: %w", err)
		}
		return s.record(ctx, "sales_order.duplicate", dup, map[string]any{"source_id": src.ID})
	})
	if err != nil {
		return SalesOrder{}, err
	}
	return dup, nil
}

func (s *Service) load(ctx context.Context, id int64, version *int64) (SalesOrder, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return SalesOrder{}, err
	}
	if version != nil && *version != o.Version {
		return SalesOrder{}, fmt.Errorf("%w: expected version %d, found %d", ErrVersionConflict, *version, o.Version)
	}
	return o, nil
}

func (s *Service) record(ctx context.Context, action string, o SalesOrder, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = o.Number
	meta["status"] = string(o.Status)
	return s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "sales_order",
		EntityID: strconv.FormatInt(o.ID, 10),
		Meta:     meta,
	})
}

func reservedByLine(allocs []warehouse.Allocation) map[int64]float64 {
	reserved := make(map[int64]float64)
	for _, a := range allocs {
		reserved[a.SalesOrderLineID] += a.Quantity
	}
	return reserved
}

func generateRequest(o SalesOrder, reserved map[int64]float64) joborders.GenerateRequest {
	req := joborders.GenerateRequest{
		SalesOrderID: o.ID,
		Number:       o.Number,
		CustomerCode: o.CustomerCode,
		Revision:     o.Revision,
		DueDate:      o.DueDate,
		Instructions: o.Notes,
	}
	for _, l := range o.Lines {
		req.Lines = append(req.Lines, joborders.GenerateLine{
			SalesOrderLineID: l.ID,
			ProductID:        l.ProductID,
			ProductName:      l.ProductName,
			Specification:    l.Specification,
			OrderQuantity:    l.Quantity,
			ReservedQuantity: reserved[l.ID],
		})
	}
	return req
}

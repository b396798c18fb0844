package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/cascade/internal/shared"
)

type Service struct {
	repo   Repository
	tx     shared.TxRunner
	audit  shared.AuditPort
	logger *slog.Logger
}

func NewService(repo Repository, tx shared.TxRunner, audit shared.AuditPort, logger *slog.Logger) *Service {
	if tx == nil {
		tx = shared.DirectRunner{}
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tx: tx, audit: audit, logger: logger}
}

// Generate issues the single invoice of a sales order.
func (s *Service) Generate(ctx context.Context, d Draft) (Invoice, error) {
	if d.SalesOrderID == 0 || d.Number == "" {
		return Invoice{}, fmt.Errorf("%w: sales order and number required", shared.ErrValidation)
	}
	inv := Invoice{
		Number:        d.Number,
		SalesOrderID:  d.SalesOrderID,
		CustomerID:    d.CustomerID,
		CustomerCode:  d.CustomerCode,
		Subtotal:      d.Subtotal,
		ShippingFee:   d.ShippingFee,
		BankCharge:    d.BankCharge,
		Discount:      d.Discount,
		Others:        d.Others,
		Total:         d.Total,
		PaymentStatus: PaymentPending,
		DueDate:       d.DueDate,
		CreatedBy:     shared.ActorID(ctx),
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetBySalesOrder(ctx, d.SalesOrderID); err == nil {
			return ErrAlreadyInvoiced
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.Create(ctx, &inv); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Action:   "invoice.generate",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta:     map[string]any{"number": inv.Number, "sales_order_id": inv.SalesOrderID, "total": inv.Total},
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.logger.Info("invoice generated", slog.String("number", inv.Number), slog.Int64("sales_order_id", inv.SalesOrderID))
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetBySalesOrder(ctx context.Context, salesOrderID int64) (Invoice, error) {
	return s.repo.GetBySalesOrder(ctx, salesOrderID)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	return s.repo.List(ctx, filter)
}

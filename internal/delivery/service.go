package delivery

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
	salesshared "github.com/odyssey-erp/cascade/internal/sales/shared"
	"github.com/odyssey-erp/cascade/internal/shared"
)

// JobOrderPort is what a receipt needs from job orders.
type JobOrderPort interface {
	Get(ctx context.Context, id int64) (joborders.JobOrder, error)
	RecordDelivery(ctx context.Context, jobOrderID int64, receiptID int64, lines []joborders.DeliveryLine) ([]joborders.Delivered, error)
}

// Notifier is told about each committed receipt. Failures are logged only.
type Notifier interface {
	NotifyDelivery(ctx context.Context, receiptID int64, number string) error
}

type Service struct {
	repo     Repository
	jobs     JobOrderPort
	seq      salesshared.Sequencer
	tx       shared.TxRunner
	audit    shared.AuditPort
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, jobs JobOrderPort, seq salesshared.Sequencer, tx shared.TxRunner, audit shared.AuditPort, notifier Notifier, logger *slog.Logger) *Service {
	if tx == nil {
		tx = shared.DirectRunner{}
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, jobs: jobs, seq: seq, tx: tx, audit: audit, notifier: notifier, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create issues a receipt for a job order. Numbering, the slot writes and the
// stock movement commit together or not at all.
func (s *Service) Create(ctx context.Context, jobOrderID int64, req CreateRequest) (Receipt, error) {
	var rec Receipt
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		jo, err := s.jobs.Get(ctx, jobOrderID)
		if err != nil {
			return err
		}
		number, err := s.seq.Next(ctx, salesshared.SeriesDeliveryReceipt, s.now())
		if err != nil {
			return err
		}
		rec = Receipt{
			Number:         number,
			JobOrderID:     jo.ID,
			JobOrderNumber: jo.Number,
			SalesOrderID:   jo.SalesOrderID,
			CustomerCode:   jo.CustomerCode,
			Notes:          req.Notes,
			CreatedBy:      shared.ActorID(ctx),
		}
		if err := s.repo.Create(ctx, &rec); err != nil {
			return err
		}
		delivered, err := s.jobs.RecordDelivery(ctx, jo.ID, rec.ID, req.Items)
		if err != nil {
			return err
		}
		if len(delivered) == 0 {
			return ErrNoLines
		}
		lines := make([]Line, 0, len(delivered))
		for _, d := range delivered {
			lines = append(lines, Line{
				JobOrderItemID: d.Item.ID,
				ShipmentID:     d.Shipment.ID,
				Slot:           d.Shipment.Slot,
				ProductName:    d.Item.ProductName,
				Quantity:       d.Shipment.Quantity,
			})
		}
		if rec.Lines, err = s.repo.InsertLines(ctx, rec.ID, lines); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Action:   "delivery_receipt.create",
			Entity:   "delivery_receipt",
			EntityID: strconv.FormatInt(rec.ID, 10),
			Meta: map[string]any{
				"number":       rec.Number,
				"job_order_id": jo.ID,
				"quantity":     rec.TotalQuantity(),
			},
		})
	})
	if err != nil {
		return Receipt{}, err
	}
	s.logger.Info("delivery receipt created",
		slog.String("number", rec.Number),
		slog.Int64("job_order_id", rec.JobOrderID),
		slog.Int("lines", len(rec.Lines)))
	if s.notifier != nil {
		if err := s.notifier.NotifyDelivery(ctx, rec.ID, rec.Number); err != nil {
			s.logger.Warn("enqueue delivery notification", slog.String("number", rec.Number), slog.Any("error", err))
		}
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Receipt, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	return s.repo.List(ctx, filter)
}

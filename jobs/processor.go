package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cascade/internal/delivery"
	jobmetrics "github.com/odyssey-erp/cascade/internal/jobs"
	"github.com/odyssey-erp/cascade/internal/shared"
)

// QuotationExpirer expires quotations past their validity date.
type QuotationExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// WorkbookWriter writes a sales order workbook into dir and returns its path.
type WorkbookWriter interface {
	WriteSalesOrderWorkbook(ctx context.Context, salesOrderID int64, dir, name string) (string, error)
}

// ReceiptLoader reads delivery receipts.
type ReceiptLoader interface {
	Get(ctx context.Context, id int64) (delivery.Receipt, error)
}

// IdempotencyPurger removes idempotency keys older than the retention window.
type IdempotencyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ProcessorConfig wires the services the background tasks act on. Any port
// left nil turns its task into a logged no-op.
type ProcessorConfig struct {
	Quotations    QuotationExpirer
	Exports       WorkbookWriter
	ExportDir     string
	Receipts      ReceiptLoader
	Audit         shared.AuditPort
	Idempotency   IdempotencyPurger
	IdemRetention time.Duration
	Metrics       *jobmetrics.Metrics
	Logger        *slog.Logger
}

// Processor executes cascade background tasks.
type Processor struct {
	cfg ProcessorConfig
}

// NewProcessor constructs a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = shared.NopAudit{}
	}
	if cfg.IdemRetention <= 0 {
		cfg.IdemRetention = 72 * time.Hour
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "."
	}
	return &Processor{cfg: cfg}
}

// Handlers lists the task handlers for registration on the worker.
func (p *Processor) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskExpireQuotations, Handler: p.HandleExpireQuotations},
		{Type: TaskExportWorkbook, Handler: p.HandleExportWorkbook},
		{Type: TaskNotifyDelivery, Handler: p.HandleNotifyDelivery},
		{Type: TaskCleanupIdempotency, Handler: p.HandleCleanupIdempotency},
	}
}

// HandleExpireQuotations processes TaskExpireQuotations.
func (p *Processor) HandleExpireQuotations(ctx context.Context, _ *asynq.Task) error {
	if p.cfg.Quotations == nil {
		p.cfg.Logger.Warn("quotation expiry not configured")
		return nil
	}
	tracker := p.cfg.Metrics.Track(TaskExpireQuotations)
	expired, err := p.cfg.Quotations.ExpireDue(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("expire quotations: %w", err))
	}
	p.cfg.Metrics.AddProcessed(TaskExpireQuotations, expired)
	p.cfg.Logger.Info("quotations expired", slog.Int("count", expired))
	return tracker.End(nil)
}

// HandleExportWorkbook processes TaskExportWorkbook.
func (p *Processor) HandleExportWorkbook(ctx context.Context, t *asynq.Task) error {
	var payload ExportWorkbookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode export payload: %w", asynq.SkipRetry)
	}
	if p.cfg.Exports == nil {
		p.cfg.Logger.Warn("workbook export not configured", slog.Int64("sales_order_id", payload.SalesOrderID))
		return nil
	}
	tracker := p.cfg.Metrics.Track(TaskExportWorkbook)
	path, err := p.cfg.Exports.WriteSalesOrderWorkbook(ctx, payload.SalesOrderID, p.cfg.ExportDir, payload.FileName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return tracker.End(fmt.Errorf("export sales order %d: %v: %w", payload.SalesOrderID, err, asynq.SkipRetry))
		}
		return tracker.End(fmt.Errorf("export sales order %d: %w", payload.SalesOrderID, err))
	}
	p.cfg.Metrics.AddProcessed(TaskExportWorkbook, 1)
	p.cfg.Logger.Info("workbook exported", slog.Int64("sales_order_id", payload.SalesOrderID), slog.String("path", path))
	return tracker.End(nil)
}

// HandleNotifyDelivery processes TaskNotifyDelivery. The notification is an
// audit record plus a log line that downstream dispatch tails.
func (p *Processor) HandleNotifyDelivery(ctx context.Context, t *asynq.Task) error {
	var payload NotifyDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode delivery payload: %w", asynq.SkipRetry)
	}
	if p.cfg.Receipts == nil {
		p.cfg.Logger.Warn("delivery notification not configured", slog.String("number", payload.Number))
		return nil
	}
	tracker := p.cfg.Metrics.Track(TaskNotifyDelivery)
	rec, err := p.cfg.Receipts.Get(ctx, payload.ReceiptID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return tracker.End(fmt.Errorf("delivery receipt %d: %v: %w", payload.ReceiptID, err, asynq.SkipRetry))
		}
		return tracker.End(err)
	}
	err = p.cfg.Audit.Record(ctx, shared.AuditLog{
		Action:   "delivery_receipt.notify",
		Entity:   "delivery_receipt",
		EntityID: strconv.FormatInt(rec.ID, 10),
		Meta: map[string]any{
			"number":        rec.Number,
			"job_order":     rec.JobOrderNumber,
			"customer_code": rec.CustomerCode,
			"quantity":      rec.TotalQuantity(),
		},
	})
	if err != nil {
		return tracker.End(fmt.Errorf("record delivery notification: %w", err))
	}
	p.cfg.Metrics.AddProcessed(TaskNotifyDelivery, 1)
	p.cfg.Logger.Info("delivery dispatched",
		slog.String("number", rec.Number),
		slog.String("job_order", rec.JobOrderNumber),
		slog.String("customer_code", rec.CustomerCode),
		slog.Int("lines", len(rec.Lines)))
	return tracker.End(nil)
}

// HandleCleanupIdempotency processes TaskCleanupIdempotency.
func (p *Processor) HandleCleanupIdempotency(ctx context.Context, _ *asynq.Task) error {
	if p.cfg.Idempotency == nil {
		return nil
	}
	tracker := p.cfg.Metrics.Track(TaskCleanupIdempotency)
	removed, err := p.cfg.Idempotency.Cleanup(ctx, p.cfg.IdemRetention)
	if err != nil {
		return tracker.End(fmt.Errorf("cleanup idempotency keys: %w", err))
	}
	p.cfg.Metrics.AddProcessed(TaskCleanupIdempotency, int(removed))
	p.cfg.Logger.Info("idempotency keys purged", slog.Int64("count", removed))
	return tracker.End(nil)
}

package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskExpireQuotations moves quotations past their validity date to expired.
	TaskExpireQuotations = "quotations:expire"
	// TaskExportWorkbook writes the job order workbook of a sales order to disk.
	TaskExportWorkbook = "joborders:export_workbook"
	// TaskNotifyDelivery announces a freshly created delivery receipt.
	TaskNotifyDelivery = "delivery:notify"
	// TaskCleanupIdempotency purges expired idempotency keys.
	TaskCleanupIdempotency = "idempotency:cleanup"
)

// ExportWorkbookPayload selects the sales order to export.
type ExportWorkbookPayload struct {
	SalesOrderID int64  `json:"sales_order_id"`
	FileName     string `json:"file_name"`
}

// NotifyDeliveryPayload identifies the delivery receipt to announce.
type NotifyDeliveryPayload struct {
	ReceiptID int64  `json:"receipt_id"`
	Number    string `json:"number"`
}

// NewExpireQuotationsTask builds the nightly expiry task.
func NewExpireQuotationsTask() *asynq.Task {
	return asynq.NewTask(TaskExpireQuotations, nil, asynq.Queue(QueueDefault))
}

// NewCleanupIdempotencyTask builds the idempotency purge task.
func NewCleanupIdempotencyTask() *asynq.Task {
	return asynq.NewTask(TaskCleanupIdempotency, nil, asynq.Queue(QueueDefault))
}

// NewExportWorkbookTask builds a workbook export task.
func NewExportWorkbookTask(payload ExportWorkbookPayload) (*asynq.Task, error) {
	if payload.SalesOrderID <= 0 {
		return nil, errors.New("jobs: sales order id required")
	}
	if strings.TrimSpace(payload.FileName) == "" {
		return nil, errors.New("jobs: export file name required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExportWorkbook, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewNotifyDeliveryTask builds a delivery notification task.
func NewNotifyDeliveryTask(payload NotifyDeliveryPayload) (*asynq.Task, error) {
	if payload.ReceiptID <= 0 {
		return nil, errors.New("jobs: receipt id required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDelivery, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskEnqueuer is the part of asynq.Client the cascade needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client submits cascade tasks. It satisfies delivery.Notifier and report.Enqueuer.
type Client struct {
	client TaskEnqueuer
	now    func() time.Time
}

// NewClient builds a Client over a new asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return NewClientWith(asynq.NewClient(redisOpts)), nil
}

// NewClientWith wraps an existing enqueuer.
func NewClientWith(enqueuer TaskEnqueuer) *Client {
	return &Client{client: enqueuer, now: time.Now}
}

// NotifyDelivery enqueues the notification of a delivery receipt. The task id
// is derived from the receipt so a retried call does not notify twice.
func (c *Client) NotifyDelivery(ctx context.Context, receiptID int64, number string) error {
	task, err := NewNotifyDeliveryTask(NotifyDeliveryPayload{ReceiptID: receiptID, Number: number})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.TaskID("delivery-notify-"+strconv.FormatInt(receiptID, 10)))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueWorkbookExport schedules the workbook export of a sales order and
// returns the task id.
func (c *Client) EnqueueWorkbookExport(ctx context.Context, salesOrderID int64) (string, error) {
	id := uuid.NewString()
	name := fmt.Sprintf("sales-order-%d-%s-%s.xlsx", salesOrderID, c.now().UTC().Format("20060102T150405"), id[:8])
	task, err := NewExportWorkbookTask(ExportWorkbookPayload{SalesOrderID: salesOrderID, FileName: name})
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.TaskID(id))
	if err != nil {
		return "", err
	}
	if info != nil && info.ID != "" {
		return info.ID, nil
	}
	return id, nil
}

// Close releases the underlying client when it holds resources.
func (c *Client) Close() error {
	if closer, ok := c.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

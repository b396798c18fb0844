package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cascade/jobs"
)

// Enqueuer is the part of asynq.Client the CLI drives.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskBuilder func(args []string) (*asynq.Task, error)

var builders = map[string]taskBuilder{
	jobs.TaskExpireQuotations: func([]string) (*asynq.Task, error) {
		return jobs.NewExpireQuotationsTask(), nil
	},
	jobs.TaskCleanupIdempotency: func([]string) (*asynq.Task, error) {
		return jobs.NewCleanupIdempotencyTask(), nil
	},
	jobs.TaskExportWorkbook: func(args []string) (*asynq.Task, error) {
		if len(args) != 1 {
			return nil, errors.New("workbook export takes exactly one sales order id")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid sales order id %q", args[0])
		}
		return jobs.NewExportWorkbookTask(jobs.ExportWorkbookPayload{
			SalesOrderID: id,
			FileName:     fmt.Sprintf("sales-order-%d.xlsx", id),
		})
	},
}

// TaskNames lists the task types Trigger accepts.
func TaskNames() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobsCLI triggers cascade tasks by hand and reads queue state.
type JobsCLI struct {
	client    Enqueuer
	inspector *asynq.Inspector
	closers   []io.Closer
}

// NewJobsCLI connects a client and an inspector to redisAddr.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{inspector, client}}, nil
}

// NewJobsCLIWith drives an existing enqueuer. Queue inspection is unavailable.
func NewJobsCLIWith(client Enqueuer) *JobsCLI {
	return &JobsCLI{client: client}
}

// Close releases the client and inspector.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues the named task. Workbook exports take the sales order id
// as their single argument.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args ...string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("jobs cli: unsupported job %s (have %v)", name, TaskNames())
	}
	task, err := build(args)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: %s: %w", name, err)
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// InspectQueue reads the default queue counters.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueHealth, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueHealth{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return jobs.QueueHealth{}, err
	}
	return jobs.QueueHealth{
		Queue:     jobs.QueueDefault,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Paused:    info.Paused,
	}, nil
}

// ListScheduled returns up to size scheduled tasks of the default queue.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

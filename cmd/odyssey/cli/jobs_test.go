package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/jobs"
)

type captured struct {
	tasks []*asynq.Task
}

func (c *captured) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestTrigger(t *testing.T) {
	client := &captured{}
	c := NewJobsCLIWith(client)
	ctx := context.Background()

	info, err := c.Trigger(ctx, jobs.TaskExpireQuotations)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskExpireQuotations, info.Type)

	_, err = c.Trigger(ctx, jobs.TaskExportWorkbook, "42")
	require.NoError(t, err)
	var payload jobs.ExportWorkbookPayload
	require.NoError(t, json.Unmarshal(client.tasks[1].Payload(), &payload))
	require.Equal(t, int64(42), payload.SalesOrderID)

	_, err = c.Trigger(ctx, jobs.TaskExportWorkbook)
	require.Error(t, err)
	_, err = c.Trigger(ctx, jobs.TaskExportWorkbook, "x")
	require.Error(t, err)
	_, err = c.Trigger(ctx, "mail:send")
	require.Error(t, err)

	_, err = c.InspectQueue(ctx)
	require.Error(t, err)
	require.NoError(t, c.Close())
}

func TestTaskNamesSorted(t *testing.T) {
	require.Equal(t, []string{jobs.TaskCleanupIdempotency, jobs.TaskExportWorkbook, jobs.TaskExpireQuotations}, TaskNames())
}

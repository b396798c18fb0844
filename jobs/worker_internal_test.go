package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerRejectsIncompleteRegistrations(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Handlers: []TaskHandler{{Type: TaskExpireQuotations}}})
	require.ErrorContains(t, err, "incomplete handler")

	_, err = NewWorker(WorkerConfig{Cron: []CronRegistration{{Spec: "@daily"}}})
	require.ErrorContains(t, err, "cron entry")
}

func TestRunWithoutWorker(t *testing.T) {
	var w *Worker
	require.Error(t, w.Run(context.Background()))
}

func TestLogTasksPassesResultThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("boom")

	h := logTasks(logger)(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return boom }))
	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskNotifyDelivery, nil))
	require.ErrorIs(t, err, boom)
	require.Contains(t, buf.String(), "task="+TaskNotifyDelivery)
	require.Contains(t, buf.String(), "ok=false")
}

func TestAsynqLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := asynqLogger{slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))}
	l.Debug("hidden")
	l.Warn("lease ", 3, " expired")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "lease 3 expired")
}

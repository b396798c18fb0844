package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/shared"
)

// Enqueuer schedules a background workbook export and returns the task id.
type Enqueuer interface {
	EnqueueWorkbookExport(ctx context.Context, salesOrderID int64) (string, error)
}

type Handler struct {
	exporter *Exporter
	enqueuer Enqueuer
	logger   *slog.Logger
}

func NewHandler(exporter *Exporter, enqueuer Enqueuer, logger *slog.Logger) *Handler {
	return &Handler{exporter: exporter, enqueuer: enqueuer, logger: logger}
}

// MountJobOrderRoutes registers the export routes nested under /job-orders.
func (h *Handler) MountJobOrderRoutes(r chi.Router) {
	r.Get("/export.csv", h.csv)
	r.Post("/export", h.enqueue)
	r.Get("/{id}/export.xlsx", h.xlsx)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) xlsx(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipts, err := h.exporter.Load(r.Context(), []int64{id})
	if err != nil {
		httpx.Fail(w, h.logger, "load job order", err)
		return
	}
	body, err := h.exporter.WorkbookBytes(receipts)
	if err != nil {
		httpx.Fail(w, h.logger, "render workbook", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipts[0].JobOrderNumber+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) csv(w http.ResponseWriter, r *http.Request) {
	soID, err := salesOrderParam(r.URL.Query().Get("salesOrderId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipts, err := h.exporter.LoadForSalesOrder(r.Context(), soID)
	if err != nil {
		httpx.Fail(w, h.logger, "load job orders", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, receipts); err != nil {
		httpx.Fail(w, h.logger, "render csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"job-orders-%d.csv\"", soID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type exportRequest struct {
	SalesOrderID int64 `json:"salesOrderId" validate:"required,gt=0"`
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "background jobs are disabled")
		return
	}
	var req exportRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	taskID, err := h.enqueuer.EnqueueWorkbookExport(r.Context(), req.SalesOrderID)
	if err != nil {
		httpx.Fail(w, h.logger, "enqueue export", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"taskId": taskID})
}

func salesOrderParam(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: salesOrderId is required", shared.ErrValidation)
	}
	return id, nil
}

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cascade/internal/delivery/export"
	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/shared"
)

// LedgerSource yields the printable job order ledger.
type LedgerSource interface {
	Receipt(ctx context.Context, id int64) (joborders.Receipt, error)
}

type Handler struct {
	logger   *slog.Logger
	service  *Service
	ledger   LedgerSource
	renderer *export.Renderer
	idem     shared.IdempotencyChecker
}

func NewHandler(logger *slog.Logger, service *Service, ledger LedgerSource, renderer *export.Renderer, idem shared.IdempotencyChecker) *Handler {
	if renderer == nil {
		renderer = export.NewRenderer("en")
	}
	return &Handler{logger: logger, service: service, ledger: ledger, renderer: renderer, idem: idem}
}

// MountRoutes registers /delivery-receipts.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/delivery-receipts", func(r chi.Router) {
		r.Get("/{id}", h.Show)
		r.Get("/{id}/pdf", h.PDF)
	})
}

// MountJobOrderRoutes registers the receipt routes nested under /job-orders.
func (h *Handler) MountJobOrderRoutes(r chi.Router) {
	r.Get("/{id}/delivery-receipts", h.ListForJobOrder)
	r.Get("/{id}/pdf", h.JobOrderPDF)
	r.With(shared.Idempotent(h.idem, "delivery", h.logger)).Post("/{id}/delivery-receipt", h.Create)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Create(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "create delivery receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"deliveryReceipt": rec})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load delivery receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deliveryReceipt": rec})
}

func (h *Handler) ListForJobOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PageFromRequest(r)
	items, err := h.service.List(r.Context(), ListFilter{JobOrderID: id, Limit: page.Limit(), Offset: page.Offset()})
	if err != nil {
		httpx.Fail(w, h.logger, "list delivery receipts", err)
		return
	}
	if items == nil {
		items = []Receipt{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load delivery receipt", err)
		return
	}
	pdf, err := h.renderer.RenderPackingList(PackingList(rec))
	if err != nil {
		httpx.Fail(w, h.logger, "render delivery receipt", err)
		return
	}
	writePDF(w, rec.Number, pdf)
}

func (h *Handler) JobOrderPDF(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ledger, err := h.ledger.Receipt(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load job order receipt", err)
		return
	}
	pdf, err := h.renderer.RenderJobOrder(ledger)
	if err != nil {
		httpx.Fail(w, h.logger, "render job order", err)
		return
	}
	writePDF(w, ledger.JobOrderNumber, pdf)
}

// PackingList maps a receipt to its printable form.
func PackingList(rec Receipt) export.PackingList {
	doc := export.PackingList{
		DocNumber:      rec.Number,
		JobOrderNumber: rec.JobOrderNumber,
		CustomerCode:   rec.CustomerCode,
		Notes:          rec.Notes,
		CreatedAt:      rec.CreatedAt,
	}
	for i, l := range rec.Lines {
		doc.Lines = append(doc.Lines, export.PackingListLine{
			LineNumber:  i + 1,
			ProductName: l.ProductName,
			Slot:        l.Slot,
			Quantity:    l.Quantity,
		})
	}
	return doc
}

func writePDF(w http.ResponseWriter, name string, body []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

package invoices

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.List)
	r.Get("/invoices/{id}", h.Show)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromRequest(r)
	items, total, err := h.service.List(r.Context(), ListFilter{
		CustomerCode:  r.URL.Query().Get("customerCode"),
		PaymentStatus: PaymentStatus(r.URL.Query().Get("paymentStatus")),
		Limit:         page.Limit(),
		Offset:        page.Offset(),
	})
	if err != nil {
		httpx.Fail(w, h.logger, "list invoices", err)
		return
	}
	if items == nil {
		items = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

package joborders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    shared.IdempotencyChecker
	extra   []func(chi.Router)
}

func NewHandler(logger *slog.Logger, service *Service, idem shared.IdempotencyChecker) *Handler {
	return &Handler{logger: logger, service: service, idem: idem}
}

// WithRoutes lets other modules hang routes under /job-orders, such as
// delivery receipts and exports.
func (h *Handler) WithRoutes(fn func(chi.Router)) *Handler {
	h.extra = append(h.extra, fn)
	return h
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/job-orders", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
		r.Get("/{id}/receipt", h.Receipt)
		r.Group(func(r chi.Router) {
			r.Use(shared.Idempotent(h.idem, "job_orders", h.logger))
			r.Put("/{id}/items/{itemId}/shipment", h.UpdateShipment)
			r.Post("/{id}/items/{itemId}/production", h.ReceiveProduction)
			r.Post("/{id}/start-production", h.StartProduction)
			r.Post("/{id}/pause-production", h.PauseProduction)
			r.Post("/{id}/complete-production", h.CompleteProduction)
		})
		for _, fn := range h.extra {
			fn(r)
		}
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromRequest(r)
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	}
	if raw := q.Get("salesOrderId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid salesOrderId")
			return
		}
		filter.SalesOrderID = id
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list job orders", err)
		return
	}
	if items == nil {
		items = []JobOrder{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	jo, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load job order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"jobOrder": jo})
}

func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipt, err := h.service.Receipt(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load job order receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) UpdateShipment(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := itemParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateShipmentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Version == nil {
		if req.Version, err = httpx.IfMatchVersion(r); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	item, err := h.service.UpdateShipment(r.Context(), id, itemID, req)
	if err != nil {
		httpx.Fail(w, h.logger, "update shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) ReceiveProduction(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := itemParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ProductionReceiptRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Version == nil {
		if req.Version, err = httpx.IfMatchVersion(r); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	item, err := h.service.ReceiveProduction(r.Context(), id, itemID, req)
	if err != nil {
		httpx.Fail(w, h.logger, "receive production", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) StartProduction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start production", h.service.StartProduction)
}

func (h *Handler) PauseProduction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pause production", h.service.PauseProduction)
}

func (h *Handler) CompleteProduction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete production", h.service.CompleteProduction)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, int64, TransitionRequest) (JobOrder, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Version == nil {
		if req.Version, err = httpx.IfMatchVersion(r); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	jo, err := fn(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"jobOrder": jo})
}

func itemParams(r *http.Request) (int64, int64, error) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		return 0, 0, err
	}
	itemID, err := httpx.IDParam(r, "itemId")
	if err != nil {
		return 0, 0, err
	}
	return id, itemID, nil
}

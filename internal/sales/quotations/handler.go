package quotations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    shared.IdempotencyChecker
	convert http.HandlerFunc
}

func NewHandler(logger *slog.Logger, service *Service, idem shared.IdempotencyChecker) *Handler {
	return &Handler{logger: logger, service: service, idem: idem}
}

// WithConverter mounts fn as the convert-to-sales-order action. The sales order
// module owns conversion; quotations only routes to it.
func (h *Handler) WithConverter(fn http.HandlerFunc) *Handler {
	h.convert = fn
	return h
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromRequest(r)
	q := r.URL.Query()
	items, total, err := h.service.List(r.Context(), ListFilter{
		Status:       Status(q.Get("status")),
		CustomerCode: q.Get("customerCode"),
		Search:       q.Get("search"),
		Limit:        page.Limit(),
		Offset:       page.Offset(),
	})
	if err != nil {
		httpx.Fail(w, h.logger, "list quotations", err)
		return
	}
	if items == nil {
		items = []Quotation{}
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
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotation": q, "editable": h.service.Editable(q)})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.logger, "create quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateRequest
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
	q, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "update quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit quotation", h.service.Submit)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve quotation", h.service.Approve)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reject quotation", h.service.Reject)
}

func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Duplicate(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "duplicate quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

type transitionFunc func(ctx context.Context, id int64, req TransitionRequest) (Quotation, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn transitionFunc) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req TransitionRequest
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
	q, err := fn(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

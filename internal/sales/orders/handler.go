package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	jobs    JobOrderPort
	idem    shared.IdempotencyChecker
}

func NewHandler(logger *slog.Logger, service *Service, jobs JobOrderPort, idem shared.IdempotencyChecker) *Handler {
	return &Handler{logger: logger, service: service, jobs: jobs, idem: idem}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromRequest(r)
	q := r.URL.Query()
	filter := ListFilter{
		Status:       Status(q.Get("status")),
		CustomerCode: q.Get("customerCode"),
		Search:       q.Get("search"),
		Limit:        page.Limit(),
		Offset:       page.Offset(),
	}
	if raw := q.Get("quotationId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quotationId")
			return
		}
		filter.QuotationID = id
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list sales orders", err)
		return
	}
	if items == nil {
		items = []SalesOrder{}
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
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "load sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"salesOrder": o})
}

func (h *Handler) JobOrders(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "load sales order", err)
		return
	}
	jobs, err := h.jobs.ListBySalesOrder(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "list job orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": jobs})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.logger, "create sales order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

// ConvertFromQuotation serves POST /quotations/{id}/convert.
func (h *Handler) ConvertFromQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ConvertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.ConvertFromQuotation(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "convert quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"salesOrder": o})
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
	o, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "update sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	transition(h, w, r, "confirm sales order", h.service.Confirm)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	transition(h, w, r, "cancel sales order", h.service.Cancel)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	transition(h, w, r, "complete sales order", func(ctx context.Context, id int64, req TransitionRequest) (map[string]any, error) {
		o, err := h.service.Complete(ctx, id, req)
		return map[string]any{"salesOrder": o}, err
	})
}

func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.GenerateInvoice(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "generate invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) GenerateJobOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.GenerateJobOrder(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "generate job order", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Duplicate(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "duplicate sales order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func transition[T any](h *Handler, w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, int64, TransitionRequest) (T, error)) {
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
	res, err := fn(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

package warehouse

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cascade/internal/platform/httpx"
	"github.com/odyssey-erp/cascade/internal/shared"
)

// Handler exposes the warehouse ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    shared.IdempotencyChecker
}

// NewHandler builds Handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem shared.IdempotencyChecker) *Handler {
	return &Handler{logger: logger, service: service, idem: idem}
}

// MountRoutes registers the warehouse routes under /warehouse.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/warehouse", func(r chi.Router) {
		r.Get("/stock/{productId}", h.GetStock)
		r.Get("/movements", h.ListMovements)
		r.Get("/low-stock", h.LowStock)
		r.Group(func(r chi.Router) {
			r.Use(shared.Idempotent(h.idem, "warehouse", h.logger))
			r.Post("/adjust", h.Adjust)
			r.Post("/transfer", h.Transfer)
		})
	})
}

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "productId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.Stock(r.Context(), productID)
	if err != nil {
		httpx.Fail(w, h.logger, "load stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var in AdjustInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.Adjust(r.Context(), in)
	if err != nil {
		httpx.Fail(w, h.logger, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var in TransferInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.Transfer(r.Context(), in)
	if err != nil {
		httpx.Fail(w, h.logger, "transfer stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromRequest(r)
	filter := MovementFilter{
		RefType: q.Get("refType"),
		Limit:   page.Limit(),
		Offset:  page.Offset(),
	}
	if raw := q.Get("productId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid productId")
			return
		}
		filter.ProductID = id
	}
	if raw := q.Get("refId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid refId")
			return
		}
		filter.RefID = id
	}
	if raw := q.Get("pool"); raw != "" {
		pool, err := ParsePool(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Pool = pool
	}
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list movements", err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements, "page": page.Page, "perPage": page.PerPage})
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 0.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid threshold")
			return
		}
		threshold = v
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.LowStock(r.Context(), threshold, limit)
	if err != nil {
		httpx.Fail(w, h.logger, "list low stock", err)
		return
	}
	if items == nil {
		items = []Stock{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/cascade/internal/auth"
	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/observability"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/sales/invoices"
	"github.com/odyssey-erp/cascade/internal/sales/orders"
	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	"github.com/odyssey-erp/cascade/internal/warehouse"
	"github.com/odyssey-erp/cascade/jobs"
	"github.com/odyssey-erp/cascade/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Tokens  *auth.Tokens
	Metrics *observability.Metrics

	AuthHandler       *auth.Handler
	QuotationsHandler *quotations.Handler
	OrdersHandler     *orders.Handler
	InvoicesHandler   *invoices.Handler
	JobOrdersHandler  *joborders.Handler
	WarehouseHandler  *warehouse.Handler
	DeliveryHandler   *delivery.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with cascade defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		if params.AuthHandler != nil {
			api.Route("/auth", params.AuthHandler.MountRoutes)
		}
		api.Group(func(pr chi.Router) {
			if params.Tokens != nil && (params.Config == nil || !params.Config.AuthDisabled) {
				pr.Use(auth.RequireBearer(params.Tokens))
			}
			mountCascade(pr, params)
		})
	})

	return r
}

func mountCascade(r chi.Router, params RouterParams) {
	if params.QuotationsHandler != nil {
		if params.OrdersHandler != nil {
			params.QuotationsHandler.WithConverter(params.OrdersHandler.ConvertFromQuotation)
		}
		params.QuotationsHandler.MountRoutes(r)
	}
	if params.OrdersHandler != nil {
		params.OrdersHandler.MountRoutes(r)
	}
	if params.InvoicesHandler != nil {
		params.InvoicesHandler.MountRoutes(r)
	}
	if params.JobOrdersHandler != nil {
		if params.DeliveryHandler != nil {
			params.JobOrdersHandler.WithRoutes(params.DeliveryHandler.MountJobOrderRoutes)
		}
		if params.ReportHandler != nil {
			params.JobOrdersHandler.WithRoutes(params.ReportHandler.MountJobOrderRoutes)
		}
		params.JobOrdersHandler.MountRoutes(r)
	}
	if params.DeliveryHandler != nil {
		params.DeliveryHandler.MountRoutes(r)
	}
	if params.WarehouseHandler != nil {
		params.WarehouseHandler.MountRoutes(r)
	}
}

package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/auth"
	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/delivery/export"
	"github.com/odyssey-erp/cascade/internal/observability"
	"github.com/odyssey-erp/cascade/internal/platform/cache"
	"github.com/odyssey-erp/cascade/internal/platform/db"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/sales/invoices"
	"github.com/odyssey-erp/cascade/internal/sales/orders"
	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	salesshared "github.com/odyssey-erp/cascade/internal/sales/shared"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
	"github.com/odyssey-erp/cascade/report"
)

// Stores bundles the persistence ports the cascade runs on.
type Stores struct {
	Quotations  quotations.Repository
	Orders      orders.Repository
	Invoices    invoices.Repository
	JobOrders   joborders.Repository
	Delivery    delivery.Repository
	Warehouse   warehouse.Repository
	Sequencer   salesshared.Sequencer
	Tx          shared.TxRunner
	Audit       shared.AuditPort
	Idempotency shared.IdempotencyChecker
}

// PostgresStores backs every port with pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Quotations:  quotations.NewRepository(pool),
		Orders:      orders.NewRepository(pool),
		Invoices:    invoices.NewRepository(pool),
		JobOrders:   joborders.NewRepository(pool),
		Delivery:    delivery.NewRepository(pool),
		Warehouse:   warehouse.NewRepository(pool),
		Sequencer:   salesshared.NewSequencer(pool),
		Tx:          db.NewTransactor(pool, shared.ErrVersionConflict),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
	}
}

// Services is the wired cascade.
type Services struct {
	Warehouse  *warehouse.Service
	JobOrders  *joborders.Service
	Quotations *quotations.Service
	Invoices   *invoices.Service
	Orders     *orders.Service
	Delivery   *delivery.Service
	Exporter   *report.Exporter

	stores Stores
	logger *slog.Logger
	locale string
}

// ServiceDeps are the collaborators NewServices does not build itself.
type ServiceDeps struct {
	Stores   Stores
	Receipts *cache.Versioned
	Metrics  *observability.Metrics
	Notifier delivery.Notifier
	Logger   *slog.Logger
}

// NewServices wires the cascade services from cfg.
func NewServices(cfg *Config, deps ServiceDeps) (*Services, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{MaxShipmentSlots: joborders.DefaultMaxShipmentSlots, JobOrderAutoGenerate: true}
	}
	whCfg := warehouse.DefaultConfig()
	if cfg.ReservationSourcePools != "" {
		pools, err := warehouse.ParsePools(cfg.ReservationSourcePools)
		if err != nil {
			return nil, err
		}
		whCfg.SourcePools = pools
	}
	if cfg.ReservationPolicy != "" {
		whCfg.Policy = warehouse.ReservationPolicy(cfg.ReservationPolicy)
	}

	st := deps.Stores
	stock := warehouse.NewService(st.Warehouse, st.Tx, st.Audit, deps.Metrics, whCfg, deps.Logger.With(slog.String("module", "warehouse")))
	jobs := joborders.NewService(st.JobOrders, stock, st.Tx, st.Audit, deps.Metrics, deps.Receipts,
		joborders.Config{MaxShipmentSlots: cfg.MaxShipmentSlots}, deps.Logger.With(slog.String("module", "joborders")))
	quotes := quotations.NewService(st.Quotations, st.Sequencer, st.Tx, st.Audit, deps.Metrics, deps.Logger.With(slog.String("module", "quotations")))
	invoiceSvc := invoices.NewService(st.Invoices, st.Tx, st.Audit, deps.Logger.With(slog.String("module", "invoices")))
	orderSvc := orders.NewService(orders.Deps{
		Repo:       st.Orders,
		Sequencer:  st.Sequencer,
		Quotations: quotes,
		Stock:      stock,
		JobOrders:  jobs,
		Invoices:   invoiceSvc,
		Tx:         st.Tx,
		Audit:      st.Audit,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger.With(slog.String("module", "orders")),
	}, orders.Config{AutoGenerateJobOrder: cfg.JobOrderAutoGenerate})
	deliverySvc := delivery.NewService(st.Delivery, jobs, st.Sequencer, st.Tx, st.Audit, deps.Notifier,
		deps.Logger.With(slog.String("module", "delivery")))

	return &Services{
		Warehouse:  stock,
		JobOrders:  jobs,
		Quotations: quotes,
		Invoices:   invoiceSvc,
		Orders:     orderSvc,
		Delivery:   deliverySvc,
		Exporter:   report.NewExporter(jobs),
		stores:     st,
		logger:     deps.Logger,
		locale:     cfg.ExportLocale,
	}, nil
}

// HandlerParams fills the cascade handlers of RouterParams. enqueuer may be
// nil, in which case asynchronous exports answer 503.
func (s *Services) HandlerParams(params RouterParams, authService *auth.Service, enqueuer report.Enqueuer) RouterParams {
	idem := s.stores.Idempotency
	logger := s.logger
	params.QuotationsHandler = quotations.NewHandler(logger, s.Quotations, idem)
	params.OrdersHandler = orders.NewHandler(logger, s.Orders, s.JobOrders, idem)
	params.InvoicesHandler = invoices.NewHandler(logger, s.Invoices)
	params.JobOrdersHandler = joborders.NewHandler(logger, s.JobOrders, idem)
	params.WarehouseHandler = warehouse.NewHandler(logger, s.Warehouse, idem)
	params.DeliveryHandler = delivery.NewHandler(logger, s.Delivery, s.JobOrders, export.NewRenderer(s.locale), idem)
	params.ReportHandler = report.NewHandler(s.Exporter, enqueuer, logger)
	if authService != nil {
		params.AuthHandler = auth.NewHandler(logger, authService)
	}
	return params
}

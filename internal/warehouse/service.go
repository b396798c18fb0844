package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/odyssey-erp/cascade/internal/observability"
	"github.com/odyssey-erp/cascade/internal/shared"
)

const epsilon = 1e-9

// Config tunes how reservations are sourced.
type Config struct {
	SourcePools []Pool
	Policy      ReservationPolicy
}

// DefaultConfig reserves from NG then PH and fails when stock is short.
func DefaultConfig() Config {
	return Config{SourcePools: []Pool{PoolNG, PoolPH}, Policy: PolicyStrict}
}

// Service owns every change to the six stock pools.
type Service struct {
	repo    Repository
	tx      shared.TxRunner
	audit   shared.AuditPort
	metrics *observability.Metrics
	cfg     Config
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, tx shared.TxRunner, audit shared.AuditPort, metrics *observability.Metrics, cfg Config, logger *slog.Logger) *Service {
	if tx == nil {
		tx = shared.DirectRunner{}
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if len(cfg.SourcePools) == 0 {
		cfg.SourcePools = DefaultConfig().SourcePools
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyStrict
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tx: tx, audit: audit, metrics: metrics, cfg: cfg, logger: logger}
}

// movementRef ties a movement to the document that caused it.
type movementRef struct {
	Type string
	ID   int64
	Note string
}

// Reserve moves the ordered quantity of every line from the source pools into
// RESERVED. Under the strict policy nothing is written unless every line is covered.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (Reservation, error) {
	if req.SalesOrderID == 0 {
		return Reservation{}, fmt.Errorf("%w: sales order required", shared.ErrValidation)
	}
	for _, line := range req.Lines {
		if !validQuantity(line.Quantity) || line.ProductID == 0 {
			return Reservation{}, ErrInvalidQuantity
		}
	}
	result := Reservation{SalesOrderID: req.SalesOrderID, Reserved: make(map[int64]float64, len(req.Lines))}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		plan, err := s.planReservation(ctx, req)
		if err != nil {
			return err
		}
		ref := movementRef{Type: "sales_order", ID: req.SalesOrderID, Note: "reserve on confirmation"}
		for _, alloc := range plan {
			if err := s.move(ctx, alloc.ProductID, alloc.Pool, PoolReserved, alloc.Quantity, ref); err != nil {
				return err
			}
			id, err := s.repo.InsertAllocation(ctx, alloc)
			if err != nil {
				return fmt.Errorf("insert allocation: %w", err)
			}
			alloc.ID = id
			result.Allocations = append(result.Allocations, alloc)
			result.Reserved[alloc.SalesOrderLineID] += alloc.Quantity
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Action:   "warehouse.reserve",
			Entity:   "sales_order",
			EntityID: strconv.FormatInt(req.SalesOrderID, 10),
			Meta:     map[string]any{"reserved": result.Reserved, "policy": string(s.cfg.Policy)},
		})
	})
	if err != nil {
		return Reservation{}, err
	}
	s.logger.Info("stock reserved",
		slog.Int64("sales_order_id", req.SalesOrderID),
		slog.Int("allocations", len(result.Allocations)))
	return result, nil
}

// planReservation locks the source rows and decides what to take from each pool.
func (s *Service) planReservation(ctx context.Context, req ReserveRequest) ([]Allocation, error) {
	type key struct {
		product int64
		pool    Pool
	}
	available := make(map[key]float64)
	var plan []Allocation
	for _, line := range req.Lines {
		need := line.Quantity
		for _, pool := range s.cfg.SourcePools {
			if need <= epsilon {
				break
			}
			k := key{line.ProductID, pool}
			avail, seen := available[k]
			if !seen {
				level, err := s.repo.LockLevel(ctx, line.ProductID, pool)
				if err != nil {
					return nil, err
				}
				avail = level
			}
			take := math.Min(avail, need)
			available[k] = avail - take
			if take <= epsilon {
				continue
			}
			need -= take
			plan = append(plan, Allocation{
				SalesOrderID:     req.SalesOrderID,
				SalesOrderLineID: line.SalesOrderLineID,
				ProductID:        line.ProductID,
				Pool:             pool,
				Quantity:         take,
			})
		}
		if need > epsilon && s.cfg.Policy == PolicyStrict {
			return nil, fmt.Errorf("%w: product %d short by %.2f", ErrInsufficientStock, line.ProductID, need)
		}
	}
	return plan, nil
}

// Release returns the unshipped part of a reservation to the pools it came from,
// newest allocation first, and forgets the allocations. It reports the quantity
// returned per sales order line.
func (s *Service) Release(ctx context.Context, req ReleaseRequest) (map[int64]float64, error) {
	released := make(map[int64]float64)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		allocs, err := s.repo.Allocations(ctx, req.SalesOrderID)
		if err != nil {
			return fmt.Errorf("load allocations: %w", err)
		}
		if len(allocs) == 0 {
			return nil
		}
		remaining := make(map[int64]float64)
		for _, a := range allocs {
			remaining[a.SalesOrderLineID] += a.Quantity
		}
		for line, shipped := range req.Shipped {
			remaining[line] = math.Max(remaining[line]-shipped, 0)
		}
		ref := movementRef{Type: "sales_order", ID: req.SalesOrderID, Note: "release on cancellation"}
		for i := len(allocs) - 1; i >= 0; i-- {
			a := allocs[i]
			give := math.Min(a.Quantity, remaining[a.SalesOrderLineID])
			if give <= epsilon {
				continue
			}
			if err := s.move(ctx, a.ProductID, PoolReserved, a.Pool, give, ref); err != nil {
				return err
			}
			remaining[a.SalesOrderLineID] -= give
			released[a.SalesOrderLineID] += give
		}
		if err := s.repo.DeleteAllocations(ctx, req.SalesOrderID); err != nil {
			return fmt.Errorf("delete allocations: %w", err)
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Action:   "warehouse.release",
			Entity:   "sales_order",
			EntityID: strconv.FormatInt(req.SalesOrderID, 10),
			Meta:     map[string]any{"released": released},
		})
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// Ship takes shipped goods out of RESERVED. A negative quantity returns a
// corrected shipment to RESERVED.
func (s *Service) Ship(ctx context.Context, req ShipRequest) error {
	if math.Abs(req.Quantity) <= epsilon {
		return nil
	}
	if math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return ErrInvalidQuantity
	}
	ref := movementRef{Type: req.RefType, ID: req.RefID}
	if req.Quantity > 0 {
		ref.Note = "shipment"
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			return s.move(ctx, req.ProductID, PoolReserved, "", req.Quantity, ref)
		})
	}
	ref.Note = "shipment correction"
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.move(ctx, req.ProductID, "", PoolReserved, -req.Quantity, ref)
	})
}

// ReceiveProduction books finished goods from WIP into RESERVED for a sales
// order line and records the allocation so cancellation can return it.
func (s *Service) ReceiveProduction(ctx context.Context, req ProductionRequest) (Allocation, error) {
	if !validQuantity(req.Quantity) {
		return Allocation{}, ErrInvalidQuantity
	}
	alloc := Allocation{
		SalesOrderID:     req.SalesOrderID,
		SalesOrderLineID: req.SalesOrderLineID,
		ProductID:        req.ProductID,
		Pool:             PoolWIP,
		Quantity:         req.Quantity,
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ref := movementRef{Type: "job_order", ID: req.RefID, Note: "production receipt"}
		if err := s.move(ctx, req.ProductID, PoolWIP, PoolReserved, req.Quantity, ref); err != nil {
			return err
		}
		id, err := s.repo.InsertAllocation(ctx, alloc)
		if err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
		alloc.ID = id
		return nil
	})
	if err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

// Adjust adds to or removes from a single pool. RESERVED cannot be adjusted by hand.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (Stock, error) {
	pool, err := ParsePool(in.Pool)
	if err != nil {
		return Stock{}, err
	}
	if pool == PoolReserved {
		return Stock{}, ErrReservedPoolManaged
	}
	if in.ProductID == 0 || math.Abs(in.Quantity) <= epsilon || math.IsNaN(in.Quantity) || math.IsInf(in.Quantity, 0) {
		return Stock{}, ErrInvalidQuantity
	}
	var stock Stock
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		ref := movementRef{Type: "adjustment", Note: in.Reason}
		var err error
		if in.Quantity > 0 {
			err = s.move(ctx, in.ProductID, "", pool, in.Quantity, ref)
		} else {
			err = s.move(ctx, in.ProductID, pool, "", -in.Quantity, ref)
		}
		if err != nil {
			return err
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "warehouse.adjust",
			Entity:   "product",
			EntityID: strconv.FormatInt(in.ProductID, 10),
			Meta:     map[string]any{"pool": string(pool), "quantity": in.Quantity, "reason": in.Reason},
		}); err != nil {
			return err
		}
		stock, err = s.Stock(ctx, in.ProductID)
		return err
	})
	return stock, err
}

// Transfer moves stock between two pools, neither of which may be RESERVED.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Stock, error) {
	from, err := ParsePool(in.From)
	if err != nil {
		return Stock{}, err
	}
	to, err := ParsePool(in.To)
	if err != nil {
		return Stock{}, err
	}
	if from == PoolReserved || to == PoolReserved {
		return Stock{}, ErrReservedPoolManaged
	}
	if from == to {
		return Stock{}, fmt.Errorf("%w: source and destination pool must differ", shared.ErrValidation)
	}
	if in.ProductID == 0 || !validQuantity(in.Quantity) {
		return Stock{}, ErrInvalidQuantity
	}
	var stock Stock
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.move(ctx, in.ProductID, from, to, in.Quantity, movementRef{Type: "transfer", Note: in.Reason}); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "warehouse.transfer",
			Entity:   "product",
			EntityID: strconv.FormatInt(in.ProductID, 10),
			Meta:     map[string]any{"from": string(from), "to": string(to), "quantity": in.Quantity, "reason": in.Reason},
		}); err != nil {
			return err
		}
		var err error
		stock, err = s.Stock(ctx, in.ProductID)
		return err
	})
	return stock, err
}

// Stock returns the six pools of a product.
func (s *Service) Stock(ctx context.Context, productID int64) (Stock, error) {
	levels, err := s.repo.Levels(ctx, productID)
	if err != nil {
		return Stock{}, fmt.Errorf("load stock: %w", err)
	}
	return NewStock(productID, levels), nil
}

// Movements lists ledger entries, newest first.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Allocations returns the reservation rows of a sales order.
func (s *Service) Allocations(ctx context.Context, salesOrderID int64) ([]Allocation, error) {
	return s.repo.Allocations(ctx, salesOrderID)
}

// LowStock lists products whose free stock is at or below threshold.
func (s *Service) LowStock(ctx context.Context, threshold float64, limit int) ([]Stock, error) {
	return s.repo.LowStock(ctx, threshold, limit)
}

// move shifts qty between two pools of a product. An empty pool is the outside
// world. Rows are locked in a fixed order so concurrent moves cannot deadlock.
func (s *Service) move(ctx context.Context, productID int64, from, to Pool, qty float64, ref movementRef) error {
	if !validQuantity(qty) {
		return ErrInvalidQuantity
	}
	touched := make([]Pool, 0, 2)
	for _, p := range []Pool{from, to} {
		if p != "" {
			touched = append(touched, p)
		}
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	levels := make(map[Pool]float64, len(touched))
	for _, p := range touched {
		lvl, err := s.repo.LockLevel(ctx, productID, p)
		if err != nil {
			return err
		}
		levels[p] = lvl
	}
	if from != "" {
		if levels[from]+epsilon < qty {
			return fmt.Errorf("%w: product %d pool %s has %.2f, needs %.2f", ErrInsufficientStock, productID, from, levels[from], qty)
		}
		if err := s.repo.SetLevel(ctx, productID, from, math.Max(levels[from]-qty, 0)); err != nil {
			return fmt.Errorf("update %s: %w", from, err)
		}
	}
	if to != "" {
		if err := s.repo.SetLevel(ctx, productID, to, levels[to]+qty); err != nil {
			return fmt.Errorf("update %s: %w", to, err)
		}
	}
	if _, err := s.repo.InsertMovement(ctx, Movement{
		ProductID: productID,
		FromPool:  from,
		ToPool:    to,
		Quantity:  qty,
		RefType:   ref.Type,
		RefID:     ref.ID,
		Note:      ref.Note,
		ActorID:   shared.ActorID(ctx),
	}); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	s.metrics.StockMoved(string(from), string(to), qty)
	return nil
}

func validQuantity(q float64) bool {
	return q > epsilon && !math.IsInf(q, 0) && !math.IsNaN(q)
}

package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/cascade/internal/shared"
)

// Pool names one of the six stock buckets tracked per product.
type Pool string

const (
	PoolNG       Pool = "NG"
	PoolPH       Pool = "PH"
	PoolReserved Pool = "RESERVED"
	PoolRed      Pool = "RED"
	PoolAdmin    Pool = "ADMIN"
	PoolWIP      Pool = "WIP"
)

// AllPools lists the pools in display order.
var AllPools = []Pool{PoolNG, PoolPH, PoolReserved, PoolRed, PoolAdmin, PoolWIP}

// ParsePool accepts pool codes case-insensitively.
func ParsePool(raw string) (Pool, error) {
	p := Pool(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllPools {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown warehouse pool %q", shared.ErrValidation, raw)
}

// ParsePools parses a comma separated pool list, rejecting duplicates and RESERVED.
func ParsePools(raw string) ([]Pool, error) {
	var pools []Pool
	seen := make(map[Pool]bool)
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePool(part)
		if err != nil {
			return nil, err
		}
		if p == PoolReserved {
			return nil, fmt.Errorf("%w: RESERVED cannot be a reservation source", shared.ErrValidation)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate pool %s", shared.ErrValidation, p)
		}
		seen[p] = true
		pools = append(pools, p)
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("%w: at least one source pool required", shared.ErrValidation)
	}
	return pools, nil
}

// Stock is the per-product view of all six pools.
type Stock struct {
	ProductID int64   `json:"productId"`
	NG        float64 `json:"ngWarehouse"`
	PH        float64 `json:"phWarehouse"`
	Reserved  float64 `json:"reservedWarehouse"`
	Red       float64 `json:"redWarehouse"`
	Admin     float64 `json:"adminWarehouse"`
	WIP       float64 `json:"wipWarehouse"`
	Total     float64 `json:"totalStock"`
}

// NewStock builds a Stock from pool levels; missing pools count as zero.
func NewStock(productID int64, levels map[Pool]float64) Stock {
	s := Stock{
		ProductID: productID,
		NG:        levels[PoolNG],
		PH:        levels[PoolPH],
		Reserved:  levels[PoolReserved],
		Red:       levels[PoolRed],
		Admin:     levels[PoolAdmin],
		WIP:       levels[PoolWIP],
	}
	s.Total = s.NG + s.PH + s.Reserved + s.Red + s.Admin + s.WIP
	return s
}

// Level returns the quantity held in pool p.
func (s Stock) Level(p Pool) float64 {
	switch p {
	case PoolNG:
		return s.NG
	case PoolPH:
		return s.PH
	case PoolReserved:
		return s.Reserved
	case PoolRed:
		return s.Red
	case PoolAdmin:
		return s.Admin
	case PoolWIP:
		return s.WIP
	}
	return 0
}

// Movement is one entry of the stock ledger. An empty FromPool means stock
// entered the system; an empty ToPool means it left (shipped or written off).
type Movement struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	FromPool  Pool      `json:"fromPool,omitempty"`
	ToPool    Pool      `json:"toPool,omitempty"`
	Quantity  float64   `json:"quantity"`
	RefType   string    `json:"refType"`
	RefID     int64     `json:"refId,omitempty"`
	Note      string    `json:"note,omitempty"`
	ActorID   int64     `json:"actorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	ProductID int64
	Pool      Pool
	RefType   string
	RefID     int64
	Limit     int
	Offset    int
}

// Allocation records how much of a sales order line was taken from a pool.
type Allocation struct {
	ID               int64   `json:"id"`
	SalesOrderID     int64   `json:"salesOrderId"`
	SalesOrderLineID int64   `json:"salesOrderLineId"`
	ProductID        int64   `json:"productId"`
	Pool             Pool    `json:"pool"`
	Quantity         float64 `json:"quantity"`
}

// ReservationPolicy decides what happens when source pools cannot cover a line.
type ReservationPolicy string

const (
	// PolicyStrict fails the whole reservation with ErrInsufficientStock.
	PolicyStrict ReservationPolicy = "strict"
	// PolicyPartial reserves what is available; the rest is left to produce.
	PolicyPartial ReservationPolicy = "partial"
)

// ReserveLine is one sales order line to reserve stock for.
type ReserveLine struct {
	SalesOrderLineID int64
	ProductID        int64
	Quantity         float64
}

// ReserveRequest reserves stock for a confirmed sales order.
type ReserveRequest struct {
	SalesOrderID int64
	Lines        []ReserveLine
}

// Reservation is the outcome of Reserve.
type Reservation struct {
	SalesOrderID int64
	Reserved     map[int64]float64
	Allocations  []Allocation
}

// ReleaseRequest returns unshipped reserved stock of a sales order.
// Shipped holds the quantity already shipped per sales order line.
type ReleaseRequest struct {
	SalesOrderID int64
	Shipped      map[int64]float64
}

// ShipRequest moves a shipped quantity out of RESERVED. A negative quantity
// puts a corrected shipment back.
type ShipRequest struct {
	ProductID int64
	Quantity  float64
	RefType   string
	RefID     int64
}

// ProductionRequest books finished goods from WIP into RESERVED for a line.
type ProductionRequest struct {
	SalesOrderID     int64
	SalesOrderLineID int64
	ProductID        int64
	Quantity         float64
	RefID            int64
}

// AdjustInput changes one pool by a signed quantity.
type AdjustInput struct {
	ProductID int64   `json:"productId" validate:"required,gt=0"`
	Pool      string  `json:"pool" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"required,ne=0"`
	Reason    string  `json:"reason" validate:"required,max=255"`
}

// TransferInput moves stock between two pools.
type TransferInput struct {
	ProductID int64   `json:"productId" validate:"required,gt=0"`
	From      string  `json:"fromPool" validate:"required"`
	To        string  `json:"toPool" validate:"required,nefield=From"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Reason    string  `json:"reason" validate:"required,max=255"`
}

package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/cascade/internal/warehouse"
)

// SetStock seeds the level of one pool.
func (s *Store) SetStock(productID int64, pool warehouse.Pool, qty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.stock[stockKey{productID, pool}] = qty
}

// Stock returns the current levels of a product.
func (s *Store) Stock(productID int64) warehouse.Stock {
	levels, _ := s.Warehouse().Levels(context.Background(), productID)
	return warehouse.NewStock(productID, levels)
}

// Warehouse returns the warehouse.Repository view of the store.
func (s *Store) Warehouse() warehouse.Repository {
	return warehouseRepo{s}
}

type warehouseRepo struct{ s *Store }

func (r warehouseRepo) LockLevel(_ context.Context, productID int64, pool warehouse.Pool) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.data.stock[stockKey{productID, pool}], nil
}

func (r warehouseRepo) SetLevel(_ context.Context, productID int64, pool warehouse.Pool, qty float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.stock[stockKey{productID, pool}] = qty
	return nil
}

func (r warehouseRepo) Levels(_ context.Context, productID int64) (map[warehouse.Pool]float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[warehouse.Pool]float64)
	for k, v := range r.s.data.stock {
		if k.productID == productID {
			out[k.pool] = v
		}
	}
	return out, nil
}

func (r warehouseRepo) InsertMovement(_ context.Context, m warehouse.Movement) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.id()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.s.now()
	}
	r.s.data.movements = append(r.s.data.movements, m)
	return m.ID, nil
}

func (r warehouseRepo) ListMovements(_ context.Context, filter warehouse.MovementFilter) ([]warehouse.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []warehouse.Movement
	for i := len(r.s.data.movements) - 1; i >= 0; i-- {
		m := r.s.data.movements[i]
		if filter.ProductID > 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Pool != "" && m.FromPool != filter.Pool && m.ToPool != filter.Pool {
			continue
		}
		if filter.RefType != "" && m.RefType != filter.RefType {
			continue
		}
		if filter.RefID > 0 && m.RefID != filter.RefID {
			continue
		}
		out = append(out, m)
	}
	return page(out, filter.Limit, filter.Offset, 100), nil
}

func (r warehouseRepo) InsertAllocation(_ context.Context, a warehouse.Allocation) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	r.s.data.allocations = append(r.s.data.allocations, a)
	return a.ID, nil
}

func (r warehouseRepo) Allocations(_ context.Context, salesOrderID int64) ([]warehouse.Allocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []warehouse.Allocation
	for _, a := range r.s.data.allocations {
		if a.SalesOrderID == salesOrderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r warehouseRepo) DeleteAllocations(_ context.Context, salesOrderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.data.allocations[:0:0]
	for _, a := range r.s.data.allocations {
		if a.SalesOrderID != salesOrderID {
			kept = append(kept, a)
		}
	}
	r.s.data.allocations = kept
	return nil
}

func (r warehouseRepo) LowStock(_ context.Context, threshold float64, limit int) ([]warehouse.Stock, error) {
	r.s.mu.Lock()
	byProduct := make(map[int64]map[warehouse.Pool]float64)
	for k, v := range r.s.data.stock {
		if byProduct[k.productID] == nil {
			byProduct[k.productID] = make(map[warehouse.Pool]float64)
		}
		byProduct[k.productID][k.pool] = v
	}
	r.s.mu.Unlock()

	var out []warehouse.Stock
	for id, levels := range byProduct {
		if levels[warehouse.PoolNG]+levels[warehouse.PoolPH] <= threshold {
			out = append(out, warehouse.NewStock(id, levels))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return page(out, limit, 0, 50), nil
}

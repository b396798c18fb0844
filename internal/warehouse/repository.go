package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/platform/db"
)

// Repository persists pool levels, the movement ledger and reservation allocations.
// Calls join the transaction carried by ctx when there is one.
type Repository interface {
	// LockLevel returns the level of a pool and locks the row until the transaction ends.
	LockLevel(ctx context.Context, productID int64, pool Pool) (float64, error)
	SetLevel(ctx context.Context, productID int64, pool Pool, qty float64) error
	Levels(ctx context.Context, productID int64) (map[Pool]float64, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	InsertAllocation(ctx context.Context, a Allocation) (int64, error)
	// Allocations returns the allocations of a sales order in allocation order.
	Allocations(ctx context.Context, salesOrderID int64) ([]Allocation, error)
	DeleteAllocations(ctx context.Context, salesOrderID int64) error
	// LowStock lists products whose free stock (NG + PH) is at or below threshold.
	LowStock(ctx context.Context, threshold float64, limit int) ([]Stock, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) LockLevel(ctx context.Context, productID int64, pool Pool) (float64, error) {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `
		INSERT INTO warehouse_stock (product_id, pool, quantity)
		VALUES ($1, $2, 0)
		ON CONFLICT (product_id, pool) DO NOTHING`, productID, pool); err != nil {
		return 0, fmt.Errorf("ensure stock row: %w", err)
	}
	var qty float64
	err := conn.QueryRow(ctx, `
		SELECT quantity::double precision FROM warehouse_stock
		WHERE product_id = $1 AND pool = $2
		FOR UPDATE`, productID, pool).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("lock stock row: %w", err)
	}
	return qty, nil
}

func (r *pgRepository) SetLevel(ctx context.Context, productID int64, pool Pool, qty float64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE warehouse_stock SET quantity = $3, updated_at = NOW()
		WHERE product_id = $1 AND pool = $2`, productID, pool, qty)
	return err
}

func (r *pgRepository) Levels(ctx context.Context, productID int64) (map[Pool]float64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT pool, quantity::double precision FROM warehouse_stock WHERE product_id = $1`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := make(map[Pool]float64, len(AllPools))
	for rows.Next() {
		var pool string
		var qty float64
		if err := rows.Scan(&pool, &qty); err != nil {
			return nil, err
		}
		levels[Pool(pool)] = qty
	}
	return levels, rows.Err()
}

func (r *pgRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO stock_movements (product_id, from_pool, to_pool, quantity, ref_type, ref_id, note, actor_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, NULLIF($6, 0), NULLIF($7, ''), NULLIF($8, 0))
		RETURNING id`,
		m.ProductID, string(m.FromPool), string(m.ToPool), m.Quantity, m.RefType, m.RefID, m.Note, m.ActorID,
	).Scan(&id)
	return id, err
}

func (r *pgRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var conditions []string
	var args []any
	argPos := 1
	if filter.ProductID > 0 {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", argPos))
		args = append(args, filter.ProductID)
		argPos++
	}
	if filter.Pool != "" {
		conditions = append(conditions, fmt.Sprintf("(from_pool = $%d OR to_pool = $%d)", argPos, argPos))
		args = append(args, string(filter.Pool))
		argPos++
	}
	if filter.RefType != "" {
		conditions = append(conditions, fmt.Sprintf("ref_type = $%d", argPos))
		args = append(args, filter.RefType)
		argPos++
	}
	if filter.RefID > 0 {
		conditions = append(conditions, fmt.Sprintf("ref_id = $%d", argPos))
		args = append(args, filter.RefID)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT id, product_id, COALESCE(from_pool, ''), COALESCE(to_pool, ''), quantity::double precision,
		       ref_type, COALESCE(ref_id, 0), COALESCE(note, ''), COALESCE(actor_id, 0), created_at
		FROM stock_movements
		%s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d`, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var from, to string
		if err := rows.Scan(&m.ID, &m.ProductID, &from, &to, &m.Quantity, &m.RefType, &m.RefID, &m.Note, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.FromPool, m.ToPool = Pool(from), Pool(to)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *pgRepository) InsertAllocation(ctx context.Context, a Allocation) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO stock_reservations (sales_order_id, sales_order_line_id, product_id, source_pool, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		a.SalesOrderID, a.SalesOrderLineID, a.ProductID, string(a.Pool), a.Quantity,
	).Scan(&id)
	return id, err
}

func (r *pgRepository) Allocations(ctx context.Context, salesOrderID int64) ([]Allocation, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, sales_order_id, sales_order_line_id, product_id, source_pool, quantity::double precision
		FROM stock_reservations
		WHERE sales_order_id = $1
		ORDER BY id`, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		var pool string
		if err := rows.Scan(&a.ID, &a.SalesOrderID, &a.SalesOrderLineID, &a.ProductID, &pool, &a.Quantity); err != nil {
			return nil, err
		}
		a.Pool = Pool(pool)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgRepository) DeleteAllocations(ctx context.Context, salesOrderID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM stock_reservations WHERE sales_order_id = $1`, salesOrderID)
	return err
}

func (r *pgRepository) LowStock(ctx context.Context, threshold float64, limit int) ([]Stock, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT product_id,
		       COALESCE(SUM(quantity) FILTER (WHERE pool = 'NG'), 0)::double precision,
		       COALESCE(SUM(quantity) FILTER (WHERE pool = 'PH'), 0)::double precision,
		       COALESCE(SUM(quantity) FILTER (WHERE pool = 'RESERVED'), 0)::double precision,
		       COALESCE(SUM(quantity) FILTER (WHERE pool = 'RED'), 0)::double precision,
		       COALESCE(SUM(quantity) FILTER (WHERE pool = 'ADMIN'), 0)::double precision,
		       COALESCE(SUM(quantity) FILTER (WHERE pool = 'WIP'), 0)::double precision
		FROM warehouse_stock
		GROUP BY product_id
		HAVING COALESCE(SUM(quantity) FILTER (WHERE pool IN ('NG', 'PH')), 0) <= $1
		ORDER BY product_id
		LIMIT $2`, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stock
	for rows.Next() {
		var id int64
		var ng, ph, reserved, red, admin, wip float64
		if err := rows.Scan(&id, &ng, &ph, &reserved, &red, &admin, &wip); err != nil {
			return nil, err
		}
		out = append(out, NewStock(id, map[Pool]float64{
			PoolNG: ng, PoolPH: ph, PoolReserved: reserved, PoolRed: red, PoolAdmin: admin, PoolWIP: wip,
		}))
	}
	return out, rows.Err()
}

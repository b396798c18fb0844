package joborders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/platform/db"
)

// Repository persists job orders, their items and shipment events. Update and
// UpdateItem check the Version they are given and bump it.
type Repository interface {
	Create(ctx context.Context, jo *JobOrder) error
	Get(ctx context.Context, id int64) (JobOrder, error)
	List(ctx context.Context, filter ListFilter) ([]JobOrder, int, error)
	ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]JobOrder, error)
	Update(ctx context.Context, jo *JobOrder) error
	UpdateItem(ctx context.Context, item *Item) error
	UpsertShipment(ctx context.Context, s Shipment) (Shipment, error)
	DeleteShipment(ctx context.Context, itemID int64, slot int) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const jobOrderColumns = `id, job_order_number, sales_order_id, customer_code, revision, status, due_date,
	COALESCE(order_instructions, ''), version, created_at, updated_at`

func scanJobOrder(row pgx.Row) (JobOrder, error) {
	var jo JobOrder
	var status string
	err := row.Scan(&jo.ID, &jo.Number, &jo.SalesOrderID, &jo.CustomerCode, &jo.Revision, &status,
		&jo.DueDate, &jo.Instructions, &jo.Version, &jo.CreatedAt, &jo.UpdatedAt)
	jo.Status = Status(status)
	return jo, err
}

func (r *repository) Create(ctx context.Context, jo *JobOrder) error {
	conn := db.Conn(ctx, r.pool)
	err := conn.QueryRow(ctx, `
		INSERT INTO job_orders (job_order_number, sales_order_id, customer_code, revision, status, due_date, order_instructions, version)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), 1)
		RETURNING id, version, created_at, updated_at`,
		jo.Number, jo.SalesOrderID, jo.CustomerCode, jo.Revision, string(jo.Status), jo.DueDate, jo.Instructions,
	).Scan(&jo.ID, &jo.Version, &jo.CreatedAt, &jo.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range jo.Items {
		it := &jo.Items[i]
		it.JobOrderID = jo.ID
		err := conn.QueryRow(ctx, `
			INSERT INTO job_order_items (job_order_id, sales_order_line_id, product_id, product_name, specification,
				order_quantity, reserved_quantity, version)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, 1)
			RETURNING id, version`,
			jo.ID, it.SalesOrderLineID, it.ProductID, it.ProductName, it.Specification, it.OrderQuantity, it.ReservedQuantity,
		).Scan(&it.ID, &it.Version)
		if err != nil {
			return fmt.Errorf("insert job order item: %w", err)
		}
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (JobOrder, error) {
	jo, err := scanJobOrder(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+jobOrderColumns+` FROM job_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JobOrder{}, ErrNotFound
		}
		return JobOrder{}, err
	}
	orders := []JobOrder{jo}
	if err := r.loadItems(ctx, orders); err != nil {
		return JobOrder{}, err
	}
	return orders[0], nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JobOrder, int, error) {
	var conditions []string
	var args []any
	argPos := 1
	if filter.SalesOrderID > 0 {
		conditions = append(conditions, fmt.Sprintf("sales_order_id = $%d", argPos))
		args = append(args, filter.SalesOrderID)
		argPos++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(job_order_number ILIKE $%d OR customer_code ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM job_orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM job_orders %s ORDER BY id DESC LIMIT $%d OFFSET $%d", jobOrderColumns, where, argPos, argPos+1)
	orders, err := r.query(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *repository) ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]JobOrder, error) {
	orders, err := r.query(ctx, `SELECT `+jobOrderColumns+` FROM job_orders WHERE sales_order_id = $1 ORDER BY id`, salesOrderID)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]JobOrder, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobOrder
	for rows.Next() {
		jo, err := scanJobOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, jo)
	}
	return out, rows.Err()
}

// loadItems attaches items and shipments to orders with two queries.
func (r *repository) loadItems(ctx context.Context, orders []JobOrder) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, jo := range orders {
		ids[i] = jo.ID
		index[jo.ID] = i
	}
	conn := db.Conn(ctx, r.pool)
	rows, err := conn.Query(ctx, `
		SELECT id, job_order_id, sales_order_line_id, product_id, product_name, COALESCE(specification, ''),
		       order_quantity::double precision, reserved_quantity::double precision, version
		FROM job_order_items WHERE job_order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	type itemRef struct{ order, item int }
	items := make(map[int64]itemRef)
	var itemIDs []int64
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.JobOrderID, &it.SalesOrderLineID, &it.ProductID, &it.ProductName,
			&it.Specification, &it.OrderQuantity, &it.ReservedQuantity, &it.Version); err != nil {
			rows.Close()
			return err
		}
		oi := index[it.JobOrderID]
		orders[oi].Items = append(orders[oi].Items, it)
		items[it.ID] = itemRef{order: oi, item: len(orders[oi].Items) - 1}
		itemIDs = append(itemIDs, it.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		return nil
	}
	srows, err := conn.Query(ctx, `
		SELECT id, job_order_item_id, slot, quantity::double precision, shipped_at, delivery_receipt_id
		FROM job_order_shipments WHERE job_order_item_id = ANY($1) ORDER BY slot`, itemIDs)
	if err != nil {
		return err
	}
	defer srows.Close()
	for srows.Next() {
		var s Shipment
		if err := srows.Scan(&s.ID, &s.ItemID, &s.Slot, &s.Quantity, &s.ShippedAt, &s.DeliveryReceiptID); err != nil {
			return err
		}
		ref := items[s.ItemID]
		orders[ref.order].Items[ref.item].Shipments = append(orders[ref.order].Items[ref.item].Shipments, s)
	}
	return srows.Err()
}

func (r *repository) Update(ctx context.Context, jo *JobOrder) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE job_orders SET status = $3, due_date = $4, order_instructions = NULLIF($5, ''),
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		jo.ID, jo.Version, string(jo.Status), jo.DueDate, jo.Instructions,
	).Scan(&jo.Version, &jo.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *repository) UpdateItem(ctx context.Context, item *Item) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE job_order_items SET reserved_quantity = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version`,
		item.ID, item.Version, item.ReservedQuantity,
	).Scan(&item.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *repository) UpsertShipment(ctx context.Context, s Shipment) (Shipment, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO job_order_shipments (job_order_item_id, slot, quantity, shipped_at, delivery_receipt_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_order_item_id, slot) DO UPDATE
			SET quantity = EXCLUDED.quantity, shipped_at = EXCLUDED.shipped_at,
			    delivery_receipt_id = EXCLUDED.delivery_receipt_id
		RETURNING id`,
		s.ItemID, s.Slot, s.Quantity, s.ShippedAt, s.DeliveryReceiptID,
	).Scan(&s.ID)
	return s, err
}

func (r *repository) DeleteShipment(ctx context.Context, itemID int64, slot int) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM job_order_shipments WHERE job_order_item_id = $1 AND slot = $2`, itemID, slot)
	return err
}

package delivery

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/platform/db"
)

type Repository interface {
	Create(ctx context.Context, r *Receipt) error
	InsertLines(ctx context.Context, receiptID int64, lines []Line) ([]Line, error)
	Get(ctx context.Context, id int64) (Receipt, error)
	List(ctx context.Context, filter ListFilter) ([]Receipt, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Create(ctx context.Context, rec *Receipt) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO delivery_receipts (receipt_number, job_order_id, notes, created_by)
		VALUES ($1, $2, $3, NULLIF($4, 0))
		RETURNING id, created_at`,
		rec.Number, rec.JobOrderID, rec.Notes, rec.CreatedBy,
	).Scan(&rec.ID, &rec.CreatedAt)
}

func (r *repository) InsertLines(ctx context.Context, receiptID int64, lines []Line) ([]Line, error) {
	q := db.Conn(ctx, r.pool)
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.ReceiptID = receiptID
		err := q.QueryRow(ctx, `
			INSERT INTO delivery_receipt_lines (delivery_receipt_id, job_order_item_id, shipment_id, slot, product_name, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			receiptID, l.JobOrderItemID, l.ShipmentID, l.Slot, l.ProductName, l.Quantity,
		).Scan(&l.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

const receiptColumns = `r.id, r.receipt_number, r.job_order_id, jo.job_order_number, jo.sales_order_id,
	jo.customer_code, r.notes, COALESCE(r.created_by, 0), r.created_at`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rec Receipt
	err := row.Scan(&rec.ID, &rec.Number, &rec.JobOrderID, &rec.JobOrderNumber, &rec.SalesOrderID,
		&rec.CustomerCode, &rec.Notes, &rec.CreatedBy, &rec.CreatedAt)
	return rec, err
}

func (r *repository) Get(ctx context.Context, id int64) (Receipt, error) {
	q := db.Conn(ctx, r.pool)
	rec, err := scanReceipt(q.QueryRow(ctx, `
		SELECT `+receiptColumns+`
		FROM delivery_receipts r
		JOIN job_orders jo ON jo.id = r.job_order_id
		WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	if err != nil {
		return Receipt{}, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, delivery_receipt_id, job_order_item_id, shipment_id, slot, product_name, quantity::double precision
		FROM delivery_receipt_lines
		WHERE delivery_receipt_id = $1
		ORDER BY id`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.JobOrderItemID, &l.ShipmentID, &l.Slot, &l.ProductName, &l.Quantity); err != nil {
			return Receipt{}, err
		}
		rec.Lines = append(rec.Lines, l)
	}
	return rec, rows.Err()
}

// List returns receipt headers, newest first.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+receiptColumns+`
		FROM delivery_receipts r
		JOIN job_orders jo ON jo.id = r.job_order_id
		WHERE ($1::bigint = 0 OR r.job_order_id = $1)
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2 OFFSET $3`, filter.JobOrderID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

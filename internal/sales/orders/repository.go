package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/platform/db"
)

// Repository persists sales orders. Update checks o.Version and bumps it.
type Repository interface {
	Get(ctx context.Context, id int64) (SalesOrder, error)
	List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error)
	Create(ctx context.Context, o *SalesOrder) error
	Update(ctx context.Context, o *SalesOrder) error
	ReplaceLines(ctx context.Context, salesOrderID int64, lines []Line) ([]Line, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const orderColumns = `id, sales_order_number, quotation_id, COALESCE(customer_id, 0), customer_code, COALESCE(country, ''),
	revision, status, is_confirmed, due_date, COALESCE(notes, ''),
	subtotal::double precision, shipping_fee::double precision, bank_charge::double precision,
	discount::double precision, others::double precision, total::double precision,
	COALESCE(created_by, 0), confirmed_by, confirmed_at, cancelled_by, cancelled_at,
	COALESCE(cancellation_reason, ''), completed_at, version, created_at, updated_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var o SalesOrder
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.QuotationID, &o.CustomerID, &o.CustomerCode, &o.Country,
		&o.Revision, &status, &o.IsConfirmed, &o.DueDate, &o.Notes,
		&o.Subtotal, &o.ShippingFee, &o.BankCharge, &o.Discount, &o.Others, &o.Total,
		&o.CreatedBy, &o.ConfirmedBy, &o.ConfirmedAt, &o.CancelledBy, &o.CancelledAt,
		&o.CancellationReason, &o.CompletedAt, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func (r *repository) Get(ctx context.Context, id int64) (SalesOrder, error) {
	conn := db.Conn(ctx, r.pool)
	o, err := scanOrder(conn.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, ErrNotFound
		}
		return SalesOrder{}, err
	}
	rows, err := conn.Query(ctx, `
		SELECT id, sales_order_id, product_id, product_name, COALESCE(specification, ''),
		       quantity::double precision, unit_price::double precision, line_total::double precision, line_order
		FROM sales_order_lines WHERE sales_order_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return SalesOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.SalesOrderID, &l.ProductID, &l.ProductName, &l.Specification,
			&l.Quantity, &l.UnitPrice, &l.LineTotal, &l.LineOrder); err != nil {
			return SalesOrder{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	var conditions []string
	var args []any
	argPos := 1
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.CustomerCode != "" {
		conditions = append(conditions, fmt.Sprintf("customer_code = $%d", argPos))
		args = append(args, filter.CustomerCode)
		argPos++
	}
	if filter.QuotationID > 0 {
		conditions = append(conditions, fmt.Sprintf("quotation_id = $%d", argPos))
		args = append(args, filter.QuotationID)
		argPos++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(sales_order_number ILIKE $%d OR customer_code ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM sales_orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM sales_orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, argPos, argPos+1), append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []SalesOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, o *SalesOrder) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO sales_orders (sales_order_number, quotation_id, customer_id, customer_code, country, revision,
			status, is_confirmed, due_date, notes, subtotal, shipping_fee, bank_charge, discount, others, total,
			created_by, version)
		VALUES ($1, $2, NULLIF($3, 0), $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16,
			NULLIF($17, 0), 1)
		RETURNING id, version, created_at, updated_at`,
		o.Number, o.QuotationID, o.CustomerID, o.CustomerCode, o.Country, o.Revision,
		string(o.Status), o.IsConfirmed, o.DueDate, o.Notes, o.Subtotal, o.ShippingFee, o.BankCharge, o.Discount,
		o.Others, o.Total, o.CreatedBy,
	).Scan(&o.ID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}
	lines, err := r.ReplaceLines(ctx, o.ID, o.Lines)
	if err != nil {
		return err
	}
	o.Lines = lines
	return nil
}

func (r *repository) Update(ctx context.Context, o *SalesOrder) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE sales_orders SET
			country = NULLIF($3, ''), revision = $4, status = $5, is_confirmed = $6, due_date = $7,
			notes = NULLIF($8, ''), subtotal = $9, shipping_fee = $10, bank_charge = $11, discount = $12,
			others = $13, total = $14, confirmed_by = $15, confirmed_at = $16, cancelled_by = $17,
			cancelled_at = $18, cancellation_reason = NULLIF($19, ''), completed_at = $20,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		o.ID, o.Version, o.Country, o.Revision, string(o.Status), o.IsConfirmed, o.DueDate,
		o.Notes, o.Subtotal, o.ShippingFee, o.BankCharge, o.Discount,
		o.Others, o.Total, o.ConfirmedBy, o.ConfirmedAt, o.CancelledBy,
		o.CancelledAt, o.CancellationReason, o.CompletedAt,
	).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *repository) ReplaceLines(ctx context.Context, salesOrderID int64, lines []Line) ([]Line, error) {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `DELETE FROM sales_order_lines WHERE sales_order_id = $1`, salesOrderID); err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.SalesOrderID = salesOrderID
		err := conn.QueryRow(ctx, `
			INSERT INTO sales_order_lines (sales_order_id, product_id, product_name, specification, quantity, unit_price, line_total, line_order)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
			RETURNING id`,
			salesOrderID, l.ProductID, l.ProductName, l.Specification, l.Quantity, l.UnitPrice, l.LineTotal, l.LineOrder,
		).Scan(&l.ID)
		if err != nil {
			return nil, fmt.Errorf("insert sales order line: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}

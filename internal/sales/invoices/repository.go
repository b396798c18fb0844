package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/platform/db"
)

type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id int64) (Invoice, error)
	GetBySalesOrder(ctx context.Context, salesOrderID int64) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const invoiceColumns = `id, invoice_number, sales_order_id, COALESCE(customer_id, 0), customer_code,
	subtotal::double precision, shipping_fee::double precision, bank_charge::double precision,
	discount::double precision, others::double precision, total::double precision,
	payment_status, due_date, COALESCE(created_by, 0), created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Number, &inv.SalesOrderID, &inv.CustomerID, &inv.CustomerCode,
		&inv.Subtotal, &inv.ShippingFee, &inv.BankCharge, &inv.Discount, &inv.Others, &inv.Total,
		&status, &inv.DueDate, &inv.CreatedBy, &inv.CreatedAt)
	inv.PaymentStatus = PaymentStatus(status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

func (r *repository) Create(ctx context.Context, inv *Invoice) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, sales_order_id, customer_id, customer_code, subtotal, shipping_fee,
			bank_charge, discount, others, total, payment_status, due_date, created_by)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, 0))
		RETURNING id, created_at`,
		inv.Number, inv.SalesOrderID, inv.CustomerID, inv.CustomerCode, inv.Subtotal, inv.ShippingFee,
		inv.BankCharge, inv.Discount, inv.Others, inv.Total, string(inv.PaymentStatus), inv.DueDate, inv.CreatedBy,
	).Scan(&inv.ID, &inv.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyInvoiced
	}
	return err
}

func (r *repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

func (r *repository) GetBySalesOrder(ctx context.Context, salesOrderID int64) (Invoice, error) {
	return scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE sales_order_id = $1`, salesOrderID))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	var conditions []string
	var args []any
	argPos := 1
	if filter.CustomerCode != "" {
		conditions = append(conditions, fmt.Sprintf("customer_code = $%d", argPos))
		args = append(args, filter.CustomerCode)
		argPos++
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argPos))
		args = append(args, string(filter.PaymentStatus))
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT %s FROM invoices %s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		invoiceColumns, where, argPos, argPos+1), append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/platform/db"
)

// Repository persists quotations. Update checks q.Version and bumps it.
type Repository interface {
	Get(ctx context.Context, id int64) (Quotation, error)
	List(ctx context.Context, filter ListFilter) ([]Quotation, int, error)
	Create(ctx context.Context, q *Quotation) error
	Update(ctx context.Context, q *Quotation) error
	ReplaceLines(ctx context.Context, quotationID int64, lines []Line) ([]Line, error)
	// DueForExpiry lists pending or approved quotations whose validity ended before cutoff.
	DueForExpiry(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const quotationColumns = `id, quotation_number, COALESCE(customer_id, 0), customer_code, COALESCE(country, ''), revision, status,
	valid_until, COALESCE(notes, ''), subtotal::double precision, shipping_fee::double precision,
	bank_charge::double precision, discount::double precision, others::double precision, total::double precision,
	COALESCE(created_by, 0), approved_by, approved_at, rejected_by, rejected_at, COALESCE(rejection_reason, ''),
	version, created_at, updated_at`

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	var status string
	err := row.Scan(&q.ID, &q.Number, &q.CustomerID, &q.CustomerCode, &q.Country, &q.Revision, &status,
		&q.ValidUntil, &q.Notes, &q.Subtotal, &q.ShippingFee, &q.BankCharge, &q.Discount, &q.Others, &q.Total,
		&q.CreatedBy, &q.ApprovedBy, &q.ApprovedAt, &q.RejectedBy, &q.RejectedAt, &q.RejectionReason,
		&q.Version, &q.CreatedAt, &q.UpdatedAt)
	q.Status = Status(status)
	return q, err
}

func (r *repository) Get(ctx context.Context, id int64) (Quotation, error) {
	conn := db.Conn(ctx, r.pool)
	q, err := scanQuotation(conn.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, ErrNotFound
		}
		return Quotation{}, err
	}
	rows, err := conn.Query(ctx, `
		SELECT id, quotation_id, product_id, product_name, COALESCE(specification, ''),
		       quantity::double precision, unit_price::double precision, line_total::double precision, line_order
		FROM quotation_lines WHERE quotation_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return Quotation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.ProductID, &l.ProductName, &l.Specification,
			&l.Quantity, &l.UnitPrice, &l.LineTotal, &l.LineOrder); err != nil {
			return Quotation{}, err
		}
		q.Lines = append(q.Lines, l)
	}
	return q, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
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
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(quotation_number ILIKE $%d OR customer_code ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM quotations "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM quotations %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, where, argPos, argPos+1)
	rows, err := conn.Query(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q *Quotation) error {
	conn := db.Conn(ctx, r.pool)
	err := conn.QueryRow(ctx, `
		INSERT INTO quotations (quotation_number, customer_id, customer_code, country, revision, status,
			valid_until, notes, subtotal, shipping_fee, bank_charge, discount, others, total, created_by, version)
		VALUES ($1, NULLIF($2, 0), $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14, NULLIF($15, 0), 1)
		RETURNING id, version, created_at, updated_at`,
		q.Number, q.CustomerID, q.CustomerCode, q.Country, q.Revision, string(q.Status),
		q.ValidUntil, q.Notes, q.Subtotal, q.ShippingFee, q.BankCharge, q.Discount, q.Others, q.Total, q.CreatedBy,
	).Scan(&q.ID, &q.Version, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("quotation number %s already used: %w", q.Number, err)
		}
		return err
	}
	lines, err := r.ReplaceLines(ctx, q.ID, q.Lines)
	if err != nil {
		return err
	}
	q.Lines = lines
	return nil
}

func (r *repository) Update(ctx context.Context, q *Quotation) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE quotations SET
			country = NULLIF($3, ''), revision = $4, status = $5, valid_until = $6, notes = NULLIF($7, ''),
			subtotal = $8, shipping_fee = $9, bank_charge = $10, discount = $11, others = $12, total = $13,
			approved_by = $14, approved_at = $15, rejected_by = $16, rejected_at = $17,
			rejection_reason = NULLIF($18, ''), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		q.ID, q.Version, q.Country, q.Revision, string(q.Status), q.ValidUntil, q.Notes,
		q.Subtotal, q.ShippingFee, q.BankCharge, q.Discount, q.Others, q.Total,
		q.ApprovedBy, q.ApprovedAt, q.RejectedBy, q.RejectedAt, q.RejectionReason,
	).Scan(&q.Version, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *repository) ReplaceLines(ctx context.Context, quotationID int64, lines []Line) ([]Line, error) {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `DELETE FROM quotation_lines WHERE quotation_id = $1`, quotationID); err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.QuotationID = quotationID
		err := conn.QueryRow(ctx, `
			INSERT INTO quotation_lines (quotation_id, product_id, product_name, specification, quantity, unit_price, line_total, line_order)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
			RETURNING id`,
			quotationID, l.ProductID, l.ProductName, l.Specification, l.Quantity, l.UnitPrice, l.LineTotal, l.LineOrder,
		).Scan(&l.ID)
		if err != nil {
			return nil, fmt.Errorf("insert quotation line: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *repository) DueForExpiry(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM quotations
		WHERE status IN ('pending', 'approved') AND valid_until IS NOT NULL AND valid_until < $1
		ORDER BY id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

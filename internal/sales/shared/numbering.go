package shared

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cascade/internal/platform/db"
)

// Document series. Quotations and sales orders share one series so a sales
// order converted from a quotation can keep the quotation's number.
const (
	SeriesSales           = "SALES"
	SeriesDeliveryReceipt = "DR"
)

// FormatNumber renders YYYY.MM.NNN with an optional prefix.
func FormatNumber(prefix string, at time.Time, seq int64) string {
	base := fmt.Sprintf("%04d.%02d.%03d", at.Year(), int(at.Month()), seq)
	if prefix == "" {
		return base
	}
	return prefix + "-" + base
}

// NextRevision turns R0 into R1, R7 into R8. Unparseable input restarts at R1.
func NextRevision(rev string) string {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(rev), "R"))
	if err != nil || n < 0 {
		return "R1"
	}
	return "R" + strconv.Itoa(n+1)
}

// Sequencer allocates monthly document numbers.
type Sequencer interface {
	Next(ctx context.Context, series string, at time.Time) (string, error)
}

// PGSequencer keeps counters in doc_sequences, one row per series and month.
type PGSequencer struct {
	pool *pgxpool.Pool
}

// NewSequencer builds a PostgreSQL backed Sequencer.
func NewSequencer(pool *pgxpool.Pool) *PGSequencer {
	return &PGSequencer{pool: pool}
}

// Next increments and formats the counter for series in the month of at.
func (s *PGSequencer) Next(ctx context.Context, series string, at time.Time) (string, error) {
	period := at.Format("2006-01")
	var seq int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO doc_sequences (series, period, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (series, period) DO UPDATE SET last_value = doc_sequences.last_value + 1
		RETURNING last_value`, series, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", series, err)
	}
	prefix := ""
	if series != SeriesSales {
		prefix = series
	}
	return FormatNumber(prefix, at, seq), nil
}

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
)

// WriteCSV writes the ledger rows of receipts with the same columns as the
// workbook's Ledger sheet.
func WriteCSV(w io.Writer, receipts []joborders.Receipt) error {
	cw := csv.NewWriter(w)
	slots := slotCount(receipts)
	if err := cw.Write(ledgerHeaders(slots)); err != nil {
		return err
	}
	for _, r := range receipts {
		for _, l := range r.Lines {
			vals := ledgerRow(r, l, slots)
			record := make([]string, len(vals))
			for i, v := range vals {
				record[i] = csvValue(v)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Package report builds spreadsheet projections of job order shipment ledgers.
package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
)

// Source loads job orders and their printable ledgers.
type Source interface {
	ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]joborders.JobOrder, error)
	Receipt(ctx context.Context, id int64) (joborders.Receipt, error)
}

// Exporter renders ledgers as XLSX and CSV.
type Exporter struct {
	source      Source
	printer     *message.Printer
	concurrency int
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source, printer: message.NewPrinter(language.English), concurrency: 4}
}

// Load fetches the ledgers of ids in parallel, keeping the order of ids.
func (e *Exporter) Load(ctx context.Context, ids []int64) ([]joborders.Receipt, error) {
	out := make([]joborders.Receipt, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := e.source.Receipt(ctx, id)
			if err != nil {
				return fmt.Errorf("load job order %d: %w", id, err)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadForSalesOrder loads the ledgers of every job order of a sales order.
func (e *Exporter) LoadForSalesOrder(ctx context.Context, salesOrderID int64) ([]joborders.Receipt, error) {
	jobs, err := e.source.ListBySalesOrder(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(jobs))
	for _, jo := range jobs {
		ids = append(ids, jo.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return e.Load(ctx, ids)
}

func ledgerHeaders(slots int) []string {
	headers := []string{"Job Order", "Product", "Specification", "Order", "Reserved"}
	for n := 1; n <= slots; n++ {
		headers = append(headers, fmt.Sprintf("Shipment %d", n))
	}
	return append(headers, "Shipped", "Ready", "To Produce", "Balance", "Completion %")
}

func slotCount(receipts []joborders.Receipt) int {
	slots := joborders.DefaultMaxShipmentSlots
	for _, r := range receipts {
		if r.SlotCount > slots {
			slots = r.SlotCount
		}
	}
	return slots
}

func ledgerRow(r joborders.Receipt, l joborders.ReceiptLine, slots int) []any {
	row := []any{r.JobOrderNumber, l.ProductName, l.Specification, l.OrderQuantity, l.ReservedQuantity}
	for n := 0; n < slots; n++ {
		if n < len(l.Slots) && l.Slots[n] != 0 {
			row = append(row, l.Slots[n])
		} else {
			row = append(row, nil)
		}
	}
	return append(row, l.ShippedQuantity, l.ReadyQuantity, l.ToProduceQuantity, l.OrderBalance, l.CompletionPercentage)
}

// Workbook builds one "Ledger" sheet with a row per item and a "Summary"
// sheet with a row per job order.
func (e *Exporter) Workbook(receipts []joborders.Receipt) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Ledger"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	boldStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return nil, err
	}

	slots := slotCount(receipts)
	headers := ledgerHeaders(slots)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheet, cell, cell, boldStyle); err != nil {
			return nil, err
		}
	}
	row := 2
	for _, r := range receipts {
		for _, l := range r.Lines {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			vals := ledgerRow(r, l, slots)
			if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
				return nil, err
			}
			row++
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(sheet, "A", "C", 20)
	_ = f.SetColWidth(sheet, "D", lastCol, 11)

	summary := "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, err
	}
	summaryHeaders := []any{"Job Order", "Customer", "Status", "Ordered", "Shipped", "Balance", "Completion"}
	if err := f.SetSheetRow(summary, "A1", &summaryHeaders); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(summary, "A1", "G1", boldStyle)
	for i, r := range receipts {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		vals := []any{
			r.JobOrderNumber, r.CustomerCode, string(r.Status),
			r.Totals.OrderQuantity, r.Totals.ShippedQuantity, r.Totals.OrderBalance,
			e.printer.Sprintf("%.1f%%", r.Totals.CompletionPercentage),
		}
		if err := f.SetSheetRow(summary, cell, &vals); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(summary, "A", "G", 16)
	return f, nil
}

// WorkbookBytes renders the workbook of the given ledgers.
func (e *Exporter) WorkbookBytes(receipts []joborders.Receipt) ([]byte, error) {
	f, err := e.Workbook(receipts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSalesOrderWorkbook stores the workbook of a sales order under dir and
// returns the file path.
func (e *Exporter) WriteSalesOrderWorkbook(ctx context.Context, salesOrderID int64, dir, name string) (string, error) {
	receipts, err := e.LoadForSalesOrder(ctx, salesOrderID)
	if err != nil {
		return "", err
	}
	body, err := e.WorkbookBytes(receipts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

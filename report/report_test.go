package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/report"
)

type source struct {
	jobs []joborders.JobOrder
}

func (s source) ListBySalesOrder(_ context.Context, salesOrderID int64) ([]joborders.JobOrder, error) {
	var out []joborders.JobOrder
	for _, jo := range s.jobs {
		if jo.SalesOrderID == salesOrderID {
			out = append(out, jo)
		}
	}
	return out, nil
}

func (s source) Receipt(_ context.Context, id int64) (joborders.Receipt, error) {
	for _, jo := range s.jobs {
		if jo.ID == id {
			return joborders.NewReceipt(jo, joborders.DefaultMaxShipmentSlots, time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC)), nil
		}
	}
	return joborders.Receipt{}, joborders.ErrNotFound
}

func fixture() source {
	return source{jobs: []joborders.JobOrder{
		{
			ID: 2, Number: "2025.08.002", SalesOrderID: 7, CustomerCode: "CUST-02", Status: joborders.StatusPending,
			Items: []joborders.Item{{ID: 21, ProductName: "Bolt", OrderQuantity: 5, ReservedQuantity: 5}},
		},
		{
			ID: 1, Number: "2025.08.001", SalesOrderID: 7, CustomerCode: "CUST-01", Status: joborders.StatusInProduction,
			Items: []joborders.Item{
				{ID: 11, ProductName: "Widget", OrderQuantity: 10, ReservedQuantity: 10,
					Shipments: []joborders.Shipment{{Slot: 1, Quantity: 4}, {Slot: 3, Quantity: 1.5}}},
				{ID: 12, ProductName: "Gear", OrderQuantity: 2, ReservedQuantity: 0},
			},
		},
		{ID: 3, Number: "2025.08.003", SalesOrderID: 8, Items: []joborders.Item{{ID: 31, OrderQuantity: 1}}},
	}}
}

func TestLoadForSalesOrderKeepsIDOrder(t *testing.T) {
	exp := report.NewExporter(fixture())
	receipts, err := exp.LoadForSalesOrder(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	require.Equal(t, "2025.08.001", receipts[0].JobOrderNumber)
	require.Equal(t, "2025.08.002", receipts[1].JobOrderNumber)

	_, err = exp.Load(context.Background(), []int64{1, 99})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestWorkbookSheets(t *testing.T) {
	exp := report.NewExporter(fixture())
	receipts, err := exp.LoadForSalesOrder(context.Background(), 7)
	require.NoError(t, err)

	body, err := exp.WorkbookBytes(receipts)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{"Ledger", "Summary"}, f.GetSheetList())
	rows, err := f.GetRows("Ledger")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "Shipment 1", rows[0][5])
	require.Equal(t, "Widget", rows[1][1])
	require.Equal(t, "4", rows[1][5])
	require.Equal(t, "1.5", rows[1][7])

	balance, err := f.GetCellValue("Summary", "F2")
	require.NoError(t, err)
	require.Equal(t, "6.5", balance)
	completion, err := f.GetCellValue("Summary", "G2")
	require.NoError(t, err)
	require.Equal(t, "45.8%", completion)
}

func TestWriteCSV(t *testing.T) {
	exp := report.NewExporter(fixture())
	receipts, err := exp.LoadForSalesOrder(context.Background(), 7)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, receipts))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	header := records[0]
	require.Len(t, header, 5+joborders.DefaultMaxShipmentSlots+5)

	widget := records[1]
	require.Equal(t, "2025.08.001", widget[0])
	require.Equal(t, "4", widget[5])
	require.Equal(t, "", widget[6])
	require.Equal(t, "5.5", widget[len(widget)-5])
	require.Equal(t, "4.5", widget[len(widget)-2])
	gear := records[2]
	require.Equal(t, "2", gear[len(gear)-3], "to produce")
}

func TestWriteSalesOrderWorkbook(t *testing.T) {
	exp := report.NewExporter(fixture())
	dir := t.TempDir()
	path, err := exp.WriteSalesOrderWorkbook(context.Background(), 8, dir, "so-8.xlsx")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

type enqueuer struct {
	ids []int64
	err error
}

func (e *enqueuer) EnqueueWorkbookExport(_ context.Context, salesOrderID int64) (string, error) {
	e.ids = append(e.ids, salesOrderID)
	return "task-1", e.err
}

func newRouter(enq report.Enqueuer) http.Handler {
	h := report.NewHandler(report.NewExporter(fixture()), enq, nil)
	r := chi.NewRouter()
	r.Route("/job-orders", h.MountJobOrderRoutes)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestHandlerExports(t *testing.T) {
	enq := &enqueuer{}
	h := newRouter(enq)

	rr := serve(h, http.MethodGet, "/job-orders/export.csv?salesOrderId=7", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rr.Body.String(), "2025.08.002")

	rr = serve(h, http.MethodGet, "/job-orders/export.csv", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodGet, "/job-orders/1/export.xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "2025.08.001.xlsx")

	rr = serve(h, http.MethodGet, "/job-orders/99/export.xlsx", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(h, http.MethodPost, "/job-orders/export", `{"salesOrderId":7}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.JSONEq(t, `{"taskId":"task-1"}`, rr.Body.String())
	require.Equal(t, []int64{7}, enq.ids)

	rr = serve(h, http.MethodPost, "/job-orders/export", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerEnqueueUnavailable(t *testing.T) {
	rr := serve(newRouter(nil), http.MethodPost, "/job-orders/export", `{"salesOrderId":7}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(newRouter(&enqueuer{err: errors.New("redis down")}), http.MethodPost, "/job-orders/export", `{"salesOrderId":7}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "failed to enqueue export")
}

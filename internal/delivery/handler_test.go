package delivery_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/shared"
)

func newRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t, nil)
	h := delivery.NewHandler(nil, f.svc, f.jobs, nil, f.store)
	r := chi.NewRouter()
	r.Route("/job-orders", h.MountJobOrderRoutes)
	h.MountRoutes(r)
	return r, f
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateIsIdempotent(t *testing.T) {
	h, f := newRouter(t)
	path := "/job-orders/" + strconv.FormatInt(f.jo.ID, 10) + "/delivery-receipt"
	body := `{"items":[{"itemId":` + strconv.FormatInt(f.jo.Items[0].ID, 10) + `,"quantity":2}],"notes":"dock"}`
	header := http.Header{shared.IdempotencyHeader: []string{"dr-1"}}

	rr := do(t, h, http.MethodPost, path, body, header)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var payload struct {
		DeliveryReceipt delivery.Receipt `json:"deliveryReceipt"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "DR-2025.08.001", payload.DeliveryReceipt.Number)
	require.Equal(t, 1, payload.DeliveryReceipt.Lines[0].Slot)

	rr = do(t, h, http.MethodPost, path, body, header)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, 4.0, f.store.Stock(widget).Reserved)

	rr = do(t, h, http.MethodGet, "/job-orders/"+strconv.FormatInt(f.jo.ID, 10)+"/delivery-receipts", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"receiptNumber":"DR-2025.08.001"`)
}

func TestHandlerErrors(t *testing.T) {
	h, f := newRouter(t)
	jo := strconv.FormatInt(f.jo.ID, 10)
	item := strconv.FormatInt(f.jo.Items[0].ID, 10)

	rr := do(t, h, http.MethodPost, "/job-orders/"+jo+"/delivery-receipt", `{"items":[{"itemId":`+item+`,"quantity":9}]}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPost, "/job-orders/"+jo+"/delivery-receipt", `{"items":[{"itemId":`+item+`,"quantity":-1}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/job-orders/"+jo+"/delivery-receipt", `{"items":`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/job-orders/404/delivery-receipt", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/delivery-receipts/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodGet, "/delivery-receipts/404", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerPDFs(t *testing.T) {
	h, f := newRouter(t)
	jo := strconv.FormatInt(f.jo.ID, 10)

	rr := do(t, h, http.MethodPost, "/job-orders/"+jo+"/delivery-receipt", "", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var payload struct {
		DeliveryReceipt delivery.Receipt `json:"deliveryReceipt"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))

	rr = do(t, h, http.MethodGet, "/delivery-receipts/"+strconv.FormatInt(payload.DeliveryReceipt.ID, 10)+"/pdf", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "DR-2025.08.001.pdf")
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")))

	rr = do(t, h, http.MethodGet, "/job-orders/"+jo+"/pdf", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")))
}

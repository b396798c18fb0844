// Package client is a typed HTTP client for the cascade API. Every request
// goes through one place that sets the base URL and the bearer header.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/cascade/internal/auth"
	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/sales/orders"
	"github.com/odyssey-erp/cascade/internal/sales/quotations"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
)

// TokenSource yields the bearer token for the next request. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource with a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client talks to the cascade API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets where bearer tokens come from. Without it the client
// uses the token stored by Login.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New constructs a client for baseURL, such as http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token implements TokenSource with the token obtained by Login.
func (c *Client) Token(context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (auth.LoginResult, error) {
	var res auth.LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", auth.LoginRequest{Email: email, Password: password}, &res, nil)
	if err != nil {
		return auth.LoginResult{}, err
	}
	c.mu.Lock()
	c.token = res.Token
	c.mu.Unlock()
	return res, nil
}

// CreateQuotation creates a draft quotation.
func (c *Client) CreateQuotation(ctx context.Context, req quotations.CreateRequest) (quotations.Quotation, error) {
	var q quotations.Quotation
	err := c.do(ctx, http.MethodPost, "/api/quotations", req, &q, nil)
	return q, err
}

// TransitionQuotation runs submit, approve or reject.
func (c *Client) TransitionQuotation(ctx context.Context, id int64, action string) (quotations.Quotation, error) {
	var q quotations.Quotation
	err := c.do(ctx, http.MethodPost, "/api/quotations/"+itoa(id)+"/"+action, nil, &q, nil)
	return q, err
}

// ConvertQuotation creates a sales order from an approved quotation.
func (c *Client) ConvertQuotation(ctx context.Context, id int64) (orders.SalesOrder, error) {
	var res struct {
		SalesOrder orders.SalesOrder `json:"salesOrder"`
	}
	err := c.do(ctx, http.MethodPost, "/api/quotations/"+itoa(id)+"/convert", nil, &res, nil)
	return res.SalesOrder, err
}

// CreateSalesOrder creates a draft sales order.
func (c *Client) CreateSalesOrder(ctx context.Context, req orders.CreateRequest) (orders.SalesOrder, error) {
	var o orders.SalesOrder
	err := c.do(ctx, http.MethodPost, "/api/sales-orders", req, &o, nil)
	return o, err
}

// GetSalesOrder loads one sales order.
func (c *Client) GetSalesOrder(ctx context.Context, id int64) (orders.SalesOrder, error) {
	var res struct {
		SalesOrder orders.SalesOrder `json:"salesOrder"`
	}
	err := c.do(ctx, http.MethodGet, "/api/sales-orders/"+itoa(id), nil, &res, nil)
	return res.SalesOrder, err
}

// ConfirmSalesOrder reserves stock and, when enabled server side, creates the
// job order.
func (c *Client) ConfirmSalesOrder(ctx context.Context, id int64, version *int64) (orders.ConfirmResult, error) {
	var res orders.ConfirmResult
	err := c.do(ctx, http.MethodPost, "/api/sales-orders/"+itoa(id)+"/confirm", orders.TransitionRequest{Version: version}, &res, nil)
	return res, err
}

// CancelSalesOrder cancels and releases reserved stock.
func (c *Client) CancelSalesOrder(ctx context.Context, id int64, reason string) (orders.CancelResult, error) {
	var res orders.CancelResult
	err := c.do(ctx, http.MethodPost, "/api/sales-orders/"+itoa(id)+"/cancel", orders.TransitionRequest{Reason: reason}, &res, nil)
	return res, err
}

// GetJobOrder loads a job order with derived quantities.
func (c *Client) GetJobOrder(ctx context.Context, id int64) (joborders.JobOrder, error) {
	var res struct {
		JobOrder joborders.JobOrder `json:"jobOrder"`
	}
	err := c.do(ctx, http.MethodGet, "/api/job-orders/"+itoa(id), nil, &res, nil)
	return res.JobOrder, err
}

// UpdateShipment sets one shipment slot of a job order item.
func (c *Client) UpdateShipment(ctx context.Context, jobOrderID, itemID int64, req joborders.UpdateShipmentRequest) (joborders.Item, error) {
	var res struct {
		Item joborders.Item `json:"item"`
	}
	path := "/api/job-orders/" + itoa(jobOrderID) + "/items/" + itoa(itemID) + "/shipment"
	err := c.do(ctx, http.MethodPut, path, req, &res, idempotencyHeader())
	return res.Item, err
}

// CreateDeliveryReceipt ships ready quantity into the next slots.
func (c *Client) CreateDeliveryReceipt(ctx context.Context, jobOrderID int64, req delivery.CreateRequest) (delivery.Receipt, error) {
	var res struct {
		DeliveryReceipt delivery.Receipt `json:"deliveryReceipt"`
	}
	path := "/api/job-orders/" + itoa(jobOrderID) + "/delivery-receipt"
	err := c.do(ctx, http.MethodPost, path, req, &res, idempotencyHeader())
	return res.DeliveryReceipt, err
}

// Receipt loads the printable ledger of a job order.
func (c *Client) Receipt(ctx context.Context, jobOrderID int64) (joborders.Receipt, error) {
	var res joborders.Receipt
	err := c.do(ctx, http.MethodGet, "/api/job-orders/"+itoa(jobOrderID)+"/receipt", nil, &res, nil)
	return res, err
}

// Stock reads the pool levels of a product.
func (c *Client) Stock(ctx context.Context, productID int64) (warehouse.Stock, error) {
	var s warehouse.Stock
	err := c.do(ctx, http.MethodGet, "/api/warehouse/stock/"+itoa(productID), nil, &s, nil)
	return s, err
}

// JobOrderWorkbook downloads the XLSX ledger of one job order.
func (c *Client) JobOrderWorkbook(ctx context.Context, jobOrderID int64) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/job-orders/"+itoa(jobOrderID)+"/export.xlsx", nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return io.ReadAll(resp.Body)
}

func idempotencyHeader() http.Header {
	return http.Header{shared.IdempotencyHeader: []string{uuid.NewString()}}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	resp, err := c.send(ctx, method, path, body, header)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, err
		}
		reader = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	ts := c.tokens
	if ts == nil {
		ts = c
	}
	token, err := ts.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, decodeProblem(resp)
	}
	return resp, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

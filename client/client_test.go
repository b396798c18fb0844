package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/cascade/client"
	"github.com/odyssey-erp/cascade/internal/app"
	"github.com/odyssey-erp/cascade/internal/auth"
	"github.com/odyssey-erp/cascade/internal/delivery"
	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/sales/orders"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/internal/warehouse"
	"github.com/odyssey-erp/cascade/testing/memory"
)

const widget = int64(501)

type users map[string]auth.User

func (u users) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	user, ok := u[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &user, nil
}

func newServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	cfg := &app.Config{
		JWTSecret:            "client-secret",
		RateLimitPerMinute:   1000,
		ReservationPolicy:    "strict",
		JobOrderAutoGenerate: true,
		MaxShipmentSlots:     joborders.DefaultMaxShipmentSlots,
	}
	services, err := app.NewServices(cfg, app.ServiceDeps{Stores: app.Stores{
		Quotations:  store.Quotations(),
		Orders:      store.Orders(),
		Invoices:    store.Invoices(),
		JobOrders:   store.JobOrders(),
		Delivery:    store.Delivery(),
		Warehouse:   store.Warehouse(),
		Sequencer:   store,
		Tx:          store,
		Audit:       store,
		Idempotency: store,
	}})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("planner-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	tokens := auth.NewTokens(cfg.JWTSecret, "odyssey-cascade", time.Hour)
	authService := auth.NewService(users{"planner@test.local": {ID: 4, Email: "planner@test.local", PasswordHash: string(hash), Role: "planner", IsActive: true}}, tokens, store, nil)

	srv := httptest.NewServer(app.NewRouter(services.HandlerParams(app.RouterParams{Config: cfg, Tokens: tokens}, authService, nil)))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestClientCascade(t *testing.T) {
	srv, store := newServer(t)
	store.SetStock(widget, warehouse.PoolNG, 10)
	ctx := context.Background()
	c := client.New(srv.URL + "/")

	_, err := c.GetSalesOrder(ctx, 1)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	res, err := c.Login(ctx, "planner@test.local", "planner-pass")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	so, err := c.CreateSalesOrder(ctx, orders.CreateRequest{
		CustomerCode: "CUST-01",
		Lines:        []orders.LineRequest{{ProductID: widget, ProductName: "Widget", Quantity: 10, UnitPrice: 3}},
	})
	require.NoError(t, err)

	confirmed, err := c.ConfirmSalesOrder(ctx, so.ID, nil)
	require.NoError(t, err)
	require.True(t, confirmed.SalesOrder.IsConfirmed)
	require.NotNil(t, confirmed.JobOrder)

	_, err = c.ConfirmSalesOrder(ctx, so.ID, nil)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	jo, err := c.GetJobOrder(ctx, confirmed.JobOrder.ID)
	require.NoError(t, err)
	item := jo.Items[0]

	updated, err := c.UpdateShipment(ctx, jo.ID, item.ID, joborders.UpdateShipmentRequest{ShipmentNumber: 1, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 6.0, updated.ReadyQuantity)

	_, err = c.UpdateShipment(ctx, jo.ID, item.ID, joborders.UpdateShipmentRequest{ShipmentNumber: 9, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = c.UpdateShipment(ctx, jo.ID, item.ID, joborders.UpdateShipmentRequest{ShipmentNumber: 2, Quantity: 7})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	rec, err := c.CreateDeliveryReceipt(ctx, jo.ID, delivery.CreateRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, rec.Lines[0].Slot)
	require.Equal(t, 6.0, rec.Lines[0].Quantity)
	_, err = c.UpdateShipment(ctx, jo.ID, item.ID, joborders.UpdateShipmentRequest{ShipmentNumber: 2, Quantity: 0})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	receipt, err := c.Receipt(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, jo.Number, receipt.JobOrderNumber)

	stock, err := c.Stock(ctx, widget)
	require.NoError(t, err)
	require.Equal(t, 0.0, stock.Reserved)

	book, err := c.JobOrderWorkbook(ctx, jo.ID)
	require.NoError(t, err)
	require.Equal(t, "PK", string(book[:2]))

	_, err = c.GetJobOrder(ctx, 9999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStaticToken(t *testing.T) {
	srv, _ := newServer(t)
	c := client.New(srv.URL, client.WithTokenSource(client.StaticToken("not-a-jwt")))
	_, err := c.Stock(context.Background(), widget)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.Status)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

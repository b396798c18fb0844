package invoices

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/cascade/internal/shared"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

type Invoice struct {
	ID            int64         `json:"id"`
	Number        string        `json:"invoiceNumber"`
	SalesOrderID  int64         `json:"salesOrderId"`
	CustomerID    int64         `json:"customerId,omitempty"`
	CustomerCode  string        `json:"customerCode"`
	Subtotal      float64       `json:"subtotal"`
	ShippingFee   float64       `json:"shippingFee"`
	BankCharge    float64       `json:"bankCharge"`
	Discount      float64       `json:"discount"`
	Others        float64       `json:"others"`
	Total         float64       `json:"total"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	DueDate       *time.Time    `json:"dueDate,omitempty"`
	CreatedBy     int64         `json:"createdBy,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Draft is what a confirmed sales order hands over to be invoiced.
type Draft struct {
	SalesOrderID int64
	Number       string
	CustomerID   int64
	CustomerCode string
	Subtotal     float64
	ShippingFee  float64
	BankCharge   float64
	Discount     float64
	Others       float64
	Total        float64
	DueDate      *time.Time
}

type ListFilter struct {
	CustomerCode  string
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}

var (
	ErrNotFound = fmt.Errorf("invoice %w", shared.ErrNotFound)
	// ErrAlreadyInvoiced indicates the sales order already has an invoice.
	ErrAlreadyInvoiced = fmt.Errorf("sales order already invoiced: %w", shared.ErrConflict)
)

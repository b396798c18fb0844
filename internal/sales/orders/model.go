package orders

import (
	"time"

	salesshared "github.com/odyssey-erp/cascade/internal/sales/shared"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type SalesOrder struct {
	ID                 int64      `json:"id"`
	Number             string     `json:"salesOrderNumber"`
	QuotationID        *int64     `json:"quotationId,omitempty"`
	CustomerID         int64      `json:"customerId"`
	CustomerCode       string     `json:"customerCode"`
	Country            string     `json:"country,omitempty"`
	Revision           string     `json:"revision"`
	Status             Status     `json:"status"`
	IsConfirmed        bool       `json:"isConfirmed"`
	DueDate            *time.Time `json:"dueDate,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	Subtotal           float64    `json:"subtotal"`
	ShippingFee        float64    `json:"shippingFee"`
	BankCharge         float64    `json:"bankCharge"`
	Discount           float64    `json:"discount"`
	Others             float64    `json:"others"`
	Total              float64    `json:"total"`
	CreatedBy          int64      `json:"createdBy,omitempty"`
	ConfirmedBy        *int64     `json:"confirmedBy,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmedAt,omitempty"`
	CancelledBy        *int64     `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	Lines              []Line     `json:"lines,omitempty"`
}

type Line struct {
	ID            int64   `json:"id"`
	SalesOrderID  int64   `json:"salesOrderId"`
	ProductID     int64   `json:"productId"`
	ProductName   string  `json:"productName"`
	Specification string  `json:"specification,omitempty"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unitPrice"`
	LineTotal     float64 `json:"lineTotal"`
	LineOrder     int     `json:"lineOrder"`
}

// Recalculate refreshes line totals and document totals.
func (o *SalesOrder) Recalculate() {
	priced := make([]salesshared.Line, len(o.Lines))
	for i := range o.Lines {
		o.Lines[i].LineTotal = salesshared.LineTotal(o.Lines[i].Quantity, o.Lines[i].UnitPrice)
		if o.Lines[i].LineOrder == 0 {
			o.Lines[i].LineOrder = i + 1
		}
		priced[i] = salesshared.Line{Quantity: o.Lines[i].Quantity, UnitPrice: o.Lines[i].UnitPrice}
	}
	totals := salesshared.CalculateTotals(priced, salesshared.Charges{
		ShippingFee: o.ShippingFee,
		BankCharge:  o.BankCharge,
		Discount:    o.Discount,
		Others:      o.Others,
	})
	o.Subtotal, o.Total = totals.Subtotal, totals.Total
}

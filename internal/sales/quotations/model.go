package quotations

import (
	"time"

	salesshared "github.com/odyssey-erp/cascade/internal/sales/shared"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusConverted
}

type Quotation struct {
	ID              int64      `json:"id"`
	Number          string     `json:"quotationNumber"`
	CustomerID      int64      `json:"customerId"`
	CustomerCode    string     `json:"customerCode"`
	Country         string     `json:"country,omitempty"`
	Revision        string     `json:"revision"`
	Status          Status     `json:"status"`
	ValidUntil      *time.Time `json:"validUntil,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Subtotal        float64    `json:"subtotal"`
	ShippingFee     float64    `json:"shippingFee"`
	BankCharge      float64    `json:"bankCharge"`
	Discount        float64    `json:"discount"`
	Others          float64    `json:"others"`
	Total           float64    `json:"total"`
	CreatedBy       int64      `json:"createdBy,omitempty"`
	ApprovedBy      *int64     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedBy      *int64     `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Lines           []Line     `json:"lines,omitempty"`
}

type Line struct {
	ID            int64   `json:"id"`
	QuotationID   int64   `json:"quotationId"`
	ProductID     int64   `json:"productId"`
	ProductName   string  `json:"productName"`
	Specification string  `json:"specification,omitempty"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unitPrice"`
	LineTotal     float64 `json:"lineTotal"`
	LineOrder     int     `json:"lineOrder"`
}

// Charges returns the document level charges.
func (q Quotation) Charges() salesshared.Charges {
	return salesshared.Charges{ShippingFee: q.ShippingFee, BankCharge: q.BankCharge, Discount: q.Discount, Others: q.Others}
}

// Recalculate refreshes line totals and document totals.
func (q *Quotation) Recalculate() {
	priced := make([]salesshared.Line, len(q.Lines))
	for i := range q.Lines {
		q.Lines[i].LineTotal = salesshared.LineTotal(q.Lines[i].Quantity, q.Lines[i].UnitPrice)
		if q.Lines[i].LineOrder == 0 {
			q.Lines[i].LineOrder = i + 1
		}
		priced[i] = salesshared.Line{Quantity: q.Lines[i].Quantity, UnitPrice: q.Lines[i].UnitPrice}
	}
	totals := salesshared.CalculateTotals(priced, q.Charges())
	q.Subtotal, q.Total = totals.Subtotal, totals.Total
}

// ExpiredAt reports whether the validity date has passed at now. A quotation
// stays valid through the whole of its valid-until day.
func (q Quotation) ExpiredAt(now time.Time) bool {
	if q.ValidUntil == nil {
		return false
	}
	v := q.ValidUntil.In(now.Location())
	endOfDay := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return !now.Before(endOfDay)
}

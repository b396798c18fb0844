// Package delivery issues delivery receipts against job orders. A receipt
// consumes ready quantity and lands in the next free shipment slot of each item.
package delivery

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
	"github.com/odyssey-erp/cascade/internal/shared"
)

var (
	ErrNotFound = fmt.Errorf("delivery receipt %w", shared.ErrNotFound)
	ErrNoLines  = fmt.Errorf("%w: delivery receipt has no lines", shared.ErrValidation)
)

// Receipt is a delivery document. Lines point back at the shipment slot each
// delivered quantity was written to.
type Receipt struct {
	ID             int64     `json:"id"`
	Number         string    `json:"receiptNumber"`
	JobOrderID     int64     `json:"jobOrderId"`
	JobOrderNumber string    `json:"jobOrderNumber"`
	SalesOrderID   int64     `json:"salesOrderId"`
	CustomerCode   string    `json:"customerCode"`
	Notes          string    `json:"notes,omitempty"`
	CreatedBy      int64     `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Lines          []Line    `json:"lines"`
}

type Line struct {
	ID             int64   `json:"id"`
	ReceiptID      int64   `json:"receiptId"`
	JobOrderItemID int64   `json:"jobOrderItemId"`
	ShipmentID     int64   `json:"shipmentId"`
	Slot           int     `json:"shipmentNumber"`
	ProductName    string  `json:"productName"`
	Quantity       float64 `json:"quantity"`
}

// TotalQuantity sums the delivered quantity of every line.
func (r Receipt) TotalQuantity() float64 {
	var total float64
	for _, l := range r.Lines {
		total += l.Quantity
	}
	return total
}

// CreateRequest lists the items to deliver. An empty Items delivers all ready
// quantity of the job order.
type CreateRequest struct {
	Items []joborders.DeliveryLine `json:"items" validate:"omitempty,dive"`
	Notes string                   `json:"notes" validate:"max=500"`
}

type ListFilter struct {
	JobOrderID int64
	Limit      int
	Offset     int
}

package joborders

import "time"

// Receipt is the printable projection of a job order: one row per item with
// its shipment slots and reconciliation figures.
type Receipt struct {
	JobOrderID     int64         `json:"jobOrderId"`
	JobOrderNumber string        `json:"jobOrderNumber"`
	SalesOrderID   int64         `json:"salesOrderId"`
	CustomerCode   string        `json:"customerCode"`
	Revision       string        `json:"revision"`
	Status         Status        `json:"status"`
	DueDate        *time.Time    `json:"dueDate,omitempty"`
	SlotCount      int           `json:"slotCount"`
	Lines          []ReceiptLine `json:"lines"`
	Totals         ReceiptTotals `json:"totals"`
	GeneratedAt    time.Time     `json:"generatedAt"`
}

type ReceiptLine struct {
	ItemID           int64     `json:"itemId"`
	ProductName      string    `json:"productName"`
	Specification    string    `json:"specification,omitempty"`
	OrderQuantity    float64   `json:"orderQuantity"`
	ReservedQuantity float64   `json:"reservedQuantity"`
	Quantities
	Slots []float64 `json:"shipmentSlots"`
}

type ReceiptTotals struct {
	OrderQuantity        float64 `json:"orderQuantity"`
	ShippedQuantity      float64 `json:"shippedQuantity"`
	OrderBalance         float64 `json:"orderBalance"`
	CompletionPercentage float64 `json:"completionPercentage"`
}

// NewReceipt projects jo. Items are derived again so the projection never
// trusts figures computed elsewhere.
func NewReceipt(jo JobOrder, maxSlots int, at time.Time) Receipt {
	r := Receipt{
		JobOrderID:     jo.ID,
		JobOrderNumber: jo.Number,
		SalesOrderID:   jo.SalesOrderID,
		CustomerCode:   jo.CustomerCode,
		Revision:       jo.Revision,
		Status:         jo.Status,
		DueDate:        jo.DueDate,
		SlotCount:      maxSlots,
		GeneratedAt:    at,
	}
	for _, it := range jo.Items {
		it.Refresh(maxSlots)
		if len(it.Slots) > r.SlotCount {
			r.SlotCount = len(it.Slots)
		}
		r.Lines = append(r.Lines, ReceiptLine{
			ItemID:           it.ID,
			ProductName:      it.ProductName,
			Specification:    it.Specification,
			OrderQuantity:    it.OrderQuantity,
			ReservedQuantity: it.ReservedQuantity,
			Quantities:       it.Quantities,
			Slots:            it.Slots,
		})
		r.Totals.OrderQuantity += it.OrderQuantity
		r.Totals.ShippedQuantity += it.ShippedQuantity
	}
	r.Totals.OrderBalance = round(r.Totals.OrderQuantity - r.Totals.ShippedQuantity)
	if r.Totals.OrderQuantity > 0 {
		r.Totals.CompletionPercentage = round(r.Totals.ShippedQuantity / r.Totals.OrderQuantity * 100)
	}
	return r
}

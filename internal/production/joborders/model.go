package joborders

import (
	"math"
	"sort"
	"time"
)

// DefaultMaxShipmentSlots matches the eight shipment columns of the job order form.
const DefaultMaxShipmentSlots = 8

type Status string

const (
	StatusPending      Status = "pending"
	StatusInProduction Status = "in_production"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

// Active reports whether the job order still tracks work.
func (s Status) Active() bool {
	return s != StatusCancelled && s != StatusCompleted
}

type JobOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"jobOrderNumber"`
	SalesOrderID int64      `json:"salesOrderId"`
	CustomerCode string     `json:"customerCode"`
	Revision     string     `json:"revision"`
	Status       Status     `json:"status"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	Instructions string     `json:"orderInstructions,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Items        []Item     `json:"items,omitempty"`
}

// Item stores only canonical quantities. The embedded Quantities are filled by
// Derive each time the item is read and never persisted.
type Item struct {
	ID               int64      `json:"id"`
	JobOrderID       int64      `json:"jobOrderId"`
	SalesOrderLineID int64      `json:"salesOrderLineId"`
	ProductID        int64      `json:"productId"`
	ProductName      string     `json:"productName"`
	Specification    string     `json:"specification,omitempty"`
	OrderQuantity    float64    `json:"orderQuantity"`
	ReservedQuantity float64    `json:"reservedQuantity"`
	Version          int64      `json:"version"`
	Shipments        []Shipment `json:"shipments"`
	Quantities
	Slots []float64 `json:"shipmentSlots"`
}

// Shipment is one partial shipment event of an item, stored in a numbered slot.
type Shipment struct {
	ID                int64     `json:"id"`
	ItemID            int64     `json:"itemId"`
	Slot              int       `json:"shipmentNumber"`
	Quantity          float64   `json:"quantity"`
	ShippedAt         time.Time `json:"shippedAt"`
	DeliveryReceiptID *int64    `json:"deliveryReceiptId,omitempty"`
}

// Quantities are the reconciliation figures of an item.
type Quantities struct {
	ShippedQuantity      float64 `json:"shippedQuantity"`
	ReadyQuantity        float64 `json:"readyQuantity"`
	ToProduceQuantity    float64 `json:"toProduceQuantity"`
	OrderBalance         float64 `json:"orderBalance"`
	CompletionPercentage float64 `json:"completionPercentage"`
}

// Derive computes every derived quantity from the stored ones:
// shipped is the sum of shipments, ready = reserved - shipped,
// toProduce = order - reserved, balance = order - shipped.
func Derive(order, reserved float64, shipments []Shipment) Quantities {
	var shipped float64
	for _, s := range shipments {
		shipped += s.Quantity
	}
	q := Quantities{
		ShippedQuantity:   round(shipped),
		ReadyQuantity:     round(reserved - shipped),
		ToProduceQuantity: round(order - reserved),
		OrderBalance:      round(order - shipped),
	}
	if order > 0 {
		q.CompletionPercentage = round(shipped / order * 100)
	}
	return q
}

// Refresh recomputes the derived figures and the slot view of the item.
func (it *Item) Refresh(maxSlots int) {
	sort.Slice(it.Shipments, func(i, j int) bool { return it.Shipments[i].Slot < it.Shipments[j].Slot })
	it.Quantities = Derive(it.OrderQuantity, it.ReservedQuantity, it.Shipments)
	width := maxSlots
	for _, s := range it.Shipments {
		if s.Slot > width {
			width = s.Slot
		}
	}
	it.Slots = make([]float64, width)
	for _, s := range it.Shipments {
		if s.Slot >= 1 {
			it.Slots[s.Slot-1] = s.Quantity
		}
	}
}

// Shipment returns the shipment stored in slot.
func (it Item) Shipment(slot int) (Shipment, bool) {
	for _, s := range it.Shipments {
		if s.Slot == slot {
			return s, true
		}
	}
	return Shipment{}, false
}

// NextFreeSlot returns the lowest empty slot, or false when all are used.
func (it Item) NextFreeSlot(maxSlots int) (int, bool) {
	used := make(map[int]bool, len(it.Shipments))
	for _, s := range it.Shipments {
		used[s.Slot] = true
	}
	for slot := 1; slot <= maxSlots; slot++ {
		if !used[slot] {
			return slot, true
		}
	}
	return 0, false
}

// FullyShipped reports whether the whole order quantity left the warehouse.
func (it Item) FullyShipped() bool {
	return Derive(it.OrderQuantity, it.ReservedQuantity, it.Shipments).OrderBalance <= epsilon
}

// Refresh recomputes every item.
func (jo *JobOrder) Refresh(maxSlots int) {
	for i := range jo.Items {
		jo.Items[i].Refresh(maxSlots)
	}
}

// Item returns a pointer to the item with id.
func (jo *JobOrder) Item(id int64) (*Item, bool) {
	for i := range jo.Items {
		if jo.Items[i].ID == id {
			return &jo.Items[i], true
		}
	}
	return nil, false
}

// FullyShipped reports whether every item is fully shipped.
func (jo JobOrder) FullyShipped() bool {
	if len(jo.Items) == 0 {
		return false
	}
	for _, it := range jo.Items {
		if !it.FullyShipped() {
			return false
		}
	}
	return true
}

const epsilon = 1e-9

func round(v float64) float64 {
	r := math.Round(v*10000) / 10000
	if r == 0 {
		return 0
	}
	return r
}

type GenerateLine struct {
	SalesOrderLineID int64
	ProductID        int64
	ProductName      string
	Specification    string
	OrderQuantity    float64
	ReservedQuantity float64
}

// GenerateRequest carries what a job order copies from its sales order.
type GenerateRequest struct {
	SalesOrderID int64
	Number       string
	CustomerCode string
	Revision     string
	DueDate      *time.Time
	Instructions string
	Lines        []GenerateLine
}

type UpdateShipmentRequest struct {
	ShipmentNumber int     `json:"shipmentNumber" validate:"required,gte=1"`
	Quantity       float64 `json:"quantity" validate:"gte=0"`
	Version        *int64  `json:"version,omitempty"`
}

type ProductionReceiptRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Version  *int64  `json:"version,omitempty"`
}

type TransitionRequest struct {
	Instructions *string `json:"orderInstructions,omitempty"`
	Version      *int64  `json:"version,omitempty"`
}

// DeliveryLine asks for quantity of an item to be shipped on a delivery receipt.
type DeliveryLine struct {
	ItemID   int64   `json:"itemId" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

// Delivered is one shipment appended for a delivery receipt.
type Delivered struct {
	Item     Item
	Shipment Shipment
}

type ListFilter struct {
	SalesOrderID int64
	Status       Status
	Search       string
	Limit        int
	Offset       int
}

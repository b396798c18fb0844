package quotations

import "time"

type LineRequest struct {
	ProductID     int64   `json:"productId" validate:"required,gt=0"`
	ProductName   string  `json:"productName" validate:"required,max=200"`
	Specification string  `json:"specification,omitempty" validate:"max=500"`
	Quantity      float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice     float64 `json:"unitPrice" validate:"gte=0"`
	LineOrder     int     `json:"lineOrder" validate:"gte=0"`
}

type CreateRequest struct {
	CustomerID   int64         `json:"customerId" validate:"gte=0"`
	CustomerCode string        `json:"customerCode" validate:"required,max=50"`
	Country      string        `json:"country,omitempty" validate:"max=100"`
	ValidUntil   *time.Time    `json:"validUntil,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	ShippingFee  float64       `json:"shippingFee" validate:"gte=0"`
	BankCharge   float64       `json:"bankCharge" validate:"gte=0"`
	Discount     float64       `json:"discount" validate:"gte=0"`
	Others       float64       `json:"others" validate:"gte=0"`
	Lines        []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

type UpdateRequest struct {
	Country     *string        `json:"country,omitempty" validate:"omitempty,max=100"`
	ValidUntil  *time.Time     `json:"validUntil,omitempty"`
	Notes       *string        `json:"notes,omitempty"`
	ShippingFee *float64       `json:"shippingFee,omitempty" validate:"omitempty,gte=0"`
	BankCharge  *float64       `json:"bankCharge,omitempty" validate:"omitempty,gte=0"`
	Discount    *float64       `json:"discount,omitempty" validate:"omitempty,gte=0"`
	Others      *float64       `json:"others,omitempty" validate:"omitempty,gte=0"`
	Lines       *[]LineRequest `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
	Version     *int64         `json:"version,omitempty"`
}

// TransitionRequest carries the optional expected version and rejection reason.
type TransitionRequest struct {
	Reason  string `json:"reason,omitempty" validate:"max=500"`
	Version *int64 `json:"version,omitempty"`
}

type ListFilter struct {
	Status       Status
	CustomerCode string
	Search       string
	Limit        int
	Offset       int
}

func linesFromRequest(reqs []LineRequest) []Line {
	lines := make([]Line, len(reqs))
	for i, r := range reqs {
		lines[i] = Line{
			ProductID:     r.ProductID,
			ProductName:   r.ProductName,
			Specification: r.Specification,
			Quantity:      r.Quantity,
			UnitPrice:     r.UnitPrice,
			LineOrder:     r.LineOrder,
		}
	}
	return lines
}

package shared

import "math"

// Line is the priced part of a document line.
type Line struct {
	Quantity  float64
	UnitPrice float64
}

// Charges are the document level amounts added to or taken from the subtotal.
type Charges struct {
	ShippingFee float64
	BankCharge  float64
	Discount    float64
	Others      float64
}

// Totals are the computed document amounts.
type Totals struct {
	Subtotal float64
	Total    float64
}

// LineTotal returns quantity × unit price rounded to cents.
func LineTotal(quantity, unitPrice float64) float64 {
	return RoundTo2(quantity * unitPrice)
}

// CalculateTotals sums line totals and applies charges. Total never drops below zero.
func CalculateTotals(lines []Line, charges Charges) Totals {
	var subtotal float64
	for _, l := range lines {
		subtotal += LineTotal(l.Quantity, l.UnitPrice)
	}
	subtotal = RoundTo2(subtotal)
	total := subtotal + charges.ShippingFee + charges.BankCharge + charges.Others - charges.Discount
	if total < 0 {
		total = 0
	}
	return Totals{Subtotal: subtotal, Total: RoundTo2(total)}
}

// RoundTo2 rounds half away from zero to two decimals.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

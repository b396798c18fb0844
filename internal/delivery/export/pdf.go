// Package export renders printable delivery documents.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/cascade/internal/production/joborders"
)

// PackingList is the printable form of a delivery receipt.
type PackingList struct {
	DocNumber      string
	JobOrderNumber string
	CustomerCode   string
	Notes          string
	CreatedAt      time.Time
	Lines          []PackingListLine
}

type PackingListLine struct {
	LineNumber  int
	ProductName string
	Slot        int
	Quantity    float64
}

// Renderer draws PDFs with quantities formatted for one locale.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer builds a Renderer. An unknown locale falls back to English.
func NewRenderer(locale string) *Renderer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Renderer{printer: message.NewPrinter(tag)}
}

// RenderPackingList draws a delivery receipt with its number as a Code 128 barcode.
func (r *Renderer) RenderPackingList(doc PackingList) ([]byte, error) {
	if strings.TrimSpace(doc.DocNumber) == "" {
		return nil, fmt.Errorf("packing list needs a document number")
	}
	barcodePNG, err := renderCode128PNG(doc.DocNumber, 1000, 200)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Delivery Receipt "+doc.DocNumber, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "DELIVERY RECEIPT", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "No: "+doc.DocNumber, "", 1, "C", false, 0, "")

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	imageName := "receipt-barcode-" + doc.DocNumber
	pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(barcodePNG))
	pageW, _ := pdf.GetPageSize()
	imgW, imgH := 90.0, 18.0
	pdf.ImageOptions(imageName, (pageW-imgW)/2, pdf.GetY()+2, imgW, imgH, false, opt, 0, "")
	pdf.SetY(pdf.GetY() + imgH + 6)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Job Order: "+doc.JobOrderNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Customer: "+orDash(doc.CustomerCode), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Date: "+doc.CreatedAt.Format("02/01/2006"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	widths := []float64{12, 108, 30, 40}
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range []string{"#", "Product", "Shipment", "Quantity"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
	var total float64
	for _, l := range doc.Lines {
		pdf.CellFormat(widths[0], 7, strconv.Itoa(l.LineNumber), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 7, l.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 7, strconv.Itoa(l.Slot), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, r.qty(l.Quantity), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
		total += l.Quantity
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 8, r.qty(total), "1", 1, "R", false, 0, "")

	if notes := strings.TrimSpace(doc.Notes); notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, "Notes: "+notes, "", "L", false)
	}

	pdf.Ln(16)
	half := (pageW - 20) / 2
	pdf.CellFormat(half, 7, "Delivered by", "", 0, "C", false, 0, "")
	pdf.CellFormat(half, 7, "Received by", "", 1, "C", false, 0, "")

	return output(pdf)
}

// RenderJobOrder draws the shipment ledger of a job order, one column per slot.
func (r *Renderer) RenderJobOrder(rec joborders.Receipt) ([]byte, error) {
	slots := rec.SlotCount
	if slots <= 0 {
		slots = joborders.DefaultMaxShipmentSlots
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Job Order "+rec.JobOrderNumber, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "JOB ORDER "+rec.JobOrderNumber, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	header := fmt.Sprintf("Customer: %s    Revision: %s    Status: %s", orDash(rec.CustomerCode), orDash(rec.Revision), rec.Status)
	if rec.DueDate != nil {
		header += "    Due: " + rec.DueDate.Format("02/01/2006")
	}
	pdf.CellFormat(0, 7, header, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right
	fixed := []float64{60, 18, 18}
	tail := []float64{18, 18, 18, 18}
	var used float64
	for _, w := range append(append([]float64{}, fixed...), tail...) {
		used += w
	}
	slotW := (usable - used) / float64(slots)

	pdf.SetFont("Helvetica", "B", 8)
	for i, h := range []string{"Product", "Order", "Reserved"} {
		pdf.CellFormat(fixed[i], 8, h, "1", 0, "C", false, 0, "")
	}
	for n := 1; n <= slots; n++ {
		pdf.CellFormat(slotW, 8, "S"+strconv.Itoa(n), "1", 0, "C", false, 0, "")
	}
	for i, h := range []string{"Shipped", "Ready", "To Produce", "Balance"} {
		pdf.CellFormat(tail[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, l := range rec.Lines {
		pdf.CellFormat(fixed[0], 7, l.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(fixed[1], 7, r.qty(l.OrderQuantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(fixed[2], 7, r.qty(l.ReservedQuantity), "1", 0, "R", false, 0, "")
		for n := 0; n < slots; n++ {
			cell := ""
			if n < len(l.Slots) && l.Slots[n] != 0 {
				cell = r.qty(l.Slots[n])
			}
			pdf.CellFormat(slotW, 7, cell, "1", 0, "R", false, 0, "")
		}
		for i, v := range []float64{l.ShippedQuantity, l.ReadyQuantity, l.ToProduceQuantity, l.OrderBalance} {
			pdf.CellFormat(tail[i], 7, r.qty(v), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Ordered %s, shipped %s, balance %s (%s%%)",
		r.qty(rec.Totals.OrderQuantity), r.qty(rec.Totals.ShippedQuantity),
		r.qty(rec.Totals.OrderBalance), r.qty(rec.Totals.CompletionPercentage)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 6, "Printed "+rec.GeneratedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")

	return output(pdf)
}

func (r *Renderer) qty(v float64) string {
	if v == float64(int64(v)) {
		return r.printer.Sprintf("%d", int64(v))
	}
	return r.printer.Sprintf("%.2f", v)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func renderCode128PNG(value string, width, height int) ([]byte, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, err
	}
	normalized := toNRGBA(scaled)
	var buf bytes.Buffer
	if err := png.Encode(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}

package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/sunfin/quote-engine/internal/model"
)

type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

// Generate renders the settlement invoice for a selected quotation.
func (g *Generator) Generate(invoice model.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, "Solar Installation Invoice", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Invoice %s, issued %s", invoice.InvoiceNumber, formatDate(invoice.CreatedAt)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "References", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.CellFormat(0, 5, fmt.Sprintf("Quote request: %s", invoice.RequestID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Quotation: %s", invoice.QuotationID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Contractor: %s", invoice.ContractorID), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Settlement", "", 1, "L", false, 0, "")

	headers := []string{"Item", "Amount"}
	colWidths := []float64{120, 60}
	drawTableRow(pdf, g.fontName, headers, colWidths, true)

	rows := [][2]string{
		{"Gross amount", formatAmount(invoice.GrossAmount)},
		{"Platform markup (charged to requester)", formatAmount(invoice.OverpriceAmount)},
		{"Platform commission", formatAmount(invoice.CommissionAmount.Neg())},
		{"Penalty deduction", formatAmount(invoice.PenaltyAmount.Neg())},
		{"Net amount", formatAmount(invoice.NetAmount)},
		{fmt.Sprintf("VAT (%s%%)", invoice.VATRate.Mul(decimal.NewFromInt(100))), formatAmount(invoice.VATAmount)},
	}
	for _, row := range rows {
		drawTableRow(pdf, g.fontName, row[:], colWidths, false)
	}

	pdf.Ln(2)
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Total payable: %s", formatAmount(invoice.TotalPayable)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func formatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("02.01.2006")
}

// Package finance implements the pure quote pricing rules: line totals,
// platform commission and markup, vendor net and invoice VAT. All math uses
// fixed-point decimals; callers persist the resolved RateSet next to the
// computed values so rule changes never rewrite historical totals.
package finance

import "github.com/shopspring/decimal"

const moneyScale = 2

// RateSet is the percentage rule snapshot resolved at calculation time.
type RateSet struct {
	CommissionRate decimal.Decimal
	OverpriceRate  decimal.Decimal
	VATRate        decimal.Decimal
}

func DefaultRates() RateSet {
	return RateSet{
		CommissionRate: decimal.NewFromFloat(0.15),
		OverpriceRate:  decimal.NewFromFloat(0.10),
		VATRate:        decimal.NewFromFloat(0.15),
	}
}

type LineItemInput struct {
	Description string
	Units       decimal.Decimal
	UnitPrice   decimal.Decimal
}

type LineItemBreakdown struct {
	Description string
	Units       decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	Commission  decimal.Decimal
	Overprice   decimal.Decimal
	UserPrice   decimal.Decimal
	VendorNet   decimal.Decimal
}

type QuoteBreakdown struct {
	TotalPrice decimal.Decimal
	Commission decimal.Decimal
	Overprice  decimal.Decimal
	UserPrice  decimal.Decimal
	VendorNet  decimal.Decimal
}

type InvoiceBreakdown struct {
	GrossAmount      decimal.Decimal
	OverpriceAmount  decimal.Decimal
	CommissionAmount decimal.Decimal
	PenaltyAmount    decimal.Decimal
	NetAmount        decimal.Decimal
	VATAmount        decimal.Decimal
	TotalPayable     decimal.Decimal
}

// ComputeLineItem derives all money fields for a single line item.
func ComputeLineItem(in LineItemInput, rates RateSet) LineItemBreakdown {
	total := in.Units.Mul(in.UnitPrice).Round(moneyScale)
	commission := total.Mul(rates.CommissionRate).Round(moneyScale)
	overprice := total.Mul(rates.OverpriceRate).Round(moneyScale)
	return LineItemBreakdown{
		Description: in.Description,
		Units:       in.Units,
		UnitPrice:   in.UnitPrice,
		Total:       total,
		Commission:  commission,
		Overprice:   overprice,
		UserPrice:   total.Add(overprice),
		VendorNet:   total.Sub(commission),
	}
}

// ComputeQuote derives quote totals from its line items. The quote-level
// commission and overprice are computed on the summed total, not by summing
// per-item values, so the stored totals are exactly recomputable from the
// base prices and the persisted rates.
func ComputeQuote(items []LineItemInput, rates RateSet) (QuoteBreakdown, []LineItemBreakdown) {
	lines := make([]LineItemBreakdown, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		line := ComputeLineItem(item, rates)
		lines = append(lines, line)
		total = total.Add(line.Total)
	}

	commission := total.Mul(rates.CommissionRate).Round(moneyScale)
	overprice := total.Mul(rates.OverpriceRate).Round(moneyScale)
	return QuoteBreakdown{
		TotalPrice: total,
		Commission: commission,
		Overprice:  overprice,
		UserPrice:  total.Add(overprice),
		VendorNet:  total.Sub(commission),
	}, lines
}

// ComputeInvoice derives invoice amounts from a settled quote. VAT is charged
// on the net amount after any penalty deduction.
func ComputeInvoice(quote QuoteBreakdown, penalty decimal.Decimal, rates RateSet) InvoiceBreakdown {
	net := quote.VendorNet.Sub(penalty)
	vat := net.Mul(rates.VATRate).Round(moneyScale)
	return InvoiceBreakdown{
		GrossAmount:      quote.TotalPrice,
		OverpriceAmount:  quote.Overprice,
		CommissionAmount: quote.Commission,
		PenaltyAmount:    penalty,
		NetAmount:        net,
		VATAmount:        vat,
		TotalPayable:     net.Add(vat),
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is generated from the selected quotation's derived totals.
// NetAmount is the vendor net minus any penalty deduction; VAT is charged on
// the net amount.
type Invoice struct {
	ID            uuid.UUID `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	QuotationID   uuid.UUID `json:"quotation_id"`
	RequestID     uuid.UUID `json:"request_id"`
	ContractorID  uuid.UUID `json:"contractor_id"`

	GrossAmount      decimal.Decimal `json:"gross_amount"`
	OverpriceAmount  decimal.Decimal `json:"overprice_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	PenaltyAmount    decimal.Decimal `json:"penalty_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	VATRate          decimal.Decimal `json:"vat_rate"`
	VATAmount        decimal.Decimal `json:"vat_amount"`
	TotalPayable     decimal.Decimal `json:"total_payable"`

	CreatedAt time.Time `json:"created_at"`
}

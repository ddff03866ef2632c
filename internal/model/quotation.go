package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type QuotationStatus string

const (
	QuotationStatusPendingReview  QuotationStatus = "PENDING_REVIEW"
	QuotationStatusApproved       QuotationStatus = "APPROVED"
	QuotationStatusRejected       QuotationStatus = "REJECTED"
	QuotationStatusRevisionNeeded QuotationStatus = "REVISION_NEEDED"
)

// ContractorQuote is a contractor's priced response to a quote request.
// Derived financial fields are computed by the finance package from the line
// items and the rate snapshot; they are never accepted as contractor input.
// The resolved rates are persisted so later rule changes do not alter
// historical totals.
type ContractorQuote struct {
	ID               uuid.UUID       `json:"id"`
	RequestID        uuid.UUID       `json:"request_id"`
	ContractorID     uuid.UUID       `json:"contractor_id"`
	BasePrice        decimal.Decimal `json:"base_price"`
	PricePerKWp      decimal.Decimal `json:"price_per_kwp"`
	SystemSpecs      json.RawMessage `json:"system_specs"`
	WarrantyTerms    string          `json:"warranty_terms"`
	MaintenanceTerms string          `json:"maintenance_terms"`

	TotalPrice decimal.Decimal `json:"total_price"`
	Commission decimal.Decimal `json:"commission"`
	Overprice  decimal.Decimal `json:"overprice"`
	UserPrice  decimal.Decimal `json:"user_price"`
	VendorNet  decimal.Decimal `json:"vendor_net"`

	CommissionRate decimal.Decimal `json:"commission_rate"`
	OverpriceRate  decimal.Decimal `json:"overprice_rate"`
	VATRate        decimal.Decimal `json:"vat_rate"`

	AdminStatus     QuotationStatus `json:"admin_status"`
	ReviewNotes     *string         `json:"review_notes,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	IsSelected      bool            `json:"is_selected"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	LineItems []QuotationLineItem `json:"line_items,omitempty" gorm:"-"`
}

// Expired reports whether the quotation is past its expiry and still in a
// state that expiry applies to (pending review, or approved but unselected).
func (q ContractorQuote) Expired(now time.Time) bool {
	if !now.After(q.ExpiresAt) {
		return false
	}
	switch q.AdminStatus {
	case QuotationStatusPendingReview:
		return true
	case QuotationStatusApproved:
		return !q.IsSelected
	default:
		return false
	}
}

type QuotationLineItem struct {
	ID          uuid.UUID       `json:"id"`
	QuotationID uuid.UUID       `json:"quotation_id"`
	Description string          `json:"description"`
	Units       decimal.Decimal `json:"units"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	Commission  decimal.Decimal `json:"commission"`
	Overprice   decimal.Decimal `json:"overprice"`
	UserPrice   decimal.Decimal `json:"user_price"`
	VendorNet   decimal.Decimal `json:"vendor_net"`
}

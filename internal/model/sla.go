package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OverdueInstallation is a detected candidate for a late_installation
// violation: a settled request whose agreed deadline passed without a
// completion record.
type OverdueInstallation struct {
	RequestID    uuid.UUID
	QuotationID  uuid.UUID
	ContractorID uuid.UUID
	VendorNet    decimal.Decimal
	Deadline     time.Time
}

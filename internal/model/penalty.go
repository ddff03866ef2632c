package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PenaltyType string

const (
	PenaltyTypeLateInstallation     PenaltyType = "LATE_INSTALLATION"
	PenaltyTypeQualityIssue         PenaltyType = "QUALITY_ISSUE"
	PenaltyTypeCommunicationFailure PenaltyType = "COMMUNICATION_FAILURE"
	PenaltyTypeCancellation         PenaltyType = "CANCELLATION"
)

type PenaltyStatus string

const (
	PenaltyStatusApplied  PenaltyStatus = "APPLIED"
	PenaltyStatusDisputed PenaltyStatus = "DISPUTED"
	PenaltyStatusWaived   PenaltyStatus = "WAIVED"
)

type PenaltyResolution string

const (
	PenaltyResolutionUphold PenaltyResolution = "UPHOLD"
	PenaltyResolutionWaive  PenaltyResolution = "WAIVE"
	PenaltyResolutionModify PenaltyResolution = "MODIFY"
)

// Penalty is created by automatic detection or admin action. Once applied it
// only moves to disputed or waived; a waived penalty never returns to applied.
// Fingerprint deduplicates automatic detection of the same violation.
type Penalty struct {
	ID              uuid.UUID          `json:"id"`
	ContractorID    uuid.UUID          `json:"contractor_id"`
	RequestID       uuid.UUID          `json:"request_id"`
	QuotationID     *uuid.UUID         `json:"quotation_id,omitempty"` // nil for cancellation penalties with no settled quote
	RuleID          *uuid.UUID         `json:"rule_id,omitempty"`
	Type            PenaltyType        `json:"type"`
	Amount          decimal.Decimal    `json:"amount"`
	ContractorShare decimal.Decimal    `json:"contractor_share"`
	PlatformShare   decimal.Decimal    `json:"platform_share"`
	Status          PenaltyStatus      `json:"status"`
	Description     string             `json:"description"`
	Evidence        json.RawMessage    `json:"evidence,omitempty"`
	Fingerprint     string             `json:"-"`
	AppliedBy       *uuid.UUID         `json:"applied_by,omitempty"` // nil for automatic detection
	DisputeReason   *string            `json:"dispute_reason,omitempty"`
	Resolution      *PenaltyResolution `json:"resolution,omitempty"`
	ResolutionNotes *string            `json:"resolution_notes,omitempty"`
	ResolvedBy      *uuid.UUID         `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// PenaltyRule maps a violation type to a default amount or percentage of the
// quotation's vendor net. Rules are versioned and deactivated, never deleted,
// so past penalty calculations stay auditable.
type PenaltyRule struct {
	ID            uuid.UUID        `json:"id"`
	ViolationType PenaltyType      `json:"violation_type"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Percent       *decimal.Decimal `json:"percent,omitempty"`
	AutoApply     bool             `json:"auto_apply"`
	Active        bool             `json:"active"`
	Version       int              `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
}

type PenaltyTypeStat struct {
	Type        PenaltyType     `json:"type"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type PenaltyStatistics struct {
	PeriodStart   time.Time         `json:"period_start"`
	PeriodEnd     time.Time         `json:"period_end"`
	TotalCount    int64             `json:"total_count"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	DisputedCount int64             `json:"disputed_count"`
	WaivedCount   int64             `json:"waived_count"`
	ByType        []PenaltyTypeStat `json:"by_type"`
}

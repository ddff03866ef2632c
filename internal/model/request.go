package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestStatusPending             RequestStatus = "PENDING"
	RequestStatusContractorsSelected RequestStatus = "CONTRACTORS_SELECTED"
	RequestStatusQuotesReceived      RequestStatus = "QUOTES_RECEIVED"
	RequestStatusQuoteSelected       RequestStatus = "QUOTE_SELECTED"
	RequestStatusCompleted           RequestStatus = "COMPLETED"
	RequestStatusCancelled           RequestStatus = "CANCELLED"
)

// requestTransitions enumerates the legal forward edges of the request
// lifecycle. Cancellation is handled separately since it is reachable from
// any non-terminal state.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:             {RequestStatusContractorsSelected},
	RequestStatusContractorsSelected: {RequestStatusQuotesReceived},
	RequestStatusQuotesReceived:      {RequestStatusQuoteSelected},
	RequestStatusQuoteSelected:       {RequestStatusCompleted},
}

func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// CanTransition reports whether moving from s to next is legal.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	if next == RequestStatusCancelled {
		return !s.Terminal()
	}
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type QuoteRequest struct {
	ID                    uuid.UUID       `json:"id"`
	RequesterID           uuid.UUID       `json:"requester_id"`
	PropertyType          string          `json:"property_type"`
	Address               string          `json:"address"`
	City                  string          `json:"city"`
	MonthlyConsumptionKWh decimal.Decimal `json:"monthly_consumption_kwh"`
	SystemSizeKWp         decimal.Decimal `json:"system_size_kwp"`
	PropertyDetails       json.RawMessage `json:"property_details,omitempty"`
	Status                RequestStatus   `json:"status"`
	PenaltyAcknowledged   bool            `json:"penalty_acknowledged"`
	InstallationDeadline  *time.Time      `json:"installation_deadline,omitempty"`
	CancellationReason    *string         `json:"cancellation_reason,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

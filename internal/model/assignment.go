package model

import (
	"time"

	"github.com/google/uuid"
)

type AssignmentStatus string

const (
	AssignmentStatusAssigned AssignmentStatus = "ASSIGNED"
	AssignmentStatusViewed   AssignmentStatus = "VIEWED"
	AssignmentStatusAccepted AssignmentStatus = "ACCEPTED"
	AssignmentStatusRejected AssignmentStatus = "REJECTED"
)

// ContractorQuoteAssignment is one (request, contractor) invitation.
// The contractor id never changes after creation.
type ContractorQuoteAssignment struct {
	ID           uuid.UUID        `json:"id"`
	RequestID    uuid.UUID        `json:"request_id"`
	ContractorID uuid.UUID        `json:"contractor_id"`
	Status       AssignmentStatus `json:"status"`
	Notes        *string          `json:"notes,omitempty"`
	ViewedAt     *time.Time       `json:"viewed_at,omitempty"`
	RespondedAt  *time.Time       `json:"responded_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

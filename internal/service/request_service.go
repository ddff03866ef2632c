package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sunfin/quote-engine/internal/config"
	"github.com/sunfin/quote-engine/internal/model"
	"github.com/sunfin/quote-engine/internal/repository"
)

// RequestStore is the persistence surface the request service needs.
// Implemented by repository.RequestRepository.
type RequestStore interface {
	Create(ctx context.Context, req model.QuoteRequest) (*model.QuoteRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.QuoteRequest, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]model.QuoteRequest, error)
	ListAll(ctx context.Context) ([]model.QuoteRequest, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.RequestStatus, reason *string, completedAt *time.Time) error
	AssignContractors(ctx context.Context, requestID uuid.UUID, contractorIDs []uuid.UUID) ([]model.ContractorQuoteAssignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*model.ContractorQuoteAssignment, error)
	ListAssignments(ctx context.Context, requestID uuid.UUID) ([]model.ContractorQuoteAssignment, error)
	RecordAssignmentResponse(ctx context.Context, id uuid.UUID, status model.AssignmentStatus, notes *string) error
	MarkAssignmentViewed(ctx context.Context, id uuid.UUID) error
}

// ContractorDirectory is the contractor service contract: it only answers
// whether the given contractors exist and are eligible for assignment.
type ContractorDirectory interface {
	VerifyEligible(ctx context.Context, contractorIDs []uuid.UUID) error
}

// PenaltyApplier lets the request service assess a cancellation penalty
// without depending on the full penalty service.
type PenaltyApplier interface {
	ApplyCancellation(ctx context.Context, requestID, contractorID uuid.UUID, reason string) error
}

type RequestService struct {
	store     RequestStore
	directory ContractorDirectory
	penalties PenaltyApplier
	cfg       *config.Config
}

func NewRequestService(store RequestStore, directory ContractorDirectory, penalties PenaltyApplier, cfg *config.Config) *RequestService {
	return &RequestService{
		store:     store,
		directory: directory,
		penalties: penalties,
		cfg:       cfg,
	}
}

type CreateRequestInput struct {
	Principal             model.Principal
	PropertyType          string
	Address               string
	City                  string
	MonthlyConsumptionKWh decimal.Decimal
	SystemSizeKWp         decimal.Decimal
	PropertyDetails       json.RawMessage
	PenaltyAcknowledged   bool
	InstallationDeadline  *time.Time
}

func (s *RequestService) Create(ctx context.Context, input CreateRequestInput) (*model.QuoteRequest, error) {
	if !input.Principal.IsCustomer() && !input.Principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if input.PropertyType == "" || input.Address == "" || input.City == "" {
		return nil, fmt.Errorf("%w: property_type, address and city are required", ErrInvalidInput)
	}
	if input.SystemSizeKWp.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: system_size_kwp must be positive", ErrInvalidInput)
	}
	if input.MonthlyConsumptionKWh.IsNegative() {
		return nil, fmt.Errorf("%w: monthly_consumption_kwh must not be negative", ErrInvalidInput)
	}

	return s.store.Create(ctx, model.QuoteRequest{
		RequesterID:           input.Principal.UserID,
		PropertyType:          input.PropertyType,
		Address:               input.Address,
		City:                  input.City,
		MonthlyConsumptionKWh: input.MonthlyConsumptionKWh,
		SystemSizeKWp:         input.SystemSizeKWp,
		PropertyDetails:       input.PropertyDetails,
		PenaltyAcknowledged:   input.PenaltyAcknowledged,
		InstallationDeadline:  input.InstallationDeadline,
	})
}

// Get returns the request if the caller owns it, is assigned to it, or is an
// admin. Unowned requests answer not-found rather than forbidden so ids are
// not probeable.
func (s *RequestService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.QuoteRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if err := s.authorizeRead(ctx, principal, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) List(ctx context.Context, principal model.Principal) ([]model.QuoteRequest, error) {
	if principal.IsAdmin() {
		return s.store.ListAll(ctx)
	}
	return s.store.ListByRequester(ctx, principal.UserID)
}

type AssignContractorsInput struct {
	Principal     model.Principal
	RequestID     uuid.UUID
	ContractorIDs []uuid.UUID
}

func (s *RequestService) AssignContractors(ctx context.Context, input AssignContractorsInput) ([]model.ContractorQuoteAssignment, error) {
	if len(input.ContractorIDs) == 0 {
		return nil, fmt.Errorf("%w: contractor list is empty", ErrInvalidInput)
	}
	if len(input.ContractorIDs) > s.cfg.Quotes.MaxContractors {
		return nil, fmt.Errorf("%w: at most %d contractors may be assigned", ErrInvalidInput, s.cfg.Quotes.MaxContractors)
	}
	if hasDuplicates(input.ContractorIDs) {
		return nil, fmt.Errorf("%w: duplicate contractor ids", ErrInvalidInput)
	}

	req, err := s.store.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !input.Principal.IsAdmin() && req.RequesterID != input.Principal.UserID {
		return nil, ErrNotFound
	}
	if req.Status != model.RequestStatusPending {
		return nil, fmt.Errorf("%w: contractors already assigned", ErrConflict)
	}

	// Eligibility is authorization-critical: an unreachable contractor
	// service fails the call rather than degrading.
	if s.directory != nil {
		if err := s.directory.VerifyEligible(ctx, input.ContractorIDs); err != nil {
			return nil, err
		}
	}

	assignments, err := s.store.AssignContractors(ctx, input.RequestID, input.ContractorIDs)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return assignments, nil
}

type AssignmentResponseInput struct {
	Principal    model.Principal
	AssignmentID uuid.UUID
	Response     model.AssignmentStatus
	Notes        *string
}

// RespondToAssignment records the contractor's accept/reject answer to an
// invitation. Accepting unlocks quotation submission for that contractor.
func (s *RequestService) RespondToAssignment(ctx context.Context, input AssignmentResponseInput) (*model.ContractorQuoteAssignment, error) {
	if input.Response != model.AssignmentStatusAccepted && input.Response != model.AssignmentStatusRejected {
		return nil, fmt.Errorf("%w: response must be accepted or rejected", ErrInvalidInput)
	}

	assignment, err := s.store.GetAssignment(ctx, input.AssignmentID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !input.Principal.IsContractor() || assignment.ContractorID != input.Principal.UserID {
		return nil, ErrNotFound
	}

	if err := s.store.RecordAssignmentResponse(ctx, input.AssignmentID, input.Response, input.Notes); err != nil {
		return nil, mapStoreError(err)
	}
	return s.store.GetAssignment(ctx, input.AssignmentID)
}

// GetAssignment fetches an assignment for its contractor and marks it viewed
// on first read.
func (s *RequestService) GetAssignment(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.ContractorQuoteAssignment, error) {
	assignment, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if principal.IsAdmin() {
		return assignment, nil
	}
	if !principal.IsContractor() || assignment.ContractorID != principal.UserID {
		return nil, ErrNotFound
	}

	if assignment.Status == model.AssignmentStatusAssigned {
		if err := s.store.MarkAssignmentViewed(ctx, id); err != nil {
			return nil, err
		}
		return s.store.GetAssignment(ctx, id)
	}
	return assignment, nil
}

type CancelRequestInput struct {
	Principal model.Principal
	RequestID uuid.UUID
	Reason    string
}

// Cancel moves the request to CANCELLED from any non-terminal state. When a
// contractor cancels after accepting, the configured cancellation penalty is
// assessed against them.
func (s *RequestService) Cancel(ctx context.Context, input CancelRequestInput) (*model.QuoteRequest, error) {
	if input.Reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrInvalidInput)
	}

	req, err := s.store.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	isOwner := req.RequesterID == input.Principal.UserID
	var contractorAssignment *model.ContractorQuoteAssignment
	if input.Principal.IsContractor() {
		assignments, err := s.store.ListAssignments(ctx, input.RequestID)
		if err != nil {
			return nil, err
		}
		for i := range assignments {
			if assignments[i].ContractorID == input.Principal.UserID {
				contractorAssignment = &assignments[i]
				break
			}
		}
	}
	if !input.Principal.IsAdmin() && !isOwner && contractorAssignment == nil {
		return nil, ErrNotFound
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: request is already %s", ErrConflict, req.Status)
	}

	reason := input.Reason
	if err := s.store.TransitionStatus(ctx, input.RequestID, req.Status, model.RequestStatusCancelled, &reason, nil); err != nil {
		return nil, mapStoreError(err)
	}

	// Cancellation by a contractor who had already accepted is a service
	// commitment breach; the penalty failure must not undo the cancellation.
	if contractorAssignment != nil &&
		contractorAssignment.Status == model.AssignmentStatusAccepted &&
		s.penalties != nil {
		if err := s.penalties.ApplyCancellation(ctx, input.RequestID, input.Principal.UserID, input.Reason); err != nil &&
			!errors.Is(err, ErrConflict) {
			return nil, err
		}
	}

	return s.store.GetByID(ctx, input.RequestID)
}

// Complete records installation confirmation and closes the request.
func (s *RequestService) Complete(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.QuoteRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !principal.IsAdmin() && req.RequesterID != principal.UserID {
		return nil, ErrNotFound
	}
	if !req.Status.CanTransition(model.RequestStatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete request in status %s", ErrConflict, req.Status)
	}

	now := time.Now()
	if err := s.store.TransitionStatus(ctx, id, req.Status, model.RequestStatusCompleted, nil, &now); err != nil {
		return nil, mapStoreError(err)
	}
	return s.store.GetByID(ctx, id)
}

func (s *RequestService) ListAssignments(ctx context.Context, principal model.Principal, requestID uuid.UUID) ([]model.ContractorQuoteAssignment, error) {
	req, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !principal.IsAdmin() && req.RequesterID != principal.UserID {
		return nil, ErrNotFound
	}
	return s.store.ListAssignments(ctx, requestID)
}

func (s *RequestService) authorizeRead(ctx context.Context, principal model.Principal, req *model.QuoteRequest) error {
	if principal.IsAdmin() || req.RequesterID == principal.UserID {
		return nil
	}
	if principal.IsContractor() {
		assignments, err := s.store.ListAssignments(ctx, req.ID)
		if err != nil {
			return err
		}
		for _, assignment := range assignments {
			if assignment.ContractorID == principal.UserID {
				return nil
			}
		}
	}
	return ErrNotFound
}

func hasDuplicates(ids []uuid.UUID) bool {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

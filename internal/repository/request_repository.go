package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sunfin/quote-engine/internal/model"
)

const requestColumns = `
	id, requester_id, property_type, address, city,
	monthly_consumption_kwh, system_size_kwp, property_details, status,
	penalty_acknowledged, installation_deadline, cancellation_reason,
	completed_at, created_at, updated_at`

const assignmentColumns = `
	id, request_id, contractor_id, status, notes, viewed_at, responded_at, created_at`

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req model.QuoteRequest) (*model.QuoteRequest, error) {
	var saved model.QuoteRequest
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO quote_requests (
			requester_id, property_type, address, city,
			monthly_consumption_kwh, system_size_kwp, property_details,
			status, penalty_acknowledged, installation_deadline
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+requestColumns,
		req.RequesterID,
		req.PropertyType,
		req.Address,
		req.City,
		req.MonthlyConsumptionKWh,
		req.SystemSizeKWp,
		req.PropertyDetails,
		model.RequestStatusPending,
		req.PenaltyAcknowledged,
		req.InstallationDeadline,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QuoteRequest, error) {
	var req model.QuoteRequest
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+requestColumns+`
		FROM quote_requests
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&req).Error
	if err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &req, nil
}

func (r *RequestRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]model.QuoteRequest, error) {
	var requests []model.QuoteRequest
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+requestColumns+`
		FROM quote_requests
		WHERE requester_id = ?
		ORDER BY created_at DESC
	`, requesterID).Scan(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *RequestRepository) ListAll(ctx context.Context) ([]model.QuoteRequest, error) {
	var requests []model.QuoteRequest
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+requestColumns+`
		FROM quote_requests
		ORDER BY created_at DESC
	`).Scan(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// TransitionStatus moves a request from one status to another with a guarded
// update. A zero row count means the request was not in the expected state,
// which callers surface as a conflict.
func (r *RequestRepository) TransitionStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to model.RequestStatus,
	reason *string,
	completedAt *time.Time,
) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE quote_requests
		SET status = ?, cancellation_reason = COALESCE(?, cancellation_reason),
			completed_at = COALESCE(?, completed_at), updated_at = NOW()
		WHERE id = ? AND status = ?
	`, to, reason, completedAt, id, from)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// AssignContractors creates one assignment per contractor and advances the
// request to CONTRACTORS_SELECTED in a single transaction. The request row is
// locked so two concurrent assignment attempts cannot both pass the status
// check.
func (r *RequestRepository) AssignContractors(
	ctx context.Context,
	requestID uuid.UUID,
	contractorIDs []uuid.UUID,
) ([]model.ContractorQuoteAssignment, error) {
	var assignments []model.ContractorQuoteAssignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var status model.RequestStatus
		err := tx.Raw(`
			SELECT status FROM quote_requests WHERE id = ? FOR UPDATE
		`, requestID).Scan(&status).Error
		if err != nil {
			return err
		}
		if status == "" {
			return gorm.ErrRecordNotFound
		}
		if status != model.RequestStatusPending {
			return ErrConflict
		}

		for _, contractorID := range contractorIDs {
			var saved model.ContractorQuoteAssignment
			err := tx.Raw(`
				INSERT INTO contractor_assignments (request_id, contractor_id, status)
				VALUES (?, ?, ?)
				RETURNING `+assignmentColumns,
				requestID, contractorID, model.AssignmentStatusAssigned,
			).Scan(&saved).Error
			if err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return err
			}
			assignments = append(assignments, saved)
		}

		return tx.Exec(`
			UPDATE quote_requests SET status = ?, updated_at = NOW() WHERE id = ?
		`, model.RequestStatusContractorsSelected, requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *RequestRepository) GetAssignment(ctx context.Context, id uuid.UUID) (*model.ContractorQuoteAssignment, error) {
	var assignment model.ContractorQuoteAssignment
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+assignmentColumns+`
		FROM contractor_assignments
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&assignment).Error
	if err != nil {
		return nil, err
	}
	if assignment.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &assignment, nil
}

func (r *RequestRepository) GetAssignmentForContractor(
	ctx context.Context,
	requestID, contractorID uuid.UUID,
) (*model.ContractorQuoteAssignment, error) {
	var assignment model.ContractorQuoteAssignment
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+assignmentColumns+`
		FROM contractor_assignments
		WHERE request_id = ? AND contractor_id = ?
		LIMIT 1
	`, requestID, contractorID).Scan(&assignment).Error
	if err != nil {
		return nil, err
	}
	if assignment.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &assignment, nil
}

func (r *RequestRepository) ListAssignments(ctx context.Context, requestID uuid.UUID) ([]model.ContractorQuoteAssignment, error) {
	var assignments []model.ContractorQuoteAssignment
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+assignmentColumns+`
		FROM contractor_assignments
		WHERE request_id = ?
		ORDER BY created_at ASC
	`, requestID).Scan(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// RecordAssignmentResponse stores the contractor's accept/reject answer.
// Only assignments still awaiting a response can be answered.
func (r *RequestRepository) RecordAssignmentResponse(
	ctx context.Context,
	id uuid.UUID,
	status model.AssignmentStatus,
	notes *string,
) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE contractor_assignments
		SET status = ?, notes = ?, responded_at = NOW()
		WHERE id = ? AND status IN (?, ?)
	`, status, notes, id, model.AssignmentStatusAssigned, model.AssignmentStatusViewed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *RequestRepository) MarkAssignmentViewed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE contractor_assignments
		SET status = ?, viewed_at = NOW()
		WHERE id = ? AND status = ?
	`, model.AssignmentStatusViewed, id, model.AssignmentStatusAssigned).Error
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value")
}

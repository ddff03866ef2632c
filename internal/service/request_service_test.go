package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunfin/quote-engine/internal/config"
	"github.com/sunfin/quote-engine/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testConfig() *config.Config {
	return &config.Config{
		Quotes: config.QuotesConfig{
			MaxContractors:      5,
			QuotationTTL:        14 * 24 * time.Hour,
			CommissionRate:      "0.15",
			OverpriceRate:       "0.10",
			VATRate:             "0.15",
			CancellationPenalty: "500",
		},
	}
}

func customer() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleCustomer}
}

func contractorPrincipal() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleContractor}
}

func admin() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}
}

func validCreateInput(principal model.Principal) CreateRequestInput {
	return CreateRequestInput{
		Principal:             principal,
		PropertyType:          "residential",
		Address:               "12 Ring Road",
		City:                  "Riyadh",
		MonthlyConsumptionKWh: dec("850"),
		SystemSizeKWp:         dec("10"),
		PenaltyAcknowledged:   true,
	}
}

func TestCreateRequest(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())
	owner := customer()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, created.Status)
	assert.Equal(t, owner.UserID, created.RequesterID)
}

func TestCreateRequestValidation(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())

	input := validCreateInput(contractorPrincipal())
	_, err := svc.Create(context.Background(), input)
	assert.ErrorIs(t, err, ErrPermissionDenied, "contractors cannot create requests")

	input = validCreateInput(customer())
	input.City = ""
	_, err = svc.Create(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidInput)

	input = validCreateInput(customer())
	input.SystemSizeKWp = dec("0")
	_, err = svc.Create(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetRequestHidesForeignRequests(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())
	owner := customer()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), customer(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(context.Background(), admin(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestAssignContractors(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())
	owner := customer()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)

	assignments, err := svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
	})
	require.NoError(t, err)
	assert.Len(t, assignments, 3)
	for _, assignment := range assignments {
		assert.Equal(t, model.AssignmentStatusAssigned, assignment.Status)
	}

	got, err := svc.Get(context.Background(), owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusContractorsSelected, got.Status)

	// Second assignment round conflicts: the request already left PENDING.
	_, err = svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAssignContractorsLimits(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())
	owner := customer()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)

	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err = svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: ids,
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "over the contractor cap")

	duplicate := uuid.New()
	_, err = svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: []uuid.UUID{duplicate, duplicate},
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "duplicate contractor ids")

	_, err = svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: nil,
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "empty contractor list")
}

func TestRespondToAssignment(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())
	owner := customer()
	contractor := contractorPrincipal()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)
	assignments, err := svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: []uuid.UUID{contractor.UserID},
	})
	require.NoError(t, err)

	// First contractor read marks the invitation viewed.
	viewed, err := svc.GetAssignment(context.Background(), contractor, assignments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentStatusViewed, viewed.Status)
	assert.NotNil(t, viewed.ViewedAt)

	accepted, err := svc.RespondToAssignment(context.Background(), AssignmentResponseInput{
		Principal:    contractor,
		AssignmentID: assignments[0].ID,
		Response:     model.AssignmentStatusAccepted,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentStatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.RespondedAt)

	// A decided assignment cannot be re-answered.
	_, err = svc.RespondToAssignment(context.Background(), AssignmentResponseInput{
		Principal:    contractor,
		AssignmentID: assignments[0].ID,
		Response:     model.AssignmentStatusRejected,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRespondToAssignmentForeignContractor(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())
	owner := customer()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)
	assignments, err := svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)

	_, err = svc.RespondToAssignment(context.Background(), AssignmentResponseInput{
		Principal:    contractorPrincipal(),
		AssignmentID: assignments[0].ID,
		Response:     model.AssignmentStatusAccepted,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

type recordingPenaltyApplier struct {
	calls int
}

func (r *recordingPenaltyApplier) ApplyCancellation(_ context.Context, _, _ uuid.UUID, _ string) error {
	r.calls++
	return nil
}

func TestCancelByOwner(t *testing.T) {
	store := newFakeRequestStore()
	applier := &recordingPenaltyApplier{}
	svc := NewRequestService(store, nil, applier, testConfig())
	owner := customer()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), CancelRequestInput{
		Principal: owner,
		RequestID: created.ID,
		Reason:    "changed my mind",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "changed my mind", *cancelled.CancellationReason)
	assert.Zero(t, applier.calls, "owner cancellation carries no penalty")

	_, err = svc.Cancel(context.Background(), CancelRequestInput{
		Principal: owner,
		RequestID: created.ID,
		Reason:    "again",
	})
	assert.ErrorIs(t, err, ErrConflict, "terminal state")
}

func TestCancelByAcceptedContractorAssessesPenalty(t *testing.T) {
	store := newFakeRequestStore()
	applier := &recordingPenaltyApplier{}
	svc := NewRequestService(store, nil, applier, testConfig())
	owner := customer()
	contractor := contractorPrincipal()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)
	assignments, err := svc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     created.ID,
		ContractorIDs: []uuid.UUID{contractor.UserID},
	})
	require.NoError(t, err)
	_, err = svc.RespondToAssignment(context.Background(), AssignmentResponseInput{
		Principal:    contractor,
		AssignmentID: assignments[0].ID,
		Response:     model.AssignmentStatusAccepted,
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), CancelRequestInput{
		Principal: contractor,
		RequestID: created.ID,
		Reason:    "cannot serve the area",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, applier.calls)
}

func TestCompleteRequiresSettledRequest(t *testing.T) {
	store := newFakeRequestStore()
	svc := NewRequestService(store, nil, nil, testConfig())
	owner := customer()

	created, err := svc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), owner, created.ID)
	assert.ErrorIs(t, err, ErrConflict, "no quote selected yet")

	store.requests[created.ID].Status = model.RequestStatusQuoteSelected
	completed, err := svc.Complete(context.Background(), owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
}

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunfin/quote-engine/internal/model"
)

type quotationFixture struct {
	requests   *fakeRequestStore
	quotes     *fakeQuotationStore
	requestSvc *RequestService
	svc        *QuotationService
	owner      model.Principal
	request    *model.QuoteRequest
}

// newQuotationFixture walks a request through creation, assignment and
// acceptance by the given contractors so quotations can be submitted.
func newQuotationFixture(t *testing.T, contractors ...model.Principal) *quotationFixture {
	t.Helper()

	requests := newFakeRequestStore()
	quotes := newFakeQuotationStore(requests)
	requestSvc := NewRequestService(requests, nil, nil, testConfig())
	svc, err := NewQuotationService(quotes, requests, testConfig())
	require.NoError(t, err)

	owner := customer()
	request, err := requestSvc.Create(context.Background(), validCreateInput(owner))
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(contractors))
	for _, contractor := range contractors {
		ids = append(ids, contractor.UserID)
	}
	assignments, err := requestSvc.AssignContractors(context.Background(), AssignContractorsInput{
		Principal:     owner,
		RequestID:     request.ID,
		ContractorIDs: ids,
	})
	require.NoError(t, err)

	for _, assignment := range assignments {
		for _, contractor := range contractors {
			if assignment.ContractorID == contractor.UserID {
				_, err = requestSvc.RespondToAssignment(context.Background(), AssignmentResponseInput{
					Principal:    contractor,
					AssignmentID: assignment.ID,
					Response:     model.AssignmentStatusAccepted,
				})
				require.NoError(t, err)
			}
		}
	}

	return &quotationFixture{
		requests:   requests,
		quotes:     quotes,
		requestSvc: requestSvc,
		svc:        svc,
		owner:      owner,
		request:    request,
	}
}

func submitInput(contractor model.Principal, requestID uuid.UUID, unitPrice string) SubmitQuotationInput {
	return SubmitQuotationInput{
		Principal:        contractor,
		RequestID:        requestID,
		SystemSpecs:      json.RawMessage(`{"panels":"mono 450W"}`),
		WarrantyTerms:    "10 years product warranty",
		MaintenanceTerms: "annual inspection included",
		LineItems: []SubmitLineItem{
			{Description: "Solar panels", Units: dec("10"), UnitPrice: dec(unitPrice)},
		},
	}
}

func TestSubmitDerivesFinancials(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	quote, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)

	assert.Equal(t, model.QuotationStatusPendingReview, quote.AdminStatus)
	assert.True(t, quote.TotalPrice.Equal(dec("22700")), "total = %s", quote.TotalPrice)
	assert.True(t, quote.Commission.Equal(dec("3405")), "commission = %s", quote.Commission)
	assert.True(t, quote.Overprice.Equal(dec("2270")), "overprice = %s", quote.Overprice)
	assert.True(t, quote.UserPrice.Equal(dec("24970")), "user price = %s", quote.UserPrice)
	assert.True(t, quote.VendorNet.Equal(dec("19295")), "vendor net = %s", quote.VendorNet)
	assert.True(t, quote.PricePerKWp.Equal(dec("2270")), "price per kwp = %s", quote.PricePerKWp)
	assert.True(t, quote.CommissionRate.Equal(dec("0.15")), "rate snapshot persisted")

	got, err := fx.requestSvc.Get(context.Background(), fx.owner, fx.request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusQuotesReceived, got.Status)
}

func TestSubmitRequiresAcceptedAssignment(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	outsider := contractorPrincipal()
	_, err := fx.svc.Submit(context.Background(), submitInput(outsider, fx.request.ID, "2000"))
	assert.ErrorIs(t, err, ErrNotFound, "no assignment for this contractor")

	_, err = fx.svc.Submit(context.Background(), submitInput(fx.owner, fx.request.ID, "2000"))
	assert.ErrorIs(t, err, ErrPermissionDenied, "customers cannot submit quotations")
}

func TestSubmitDuplicateQuotation(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	_, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)

	_, err = fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2300"))
	assert.ErrorIs(t, err, ErrConflict, "one quotation per contractor per request")
}

func TestRequesterSeesOnlyApprovedQuotations(t *testing.T) {
	first := contractorPrincipal()
	second := contractorPrincipal()
	fx := newQuotationFixture(t, first, second)

	pending, err := fx.svc.Submit(context.Background(), submitInput(first, fx.request.ID, "2270"))
	require.NoError(t, err)
	approved, err := fx.svc.Submit(context.Background(), submitInput(second, fx.request.ID, "2100"))
	require.NoError(t, err)

	_, err = fx.svc.Review(context.Background(), ReviewQuotationInput{
		Principal:   admin(),
		QuotationID: approved.ID,
		Decision:    ReviewDecisionApproved,
	})
	require.NoError(t, err)

	visible, err := fx.svc.ListByRequest(context.Background(), fx.owner, fx.request.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, approved.ID, visible[0].ID)

	_, err = fx.svc.Get(context.Background(), fx.owner, pending.ID)
	assert.ErrorIs(t, err, ErrNotFound, "pending quotations are hidden from the requester")

	own, err := fx.svc.Get(context.Background(), first, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, own.ID)
}

func TestReviewPriceOverride(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	quote, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)

	override := dec("20000")
	_, err = fx.svc.Review(context.Background(), ReviewQuotationInput{
		Principal:     admin(),
		QuotationID:   quote.ID,
		Decision:      ReviewDecisionApproved,
		PriceOverride: &override,
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "override without a note")

	reviewed, err := fx.svc.Review(context.Background(), ReviewQuotationInput{
		Principal:     admin(),
		QuotationID:   quote.ID,
		Decision:      ReviewDecisionApproved,
		Notes:         "negotiated with the contractor",
		PriceOverride: &override,
	})
	require.NoError(t, err)
	assert.True(t, reviewed.TotalPrice.Equal(dec("20000")))
	assert.True(t, reviewed.Commission.Equal(dec("3000")), "recomputed under the persisted snapshot")
	assert.True(t, reviewed.UserPrice.Equal(dec("22000")))
	assert.True(t, reviewed.VendorNet.Equal(dec("17000")))
}

func TestReviewRequiresAdmin(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	quote, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)

	_, err = fx.svc.Review(context.Background(), ReviewQuotationInput{
		Principal:   fx.owner,
		QuotationID: quote.ID,
		Decision:    ReviewDecisionApproved,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = fx.svc.Review(context.Background(), ReviewQuotationInput{
		Principal:   admin(),
		QuotationID: quote.ID,
		Decision:    ReviewDecisionRejected,
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "rejection requires a reason")
}

func TestSelectSettlesRequest(t *testing.T) {
	first := contractorPrincipal()
	second := contractorPrincipal()
	third := contractorPrincipal()
	fx := newQuotationFixture(t, first, second, third)

	quoteA, err := fx.svc.Submit(context.Background(), submitInput(first, fx.request.ID, "2270"))
	require.NoError(t, err)
	quoteB, err := fx.svc.Submit(context.Background(), submitInput(second, fx.request.ID, "2100"))
	require.NoError(t, err)
	quoteC, err := fx.svc.Submit(context.Background(), submitInput(third, fx.request.ID, "2400"))
	require.NoError(t, err)

	for _, id := range []uuid.UUID{quoteA.ID, quoteB.ID, quoteC.ID} {
		_, err = fx.svc.Review(context.Background(), ReviewQuotationInput{
			Principal:   admin(),
			QuotationID: id,
			Decision:    ReviewDecisionApproved,
		})
		require.NoError(t, err)
	}

	invoice, err := fx.svc.Select(context.Background(), fx.owner, quoteA.ID)
	require.NoError(t, err)
	assert.Equal(t, quoteA.ID, invoice.QuotationID)
	assert.Equal(t, first.UserID, invoice.ContractorID)
	assert.True(t, invoice.GrossAmount.Equal(dec("22700")))
	assert.True(t, invoice.NetAmount.Equal(dec("19295")), "no penalty deduction")
	assert.True(t, invoice.VATAmount.Equal(dec("2894.25")))
	assert.True(t, invoice.TotalPayable.Equal(dec("22189.25")))
	assert.NotEmpty(t, invoice.InvoiceNumber)

	settled, err := fx.requestSvc.Get(context.Background(), fx.owner, fx.request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusQuoteSelected, settled.Status)

	// The siblings were rejected by the selection.
	for _, id := range []uuid.UUID{quoteB.ID, quoteC.ID} {
		sibling, err := fx.quotes.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.QuotationStatusRejected, sibling.AdminStatus)
		assert.False(t, sibling.IsSelected)
	}

	// A second selection on the same request conflicts.
	_, err = fx.svc.Select(context.Background(), fx.owner, quoteB.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSelectAuthorization(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	quote, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)

	_, err = fx.svc.Select(context.Background(), customer(), quote.ID)
	assert.ErrorIs(t, err, ErrNotFound, "only the requester selects")

	_, err = fx.svc.Select(context.Background(), fx.owner, quote.ID)
	assert.ErrorIs(t, err, ErrConflict, "unapproved quotations cannot be selected")
}

func TestLazyExpiry(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	quote, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)

	fx.quotes.quotes[quote.ID].ExpiresAt = time.Now().Add(-time.Hour)

	expired, err := fx.svc.Get(context.Background(), contractor, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuotationStatusRejected, expired.AdminStatus)
	require.NotNil(t, expired.RejectionReason)
	assert.Equal(t, "quotation expired", *expired.RejectionReason)

	_, err = fx.svc.Select(context.Background(), fx.owner, quote.ID)
	assert.ErrorIs(t, err, ErrConflict, "expired quotations cannot be selected")
}

func TestUnselectReopensRequest(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	quote, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)
	_, err = fx.svc.Review(context.Background(), ReviewQuotationInput{
		Principal:   admin(),
		QuotationID: quote.ID,
		Decision:    ReviewDecisionApproved,
	})
	require.NoError(t, err)
	invoice, err := fx.svc.Select(context.Background(), fx.owner, quote.ID)
	require.NoError(t, err)

	err = fx.svc.Unselect(context.Background(), fx.owner, quote.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied, "unselect is an admin override")

	require.NoError(t, fx.svc.Unselect(context.Background(), admin(), quote.ID))

	reopened, err := fx.requestSvc.Get(context.Background(), fx.owner, fx.request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusQuotesReceived, reopened.Status)

	_, err = fx.svc.GetInvoice(context.Background(), admin(), invoice.ID)
	assert.ErrorIs(t, err, ErrNotFound, "the invoice is gone with the selection")
}

func TestGetInvoiceVisibility(t *testing.T) {
	contractor := contractorPrincipal()
	fx := newQuotationFixture(t, contractor)

	quote, err := fx.svc.Submit(context.Background(), submitInput(contractor, fx.request.ID, "2270"))
	require.NoError(t, err)
	_, err = fx.svc.Review(context.Background(), ReviewQuotationInput{
		Principal:   admin(),
		QuotationID: quote.ID,
		Decision:    ReviewDecisionApproved,
	})
	require.NoError(t, err)
	invoice, err := fx.svc.Select(context.Background(), fx.owner, quote.ID)
	require.NoError(t, err)

	for _, principal := range []model.Principal{admin(), contractor, fx.owner} {
		got, err := fx.svc.GetInvoice(context.Background(), principal, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.ID, got.ID)
	}

	_, err = fx.svc.GetInvoice(context.Background(), customer(), invoice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sunfin/quote-engine/internal/model"
	"github.com/sunfin/quote-engine/internal/repository"
)

// In-memory stores mirroring the repository contracts: gorm.ErrRecordNotFound
// for missing rows, repository.ErrConflict for guarded updates that match no
// row, repository.ErrDuplicate for unique violations.

type fakeRequestStore struct {
	requests    map[uuid.UUID]*model.QuoteRequest
	assignments map[uuid.UUID]*model.ContractorQuoteAssignment
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		requests:    make(map[uuid.UUID]*model.QuoteRequest),
		assignments: make(map[uuid.UUID]*model.ContractorQuoteAssignment),
	}
}

func (f *fakeRequestStore) Create(_ context.Context, req model.QuoteRequest) (*model.QuoteRequest, error) {
	req.ID = uuid.New()
	req.Status = model.RequestStatusPending
	req.CreatedAt = time.Now()
	f.requests[req.ID] = &req
	copied := req
	return &copied, nil
}

func (f *fakeRequestStore) GetByID(_ context.Context, id uuid.UUID) (*model.QuoteRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *req
	return &copied, nil
}

func (f *fakeRequestStore) ListByRequester(_ context.Context, requesterID uuid.UUID) ([]model.QuoteRequest, error) {
	var out []model.QuoteRequest
	for _, req := range f.requests {
		if req.RequesterID == requesterID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) ListAll(_ context.Context) ([]model.QuoteRequest, error) {
	var out []model.QuoteRequest
	for _, req := range f.requests {
		out = append(out, *req)
	}
	return out, nil
}

func (f *fakeRequestStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to model.RequestStatus, reason *string, completedAt *time.Time) error {
	req, ok := f.requests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if req.Status != from {
		return repository.ErrConflict
	}
	req.Status = to
	req.CancellationReason = reason
	if completedAt != nil {
		req.CompletedAt = completedAt
	}
	return nil
}

func (f *fakeRequestStore) AssignContractors(_ context.Context, requestID uuid.UUID, contractorIDs []uuid.UUID) ([]model.ContractorQuoteAssignment, error) {
	req, ok := f.requests[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if req.Status != model.RequestStatusPending {
		return nil, repository.ErrConflict
	}

	out := make([]model.ContractorQuoteAssignment, 0, len(contractorIDs))
	for _, contractorID := range contractorIDs {
		assignment := &model.ContractorQuoteAssignment{
			ID:           uuid.New(),
			RequestID:    requestID,
			ContractorID: contractorID,
			Status:       model.AssignmentStatusAssigned,
			CreatedAt:    time.Now(),
		}
		f.assignments[assignment.ID] = assignment
		out = append(out, *assignment)
	}
	req.Status = model.RequestStatusContractorsSelected
	return out, nil
}

func (f *fakeRequestStore) GetAssignment(_ context.Context, id uuid.UUID) (*model.ContractorQuoteAssignment, error) {
	assignment, ok := f.assignments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *assignment
	return &copied, nil
}

func (f *fakeRequestStore) GetAssignmentForContractor(_ context.Context, requestID, contractorID uuid.UUID) (*model.ContractorQuoteAssignment, error) {
	for _, assignment := range f.assignments {
		if assignment.RequestID == requestID && assignment.ContractorID == contractorID {
			copied := *assignment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRequestStore) ListAssignments(_ context.Context, requestID uuid.UUID) ([]model.ContractorQuoteAssignment, error) {
	var out []model.ContractorQuoteAssignment
	for _, assignment := range f.assignments {
		if assignment.RequestID == requestID {
			out = append(out, *assignment)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) RecordAssignmentResponse(_ context.Context, id uuid.UUID, status model.AssignmentStatus, notes *string) error {
	assignment, ok := f.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if assignment.Status != model.AssignmentStatusAssigned && assignment.Status != model.AssignmentStatusViewed {
		return repository.ErrConflict
	}
	now := time.Now()
	assignment.Status = status
	assignment.Notes = notes
	assignment.RespondedAt = &now
	return nil
}

func (f *fakeRequestStore) MarkAssignmentViewed(_ context.Context, id uuid.UUID) error {
	assignment, ok := f.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if assignment.Status == model.AssignmentStatusAssigned {
		now := time.Now()
		assignment.Status = model.AssignmentStatusViewed
		assignment.ViewedAt = &now
	}
	return nil
}

type fakeQuotationStore struct {
	requests *fakeRequestStore
	quotes   map[uuid.UUID]*model.ContractorQuote
	invoices map[uuid.UUID]*model.Invoice
}

func newFakeQuotationStore(requests *fakeRequestStore) *fakeQuotationStore {
	return &fakeQuotationStore{
		requests: requests,
		quotes:   make(map[uuid.UUID]*model.ContractorQuote),
		invoices: make(map[uuid.UUID]*model.Invoice),
	}
}

func (f *fakeQuotationStore) Create(_ context.Context, quote model.ContractorQuote) (*model.ContractorQuote, error) {
	for _, existing := range f.quotes {
		if existing.RequestID == quote.RequestID && existing.ContractorID == quote.ContractorID {
			return nil, repository.ErrDuplicate
		}
	}
	quote.ID = uuid.New()
	quote.AdminStatus = model.QuotationStatusPendingReview
	quote.CreatedAt = time.Now()
	f.quotes[quote.ID] = &quote

	if req, ok := f.requests.requests[quote.RequestID]; ok && req.Status == model.RequestStatusContractorsSelected {
		req.Status = model.RequestStatusQuotesReceived
	}

	copied := quote
	return &copied, nil
}

func (f *fakeQuotationStore) GetByID(_ context.Context, id uuid.UUID) (*model.ContractorQuote, error) {
	quote, ok := f.quotes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *quote
	return &copied, nil
}

func (f *fakeQuotationStore) ListByRequest(_ context.Context, requestID uuid.UUID) ([]model.ContractorQuote, error) {
	var out []model.ContractorQuote
	for _, quote := range f.quotes {
		if quote.RequestID == requestID {
			out = append(out, *quote)
		}
	}
	return out, nil
}

func (f *fakeQuotationStore) UpdateReview(_ context.Context, quote model.ContractorQuote) error {
	existing, ok := f.quotes[quote.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if existing.AdminStatus != model.QuotationStatusPendingReview &&
		existing.AdminStatus != model.QuotationStatusRevisionNeeded {
		return repository.ErrConflict
	}
	copied := quote
	f.quotes[quote.ID] = &copied
	return nil
}

func (f *fakeQuotationStore) MarkExpired(_ context.Context, id uuid.UUID) error {
	quote, ok := f.quotes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !quote.IsSelected {
		reason := "quotation expired"
		quote.AdminStatus = model.QuotationStatusRejected
		quote.RejectionReason = &reason
	}
	return nil
}

func (f *fakeQuotationStore) Select(_ context.Context, requestID, quotationID uuid.UUID, invoice model.Invoice) (*model.Invoice, error) {
	for _, quote := range f.quotes {
		if quote.RequestID == requestID && quote.IsSelected {
			return nil, repository.ErrConflict
		}
	}
	chosen, ok := f.quotes[quotationID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if chosen.AdminStatus != model.QuotationStatusApproved {
		return nil, repository.ErrConflict
	}

	req, ok := f.requests.requests[requestID]
	if !ok || req.Status != model.RequestStatusQuotesReceived {
		return nil, repository.ErrConflict
	}

	chosen.IsSelected = true
	reason := "superseded by selection"
	for _, quote := range f.quotes {
		if quote.RequestID == requestID && quote.ID != quotationID && quote.AdminStatus == model.QuotationStatusApproved {
			quote.AdminStatus = model.QuotationStatusRejected
			quote.RejectionReason = &reason
		}
	}
	req.Status = model.RequestStatusQuoteSelected

	invoice.ID = uuid.New()
	invoice.CreatedAt = time.Now()
	f.invoices[invoice.ID] = &invoice
	copied := invoice
	return &copied, nil
}

func (f *fakeQuotationStore) Unselect(_ context.Context, requestID, quotationID uuid.UUID) error {
	quote, ok := f.quotes[quotationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	quote.IsSelected = false
	for id, invoice := range f.invoices {
		if invoice.QuotationID == quotationID {
			delete(f.invoices, id)
		}
	}
	if req, ok := f.requests.requests[requestID]; ok {
		req.Status = model.RequestStatusQuotesReceived
	}
	return nil
}

func (f *fakeQuotationStore) GetInvoice(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	invoice, ok := f.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *invoice
	return &copied, nil
}

// fakePenaltyLedger implements PenaltyStore and WalletStore together so the
// penalty flow tests observe the same balance movements the SQL transactions
// produce.
type fakePenaltyLedger struct {
	penalties    map[uuid.UUID]*model.Penalty
	fingerprints map[string]struct{}
	rules        []*model.PenaltyRule
	wallets      map[uuid.UUID]*model.ContractorWallet
	transactions map[uuid.UUID][]model.WalletTransaction
	overdue      []model.OverdueInstallation
}

func newFakePenaltyLedger() *fakePenaltyLedger {
	return &fakePenaltyLedger{
		penalties:    make(map[uuid.UUID]*model.Penalty),
		fingerprints: make(map[string]struct{}),
		wallets:      make(map[uuid.UUID]*model.ContractorWallet),
		transactions: make(map[uuid.UUID][]model.WalletTransaction),
	}
}

func (f *fakePenaltyLedger) credit(contractorID uuid.UUID, txType model.WalletTransactionType, amount decimal.Decimal, reference string) {
	wallet, ok := f.wallets[contractorID]
	if !ok {
		wallet = &model.ContractorWallet{
			ID:           uuid.New(),
			ContractorID: contractorID,
			Balance:      decimal.Zero,
		}
		f.wallets[contractorID] = wallet
	}
	before := wallet.Balance
	wallet.Balance = wallet.Balance.Add(amount)
	f.transactions[wallet.ID] = append(f.transactions[wallet.ID], model.WalletTransaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  wallet.Balance,
		Reference:     reference,
		CreatedAt:     time.Now(),
	})
}

func (f *fakePenaltyLedger) Apply(_ context.Context, penalty model.Penalty) (*model.Penalty, error) {
	if _, exists := f.fingerprints[penalty.Fingerprint]; exists {
		return nil, repository.ErrDuplicate
	}
	f.fingerprints[penalty.Fingerprint] = struct{}{}

	penalty.ID = uuid.New()
	penalty.Status = model.PenaltyStatusApplied
	penalty.CreatedAt = time.Now()
	f.penalties[penalty.ID] = &penalty

	f.credit(penalty.ContractorID, model.WalletTxPenalty, penalty.ContractorShare.Neg(), penalty.ID.String())
	copied := penalty
	return &copied, nil
}

func (f *fakePenaltyLedger) GetByID(_ context.Context, id uuid.UUID) (*model.Penalty, error) {
	penalty, ok := f.penalties[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *penalty
	return &copied, nil
}

func (f *fakePenaltyLedger) Dispute(_ context.Context, id uuid.UUID, reason string) error {
	penalty, ok := f.penalties[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if penalty.Status != model.PenaltyStatusApplied {
		return repository.ErrConflict
	}
	penalty.Status = model.PenaltyStatusDisputed
	penalty.DisputeReason = &reason
	return nil
}

func (f *fakePenaltyLedger) Resolve(_ context.Context, id uuid.UUID, resolution model.PenaltyResolution, notes string, resolvedBy uuid.UUID, newAmount *decimal.Decimal) (*model.Penalty, error) {
	penalty, ok := f.penalties[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if penalty.Status != model.PenaltyStatusDisputed {
		return nil, repository.ErrConflict
	}

	now := time.Now()
	penalty.Resolution = &resolution
	penalty.ResolutionNotes = &notes
	penalty.ResolvedBy = &resolvedBy
	penalty.ResolvedAt = &now

	switch resolution {
	case model.PenaltyResolutionUphold:
		penalty.Status = model.PenaltyStatusApplied
	case model.PenaltyResolutionWaive:
		penalty.Status = model.PenaltyStatusWaived
		f.credit(penalty.ContractorID, model.WalletTxPenaltyReversal, penalty.ContractorShare, penalty.ID.String())
	case model.PenaltyResolutionModify:
		penalty.Status = model.PenaltyStatusApplied
		delta := penalty.ContractorShare.Sub(*newAmount)
		if !delta.IsZero() {
			f.credit(penalty.ContractorID, model.WalletTxAdjustment, delta, penalty.ID.String())
		}
		penalty.Amount = *newAmount
		penalty.ContractorShare = *newAmount
	}

	copied := *penalty
	return &copied, nil
}

func (f *fakePenaltyLedger) ListByContractor(_ context.Context, contractorID uuid.UUID) ([]model.Penalty, error) {
	var out []model.Penalty
	for _, penalty := range f.penalties {
		if penalty.ContractorID == contractorID {
			out = append(out, *penalty)
		}
	}
	return out, nil
}

func (f *fakePenaltyLedger) Statistics(_ context.Context, from, to time.Time) (*model.PenaltyStatistics, error) {
	stats := &model.PenaltyStatistics{
		PeriodStart: from,
		PeriodEnd:   to,
		TotalAmount: decimal.Zero,
	}
	for _, penalty := range f.penalties {
		if penalty.CreatedAt.Before(from) || penalty.CreatedAt.After(to) {
			continue
		}
		stats.TotalCount++
		stats.TotalAmount = stats.TotalAmount.Add(penalty.Amount)
		if penalty.Status == model.PenaltyStatusDisputed {
			stats.DisputedCount++
		}
		if penalty.Status == model.PenaltyStatusWaived {
			stats.WaivedCount++
		}
	}
	return stats, nil
}

func (f *fakePenaltyLedger) ListOverdueInstallations(_ context.Context, _ time.Time) ([]model.OverdueInstallation, error) {
	return f.overdue, nil
}

func (f *fakePenaltyLedger) GetActiveRule(_ context.Context, violationType model.PenaltyType) (*model.PenaltyRule, error) {
	for _, rule := range f.rules {
		if rule.ViolationType == violationType && rule.Active {
			copied := *rule
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePenaltyLedger) ListRules(_ context.Context) ([]model.PenaltyRule, error) {
	out := make([]model.PenaltyRule, 0, len(f.rules))
	for _, rule := range f.rules {
		out = append(out, *rule)
	}
	return out, nil
}

func (f *fakePenaltyLedger) CreateRule(_ context.Context, rule model.PenaltyRule) (*model.PenaltyRule, error) {
	version := 0
	for _, existing := range f.rules {
		if existing.ViolationType == rule.ViolationType {
			existing.Active = false
			if existing.Version > version {
				version = existing.Version
			}
		}
	}
	rule.ID = uuid.New()
	rule.Active = true
	rule.Version = version + 1
	rule.CreatedAt = time.Now()
	f.rules = append(f.rules, &rule)
	copied := rule
	return &copied, nil
}

func (f *fakePenaltyLedger) DeactivateRule(_ context.Context, id uuid.UUID) error {
	for _, rule := range f.rules {
		if rule.ID == id {
			rule.Active = false
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakePenaltyLedger) GetByContractor(_ context.Context, contractorID uuid.UUID) (*model.ContractorWallet, error) {
	wallet, ok := f.wallets[contractorID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *wallet
	return &copied, nil
}

func (f *fakePenaltyLedger) ListTransactions(_ context.Context, walletID uuid.UUID) ([]model.WalletTransaction, error) {
	return f.transactions[walletID], nil
}

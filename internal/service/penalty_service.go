package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sunfin/quote-engine/internal/config"
	"github.com/sunfin/quote-engine/internal/model"
	"github.com/sunfin/quote-engine/internal/repository"
)

const minReasonLength = 10

// PenaltyStore is the persistence surface for penalties, rules and SLA
// detection. Implemented by repository.PenaltyRepository.
type PenaltyStore interface {
	Apply(ctx context.Context, penalty model.Penalty) (*model.Penalty, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Penalty, error)
	Dispute(ctx context.Context, id uuid.UUID, reason string) error
	Resolve(ctx context.Context, id uuid.UUID, resolution model.PenaltyResolution, notes string, resolvedBy uuid.UUID, newAmount *decimal.Decimal) (*model.Penalty, error)
	ListByContractor(ctx context.Context, contractorID uuid.UUID) ([]model.Penalty, error)
	Statistics(ctx context.Context, from, to time.Time) (*model.PenaltyStatistics, error)
	ListOverdueInstallations(ctx context.Context, now time.Time) ([]model.OverdueInstallation, error)
	GetActiveRule(ctx context.Context, violationType model.PenaltyType) (*model.PenaltyRule, error)
	ListRules(ctx context.Context) ([]model.PenaltyRule, error)
	CreateRule(ctx context.Context, rule model.PenaltyRule) (*model.PenaltyRule, error)
	DeactivateRule(ctx context.Context, id uuid.UUID) error
}

// WalletStore exposes the contractor ledger for reads. Implemented by
// repository.WalletRepository; all writes go through penalty transactions.
type WalletStore interface {
	GetByContractor(ctx context.Context, contractorID uuid.UUID) (*model.ContractorWallet, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]model.WalletTransaction, error)
}

// QuotationReader resolves quotations for percent-based penalty amounts.
type QuotationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ContractorQuote, error)
}

type PenaltyService struct {
	store               PenaltyStore
	wallets             WalletStore
	quotes              QuotationReader
	cancellationPenalty decimal.Decimal
}

func NewPenaltyService(store PenaltyStore, wallets WalletStore, quotes QuotationReader, cfg *config.Config) (*PenaltyService, error) {
	cancellation, err := decimal.NewFromString(cfg.Quotes.CancellationPenalty)
	if err != nil {
		return nil, fmt.Errorf("parse QUOTES_CANCELLATION_PENALTY: %w", err)
	}
	return &PenaltyService{
		store:               store,
		wallets:             wallets,
		quotes:              quotes,
		cancellationPenalty: cancellation,
	}, nil
}

type ApplyPenaltyInput struct {
	Principal    model.Principal
	ContractorID uuid.UUID
	RequestID    uuid.UUID
	QuotationID  *uuid.UUID
	Type         model.PenaltyType
	Description  string
	CustomAmount *decimal.Decimal
	Evidence     json.RawMessage
}

// Apply is the admin-initiated penalty path. The amount comes from the custom
// override or from the active rule for the violation type; the wallet debit
// happens in the same transaction as the penalty insert.
func (s *PenaltyService) Apply(ctx context.Context, input ApplyPenaltyInput) (*model.Penalty, error) {
	if !input.Principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if input.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if !validPenaltyType(input.Type) {
		return nil, fmt.Errorf("%w: unknown penalty type", ErrInvalidInput)
	}

	var ruleID *uuid.UUID
	var amount decimal.Decimal
	if input.CustomAmount != nil {
		if input.CustomAmount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: custom_amount must be positive", ErrInvalidInput)
		}
		amount = *input.CustomAmount
	} else {
		rule, err := s.store.GetActiveRule(ctx, input.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: no active rule for %s and no custom_amount", ErrInvalidInput, input.Type)
		}
		ruleID = &rule.ID
		amount, err = s.ruleAmount(ctx, rule, input.QuotationID)
		if err != nil {
			return nil, err
		}
	}

	appliedBy := input.Principal.UserID
	penalty := model.Penalty{
		ContractorID:    input.ContractorID,
		RequestID:       input.RequestID,
		QuotationID:     input.QuotationID,
		RuleID:          ruleID,
		Type:            input.Type,
		Amount:          amount,
		ContractorShare: amount,
		PlatformShare:   decimal.Zero,
		Description:     input.Description,
		Evidence:        input.Evidence,
		Fingerprint:     fmt.Sprintf("manual:%s", uuid.New()),
		AppliedBy:       &appliedBy,
	}

	saved, err := s.store.Apply(ctx, penalty)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return saved, nil
}

// ApplyAuto applies a detected violation under its fingerprint. A duplicate
// fingerprint means the violation was already penalized; callers treat that
// as a no-op.
func (s *PenaltyService) ApplyAuto(ctx context.Context, violation model.OverdueInstallation) (*model.Penalty, bool, error) {
	rule, err := s.store.GetActiveRule(ctx, model.PenaltyTypeLateInstallation)
	if err != nil {
		// No configured rule means nothing to apply automatically.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !rule.AutoApply {
		return nil, false, nil
	}

	amount, err := s.resolveRuleAmount(rule, violation.VendorNet)
	if err != nil {
		return nil, false, err
	}

	penalty := model.Penalty{
		ContractorID:    violation.ContractorID,
		RequestID:       violation.RequestID,
		QuotationID:     &violation.QuotationID,
		RuleID:          &rule.ID,
		Type:            model.PenaltyTypeLateInstallation,
		Amount:          amount,
		ContractorShare: amount,
		PlatformShare:   decimal.Zero,
		Description: fmt.Sprintf("installation deadline %s missed",
			violation.Deadline.Format("2006-01-02")),
		Fingerprint: violationFingerprint(violation),
	}

	saved, err := s.store.Apply(ctx, penalty)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, false, nil
		}
		return nil, false, mapStoreError(err)
	}
	return saved, true, nil
}

// ApplyCancellation assesses the configured cancellation penalty against a
// contractor who cancelled after accepting. Idempotent per (request,
// contractor) via the fingerprint.
func (s *PenaltyService) ApplyCancellation(ctx context.Context, requestID, contractorID uuid.UUID, reason string) error {
	if s.cancellationPenalty.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	penalty := model.Penalty{
		ContractorID:    contractorID,
		RequestID:       requestID,
		Type:            model.PenaltyTypeCancellation,
		Amount:          s.cancellationPenalty,
		ContractorShare: s.cancellationPenalty,
		PlatformShare:   decimal.Zero,
		Description:     "cancellation after acceptance: " + reason,
		Fingerprint:     fmt.Sprintf("cancellation:%s:%s", requestID, contractorID),
	}
	if _, err := s.store.Apply(ctx, penalty); err != nil {
		return mapStoreError(err)
	}
	return nil
}

func (s *PenaltyService) ruleAmount(ctx context.Context, rule *model.PenaltyRule, quotationID *uuid.UUID) (decimal.Decimal, error) {
	if rule.Percent != nil {
		if quotationID == nil {
			return decimal.Zero, fmt.Errorf("%w: rule %s is percentage-based and needs a quote_id", ErrInvalidInput, rule.ViolationType)
		}
		quote, err := s.quotes.GetByID(ctx, *quotationID)
		if err != nil {
			return decimal.Zero, mapStoreError(err)
		}
		return s.resolveRuleAmount(rule, quote.VendorNet)
	}
	return s.resolveRuleAmount(rule, decimal.Zero)
}

func (s *PenaltyService) resolveRuleAmount(rule *model.PenaltyRule, base decimal.Decimal) (decimal.Decimal, error) {
	if rule.Percent != nil {
		return base.Mul(*rule.Percent).Round(2), nil
	}
	if rule.Amount != nil {
		return *rule.Amount, nil
	}
	return decimal.Zero, fmt.Errorf("%w: rule %s has neither amount nor percent", ErrInvalidInput, rule.ViolationType)
}

func (s *PenaltyService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Penalty, error) {
	penalty, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !principal.IsAdmin() && penalty.ContractorID != principal.UserID {
		return nil, ErrNotFound
	}
	return penalty, nil
}

type DisputePenaltyInput struct {
	Principal model.Principal
	PenaltyID uuid.UUID
	Reason    string
}

func (s *PenaltyService) Dispute(ctx context.Context, input DisputePenaltyInput) (*model.Penalty, error) {
	if len(strings.TrimSpace(input.Reason)) < minReasonLength {
		return nil, fmt.Errorf("%w: dispute_reason must be at least %d characters", ErrInvalidInput, minReasonLength)
	}

	penalty, err := s.store.GetByID(ctx, input.PenaltyID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !input.Principal.IsContractor() || penalty.ContractorID != input.Principal.UserID {
		return nil, ErrNotFound
	}
	if penalty.Status != model.PenaltyStatusApplied {
		return nil, fmt.Errorf("%w: only applied penalties can be disputed", ErrConflict)
	}

	if err := s.store.Dispute(ctx, input.PenaltyID, input.Reason); err != nil {
		return nil, mapStoreError(err)
	}
	return s.store.GetByID(ctx, input.PenaltyID)
}

type ResolvePenaltyInput struct {
	Principal  model.Principal
	PenaltyID  uuid.UUID
	Resolution model.PenaltyResolution
	Notes      string
	NewAmount  *decimal.Decimal
}

// Resolve settles a disputed penalty. A waiver compensates the wallet with a
// reversal entry; a modification supplements it with a difference entry. The
// original debit row is never rewritten.
func (s *PenaltyService) Resolve(ctx context.Context, input ResolvePenaltyInput) (*model.Penalty, error) {
	if !input.Principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if len(strings.TrimSpace(input.Notes)) < minReasonLength {
		return nil, fmt.Errorf("%w: resolution_notes must be at least %d characters", ErrInvalidInput, minReasonLength)
	}

	switch input.Resolution {
	case model.PenaltyResolutionUphold, model.PenaltyResolutionWaive:
	case model.PenaltyResolutionModify:
		if input.NewAmount == nil || input.NewAmount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: modify requires a positive new_amount", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: resolution must be uphold, waive or modify", ErrInvalidInput)
	}

	saved, err := s.store.Resolve(ctx, input.PenaltyID, input.Resolution, input.Notes, input.Principal.UserID, input.NewAmount)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return saved, nil
}

func (s *PenaltyService) ListByContractor(ctx context.Context, principal model.Principal, contractorID uuid.UUID) ([]model.Penalty, error) {
	if !principal.IsAdmin() && principal.UserID != contractorID {
		return nil, ErrNotFound
	}
	return s.store.ListByContractor(ctx, contractorID)
}

// Statistics aggregates penalties over a trailing window named by period:
// day, week, month or year.
func (s *PenaltyService) Statistics(ctx context.Context, principal model.Principal, period string) (*model.PenaltyStatistics, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	now := time.Now()
	var from time.Time
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "day":
		from = now.AddDate(0, 0, -1)
	case "week":
		from = now.AddDate(0, 0, -7)
	case "", "month":
		from = now.AddDate(0, -1, 0)
	case "year":
		from = now.AddDate(-1, 0, 0)
	default:
		return nil, fmt.Errorf("%w: period must be day, week, month or year", ErrInvalidInput)
	}

	return s.store.Statistics(ctx, from, now)
}

type WalletView struct {
	Wallet       model.ContractorWallet    `json:"wallet"`
	Transactions []model.WalletTransaction `json:"transactions"`
}

func (s *PenaltyService) Wallet(ctx context.Context, principal model.Principal, contractorID uuid.UUID) (*WalletView, error) {
	if !principal.IsAdmin() && principal.UserID != contractorID {
		return nil, ErrNotFound
	}

	wallet, err := s.wallets.GetByContractor(ctx, contractorID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	transactions, err := s.wallets.ListTransactions(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	return &WalletView{Wallet: *wallet, Transactions: transactions}, nil
}

func (s *PenaltyService) ListRules(ctx context.Context, principal model.Principal) ([]model.PenaltyRule, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	return s.store.ListRules(ctx)
}

type CreateRuleInput struct {
	Principal model.Principal
	Type      model.PenaltyType
	Amount    *decimal.Decimal
	Percent   *decimal.Decimal
	AutoApply bool
}

func (s *PenaltyService) CreateRule(ctx context.Context, input CreateRuleInput) (*model.PenaltyRule, error) {
	if !input.Principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if !validPenaltyType(input.Type) {
		return nil, fmt.Errorf("%w: unknown violation type", ErrInvalidInput)
	}
	if input.Amount == nil && input.Percent == nil {
		return nil, fmt.Errorf("%w: a rule needs an amount or a percent", ErrInvalidInput)
	}
	if input.Amount != nil && input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if input.Percent != nil && (input.Percent.LessThanOrEqual(decimal.Zero) || input.Percent.GreaterThan(decimal.NewFromInt(1))) {
		return nil, fmt.Errorf("%w: percent must be in (0, 1]", ErrInvalidInput)
	}

	return s.store.CreateRule(ctx, model.PenaltyRule{
		ViolationType: input.Type,
		Amount:        input.Amount,
		Percent:       input.Percent,
		AutoApply:     input.AutoApply,
	})
}

func (s *PenaltyService) DeactivateRule(ctx context.Context, principal model.Principal, id uuid.UUID) error {
	if !principal.IsAdmin() {
		return ErrPermissionDenied
	}
	return mapStoreError(s.store.DeactivateRule(ctx, id))
}

func validPenaltyType(t model.PenaltyType) bool {
	switch t {
	case model.PenaltyTypeLateInstallation,
		model.PenaltyTypeQualityIssue,
		model.PenaltyTypeCommunicationFailure,
		model.PenaltyTypeCancellation:
		return true
	}
	return false
}

func violationFingerprint(violation model.OverdueInstallation) string {
	return fmt.Sprintf("%s:%s:%s",
		violation.RequestID,
		model.PenaltyTypeLateInstallation,
		violation.Deadline.Format("2006-01-02"))
}

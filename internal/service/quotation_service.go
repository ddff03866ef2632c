package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sunfin/quote-engine/internal/config"
	"github.com/sunfin/quote-engine/internal/finance"
	"github.com/sunfin/quote-engine/internal/model"
)

// QuotationStore is the persistence surface for quotations, selection and
// invoices. Implemented by repository.QuotationRepository.
type QuotationStore interface {
	Create(ctx context.Context, quote model.ContractorQuote) (*model.ContractorQuote, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ContractorQuote, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ContractorQuote, error)
	UpdateReview(ctx context.Context, quote model.ContractorQuote) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	Select(ctx context.Context, requestID, quotationID uuid.UUID, invoice model.Invoice) (*model.Invoice, error)
	Unselect(ctx context.Context, requestID, quotationID uuid.UUID) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
}

// RequestReader is the slice of the request store the quotation service needs
// for ownership and assignment checks.
type RequestReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.QuoteRequest, error)
	GetAssignmentForContractor(ctx context.Context, requestID, contractorID uuid.UUID) (*model.ContractorQuoteAssignment, error)
}

type QuotationService struct {
	store    QuotationStore
	requests RequestReader
	rates    finance.RateSet
	ttl      time.Duration
}

func NewQuotationService(store QuotationStore, requests RequestReader, cfg *config.Config) (*QuotationService, error) {
	rates, err := ratesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &QuotationService{
		store:    store,
		requests: requests,
		rates:    rates,
		ttl:      cfg.Quotes.QuotationTTL,
	}, nil
}

func ratesFromConfig(cfg *config.Config) (finance.RateSet, error) {
	commission, err := decimal.NewFromString(cfg.Quotes.CommissionRate)
	if err != nil {
		return finance.RateSet{}, fmt.Errorf("parse QUOTES_COMMISSION_RATE: %w", err)
	}
	overprice, err := decimal.NewFromString(cfg.Quotes.OverpriceRate)
	if err != nil {
		return finance.RateSet{}, fmt.Errorf("parse QUOTES_OVERPRICE_RATE: %w", err)
	}
	vat, err := decimal.NewFromString(cfg.Quotes.VATRate)
	if err != nil {
		return finance.RateSet{}, fmt.Errorf("parse QUOTES_VAT_RATE: %w", err)
	}
	return finance.RateSet{
		CommissionRate: commission,
		OverpriceRate:  overprice,
		VATRate:        vat,
	}, nil
}

type SubmitLineItem struct {
	Description string
	Units       decimal.Decimal
	UnitPrice   decimal.Decimal
}

type SubmitQuotationInput struct {
	Principal        model.Principal
	RequestID        uuid.UUID
	SystemSpecs      json.RawMessage
	WarrantyTerms    string
	MaintenanceTerms string
	LineItems        []SubmitLineItem
}

// Submit creates a quotation for a contractor holding an accepted assignment.
// All financial fields are derived server-side; contractor-supplied totals
// are ignored by design of the API shape.
func (s *QuotationService) Submit(ctx context.Context, input SubmitQuotationInput) (*model.ContractorQuote, error) {
	if !input.Principal.IsContractor() {
		return nil, ErrPermissionDenied
	}
	if len(input.LineItems) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrInvalidInput)
	}
	if len(input.SystemSpecs) == 0 {
		return nil, fmt.Errorf("%w: system_specs are required", ErrInvalidInput)
	}
	if input.WarrantyTerms == "" || input.MaintenanceTerms == "" {
		return nil, fmt.Errorf("%w: warranty and maintenance terms are required", ErrInvalidInput)
	}
	for _, item := range input.LineItems {
		if item.Description == "" {
			return nil, fmt.Errorf("%w: line item description is required", ErrInvalidInput)
		}
		if item.Units.LessThanOrEqual(decimal.Zero) || item.UnitPrice.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: line item units and unit_price must be positive", ErrInvalidInput)
		}
	}

	req, err := s.requests.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if req.Status != model.RequestStatusContractorsSelected && req.Status != model.RequestStatusQuotesReceived {
		return nil, fmt.Errorf("%w: request does not accept quotations in status %s", ErrConflict, req.Status)
	}

	assignment, err := s.requests.GetAssignmentForContractor(ctx, input.RequestID, input.Principal.UserID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if assignment.Status != model.AssignmentStatusAccepted {
		return nil, fmt.Errorf("%w: assignment must be accepted before submitting", ErrPermissionDenied)
	}

	items := make([]finance.LineItemInput, 0, len(input.LineItems))
	for _, item := range input.LineItems {
		items = append(items, finance.LineItemInput{
			Description: item.Description,
			Units:       item.Units,
			UnitPrice:   item.UnitPrice,
		})
	}
	breakdown, lines := finance.ComputeQuote(items, s.rates)

	quote := model.ContractorQuote{
		RequestID:        input.RequestID,
		ContractorID:     input.Principal.UserID,
		BasePrice:        breakdown.TotalPrice,
		PricePerKWp:      pricePerKWp(breakdown.TotalPrice, req.SystemSizeKWp),
		SystemSpecs:      input.SystemSpecs,
		WarrantyTerms:    input.WarrantyTerms,
		MaintenanceTerms: input.MaintenanceTerms,
		TotalPrice:       breakdown.TotalPrice,
		Commission:       breakdown.Commission,
		Overprice:        breakdown.Overprice,
		UserPrice:        breakdown.UserPrice,
		VendorNet:        breakdown.VendorNet,
		CommissionRate:   s.rates.CommissionRate,
		OverpriceRate:    s.rates.OverpriceRate,
		VATRate:          s.rates.VATRate,
		ExpiresAt:        time.Now().Add(s.ttl),
	}
	for _, line := range lines {
		quote.LineItems = append(quote.LineItems, model.QuotationLineItem{
			Description: line.Description,
			Units:       line.Units,
			UnitPrice:   line.UnitPrice,
			Total:       line.Total,
			Commission:  line.Commission,
			Overprice:   line.Overprice,
			UserPrice:   line.UserPrice,
			VendorNet:   line.VendorNet,
		})
	}

	saved, err := s.store.Create(ctx, quote)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return saved, nil
}

func pricePerKWp(total, systemSize decimal.Decimal) decimal.Decimal {
	if systemSize.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return total.DivRound(systemSize, 2)
}

// Get applies lazy expiry, then enforces visibility: requesters only see
// approved quotations on their own request, contractors only their own.
func (s *QuotationService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.ContractorQuote, error) {
	quote, err := s.getFresh(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case principal.IsAdmin():
		return quote, nil
	case principal.IsContractor():
		if quote.ContractorID != principal.UserID {
			return nil, ErrNotFound
		}
		return quote, nil
	default:
		req, err := s.requests.GetByID(ctx, quote.RequestID)
		if err != nil {
			return nil, mapStoreError(err)
		}
		if req.RequesterID != principal.UserID || quote.AdminStatus != model.QuotationStatusApproved {
			return nil, ErrNotFound
		}
		return quote, nil
	}
}

// ListByRequest returns the request's quotations visible to the caller.
func (s *QuotationService) ListByRequest(ctx context.Context, principal model.Principal, requestID uuid.UUID) ([]model.ContractorQuote, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	isOwner := req.RequesterID == principal.UserID
	if !principal.IsAdmin() && !isOwner && !principal.IsContractor() {
		return nil, ErrNotFound
	}

	quotes, err := s.store.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	visible := make([]model.ContractorQuote, 0, len(quotes))
	for _, quote := range quotes {
		if quote.Expired(now) {
			if err := s.store.MarkExpired(ctx, quote.ID); err != nil {
				return nil, err
			}
			refreshed, err := s.store.GetByID(ctx, quote.ID)
			if err != nil {
				return nil, mapStoreError(err)
			}
			quote = *refreshed
		}

		switch {
		case principal.IsAdmin():
			visible = append(visible, quote)
		case principal.IsContractor() && quote.ContractorID == principal.UserID:
			visible = append(visible, quote)
		case isOwner && quote.AdminStatus == model.QuotationStatusApproved:
			visible = append(visible, quote)
		}
	}
	return visible, nil
}

type ReviewDecision string

const (
	ReviewDecisionApproved       ReviewDecision = "approved"
	ReviewDecisionRejected       ReviewDecision = "rejected"
	ReviewDecisionRevisionNeeded ReviewDecision = "revision_needed"
)

type ReviewQuotationInput struct {
	Principal     model.Principal
	QuotationID   uuid.UUID
	Decision      ReviewDecision
	Notes         string
	PriceOverride *decimal.Decimal
}

// Review records the admin decision. A price override recomputes the derived
// fields under the quotation's persisted rate snapshot, never the current
// rules, and requires a justification note.
func (s *QuotationService) Review(ctx context.Context, input ReviewQuotationInput) (*model.ContractorQuote, error) {
	if !input.Principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	quote, err := s.getFresh(ctx, input.QuotationID)
	if err != nil {
		return nil, err
	}

	switch input.Decision {
	case ReviewDecisionApproved:
		quote.AdminStatus = model.QuotationStatusApproved
		if input.Notes != "" {
			quote.ReviewNotes = &input.Notes
		}
		if input.PriceOverride != nil {
			if input.Notes == "" {
				return nil, fmt.Errorf("%w: a price override requires a justification note", ErrInvalidInput)
			}
			if input.PriceOverride.LessThanOrEqual(decimal.Zero) {
				return nil, fmt.Errorf("%w: price override must be positive", ErrInvalidInput)
			}
			applyPriceOverride(quote, *input.PriceOverride)
		}
	case ReviewDecisionRejected:
		if input.Notes == "" {
			return nil, fmt.Errorf("%w: rejection requires a reason", ErrInvalidInput)
		}
		quote.AdminStatus = model.QuotationStatusRejected
		quote.RejectionReason = &input.Notes
	case ReviewDecisionRevisionNeeded:
		if input.Notes == "" {
			return nil, fmt.Errorf("%w: a revision request requires notes", ErrInvalidInput)
		}
		quote.AdminStatus = model.QuotationStatusRevisionNeeded
		quote.ReviewNotes = &input.Notes
	default:
		return nil, fmt.Errorf("%w: unknown review decision", ErrInvalidInput)
	}

	if err := s.store.UpdateReview(ctx, *quote); err != nil {
		return nil, mapStoreError(err)
	}
	return s.store.GetByID(ctx, input.QuotationID)
}

func applyPriceOverride(quote *model.ContractorQuote, basePrice decimal.Decimal) {
	snapshot := finance.RateSet{
		CommissionRate: quote.CommissionRate,
		OverpriceRate:  quote.OverpriceRate,
		VATRate:        quote.VATRate,
	}
	breakdown, _ := finance.ComputeQuote([]finance.LineItemInput{
		{Units: decimal.NewFromInt(1), UnitPrice: basePrice},
	}, snapshot)

	quote.BasePrice = basePrice
	quote.TotalPrice = breakdown.TotalPrice
	quote.Commission = breakdown.Commission
	quote.Overprice = breakdown.Overprice
	quote.UserPrice = breakdown.UserPrice
	quote.VendorNet = breakdown.VendorNet
}

// Select settles the request on the chosen quotation: the caller must own the
// request and the quotation must be approved and unexpired. Sibling rejection,
// the request transition and invoice generation happen atomically; a
// concurrent selection loses with a conflict.
func (s *QuotationService) Select(ctx context.Context, principal model.Principal, quotationID uuid.UUID) (*model.Invoice, error) {
	quote, err := s.getFresh(ctx, quotationID)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.GetByID(ctx, quote.RequestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if req.RequesterID != principal.UserID {
		return nil, ErrNotFound
	}
	if quote.AdminStatus != model.QuotationStatusApproved {
		return nil, fmt.Errorf("%w: only approved quotations can be selected", ErrConflict)
	}

	snapshot := finance.RateSet{
		CommissionRate: quote.CommissionRate,
		OverpriceRate:  quote.OverpriceRate,
		VATRate:        quote.VATRate,
	}
	breakdown := finance.ComputeInvoice(finance.QuoteBreakdown{
		TotalPrice: quote.TotalPrice,
		Commission: quote.Commission,
		Overprice:  quote.Overprice,
		UserPrice:  quote.UserPrice,
		VendorNet:  quote.VendorNet,
	}, decimal.Zero, snapshot)

	invoice := model.Invoice{
		InvoiceNumber:    buildInvoiceNumber(quote.ID),
		QuotationID:      quote.ID,
		RequestID:        quote.RequestID,
		ContractorID:     quote.ContractorID,
		GrossAmount:      breakdown.GrossAmount,
		OverpriceAmount:  breakdown.OverpriceAmount,
		CommissionAmount: breakdown.CommissionAmount,
		PenaltyAmount:    breakdown.PenaltyAmount,
		NetAmount:        breakdown.NetAmount,
		VATRate:          quote.VATRate,
		VATAmount:        breakdown.VATAmount,
		TotalPayable:     breakdown.TotalPayable,
	}

	saved, err := s.store.Select(ctx, quote.RequestID, quote.ID, invoice)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return saved, nil
}

// Unselect is the admin override reversing a selection; it explicitly
// re-opens the sibling quotations that the selection rejected.
func (s *QuotationService) Unselect(ctx context.Context, principal model.Principal, quotationID uuid.UUID) error {
	if !principal.IsAdmin() {
		return ErrPermissionDenied
	}
	quote, err := s.store.GetByID(ctx, quotationID)
	if err != nil {
		return mapStoreError(err)
	}
	if !quote.IsSelected {
		return fmt.Errorf("%w: quotation is not selected", ErrConflict)
	}
	return mapStoreError(s.store.Unselect(ctx, quote.RequestID, quotationID))
}

func (s *QuotationService) GetInvoice(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if principal.IsAdmin() || invoice.ContractorID == principal.UserID {
		return invoice, nil
	}

	req, err := s.requests.GetByID(ctx, invoice.RequestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if req.RequesterID != principal.UserID {
		return nil, ErrNotFound
	}
	return invoice, nil
}

// getFresh loads a quotation and applies expiry lazily: a quotation past its
// expiry flips to rejected the first time it is read or acted upon.
func (s *QuotationService) getFresh(ctx context.Context, id uuid.UUID) (*model.ContractorQuote, error) {
	quote, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if quote.Expired(time.Now()) {
		if err := s.store.MarkExpired(ctx, id); err != nil {
			return nil, err
		}
		quote, err = s.store.GetByID(ctx, id)
		if err != nil {
			return nil, mapStoreError(err)
		}
	}
	return quote, nil
}

func buildInvoiceNumber(quotationID uuid.UUID) string {
	return fmt.Sprintf("INV-%s-%s", time.Now().Format("20060102"), quotationID.String()[:8])
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sunfin/quote-engine/internal/model"
)

const quoteColumns = `
	id, request_id, contractor_id, base_price, price_per_kwp, system_specs,
	warranty_terms, maintenance_terms, total_price, commission, overprice,
	user_price, vendor_net, commission_rate, overprice_rate, vat_rate,
	admin_status, review_notes, rejection_reason, is_selected, expires_at,
	created_at, updated_at`

const lineItemColumns = `
	id, quotation_id, description, units, unit_price, total, commission,
	overprice, user_price, vendor_net`

const invoiceColumns = `
	id, invoice_number, quotation_id, request_id, contractor_id, gross_amount,
	overprice_amount, commission_amount, penalty_amount, net_amount, vat_rate,
	vat_amount, total_payable, created_at`

const expiredReason = "quotation expired"
const supersededReason = "superseded by selection"

type QuotationRepository struct {
	db *gorm.DB
}

func NewQuotationRepository(db *gorm.DB) *QuotationRepository {
	return &QuotationRepository{db: db}
}

// Create inserts the quotation with its line items and, for the first
// quotation on a request, advances the request to QUOTES_RECEIVED.
func (r *QuotationRepository) Create(ctx context.Context, quote model.ContractorQuote) (*model.ContractorQuote, error) {
	var saved model.ContractorQuote
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Raw(`
			INSERT INTO contractor_quotes (
				request_id, contractor_id, base_price, price_per_kwp,
				system_specs, warranty_terms, maintenance_terms,
				total_price, commission, overprice, user_price, vendor_net,
				commission_rate, overprice_rate, vat_rate,
				admin_status, expires_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING `+quoteColumns,
			quote.RequestID,
			quote.ContractorID,
			quote.BasePrice,
			quote.PricePerKWp,
			quote.SystemSpecs,
			quote.WarrantyTerms,
			quote.MaintenanceTerms,
			quote.TotalPrice,
			quote.Commission,
			quote.Overprice,
			quote.UserPrice,
			quote.VendorNet,
			quote.CommissionRate,
			quote.OverpriceRate,
			quote.VATRate,
			model.QuotationStatusPendingReview,
			quote.ExpiresAt,
		).Scan(&saved).Error
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}

		for _, item := range quote.LineItems {
			var savedItem model.QuotationLineItem
			err := tx.Raw(`
				INSERT INTO quotation_line_items (
					quotation_id, description, units, unit_price,
					total, commission, overprice, user_price, vendor_net
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING `+lineItemColumns,
				saved.ID,
				item.Description,
				item.Units,
				item.UnitPrice,
				item.Total,
				item.Commission,
				item.Overprice,
				item.UserPrice,
				item.VendorNet,
			).Scan(&savedItem).Error
			if err != nil {
				return err
			}
			saved.LineItems = append(saved.LineItems, savedItem)
		}

		// First quotation moves the request forward; later ones are a no-op.
		return tx.Exec(`
			UPDATE quote_requests
			SET status = ?, updated_at = NOW()
			WHERE id = ? AND status = ?
		`, model.RequestStatusQuotesReceived, quote.RequestID, model.RequestStatusContractorsSelected).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *QuotationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ContractorQuote, error) {
	var quote model.ContractorQuote
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+quoteColumns+`
		FROM contractor_quotes
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&quote).Error
	if err != nil {
		return nil, err
	}
	if quote.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}

	if err := r.loadLineItems(ctx, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *QuotationRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ContractorQuote, error) {
	var quotes []model.ContractorQuote
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+quoteColumns+`
		FROM contractor_quotes
		WHERE request_id = ?
		ORDER BY created_at ASC
	`, requestID).Scan(&quotes).Error
	if err != nil {
		return nil, err
	}
	for i := range quotes {
		if err := r.loadLineItems(ctx, &quotes[i]); err != nil {
			return nil, err
		}
	}
	return quotes, nil
}

func (r *QuotationRepository) loadLineItems(ctx context.Context, quote *model.ContractorQuote) error {
	return r.db.WithContext(ctx).Raw(`
		SELECT `+lineItemColumns+`
		FROM quotation_line_items
		WHERE quotation_id = ?
		ORDER BY id
	`, quote.ID).Scan(&quote.LineItems).Error
}

// UpdateReview stores the admin decision. Only quotations still awaiting a
// decision can be reviewed.
func (r *QuotationRepository) UpdateReview(ctx context.Context, quote model.ContractorQuote) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE contractor_quotes
		SET admin_status = ?, review_notes = ?, rejection_reason = ?,
			base_price = ?, total_price = ?, commission = ?, overprice = ?,
			user_price = ?, vendor_net = ?, updated_at = NOW()
		WHERE id = ? AND admin_status IN (?, ?)
	`,
		quote.AdminStatus,
		quote.ReviewNotes,
		quote.RejectionReason,
		quote.BasePrice,
		quote.TotalPrice,
		quote.Commission,
		quote.Overprice,
		quote.UserPrice,
		quote.VendorNet,
		quote.ID,
		model.QuotationStatusPendingReview,
		model.QuotationStatusRevisionNeeded,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkExpired transitions a quotation past its expiry to REJECTED. Applied
// lazily on read; guarded so a quotation selected in the meantime survives.
func (r *QuotationRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE contractor_quotes
		SET admin_status = ?, rejection_reason = ?, updated_at = NOW()
		WHERE id = ?
			AND expires_at < NOW()
			AND NOT is_selected
			AND admin_status IN (?, ?)
	`, model.QuotationStatusRejected, expiredReason, id,
		model.QuotationStatusPendingReview, model.QuotationStatusApproved).Error
}

// Select is the settlement transaction: it locks all quotations of the
// request, verifies no sibling is already selected, marks the chosen one,
// rejects approved siblings, advances the request and inserts the invoice.
// Everything succeeds or everything rolls back.
func (r *QuotationRepository) Select(
	ctx context.Context,
	requestID, quotationID uuid.UUID,
	invoice model.Invoice,
) (*model.Invoice, error) {
	var saved model.Invoice
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []struct {
			ID          uuid.UUID
			AdminStatus model.QuotationStatus
			IsSelected  bool
			ExpiresAt   time.Time
		}
		err := tx.Raw(`
			SELECT id, admin_status, is_selected, expires_at
			FROM contractor_quotes
			WHERE request_id = ?
			ORDER BY id
			FOR UPDATE
		`, requestID).Scan(&rows).Error
		if err != nil {
			return err
		}

		var chosen *struct {
			ID          uuid.UUID
			AdminStatus model.QuotationStatus
			IsSelected  bool
			ExpiresAt   time.Time
		}
		for i := range rows {
			if rows[i].IsSelected {
				return ErrConflict
			}
			if rows[i].ID == quotationID {
				chosen = &rows[i]
			}
		}
		if chosen == nil {
			return gorm.ErrRecordNotFound
		}
		if chosen.AdminStatus != model.QuotationStatusApproved {
			return ErrConflict
		}
		if time.Now().After(chosen.ExpiresAt) {
			return ErrConflict
		}

		if err := tx.Exec(`
			UPDATE contractor_quotes
			SET is_selected = TRUE, updated_at = NOW()
			WHERE id = ?
		`, quotationID).Error; err != nil {
			return err
		}

		if err := tx.Exec(`
			UPDATE contractor_quotes
			SET admin_status = ?, rejection_reason = ?, updated_at = NOW()
			WHERE request_id = ? AND id <> ? AND admin_status = ?
		`, model.QuotationStatusRejected, supersededReason,
			requestID, quotationID, model.QuotationStatusApproved).Error; err != nil {
			return err
		}

		result := tx.Exec(`
			UPDATE quote_requests
			SET status = ?, updated_at = NOW()
			WHERE id = ? AND status = ?
		`, model.RequestStatusQuoteSelected, requestID, model.RequestStatusQuotesReceived)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		return tx.Raw(`
			INSERT INTO invoices (
				invoice_number, quotation_id, request_id, contractor_id,
				gross_amount, overprice_amount, commission_amount, penalty_amount,
				net_amount, vat_rate, vat_amount, total_payable
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING `+invoiceColumns,
			invoice.InvoiceNumber,
			invoice.QuotationID,
			invoice.RequestID,
			invoice.ContractorID,
			invoice.GrossAmount,
			invoice.OverpriceAmount,
			invoice.CommissionAmount,
			invoice.PenaltyAmount,
			invoice.NetAmount,
			invoice.VATRate,
			invoice.VATAmount,
			invoice.TotalPayable,
		).Scan(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Unselect is the admin override for an irreversible selection: it clears the
// selection, re-opens the siblings that were rejected by it, moves the request
// back and drops the generated invoice.
func (r *QuotationRepository) Unselect(ctx context.Context, requestID, quotationID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(`
			UPDATE contractor_quotes
			SET is_selected = FALSE, updated_at = NOW()
			WHERE id = ? AND request_id = ? AND is_selected
		`, quotationID, requestID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		if err := tx.Exec(`
			UPDATE contractor_quotes
			SET admin_status = ?, rejection_reason = NULL, updated_at = NOW()
			WHERE request_id = ? AND admin_status = ? AND rejection_reason = ?
		`, model.QuotationStatusApproved, requestID,
			model.QuotationStatusRejected, supersededReason).Error; err != nil {
			return err
		}

		if err := tx.Exec(`
			DELETE FROM invoices WHERE quotation_id = ?
		`, quotationID).Error; err != nil {
			return err
		}

		result = tx.Exec(`
			UPDATE quote_requests
			SET status = ?, updated_at = NOW()
			WHERE id = ? AND status = ?
		`, model.RequestStatusQuotesReceived, requestID, model.RequestStatusQuoteSelected)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
}

func (r *QuotationRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &invoice, nil
}

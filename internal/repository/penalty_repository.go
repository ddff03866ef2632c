package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sunfin/quote-engine/internal/model"
)

const penaltyColumns = `
	id, contractor_id, request_id, quotation_id, rule_id, type, amount,
	contractor_share, platform_share, status, description, evidence,
	fingerprint, applied_by, dispute_reason, resolution, resolution_notes,
	resolved_by, resolved_at, created_at`

const penaltyRuleColumns = `
	id, violation_type, amount, percent, auto_apply, active, version, created_at`

type PenaltyRepository struct {
	db *gorm.DB
}

func NewPenaltyRepository(db *gorm.DB) *PenaltyRepository {
	return &PenaltyRepository{db: db}
}

// Apply inserts the penalty and debits the contractor wallet in one
// transaction. A repeated fingerprint returns ErrDuplicate without touching
// the wallet, which makes automatic detection idempotent.
func (r *PenaltyRepository) Apply(ctx context.Context, penalty model.Penalty) (*model.Penalty, error) {
	var saved model.Penalty
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Raw(`
			INSERT INTO penalties (
				contractor_id, request_id, quotation_id, rule_id, type, amount,
				contractor_share, platform_share, status, description, evidence,
				fingerprint, applied_by
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING `+penaltyColumns,
			penalty.ContractorID,
			penalty.RequestID,
			penalty.QuotationID,
			penalty.RuleID,
			penalty.Type,
			penalty.Amount,
			penalty.ContractorShare,
			penalty.PlatformShare,
			model.PenaltyStatusApplied,
			penalty.Description,
			penalty.Evidence,
			penalty.Fingerprint,
			penalty.AppliedBy,
		).Scan(&saved).Error
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}

		_, err = applyWalletEntry(
			tx,
			penalty.ContractorID,
			model.WalletTxPenalty,
			penalty.ContractorShare.Neg(),
			saved.ID.String(),
			"penalty: "+string(penalty.Type),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PenaltyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Penalty, error) {
	var penalty model.Penalty
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+penaltyColumns+`
		FROM penalties
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&penalty).Error
	if err != nil {
		return nil, err
	}
	if penalty.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &penalty, nil
}

// Dispute records the contractor's objection. Only applied penalties can be
// disputed; anything else is a conflict.
func (r *PenaltyRepository) Dispute(ctx context.Context, id uuid.UUID, reason string) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE penalties
		SET status = ?, dispute_reason = ?
		WHERE id = ? AND status = ?
	`, model.PenaltyStatusDisputed, reason, id, model.PenaltyStatusApplied)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Resolve settles a disputed penalty. Waiving reverses the wallet debit with
// a compensating credit; modifying adjusts via a difference entry. The
// original ledger rows are never rewritten.
func (r *PenaltyRepository) Resolve(
	ctx context.Context,
	id uuid.UUID,
	resolution model.PenaltyResolution,
	notes string,
	resolvedBy uuid.UUID,
	newAmount *decimal.Decimal,
) (*model.Penalty, error) {
	var saved model.Penalty
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var penalty model.Penalty
		err := tx.Raw(`
			SELECT `+penaltyColumns+`
			FROM penalties
			WHERE id = ?
			FOR UPDATE
		`, id).Scan(&penalty).Error
		if err != nil {
			return err
		}
		if penalty.ID == uuid.Nil {
			return gorm.ErrRecordNotFound
		}
		if penalty.Status != model.PenaltyStatusDisputed {
			return ErrConflict
		}

		status := model.PenaltyStatusApplied
		amount := penalty.Amount
		contractorShare := penalty.ContractorShare

		switch resolution {
		case model.PenaltyResolutionUphold:
			// no ledger change

		case model.PenaltyResolutionWaive:
			status = model.PenaltyStatusWaived
			_, err := applyWalletEntry(
				tx,
				penalty.ContractorID,
				model.WalletTxPenaltyReversal,
				penalty.ContractorShare,
				penalty.ID.String(),
				"penalty waived: "+string(penalty.Type),
			)
			if err != nil {
				return err
			}

		case model.PenaltyResolutionModify:
			if newAmount == nil {
				return gorm.ErrInvalidData
			}
			amount = *newAmount
			contractorShare = *newAmount
			delta := penalty.ContractorShare.Sub(contractorShare)
			if !delta.IsZero() {
				_, err := applyWalletEntry(
					tx,
					penalty.ContractorID,
					model.WalletTxAdjustment,
					delta,
					penalty.ID.String(),
					"penalty modified: "+string(penalty.Type),
				)
				if err != nil {
					return err
				}
			}

		default:
			return gorm.ErrInvalidData
		}

		return tx.Raw(`
			UPDATE penalties
			SET status = ?, amount = ?, contractor_share = ?, resolution = ?,
				resolution_notes = ?, resolved_by = ?, resolved_at = NOW()
			WHERE id = ?
			RETURNING `+penaltyColumns,
			status, amount, contractorShare, resolution, notes, resolvedBy, id,
		).Scan(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PenaltyRepository) ListByContractor(ctx context.Context, contractorID uuid.UUID) ([]model.Penalty, error) {
	var penalties []model.Penalty
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+penaltyColumns+`
		FROM penalties
		WHERE contractor_id = ?
		ORDER BY created_at DESC
	`, contractorID).Scan(&penalties).Error
	if err != nil {
		return nil, err
	}
	return penalties, nil
}

func (r *PenaltyRepository) Statistics(ctx context.Context, from, to time.Time) (*model.PenaltyStatistics, error) {
	stats := &model.PenaltyStatistics{
		PeriodStart: from,
		PeriodEnd:   to,
		TotalAmount: decimal.Zero,
	}

	var totals struct {
		TotalCount    int64
		TotalAmount   decimal.Decimal
		DisputedCount int64
		WaivedCount   int64
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_count,
			COALESCE(SUM(amount), 0) AS total_amount,
			COUNT(*) FILTER (WHERE status = 'DISPUTED') AS disputed_count,
			COUNT(*) FILTER (WHERE status = 'WAIVED') AS waived_count
		FROM penalties
		WHERE created_at >= ? AND created_at < ?
	`, from, to).Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	stats.TotalCount = totals.TotalCount
	stats.TotalAmount = totals.TotalAmount
	stats.DisputedCount = totals.DisputedCount
	stats.WaivedCount = totals.WaivedCount

	err = r.db.WithContext(ctx).Raw(`
		SELECT type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount
		FROM penalties
		WHERE created_at >= ? AND created_at < ?
		GROUP BY type
		ORDER BY type
	`, from, to).Scan(&stats.ByType).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListOverdueInstallations finds settled requests whose installation deadline
// passed without a completion record, joined to the selected quotation.
func (r *PenaltyRepository) ListOverdueInstallations(ctx context.Context, now time.Time) ([]model.OverdueInstallation, error) {
	var candidates []model.OverdueInstallation
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			qr.id AS request_id,
			cq.id AS quotation_id,
			cq.contractor_id,
			cq.vendor_net,
			qr.installation_deadline AS deadline
		FROM quote_requests qr
		JOIN contractor_quotes cq ON cq.request_id = qr.id AND cq.is_selected
		WHERE qr.status = ?
			AND qr.completed_at IS NULL
			AND qr.installation_deadline IS NOT NULL
			AND qr.installation_deadline < ?
		ORDER BY qr.installation_deadline ASC
	`, model.RequestStatusQuoteSelected, now).Scan(&candidates).Error
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *PenaltyRepository) GetActiveRule(ctx context.Context, violationType model.PenaltyType) (*model.PenaltyRule, error) {
	var rule model.PenaltyRule
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+penaltyRuleColumns+`
		FROM penalty_rules
		WHERE violation_type = ? AND active
		LIMIT 1
	`, violationType).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &rule, nil
}

func (r *PenaltyRepository) ListRules(ctx context.Context) ([]model.PenaltyRule, error) {
	var rules []model.PenaltyRule
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+penaltyRuleColumns+`
		FROM penalty_rules
		ORDER BY violation_type, version DESC
	`).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateRule deactivates the current active rule for the violation type and
// inserts the replacement with a bumped version. Old versions stay for audit.
func (r *PenaltyRepository) CreateRule(ctx context.Context, rule model.PenaltyRule) (*model.PenaltyRule, error) {
	var saved model.PenaltyRule
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previousVersion int
		err := tx.Raw(`
			SELECT COALESCE(MAX(version), 0)
			FROM penalty_rules
			WHERE violation_type = ?
		`, rule.ViolationType).Scan(&previousVersion).Error
		if err != nil {
			return err
		}

		if err := tx.Exec(`
			UPDATE penalty_rules
			SET active = FALSE
			WHERE violation_type = ? AND active
		`, rule.ViolationType).Error; err != nil {
			return err
		}

		return tx.Raw(`
			INSERT INTO penalty_rules (violation_type, amount, percent, auto_apply, active, version)
			VALUES (?, ?, ?, ?, TRUE, ?)
			RETURNING `+penaltyRuleColumns,
			rule.ViolationType, rule.Amount, rule.Percent, rule.AutoApply, previousVersion+1,
		).Scan(&saved).Error
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PenaltyRepository) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE penalty_rules
		SET active = FALSE
		WHERE id = ? AND active
	`, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

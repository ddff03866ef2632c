package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sunfin/quote-engine/internal/model"
)

const walletColumns = `id, contractor_id, balance, created_at, updated_at`

const walletTxColumns = `
	id, wallet_id, type, amount, balance_before, balance_after, reference,
	description, created_at`

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByContractor(ctx context.Context, contractorID uuid.UUID) (*model.ContractorWallet, error) {
	var wallet model.ContractorWallet
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+walletColumns+`
		FROM contractor_wallets
		WHERE contractor_id = ?
		LIMIT 1
	`, contractorID).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &wallet, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]model.WalletTransaction, error) {
	var transactions []model.WalletTransaction
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+walletTxColumns+`
		FROM wallet_transactions
		WHERE wallet_id = ?
		ORDER BY created_at ASC, id ASC
	`, walletID).Scan(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// applyWalletEntry serializes a balance change against one wallet. The wallet
// row is created on first use and locked for the duration of the enclosing
// transaction; the ledger entry captures balances at write time.
func applyWalletEntry(
	tx *gorm.DB,
	contractorID uuid.UUID,
	txType model.WalletTransactionType,
	amount decimal.Decimal,
	reference, description string,
) (*model.WalletTransaction, error) {
	if err := tx.Exec(`
		INSERT INTO contractor_wallets (contractor_id)
		VALUES (?)
		ON CONFLICT (contractor_id) DO NOTHING
	`, contractorID).Error; err != nil {
		return nil, err
	}

	var wallet model.ContractorWallet
	if err := tx.Raw(`
		SELECT `+walletColumns+`
		FROM contractor_wallets
		WHERE contractor_id = ?
		FOR UPDATE
	`, contractorID).Scan(&wallet).Error; err != nil {
		return nil, err
	}
	if wallet.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}

	balanceAfter := wallet.Balance.Add(amount)

	var entry model.WalletTransaction
	if err := tx.Raw(`
		INSERT INTO wallet_transactions (
			wallet_id, type, amount, balance_before, balance_after,
			reference, description
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+walletTxColumns,
		wallet.ID, txType, amount, wallet.Balance, balanceAfter,
		reference, description,
	).Scan(&entry).Error; err != nil {
		return nil, err
	}

	if err := tx.Exec(`
		UPDATE contractor_wallets
		SET balance = ?, updated_at = NOW()
		WHERE id = ?
	`, balanceAfter, wallet.ID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

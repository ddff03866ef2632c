package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletTransactionType string

const (
	WalletTxCommission      WalletTransactionType = "COMMISSION"
	WalletTxPenalty         WalletTransactionType = "PENALTY"
	WalletTxPenaltyReversal WalletTransactionType = "PENALTY_REVERSAL"
	WalletTxPayout          WalletTransactionType = "PAYOUT"
	WalletTxAdjustment      WalletTransactionType = "ADJUSTMENT"
)

type ContractorWallet struct {
	ID           uuid.UUID       `json:"id"`
	ContractorID uuid.UUID       `json:"contractor_id"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// WalletTransaction is an append-only ledger entry. Balances are captured at
// write time; balance_after must equal balance_before + amount for every row.
// History is never mutated: corrections are made with compensating entries.
type WalletTransaction struct {
	ID            uuid.UUID             `json:"id"`
	WalletID      uuid.UUID             `json:"wallet_id"`
	Type          WalletTransactionType `json:"type"`
	Amount        decimal.Decimal       `json:"amount"` // signed: positive credit, negative debit
	BalanceBefore decimal.Decimal       `json:"balance_before"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	Reference     string                `json:"reference"`
	Description   string                `json:"description"`
	CreatedAt     time.Time             `json:"created_at"`
}

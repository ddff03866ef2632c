package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'request_status') THEN
			CREATE TYPE request_status AS ENUM (
				'PENDING', 'CONTRACTORS_SELECTED', 'QUOTES_RECEIVED',
				'QUOTE_SELECTED', 'COMPLETED', 'CANCELLED'
			);
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'assignment_status') THEN
			CREATE TYPE assignment_status AS ENUM ('ASSIGNED', 'VIEWED', 'ACCEPTED', 'REJECTED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'quotation_status') THEN
			CREATE TYPE quotation_status AS ENUM ('PENDING_REVIEW', 'APPROVED', 'REJECTED', 'REVISION_NEEDED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'penalty_status') THEN
			CREATE TYPE penalty_status AS ENUM ('APPLIED', 'DISPUTED', 'WAIVED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS quote_requests (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		requester_id UUID NOT NULL,
		property_type VARCHAR(64) NOT NULL,
		address TEXT NOT NULL,
		city VARCHAR(128) NOT NULL,
		monthly_consumption_kwh NUMERIC(12,2) NOT NULL,
		system_size_kwp NUMERIC(8,2) NOT NULL,
		property_details JSONB,
		status request_status NOT NULL DEFAULT 'PENDING',
		penalty_acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
		installation_deadline TIMESTAMPTZ,
		cancellation_reason TEXT,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_quote_requests_requester ON quote_requests (requester_id);`,
	`CREATE INDEX IF NOT EXISTS idx_quote_requests_status ON quote_requests (status);`,
	`CREATE TABLE IF NOT EXISTS contractor_assignments (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		request_id UUID NOT NULL REFERENCES quote_requests(id),
		contractor_id UUID NOT NULL,
		status assignment_status NOT NULL DEFAULT 'ASSIGNED',
		notes TEXT,
		viewed_at TIMESTAMPTZ,
		responded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_assignment_request_contractor
		ON contractor_assignments (request_id, contractor_id);`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_contractor ON contractor_assignments (contractor_id);`,
	`CREATE TABLE IF NOT EXISTS contractor_quotes (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		request_id UUID NOT NULL REFERENCES quote_requests(id),
		contractor_id UUID NOT NULL,
		base_price NUMERIC(18,2) NOT NULL,
		price_per_kwp NUMERIC(18,2) NOT NULL,
		system_specs JSONB,
		warranty_terms TEXT NOT NULL,
		maintenance_terms TEXT NOT NULL,
		total_price NUMERIC(18,2) NOT NULL,
		commission NUMERIC(18,2) NOT NULL,
		overprice NUMERIC(18,2) NOT NULL,
		user_price NUMERIC(18,2) NOT NULL,
		vendor_net NUMERIC(18,2) NOT NULL,
		commission_rate NUMERIC(6,4) NOT NULL,
		overprice_rate NUMERIC(6,4) NOT NULL,
		vat_rate NUMERIC(6,4) NOT NULL,
		admin_status quotation_status NOT NULL DEFAULT 'PENDING_REVIEW',
		review_notes TEXT,
		rejection_reason TEXT,
		is_selected BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_quote_request_contractor
		ON contractor_quotes (request_id, contractor_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_quote_selected_per_request
		ON contractor_quotes (request_id) WHERE is_selected;`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_request ON contractor_quotes (request_id);`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_status ON contractor_quotes (admin_status);`,
	`CREATE TABLE IF NOT EXISTS quotation_line_items (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		quotation_id UUID NOT NULL REFERENCES contractor_quotes(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		units NUMERIC(12,3) NOT NULL,
		unit_price NUMERIC(18,2) NOT NULL,
		total NUMERIC(18,2) NOT NULL,
		commission NUMERIC(18,2) NOT NULL,
		overprice NUMERIC(18,2) NOT NULL,
		user_price NUMERIC(18,2) NOT NULL,
		vendor_net NUMERIC(18,2) NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_line_items_quotation ON quotation_line_items (quotation_id);`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		invoice_number VARCHAR(64) NOT NULL,
		quotation_id UUID NOT NULL REFERENCES contractor_quotes(id),
		request_id UUID NOT NULL REFERENCES quote_requests(id),
		contractor_id UUID NOT NULL,
		gross_amount NUMERIC(18,2) NOT NULL,
		overprice_amount NUMERIC(18,2) NOT NULL,
		commission_amount NUMERIC(18,2) NOT NULL,
		penalty_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
		net_amount NUMERIC(18,2) NOT NULL,
		vat_rate NUMERIC(6,4) NOT NULL,
		vat_amount NUMERIC(18,2) NOT NULL,
		total_payable NUMERIC(18,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_invoice_number ON invoices (invoice_number);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_invoice_quotation ON invoices (quotation_id);`,
	`CREATE TABLE IF NOT EXISTS contractor_wallets (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		contractor_id UUID NOT NULL,
		balance NUMERIC(18,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_wallet_contractor ON contractor_wallets (contractor_id);`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		wallet_id UUID NOT NULL REFERENCES contractor_wallets(id),
		type VARCHAR(32) NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		balance_before NUMERIC(18,2) NOT NULL,
		balance_after NUMERIC(18,2) NOT NULL,
		reference VARCHAR(128),
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_wallet_tx_balance CHECK (balance_after = balance_before + amount)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_tx_wallet ON wallet_transactions (wallet_id);`,
	`CREATE TABLE IF NOT EXISTS penalty_rules (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		violation_type VARCHAR(64) NOT NULL,
		amount NUMERIC(18,2),
		percent NUMERIC(6,4),
		auto_apply BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		version INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_penalty_rule_active
		ON penalty_rules (violation_type) WHERE active;`,
	`CREATE TABLE IF NOT EXISTS penalties (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		contractor_id UUID NOT NULL,
		request_id UUID NOT NULL REFERENCES quote_requests(id),
		quotation_id UUID REFERENCES contractor_quotes(id),
		rule_id UUID REFERENCES penalty_rules(id),
		type VARCHAR(64) NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		contractor_share NUMERIC(18,2) NOT NULL,
		platform_share NUMERIC(18,2) NOT NULL,
		status penalty_status NOT NULL DEFAULT 'APPLIED',
		description TEXT NOT NULL,
		evidence JSONB,
		fingerprint VARCHAR(160) NOT NULL,
		applied_by UUID,
		dispute_reason TEXT,
		resolution VARCHAR(16),
		resolution_notes TEXT,
		resolved_by UUID,
		resolved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_penalty_fingerprint ON penalties (fingerprint);`,
	`CREATE INDEX IF NOT EXISTS idx_penalties_contractor ON penalties (contractor_id);`,
	`CREATE INDEX IF NOT EXISTS idx_penalties_created ON penalties (created_at);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

package repository

// Schema definitions for the Cardlens database.
// Compatible with both SQLite and PostgreSQL.

const schemaCards = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    issuer TEXT NOT NULL,
    image_url TEXT,
    annual_fee_text TEXT,
    min_monthly_spend INTEGER NOT NULL DEFAULT 0,
    spend_tiers TEXT,
    created_at TIMESTAMP NOT NULL
);
`

const schemaBenefits = `
CREATE TABLE IF NOT EXISTS benefits (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    category TEXT NOT NULL,
    title TEXT NOT NULL,
    short_desc TEXT,
    kind TEXT NOT NULL,
    rate REAL,
    flat_amount INTEGER,
    per_txn_basis_cap INTEGER,
    per_txn_discount_cap INTEGER,
    per_day_count INTEGER,
    per_month_count INTEGER,
    monthly_caps TEXT,
    scopes TEXT,
    windows TEXT,
    valid_from TIMESTAMP,
    valid_to TIMESTAMP,
    priority INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_benefits_card ON benefits(card_id);
CREATE INDEX IF NOT EXISTS idx_benefits_category ON benefits(card_id, category);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    preferred_kind TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS user_cards (
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    nickname TEXT,
    registered_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, card_id)
);

CREATE INDEX IF NOT EXISTS idx_user_cards_user ON user_cards(user_id);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    amount INTEGER NOT NULL,
    merchant_name TEXT NOT NULL,
    merchant_category TEXT NOT NULL,
    offline INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    approved_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, approved_at);
CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions(user_id, card_id, approved_at);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(user_id, merchant_category);
`

const schemaClassifications = `
CREATE TABLE IF NOT EXISTS performance_classifications (
    transaction_id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    counted INTEGER NOT NULL,
    performance_amount INTEGER NOT NULL DEFAULT 0,
    reason TEXT,
    classified_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classifications_card ON performance_classifications(card_id, counted);
`

const schemaAggregations = `
CREATE TABLE IF NOT EXISTS benefit_aggregations (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL UNIQUE,
    card_id TEXT NOT NULL,
    benefit_id TEXT NOT NULL,
    amount INTEGER NOT NULL,
    granted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aggregations_benefit ON benefit_aggregations(card_id, benefit_id, granted_at);
`

const schemaBadges = `
CREATE TABLE IF NOT EXISTS badges (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    icon_emoji TEXT,
    tier TEXT NOT NULL,
    condition_type TEXT NOT NULL,
    condition TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_badges (
    user_id TEXT NOT NULL,
    badge_id TEXT NOT NULL,
    earned_at TIMESTAMP NOT NULL,
    representative INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, badge_id)
);

CREATE INDEX IF NOT EXISTS idx_user_badges_user ON user_badges(user_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCards,
		schemaBenefits,
		schemaUsers,
		schemaTransactions,
		schemaClassifications,
		schemaAggregations,
		schemaBadges,
	}
}

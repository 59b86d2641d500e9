// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCard stores or updates a card.
func (r *SQLRepository) SaveCard(ctx context.Context, card *domain.Card) error {
	if card.ID == "" {
		return fmt.Errorf("%w: card ID is required", ErrInvalidInput)
	}

	tiers, _ := json.Marshal(card.SpendTiers)

	query := `
		INSERT INTO cards (id, name, issuer, image_url, annual_fee_text, min_monthly_spend, spend_tiers, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			issuer = excluded.issuer,
			image_url = excluded.image_url,
			annual_fee_text = excluded.annual_fee_text,
			min_monthly_spend = excluded.min_monthly_spend,
			spend_tiers = excluded.spend_tiers
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		card.ID, card.Name, card.Issuer, card.ImageURL,
		card.AnnualFeeText, card.MinMonthlySpend,
		string(tiers), card.CreatedAt,
	)
	return err
}

// GetCard retrieves a card by ID.
func (r *SQLRepository) GetCard(ctx context.Context, cardID string) (*domain.Card, error) {
	query := `
		SELECT id, name, issuer, image_url, annual_fee_text, min_monthly_spend, spend_tiers, created_at
		FROM cards
		WHERE id = ?
	`

	var card domain.Card
	var imageURL, feeText sql.NullString
	var tiers sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), cardID).Scan(
		&card.ID, &card.Name, &card.Issuer, &imageURL, &feeText,
		&card.MinMonthlySpend, &tiers, &card.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	card.ImageURL = imageURL.String
	card.AnnualFeeText = feeText.String
	if tiers.String != "" {
		json.Unmarshal([]byte(tiers.String), &card.SpendTiers)
	}

	return &card, nil
}

// ListCards retrieves all cards in the catalog.
func (r *SQLRepository) ListCards(ctx context.Context) ([]*domain.Card, error) {
	query := `
		SELECT id, name, issuer, image_url, annual_fee_text, min_monthly_spend, spend_tiers, created_at
		FROM cards
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*domain.Card
	for rows.Next() {
		var card domain.Card
		var imageURL, feeText sql.NullString
		var tiers sql.NullString

		if err := rows.Scan(
			&card.ID, &card.Name, &card.Issuer, &imageURL, &feeText,
			&card.MinMonthlySpend, &tiers, &card.CreatedAt,
		); err != nil {
			return nil, err
		}

		card.ImageURL = imageURL.String
		card.AnnualFeeText = feeText.String
		if tiers.String != "" {
			json.Unmarshal([]byte(tiers.String), &card.SpendTiers)
		}
		cards = append(cards, &card)
	}

	return cards, rows.Err()
}

// SaveBenefit stores or updates a benefit.
func (r *SQLRepository) SaveBenefit(ctx context.Context, b *domain.Benefit) error {
	if b.ID == "" || b.CardID == "" {
		return fmt.Errorf("%w: benefit ID and card ID are required", ErrInvalidInput)
	}

	caps, _ := json.Marshal(b.MonthlyCaps)
	scopes, _ := json.Marshal(b.Scopes)
	windows, _ := json.Marshal(b.Windows)

	query := `
		INSERT INTO benefits (
			id, card_id, category, title, short_desc, kind,
			rate, flat_amount, per_txn_basis_cap, per_txn_discount_cap,
			per_day_count, per_month_count, monthly_caps, scopes, windows,
			valid_from, valid_to, priority
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			card_id = excluded.card_id,
			category = excluded.category,
			title = excluded.title,
			short_desc = excluded.short_desc,
			kind = excluded.kind,
			rate = excluded.rate,
			flat_amount = excluded.flat_amount,
			per_txn_basis_cap = excluded.per_txn_basis_cap,
			per_txn_discount_cap = excluded.per_txn_discount_cap,
			per_day_count = excluded.per_day_count,
			per_month_count = excluded.per_month_count,
			monthly_caps = excluded.monthly_caps,
			scopes = excluded.scopes,
			windows = excluded.windows,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			priority = excluded.priority
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		b.ID, b.CardID, b.Category, b.Title, b.ShortDesc, string(b.Kind),
		nullF64(b.Rate), nullI64(b.FlatAmount),
		nullI64(b.PerTxnBasisCap), nullI64(b.PerTxnDiscountCap),
		nullI64(b.PerDayCount), nullI64(b.PerMonthCount),
		string(caps), string(scopes), string(windows),
		nullTime(b.ValidFrom), nullTime(b.ValidTo), b.Priority,
	)
	return err
}

const benefitColumns = `
	id, card_id, category, title, short_desc, kind,
	rate, flat_amount, per_txn_basis_cap, per_txn_discount_cap,
	per_day_count, per_month_count, monthly_caps, scopes, windows,
	valid_from, valid_to, priority
`

func scanBenefit(row interface{ Scan(...any) error }) (*domain.Benefit, error) {
	var b domain.Benefit
	var shortDesc, kind sql.NullString
	var rate sql.NullFloat64
	var flat, basisCap, discountCap, dayCount, monthCount sql.NullInt64
	var caps, scopes, windows sql.NullString
	var validFrom, validTo sql.NullTime

	err := row.Scan(
		&b.ID, &b.CardID, &b.Category, &b.Title, &shortDesc, &kind,
		&rate, &flat, &basisCap, &discountCap,
		&dayCount, &monthCount, &caps, &scopes, &windows,
		&validFrom, &validTo, &b.Priority,
	)
	if err != nil {
		return nil, err
	}

	b.ShortDesc = shortDesc.String
	b.Kind = domain.BenefitKind(kind.String)
	b.Rate = fromNullF64(rate)
	b.FlatAmount = fromNullI64(flat)
	b.PerTxnBasisCap = fromNullI64(basisCap)
	b.PerTxnDiscountCap = fromNullI64(discountCap)
	b.PerDayCount = fromNullI64(dayCount)
	b.PerMonthCount = fromNullI64(monthCount)
	if caps.String != "" {
		json.Unmarshal([]byte(caps.String), &b.MonthlyCaps)
	}
	if scopes.String != "" {
		json.Unmarshal([]byte(scopes.String), &b.Scopes)
	}
	if windows.String != "" {
		json.Unmarshal([]byte(windows.String), &b.Windows)
	}
	b.ValidFrom = fromNullTime(validFrom)
	b.ValidTo = fromNullTime(validTo)

	return &b, nil
}

// GetBenefit retrieves a benefit by ID.
func (r *SQLRepository) GetBenefit(ctx context.Context, benefitID string) (*domain.Benefit, error) {
	query := `SELECT ` + benefitColumns + ` FROM benefits WHERE id = ?`

	b, err := scanBenefit(r.db.QueryRowContext(ctx, r.rebind(query), benefitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBenefitsByCard retrieves a card's benefits in catalog order.
func (r *SQLRepository) ListBenefitsByCard(ctx context.Context, cardID string) ([]*domain.Benefit, error) {
	if cardID == "" {
		return nil, fmt.Errorf("%w: cardID is required", ErrInvalidInput)
	}

	query := `SELECT ` + benefitColumns + ` FROM benefits WHERE card_id = ? ORDER BY priority, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var benefits []*domain.Benefit
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, err
		}
		benefits = append(benefits, b)
	}

	return benefits, rows.Err()
}

// SaveUser stores or updates a user.
func (r *SQLRepository) SaveUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO users (id, name, preferred_kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			preferred_kind = excluded.preferred_kind
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		u.ID, u.Name, u.PreferredKind, u.CreatedAt,
	)
	return err
}

// GetUser retrieves a user by ID.
func (r *SQLRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT id, name, preferred_kind, created_at FROM users WHERE id = ?`

	var u domain.User
	var preferred sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&u.ID, &u.Name, &preferred, &u.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.PreferredKind = preferred.String
	return &u, nil
}

// RegisterUserCard links a card to a user.
func (r *SQLRepository) RegisterUserCard(ctx context.Context, uc *domain.UserCard) error {
	if uc.UserID == "" || uc.CardID == "" {
		return fmt.Errorf("%w: userID and cardID are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO user_cards (user_id, card_id, nickname, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, card_id) DO UPDATE SET
			nickname = excluded.nickname
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uc.UserID, uc.CardID, uc.Nickname, uc.RegisteredAt,
	)
	return err
}

// RemoveUserCard unlinks a card from a user.
func (r *SQLRepository) RemoveUserCard(ctx context.Context, userID, cardID string) error {
	query := `DELETE FROM user_cards WHERE user_id = ? AND card_id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), userID, cardID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserCards retrieves a user's registered cards.
func (r *SQLRepository) ListUserCards(ctx context.Context, userID string) ([]*domain.UserCard, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT user_id, card_id, nickname, registered_at
		FROM user_cards
		WHERE user_id = ?
		ORDER BY registered_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*domain.UserCard
	for rows.Next() {
		var uc domain.UserCard
		var nickname sql.NullString
		if err := rows.Scan(&uc.UserID, &uc.CardID, &nickname, &uc.RegisteredAt); err != nil {
			return nil, err
		}
		uc.Nickname = nickname.String
		cards = append(cards, &uc)
	}

	return cards, rows.Err()
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" || tx.UserID == "" || tx.CardID == "" {
		return fmt.Errorf("%w: transaction ID, userID and cardID are required", ErrInvalidInput)
	}

	offline := 0
	if tx.Offline {
		offline = 1
	}

	query := `
		INSERT INTO transactions (
			id, user_id, card_id, amount, merchant_name, merchant_category,
			offline, status, approved_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.CardID, tx.Amount,
		tx.MerchantName, tx.MerchantCategory,
		offline, string(tx.Status), tx.ApprovedAt, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, card_id, amount, merchant_name, merchant_category,
			   offline, status, approved_at, created_at
		FROM transactions
		WHERE id = ?
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var offline int
	var status string

	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.CardID, &tx.Amount,
		&tx.MerchantName, &tx.MerchantCategory,
		&offline, &status, &tx.ApprovedAt, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Offline = offline == 1
	tx.Status = domain.TransactionStatus(status)
	return &tx, nil
}

// ListTransactions retrieves a user's transactions in [from, to),
// newest first. cardID "" means all cards.
func (r *SQLRepository) ListTransactions(ctx context.Context, userID, cardID string, from, to time.Time) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, card_id, amount, merchant_name, merchant_category,
			   offline, status, approved_at, created_at
		FROM transactions
		WHERE user_id = ?
		  AND approved_at >= ? AND approved_at < ?
	`
	args := []any{userID, from, to}
	if cardID != "" {
		query += ` AND card_id = ?`
		args = append(args, cardID)
	}
	query += ` ORDER BY approved_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// SaveClassification stores a performance classification.
func (r *SQLRepository) SaveClassification(ctx context.Context, c *domain.PerformanceClassification) error {
	if c.TransactionID == "" {
		return fmt.Errorf("%w: transactionID is required", ErrInvalidInput)
	}

	counted := 0
	if c.Counted {
		counted = 1
	}

	query := `
		INSERT INTO performance_classifications (
			transaction_id, card_id, counted, performance_amount, reason, classified_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			counted = excluded.counted,
			performance_amount = excluded.performance_amount,
			reason = excluded.reason,
			classified_at = excluded.classified_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.TransactionID, c.CardID, counted, c.PerformanceAmount, c.Reason, c.ClassifiedAt,
	)
	return err
}

// ListClassifiedTransactions joins transactions with their
// classifications for a user and card in [from, to), newest first.
func (r *SQLRepository) ListClassifiedTransactions(ctx context.Context, userID, cardID string, from, to time.Time) ([]*domain.ClassifiedTransaction, error) {
	if userID == "" || cardID == "" {
		return nil, fmt.Errorf("%w: userID and cardID are required", ErrInvalidInput)
	}

	query := `
		SELECT t.id, t.user_id, t.card_id, t.amount, t.merchant_name, t.merchant_category,
			   t.offline, t.status, t.approved_at, t.created_at,
			   c.counted, c.performance_amount, c.reason, c.classified_at
		FROM transactions t
		JOIN performance_classifications c ON c.transaction_id = t.id
		WHERE t.user_id = ? AND t.card_id = ?
		  AND t.approved_at >= ? AND t.approved_at < ?
		ORDER BY t.approved_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, cardID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ClassifiedTransaction
	for rows.Next() {
		var tx domain.Transaction
		var offline, counted int
		var status string
		var c domain.PerformanceClassification
		var reason sql.NullString

		if err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.CardID, &tx.Amount,
			&tx.MerchantName, &tx.MerchantCategory,
			&offline, &status, &tx.ApprovedAt, &tx.CreatedAt,
			&counted, &c.PerformanceAmount, &reason, &c.ClassifiedAt,
		); err != nil {
			return nil, err
		}

		tx.Offline = offline == 1
		tx.Status = domain.TransactionStatus(status)
		c.TransactionID = tx.ID
		c.CardID = tx.CardID
		c.Counted = counted == 1
		c.Reason = reason.String

		out = append(out, &domain.ClassifiedTransaction{
			Transaction:    &tx,
			Classification: &c,
		})
	}

	return out, rows.Err()
}

// SumPerformance totals performance-counted amounts for one card in
// [from, to).
func (r *SQLRepository) SumPerformance(ctx context.Context, userID, cardID string, from, to time.Time) (int64, error) {
	if userID == "" || cardID == "" {
		return 0, fmt.Errorf("%w: userID and cardID are required", ErrInvalidInput)
	}

	query := `
		SELECT COALESCE(SUM(c.performance_amount), 0)
		FROM performance_classifications c
		JOIN transactions t ON t.id = c.transaction_id
		WHERE t.user_id = ? AND t.card_id = ?
		  AND c.counted = 1
		  AND t.approved_at >= ? AND t.approved_at < ?
	`

	var sum int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, cardID, from, to).Scan(&sum)
	return sum, err
}

// SaveAggregation stores a benefit aggregation.
func (r *SQLRepository) SaveAggregation(ctx context.Context, agg *domain.BenefitAggregation) error {
	if agg.ID == "" || agg.TransactionID == "" {
		return fmt.Errorf("%w: aggregation ID and transactionID are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO benefit_aggregations (
			id, transaction_id, card_id, benefit_id, amount, granted_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			benefit_id = excluded.benefit_id,
			amount = excluded.amount,
			granted_at = excluded.granted_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		agg.ID, agg.TransactionID, agg.CardID, agg.BenefitID, agg.Amount, agg.GrantedAt,
	)
	return err
}

// GetAggregationByTransaction retrieves the aggregation recorded for a
// transaction.
func (r *SQLRepository) GetAggregationByTransaction(ctx context.Context, txID string) (*domain.BenefitAggregation, error) {
	query := `
		SELECT id, transaction_id, card_id, benefit_id, amount, granted_at
		FROM benefit_aggregations
		WHERE transaction_id = ?
	`

	var agg domain.BenefitAggregation
	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&agg.ID, &agg.TransactionID, &agg.CardID, &agg.BenefitID, &agg.Amount, &agg.GrantedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// SumBenefitGranted totals granted benefit amounts in [from, to).
// cardID and benefitID are optional filters, "" means any.
func (r *SQLRepository) SumBenefitGranted(ctx context.Context, userID, cardID, benefitID string, from, to time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT COALESCE(SUM(a.amount), 0)
		FROM benefit_aggregations a
		JOIN transactions t ON t.id = a.transaction_id
		WHERE t.user_id = ?
		  AND a.granted_at >= ? AND a.granted_at < ?
	`
	args := []any{userID, from, to}
	if cardID != "" {
		query += ` AND a.card_id = ?`
		args = append(args, cardID)
	}
	if benefitID != "" {
		query += ` AND a.benefit_id = ?`
		args = append(args, benefitID)
	}

	var sum int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&sum)
	return sum, err
}

// CountBenefitGranted counts grants in [from, to) with the same
// optional filters as SumBenefitGranted.
func (r *SQLRepository) CountBenefitGranted(ctx context.Context, userID, cardID, benefitID string, from, to time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM benefit_aggregations a
		JOIN transactions t ON t.id = a.transaction_id
		WHERE t.user_id = ?
		  AND a.granted_at >= ? AND a.granted_at < ?
	`
	args := []any{userID, from, to}
	if cardID != "" {
		query += ` AND a.card_id = ?`
		args = append(args, cardID)
	}
	if benefitID != "" {
		query += ` AND a.benefit_id = ?`
		args = append(args, benefitID)
	}

	var n int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&n)
	return n, err
}

// CountTransactionsByCategory counts a user's non-cancelled
// transactions in one merchant category in [from, to).
func (r *SQLRepository) CountTransactionsByCategory(ctx context.Context, userID, category string, from, to time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = ? AND merchant_category = ?
		  AND status != 'cancelled'
		  AND approved_at >= ? AND approved_at < ?
	`

	var n int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, category, from, to).Scan(&n)
	return n, err
}

// SaveBadge stores or updates a badge definition.
func (r *SQLRepository) SaveBadge(ctx context.Context, badge *domain.Badge) error {
	if badge.ID == "" {
		return fmt.Errorf("%w: badge ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO badges (id, name, description, icon_emoji, tier, condition_type, condition)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			icon_emoji = excluded.icon_emoji,
			tier = excluded.tier,
			condition_type = excluded.condition_type,
			condition = excluded.condition
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		badge.ID, badge.Name, badge.Description, badge.IconEmoji,
		badge.Tier, badge.ConditionType, string(badge.Condition),
	)
	return err
}

// GetBadge retrieves a badge definition by ID.
func (r *SQLRepository) GetBadge(ctx context.Context, badgeID string) (*domain.Badge, error) {
	query := `
		SELECT id, name, description, icon_emoji, tier, condition_type, condition
		FROM badges
		WHERE id = ?
	`

	badge, err := scanBadge(r.db.QueryRowContext(ctx, r.rebind(query), badgeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return badge, nil
}

func scanBadge(row interface{ Scan(...any) error }) (*domain.Badge, error) {
	var badge domain.Badge
	var description, icon sql.NullString
	var condition string

	err := row.Scan(
		&badge.ID, &badge.Name, &description, &icon,
		&badge.Tier, &badge.ConditionType, &condition,
	)
	if err != nil {
		return nil, err
	}

	badge.Description = description.String
	badge.IconEmoji = icon.String
	badge.Condition = json.RawMessage(condition)
	return &badge, nil
}

// ListBadges retrieves all badge definitions.
func (r *SQLRepository) ListBadges(ctx context.Context) ([]*domain.Badge, error) {
	query := `
		SELECT id, name, description, icon_emoji, tier, condition_type, condition
		FROM badges
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []*domain.Badge
	for rows.Next() {
		badge, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		badges = append(badges, badge)
	}

	return badges, rows.Err()
}

// AwardBadge records that a user earned a badge. Awarding twice is a
// no-op that keeps the original earned time.
func (r *SQLRepository) AwardBadge(ctx context.Context, ub *domain.UserBadge) error {
	if ub.UserID == "" || ub.BadgeID == "" {
		return fmt.Errorf("%w: userID and badgeID are required", ErrInvalidInput)
	}

	representative := 0
	if ub.Representative {
		representative = 1
	}

	query := `
		INSERT INTO user_badges (user_id, badge_id, earned_at, representative)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, badge_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ub.UserID, ub.BadgeID, ub.EarnedAt, representative,
	)
	return err
}

// ListUserBadges retrieves a user's earned badges.
func (r *SQLRepository) ListUserBadges(ctx context.Context, userID string) ([]*domain.UserBadge, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT user_id, badge_id, earned_at, representative
		FROM user_badges
		WHERE user_id = ?
		ORDER BY earned_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []*domain.UserBadge
	for rows.Next() {
		var ub domain.UserBadge
		var representative int
		if err := rows.Scan(&ub.UserID, &ub.BadgeID, &ub.EarnedAt, &representative); err != nil {
			return nil, err
		}
		ub.Representative = representative == 1
		badges = append(badges, &ub)
	}

	return badges, rows.Err()
}

// SetRepresentativeBadge pins one earned badge as the user's
// representative, clearing any previous pin.
func (r *SQLRepository) SetRepresentativeBadge(ctx context.Context, userID, badgeID string) error {
	if userID == "" || badgeID == "" {
		return fmt.Errorf("%w: userID and badgeID are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	reset := `UPDATE user_badges SET representative = 0 WHERE user_id = ?`
	if _, err := tx.ExecContext(ctx, r.rebind(reset), userID); err != nil {
		return err
	}

	set := `UPDATE user_badges SET representative = 1 WHERE user_id = ? AND badge_id = ?`
	result, err := tx.ExecContext(ctx, r.rebind(set), userID, badgeID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func nullF64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullI64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func fromNullF64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func fromNullI64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func fromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

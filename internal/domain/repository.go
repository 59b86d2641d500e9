// Package domain defines the core interfaces and types for Cardlens.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Catalog operations
	SaveCard(ctx context.Context, card *Card) error
	GetCard(ctx context.Context, cardID string) (*Card, error)
	ListCards(ctx context.Context) ([]*Card, error)
	SaveBenefit(ctx context.Context, benefit *Benefit) error
	GetBenefit(ctx context.Context, benefitID string) (*Benefit, error)
	ListBenefitsByCard(ctx context.Context, cardID string) ([]*Benefit, error)

	// User operations
	SaveUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	RegisterUserCard(ctx context.Context, uc *UserCard) error
	RemoveUserCard(ctx context.Context, userID, cardID string) error
	ListUserCards(ctx context.Context, userID string) ([]*UserCard, error)

	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	// ListTransactions returns transactions in [from, to), newest
	// first. cardID "" means all the user's cards.
	ListTransactions(ctx context.Context, userID, cardID string, from, to time.Time) ([]*Transaction, error)

	// Classification and aggregation records
	SaveClassification(ctx context.Context, c *PerformanceClassification) error
	ListClassifiedTransactions(ctx context.Context, userID, cardID string, from, to time.Time) ([]*ClassifiedTransaction, error)
	// SumPerformance totals performance-counted amounts for one card
	// in [from, to).
	SumPerformance(ctx context.Context, userID, cardID string, from, to time.Time) (int64, error)
	SaveAggregation(ctx context.Context, agg *BenefitAggregation) error
	GetAggregationByTransaction(ctx context.Context, txID string) (*BenefitAggregation, error)
	// SumBenefitGranted totals granted benefit amounts in [from, to).
	// cardID and benefitID are optional filters, "" means any.
	SumBenefitGranted(ctx context.Context, userID, cardID, benefitID string, from, to time.Time) (int64, error)
	// CountBenefitGranted counts grants in [from, to) with the same
	// optional filters.
	CountBenefitGranted(ctx context.Context, userID, cardID, benefitID string, from, to time.Time) (int64, error)
	CountTransactionsByCategory(ctx context.Context, userID, category string, from, to time.Time) (int64, error)

	// Badge operations
	SaveBadge(ctx context.Context, badge *Badge) error
	GetBadge(ctx context.Context, badgeID string) (*Badge, error)
	ListBadges(ctx context.Context) ([]*Badge, error)
	AwardBadge(ctx context.Context, ub *UserBadge) error
	ListUserBadges(ctx context.Context, userID string) ([]*UserBadge, error)
	SetRepresentativeBadge(ctx context.Context, userID, badgeID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

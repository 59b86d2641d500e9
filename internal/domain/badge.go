package domain

import (
	"encoding/json"
	"time"
)

// Badge condition types. The Condition payload is decoded according to
// ConditionType by the badges package.
const (
	BadgeCondBenefitMonthly  = "benefit_amount_monthly"
	BadgeCondBenefitStreak   = "benefit_amount_3months"
	BadgeCondCardCount       = "card_count"
	BadgeCondCategoryTxCount = "transaction_count_category"
)

// Badge is an achievement definition.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IconEmoji   string `json:"iconEmoji,omitempty"`
	Tier        string `json:"tier"` // "Bronze", "Silver", "Gold"

	ConditionType string          `json:"conditionType"`
	Condition     json.RawMessage `json:"condition"`
}

// UserBadge records that a user earned a badge.
type UserBadge struct {
	UserID         string    `json:"userId"`
	BadgeID        string    `json:"badgeId"`
	EarnedAt       time.Time `json:"earnedAt"`
	Representative bool      `json:"representative"`
}

// BadgeProgress tracks how close a user is to earning a badge.
type BadgeProgress struct {
	Current int64   `json:"current"`
	Target  int64   `json:"target"`
	Ratio   float64 `json:"ratio"` // clamped to 1.0
}

// BadgeStatus combines a badge definition with the user's state.
type BadgeStatus struct {
	Badge          *Badge        `json:"badge"`
	Earned         bool          `json:"earned"`
	EarnedAt       *time.Time    `json:"earnedAt,omitempty"`
	Representative bool          `json:"representative"`
	Progress       BadgeProgress `json:"progress"`
}

package domain

import (
	"time"
)

// RecommendRequest is the API payload for a card recommendation.
type RecommendRequest struct {
	UserID           string `json:"userId"`
	Amount           int64  `json:"amount"`
	MerchantName     string `json:"merchantName,omitempty"`
	MerchantCategory string `json:"merchantCategory"`
	Timestamp        string `json:"timestamp,omitempty"` // RFC 3339, defaults to now

	// CardIDs optionally restricts the candidate set. Empty means all
	// of the user's registered cards.
	CardIDs []string `json:"cardIds,omitempty"`
}

// Recommendation is a ranked card suggestion for a pending payment.
type Recommendation struct {
	CardID      string   `json:"cardId"`
	CardName    string   `json:"cardName"`
	Issuer      string   `json:"issuer"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	BenefitID   string   `json:"benefitId"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Amount      int64    `json:"amount"` // expected saving
	Rate        *float64 `json:"rate,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
	Priority    int      `json:"priority"`
}

// LocationRecommendation suggests the best card for the nearest place.
type LocationRecommendation struct {
	Place          *Place          `json:"place"`
	Recommendation *Recommendation `json:"recommendation"`
	AssumedAmount  int64           `json:"assumedAmount"`
}

// MissedBenefit is a past transaction where a different registered card
// would have earned more.
type MissedBenefit struct {
	TransactionID    string    `json:"transactionId"`
	MerchantName     string    `json:"merchantName"`
	MerchantCategory string    `json:"merchantCategory"`
	Amount           int64     `json:"amount"`
	ApprovedAt       time.Time `json:"approvedAt"`

	UsedCardID   string `json:"usedCardId"`
	UsedCardName string `json:"usedCardName"`
	ActualSaving int64  `json:"actualSaving"`

	BetterCardID   string `json:"betterCardId"`
	BetterCardName string `json:"betterCardName"`
	BetterSaving   int64  `json:"betterSaving"`
	MissedAmount   int64  `json:"missedAmount"`
}

// TierStatus is the user's position within a card's spend tiers.
type TierStatus struct {
	CardID       string     `json:"cardId"`
	MonthlySpend int64      `json:"monthlySpend"`
	Current      *SpendTier `json:"current,omitempty"`
	Next         *SpendTier `json:"next,omitempty"`

	// RemainingToTarget is the spend still needed to reach the top
	// tier, floored at zero.
	RemainingToTarget int64 `json:"remainingToTarget"`

	// MonthlyCap is the benefit cap granted by the current tier.
	// Nil when the card defines no tiers.
	MonthlyCap *int64 `json:"monthlyCap,omitempty"`
}

// PerformanceSummary is the monthly performance report for one card.
type PerformanceSummary struct {
	CardID string `json:"cardId"`
	Month  string `json:"month"` // "YYYY-MM"

	Tier TierStatus `json:"tier"`

	Recognized []*ClassifiedTransaction `json:"recognized"`
	Excluded   []*ClassifiedTransaction `json:"excluded"`
}

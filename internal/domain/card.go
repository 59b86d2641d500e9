package domain

import (
	"time"
)

// Card represents a card product in the benefit catalog.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Issuer   string `json:"issuer"`
	ImageURL string `json:"imageUrl,omitempty"`

	// Fee schedule and enrollment hurdle, display-only catalog data.
	AnnualFeeText   string `json:"annualFeeText,omitempty"`
	MinMonthlySpend int64  `json:"minMonthlySpend,omitempty"`

	// Spend tiers in ascending MinSpend order. The tier containing the
	// user's performance-counted spend this period determines the
	// effective monthly benefit cap for the card.
	SpendTiers []SpendTier `json:"spendTiers,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// SpendTier maps a spend range to a monthly benefit cap.
// MaxSpend nil means the tier is unbounded above.
type SpendTier struct {
	Code       string `json:"code"`
	Label      string `json:"label,omitempty"`
	MinSpend   int64  `json:"minSpend"`
	MaxSpend   *int64 `json:"maxSpend,omitempty"`
	MonthlyCap int64  `json:"monthlyCap"`
}

// BenefitKind classifies how a benefit pays out.
type BenefitKind string

const (
	KindDiscount BenefitKind = "discount"
	KindRebate   BenefitKind = "rebate"
	KindPoints   BenefitKind = "points"
	KindMileage  BenefitKind = "mileage"
)

// Benefit is a single benefit attached to a card.
// Exactly one of Rate or FlatAmount is set.
type Benefit struct {
	ID        string `json:"id"`
	CardID    string `json:"cardId"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	ShortDesc string `json:"shortDesc,omitempty"`

	Kind BenefitKind `json:"kind"`

	// Rate is a fraction, e.g. 0.1 for a 10% benefit.
	Rate       *float64 `json:"rate,omitempty"`
	FlatAmount *int64   `json:"flatAmount,omitempty"`

	// Per-transaction limits
	PerTxnBasisCap    *int64 `json:"perTxnBasisCap,omitempty"`
	PerTxnDiscountCap *int64 `json:"perTxnDiscountCap,omitempty"`

	// Per-period count limits
	PerDayCount   *int64 `json:"perDayCount,omitempty"`
	PerMonthCount *int64 `json:"perMonthCount,omitempty"`

	// Monthly cap tiers keyed by the user's performance-counted spend.
	// A single tier covering [0, nil) reproduces a flat monthly limit.
	MonthlyCaps []SpendTier `json:"monthlyCaps,omitempty"`

	// Scope restrictions. Exclusion always wins over inclusion.
	Scopes []BenefitScope `json:"scopes,omitempty"`

	// Time windows. Empty means always eligible.
	Windows []TimeWindow `json:"windows,omitempty"`

	// Validity dates, inclusive, compared by calendar day.
	ValidFrom *time.Time `json:"validFrom,omitempty"`
	ValidTo   *time.Time `json:"validTo,omitempty"`

	// Priority orders benefits within a card, lower wins ties.
	Priority int `json:"priority"`
}

// ScopeType distinguishes inclusion from exclusion scopes.
type ScopeType string

const (
	ScopeInclude ScopeType = "include"
	ScopeExclude ScopeType = "exclude"
)

// BenefitScope restricts a benefit to (or excludes it from) categories
// and merchants. Category and Merchant match exactly, Keyword matches a
// merchant-name substring.
type BenefitScope struct {
	Type     ScopeType `json:"type"`
	Category string    `json:"category,omitempty"`
	Merchant string    `json:"merchant,omitempty"`
	Keyword  string    `json:"keyword,omitempty"`
}

// TimeWindow restricts a benefit to hours of day and days of week.
// Start and End are "HH:MM" in local time. A window with Start > End
// wraps past midnight, e.g. 21:00 to 09:00. Days uses ISO weekday
// numbering, 1=Monday through 7=Sunday; empty means every day.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  []int  `json:"days,omitempty"`
}

// User represents an app user.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PreferredKind string    `json:"preferredKind,omitempty"` // preferred benefit kind, e.g. "rebate"
	CreatedAt     time.Time `json:"createdAt"`
}

// UserCard links a user to a registered card.
type UserCard struct {
	UserID       string    `json:"userId"`
	CardID       string    `json:"cardId"`
	Nickname     string    `json:"nickname,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

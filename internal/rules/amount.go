package rules

import (
	"github.com/cardlens/cardlens/internal/domain"
)

// PeriodState carries the usage context needed to cap a benefit for
// the current period.
type PeriodState struct {
	// MonthlySpend is the performance-counted spend this period,
	// used to resolve cap tiers.
	MonthlySpend int64

	// GrantedMonth is the benefit amount already granted this period
	// under the same benefit.
	GrantedMonth int64

	// CardGrantedMonth is the benefit amount already granted this
	// period across all of the card's benefits. The card-level tier
	// cap is a total, so its room is measured against this, not
	// GrantedMonth.
	CardGrantedMonth int64

	// CountToday and CountMonth are the grant counts so far.
	CountToday int64
	CountMonth int64

	// TierCap is the card-level monthly cap from the user's current
	// spend tier. Nil means unbounded.
	TierCap *int64
}

// ComputeAmount returns the benefit amount for a transaction of the
// given amount, after per-transaction and monthly caps. The result is
// never negative and is monotonically non-increasing in GrantedMonth.
func ComputeAmount(b *domain.Benefit, amount int64, st PeriodState) int64 {
	if b.PerDayCount != nil && st.CountToday >= *b.PerDayCount {
		return 0
	}
	if b.PerMonthCount != nil && st.CountMonth >= *b.PerMonthCount {
		return 0
	}

	basis := amount
	if b.PerTxnBasisCap != nil && basis > *b.PerTxnBasisCap {
		basis = *b.PerTxnBasisCap
	}

	var saving int64
	switch {
	case b.Rate != nil:
		saving = int64(float64(basis) * *b.Rate) // truncated
	case b.FlatAmount != nil:
		saving = *b.FlatAmount
	default:
		return 0
	}

	if b.PerTxnDiscountCap != nil && saving > *b.PerTxnDiscountCap {
		saving = *b.PerTxnDiscountCap
	}

	if t := TierFor(b.MonthlyCaps, st.MonthlySpend); t != nil {
		saving = clampToRoom(saving, t.MonthlyCap-st.GrantedMonth)
	}
	if st.TierCap != nil {
		saving = clampToRoom(saving, *st.TierCap-st.CardGrantedMonth)
	}

	if saving < 0 {
		saving = 0
	}
	return saving
}

func clampToRoom(saving, room int64) int64 {
	if room < 0 {
		room = 0
	}
	if saving > room {
		saving = room
	}
	return saving
}

// TierFor returns the tier whose [MinSpend, MaxSpend) range contains
// spend, or nil when no tier matches. Tiers are expected in ascending
// MinSpend order.
func TierFor(tiers []domain.SpendTier, spend int64) *domain.SpendTier {
	for i := range tiers {
		t := &tiers[i]
		if spend < t.MinSpend {
			continue
		}
		if t.MaxSpend != nil && spend >= *t.MaxSpend {
			continue
		}
		return t
	}
	return nil
}

// FirstMatch returns the benefit aggregation for a transaction, or nil
// when no benefit yields a positive amount. Benefits are tried in
// catalog order and the first positive match wins. Cancelled
// transactions never earn a benefit.
func FirstMatch(tx *domain.Transaction, benefits []*domain.Benefit, state func(*domain.Benefit) PeriodState) *domain.BenefitAggregation {
	if tx.Status == domain.StatusCancelled {
		return nil
	}
	for _, b := range CatalogOrder(benefits) {
		if !Eligible(b, tx.MerchantCategory, tx.MerchantName, tx.ApprovedAt) {
			continue
		}
		amt := ComputeAmount(b, tx.Amount, state(b))
		if amt <= 0 {
			continue
		}
		return &domain.BenefitAggregation{
			TransactionID: tx.ID,
			CardID:        tx.CardID,
			BenefitID:     b.ID,
			Amount:        amt,
			GrantedAt:     tx.ApprovedAt,
		}
	}
	return nil
}

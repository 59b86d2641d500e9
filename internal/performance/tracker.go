package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/rules"
)

// Tracker computes spend-tier status and per-benefit period state from
// stored classifications and benefit grants.
type Tracker struct {
	repo domain.Repository
}

// NewTracker creates a tracker backed by the repository.
func NewTracker(repo domain.Repository) *Tracker {
	return &Tracker{repo: repo}
}

// MonthWindow resolves a "YYYY-MM" month string to its [start, end)
// bounds. An empty or unparseable month falls back to the month of
// now.
func MonthWindow(month string, now time.Time) (time.Time, time.Time, string) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		t = now
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), start.Format("2006-01")
}

func dayWindow(at time.Time) (time.Time, time.Time) {
	y, m, d := at.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// CardState bundles per-card period facts shared by every benefit on
// the card. GrantedMonth is the card-total granted benefit this month,
// the figure the tier cap counts against.
type CardState struct {
	MonthlySpend int64
	GrantedMonth int64
	TierCap      *int64
}

// CardState computes the user's performance-counted spend, card-total
// granted benefit, and current tier cap for one card in the month of
// asOf.
func (t *Tracker) CardState(ctx context.Context, userID string, card *domain.Card, asOf time.Time) (*CardState, error) {
	from, to, _ := MonthWindow("", asOf)
	spend, err := t.repo.SumPerformance(ctx, userID, card.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum performance: %w", err)
	}
	granted, err := t.repo.SumBenefitGranted(ctx, userID, card.ID, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum granted benefit: %w", err)
	}
	cs := &CardState{MonthlySpend: spend, GrantedMonth: granted}
	if tier := rules.TierFor(card.SpendTiers, spend); tier != nil {
		cap := tier.MonthlyCap
		cs.TierCap = &cap
	}
	return cs, nil
}

// BenefitState computes the period state for one benefit, layering the
// benefit's own grant history on the shared card state.
func (t *Tracker) BenefitState(ctx context.Context, userID string, cs *CardState, b *domain.Benefit, asOf time.Time) (rules.PeriodState, error) {
	st := rules.PeriodState{
		MonthlySpend:     cs.MonthlySpend,
		CardGrantedMonth: cs.GrantedMonth,
		TierCap:          cs.TierCap,
	}

	mFrom, mTo, _ := MonthWindow("", asOf)
	granted, err := t.repo.SumBenefitGranted(ctx, userID, b.CardID, b.ID, mFrom, mTo)
	if err != nil {
		return st, fmt.Errorf("failed to sum granted benefit: %w", err)
	}
	st.GrantedMonth = granted

	if b.PerMonthCount != nil {
		n, err := t.repo.CountBenefitGranted(ctx, userID, b.CardID, b.ID, mFrom, mTo)
		if err != nil {
			return st, fmt.Errorf("failed to count monthly grants: %w", err)
		}
		st.CountMonth = n
	}
	if b.PerDayCount != nil {
		dFrom, dTo := dayWindow(asOf)
		n, err := t.repo.CountBenefitGranted(ctx, userID, b.CardID, b.ID, dFrom, dTo)
		if err != nil {
			return st, fmt.Errorf("failed to count daily grants: %w", err)
		}
		st.CountToday = n
	}
	return st, nil
}

// CurrentTier returns the user's tier status for a card in the month
// of asOf.
func (t *Tracker) CurrentTier(ctx context.Context, userID, cardID string, asOf time.Time) (*domain.TierStatus, error) {
	card, err := t.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	from, to, _ := MonthWindow("", asOf)
	spend, err := t.repo.SumPerformance(ctx, userID, cardID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum performance: %w", err)
	}
	return tierStatus(card, spend), nil
}

// tierStatus derives the tier position from a spend total.
func tierStatus(card *domain.Card, spend int64) *domain.TierStatus {
	ts := &domain.TierStatus{
		CardID:       card.ID,
		MonthlySpend: spend,
	}
	tiers := card.SpendTiers
	if len(tiers) == 0 {
		return ts
	}

	if cur := rules.TierFor(tiers, spend); cur != nil {
		c := *cur
		ts.Current = &c
		cap := cur.MonthlyCap
		ts.MonthlyCap = &cap
	}
	for i := range tiers {
		if tiers[i].MinSpend > spend {
			n := tiers[i]
			ts.Next = &n
			break
		}
	}

	// Remaining spend to reach the top tier, floored at zero.
	top := tiers[len(tiers)-1]
	if remaining := top.MinSpend - spend; remaining > 0 {
		ts.RemainingToTarget = remaining
	}
	return ts
}

// Summary builds the monthly performance report for one card. month is
// "YYYY-MM"; empty or malformed input falls back to the month of now.
func (t *Tracker) Summary(ctx context.Context, userID, cardID, month string, now time.Time) (*domain.PerformanceSummary, error) {
	card, err := t.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	from, to, label := MonthWindow(month, now)

	rows, err := t.repo.ListClassifiedTransactions(ctx, userID, cardID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list classified transactions: %w", err)
	}

	summary := &domain.PerformanceSummary{
		CardID:     cardID,
		Month:      label,
		Recognized: []*domain.ClassifiedTransaction{},
		Excluded:   []*domain.ClassifiedTransaction{},
	}
	var spend int64
	for _, row := range rows {
		if row.Classification.Counted {
			spend += row.Classification.PerformanceAmount
			summary.Recognized = append(summary.Recognized, row)
		} else {
			summary.Excluded = append(summary.Excluded, row)
		}
	}
	summary.Tier = *tierStatus(card, spend)
	return summary, nil
}

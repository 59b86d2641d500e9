// Package rules implements benefit eligibility and amount calculation.
package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
)

// Eligible reports whether a benefit applies to a purchase in the given
// merchant category, at the given merchant, at the given time.
func Eligible(b *domain.Benefit, category, merchant string, at time.Time) bool {
	if b.Category != "" && b.Category != category {
		return false
	}
	if !validOn(b, at) {
		return false
	}
	if !scopeAllows(b.Scopes, category, merchant) {
		return false
	}
	return windowAllows(b.Windows, at)
}

// validOn compares by calendar day, both bounds inclusive.
func validOn(b *domain.Benefit, at time.Time) bool {
	day := dateOnly(at)
	if b.ValidFrom != nil && day.Before(dateOnly(*b.ValidFrom)) {
		return false
	}
	if b.ValidTo != nil && day.After(dateOnly(*b.ValidTo)) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// scopeAllows applies category and merchant scopes. Exclusion always
// wins. If any include scope exists, the purchase must match one.
func scopeAllows(scopes []domain.BenefitScope, category, merchant string) bool {
	if len(scopes) == 0 {
		return true
	}
	hasInclude := false
	included := false
	for _, s := range scopes {
		match := scopeMatches(s, category, merchant)
		switch s.Type {
		case domain.ScopeExclude:
			if match {
				return false
			}
		case domain.ScopeInclude:
			hasInclude = true
			if match {
				included = true
			}
		}
	}
	if hasInclude {
		return included
	}
	return true
}

func scopeMatches(s domain.BenefitScope, category, merchant string) bool {
	if s.Category != "" && s.Category == category {
		return true
	}
	if s.Merchant != "" && s.Merchant == merchant {
		return true
	}
	if s.Keyword != "" && strings.Contains(merchant, s.Keyword) {
		return true
	}
	return false
}

// windowAllows checks time-of-day windows. A window with Start > End
// wraps past midnight. No windows means always eligible.
func windowAllows(windows []domain.TimeWindow, at time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	cur := at.Format("15:04")
	iso := isoWeekday(at)
	for _, w := range windows {
		if !dayAllowed(w.Days, iso) {
			continue
		}
		if w.Start <= w.End {
			if cur >= w.Start && cur <= w.End {
				return true
			}
		} else {
			// Overnight window, e.g. 21:00 to 09:00.
			if cur >= w.Start || cur <= w.End {
				return true
			}
		}
	}
	return false
}

// isoWeekday returns 1=Monday through 7=Sunday.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func dayAllowed(days []int, iso int) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if d == iso {
			return true
		}
	}
	return false
}

// CatalogOrder returns benefits sorted by priority, then ID. The input
// slice is not modified.
func CatalogOrder(benefits []*domain.Benefit) []*domain.Benefit {
	out := make([]*domain.Benefit, len(benefits))
	copy(out, benefits)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

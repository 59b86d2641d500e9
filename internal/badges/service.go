// Package badges evaluates achievement conditions and manages earned
// badges.
package badges

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/performance"
)

// Service evaluates badge conditions against stored activity.
type Service struct {
	repo domain.Repository
	cfg  domain.BadgesConfig
}

// NewService creates a badge service.
func NewService(repo domain.Repository, cfg domain.BadgesConfig) *Service {
	return &Service{repo: repo, cfg: cfg}
}

type amountCondition struct {
	MinAmount int64 `json:"minAmount"`
	Months    int   `json:"months"`
}

type countCondition struct {
	MinCount int64  `json:"minCount"`
	Category string `json:"category"`
}

// Progress computes how far a user is toward one badge.
func (s *Service) Progress(ctx context.Context, userID string, badge *domain.Badge, now time.Time) (domain.BadgeProgress, error) {
	var p domain.BadgeProgress

	switch badge.ConditionType {
	case domain.BadgeCondBenefitMonthly:
		var cond amountCondition
		if err := json.Unmarshal(badge.Condition, &cond); err != nil {
			return p, fmt.Errorf("badge %s: invalid condition: %w", badge.ID, err)
		}
		from, to, _ := performance.MonthWindow("", now)
		total, err := s.repo.SumBenefitGranted(ctx, userID, "", "", from, to)
		if err != nil {
			return p, err
		}
		p.Current = total
		p.Target = cond.MinAmount

	case domain.BadgeCondBenefitStreak:
		var cond amountCondition
		if err := json.Unmarshal(badge.Condition, &cond); err != nil {
			return p, fmt.Errorf("badge %s: invalid condition: %w", badge.ID, err)
		}
		months := cond.Months
		if months <= 0 {
			months = 3
		}
		// Count consecutive qualifying months, newest first.
		var streak int64
		for i := 0; i < months; i++ {
			from, to, _ := performance.MonthWindow("", now.AddDate(0, -i, 0))
			total, err := s.repo.SumBenefitGranted(ctx, userID, "", "", from, to)
			if err != nil {
				return p, err
			}
			if total < cond.MinAmount {
				break
			}
			streak++
		}
		p.Current = streak
		p.Target = int64(months)

	case domain.BadgeCondCardCount:
		var cond countCondition
		if err := json.Unmarshal(badge.Condition, &cond); err != nil {
			return p, fmt.Errorf("badge %s: invalid condition: %w", badge.ID, err)
		}
		cards, err := s.repo.ListUserCards(ctx, userID)
		if err != nil {
			return p, err
		}
		p.Current = int64(len(cards))
		p.Target = cond.MinCount

	case domain.BadgeCondCategoryTxCount:
		var cond countCondition
		if err := json.Unmarshal(badge.Condition, &cond); err != nil {
			return p, fmt.Errorf("badge %s: invalid condition: %w", badge.ID, err)
		}
		from, to, _ := performance.MonthWindow("", now)
		n, err := s.repo.CountTransactionsByCategory(ctx, userID, cond.Category, from, to)
		if err != nil {
			return p, err
		}
		p.Current = n
		p.Target = cond.MinCount

	default:
		return p, fmt.Errorf("badge %s: unknown condition type %q", badge.ID, badge.ConditionType)
	}

	if p.Target > 0 {
		p.Ratio = float64(p.Current) / float64(p.Target)
		if p.Ratio > 1.0 {
			p.Ratio = 1.0
		}
	}
	return p, nil
}

// CheckAndAward evaluates every badge the user has not earned yet and
// awards the ones whose condition is now met. It returns the newly
// earned badges.
func (s *Service) CheckAndAward(ctx context.Context, userID string, now time.Time) ([]*domain.Badge, error) {
	all, err := s.repo.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	owned, err := s.repo.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	earned := make(map[string]bool, len(owned))
	for _, ub := range owned {
		earned[ub.BadgeID] = true
	}

	var awarded []*domain.Badge
	for _, badge := range all {
		if earned[badge.ID] {
			continue
		}
		p, err := s.Progress(ctx, userID, badge, now)
		if err != nil {
			return awarded, err
		}
		if p.Current < p.Target {
			continue
		}
		if err := s.repo.AwardBadge(ctx, &domain.UserBadge{
			UserID:   userID,
			BadgeID:  badge.ID,
			EarnedAt: now,
		}); err != nil {
			return awarded, fmt.Errorf("failed to award badge %s: %w", badge.ID, err)
		}
		awarded = append(awarded, badge)
	}
	return awarded, nil
}

// UserBadges returns every badge definition with the user's earned
// state and progress.
func (s *Service) UserBadges(ctx context.Context, userID string, now time.Time) ([]*domain.BadgeStatus, error) {
	all, err := s.repo.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	owned, err := s.repo.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	byID := make(map[string]*domain.UserBadge, len(owned))
	for _, ub := range owned {
		byID[ub.BadgeID] = ub
	}

	statuses := make([]*domain.BadgeStatus, 0, len(all))
	for _, badge := range all {
		status := &domain.BadgeStatus{Badge: badge}
		if ub, ok := byID[badge.ID]; ok {
			status.Earned = true
			at := ub.EarnedAt
			status.EarnedAt = &at
			status.Representative = ub.Representative
			status.Progress = domain.BadgeProgress{Current: 1, Target: 1, Ratio: 1.0}
		} else {
			p, err := s.Progress(ctx, userID, badge, now)
			if err != nil {
				return nil, err
			}
			status.Progress = p
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// SetRepresentative marks one earned badge as the user's
// representative. Only badges in the configured tiers qualify.
func (s *Service) SetRepresentative(ctx context.Context, userID, badgeID string) error {
	badge, err := s.repo.GetBadge(ctx, badgeID)
	if err != nil {
		return err
	}

	allowed := false
	for _, tier := range s.cfg.RepresentativeTiers {
		if badge.Tier == tier {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("badge tier %s cannot be representative", badge.Tier)
	}

	return s.repo.SetRepresentativeBadge(ctx, userID, badgeID)
}

// Package recommend ranks a user's cards by expected saving for a
// pending or hypothetical payment.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/performance"
	"github.com/cardlens/cardlens/internal/repository"
	"github.com/cardlens/cardlens/internal/rules"
)

// Service computes card recommendations, location suggestions and
// missed-benefit reports.
type Service struct {
	repo    domain.Repository
	tracker *performance.Tracker
	places  domain.PlacesClient
	cfg     domain.RecommendConfig
	radius  int
}

// NewService creates a recommendation service. places may be nil when
// no location provider is configured.
func NewService(repo domain.Repository, tracker *performance.Tracker, places domain.PlacesClient, cfg domain.RecommendConfig, radiusMeters int) *Service {
	return &Service{
		repo:    repo,
		tracker: tracker,
		places:  places,
		cfg:     cfg,
		radius:  radiusMeters,
	}
}

// candidate is one card's best benefit for the payment under
// evaluation.
type candidate struct {
	rec  *domain.Recommendation
	kind domain.BenefitKind
}

// Recommend returns the top two cards for the payment described by
// req, best expected saving first. Cards whose catalog entry is
// missing are skipped. An empty result means no card clears the
// configured minimum saving.
func (s *Service) Recommend(ctx context.Context, req *domain.RecommendRequest, at time.Time) ([]*domain.Recommendation, error) {
	cands, err := s.candidates(ctx, req, at)
	if err != nil {
		return nil, err
	}

	recs := make([]*domain.Recommendation, 0, len(cands))
	for _, c := range cands {
		if s.cfg.MinSaving > 0 && c.rec.Amount < s.cfg.MinSaving {
			continue
		}
		recs = append(recs, c.rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Amount != recs[j].Amount {
			return recs[i].Amount > recs[j].Amount
		}
		return recs[i].Priority < recs[j].Priority
	})
	if len(recs) > 2 {
		recs = recs[:2]
	}
	return recs, nil
}

// candidates computes the best benefit per candidate card.
func (s *Service) candidates(ctx context.Context, req *domain.RecommendRequest, at time.Time) ([]*candidate, error) {
	cardIDs := req.CardIDs
	if len(cardIDs) == 0 {
		ucs, err := s.repo.ListUserCards(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list user cards: %w", err)
		}
		for _, uc := range ucs {
			cardIDs = append(cardIDs, uc.CardID)
		}
	}

	var cands []*candidate
	for _, cardID := range cardIDs {
		card, err := s.repo.GetCard(ctx, cardID)
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("skipping unknown card", "card_id", cardID)
			continue
		}
		if err != nil {
			return nil, err
		}

		c, err := s.bestForCard(ctx, req, card, at)
		if err != nil {
			return nil, err
		}
		if c != nil {
			cands = append(cands, c)
		}
	}
	return cands, nil
}

// bestForCard finds the card's highest-paying eligible benefit, nil
// when none applies. Ties keep the earlier benefit in catalog order.
func (s *Service) bestForCard(ctx context.Context, req *domain.RecommendRequest, card *domain.Card, at time.Time) (*candidate, error) {
	benefits, err := s.repo.ListBenefitsByCard(ctx, card.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list benefits: %w", err)
	}
	if len(benefits) == 0 {
		return nil, nil
	}

	cs, err := s.tracker.CardState(ctx, req.UserID, card, at)
	if err != nil {
		return nil, err
	}

	var best *domain.Benefit
	var bestAmount int64
	for _, b := range rules.CatalogOrder(benefits) {
		if !rules.Eligible(b, req.MerchantCategory, req.MerchantName, at) {
			continue
		}
		st, err := s.tracker.BenefitState(ctx, req.UserID, cs, b, at)
		if err != nil {
			return nil, err
		}
		amount := rules.ComputeAmount(b, req.Amount, st)
		if amount > bestAmount {
			best = b
			bestAmount = amount
		}
	}
	if best == nil {
		return nil, nil
	}

	return &candidate{
		rec: &domain.Recommendation{
			CardID:      card.ID,
			CardName:    card.Name,
			Issuer:      card.Issuer,
			ImageURL:    card.ImageURL,
			BenefitID:   best.ID,
			Title:       best.Title,
			Description: best.ShortDesc,
			Amount:      bestAmount,
			Rate:        best.Rate,
			Conditions:  conditionLines(best),
			Priority:    best.Priority,
		},
		kind: best.Kind,
	}, nil
}

// conditionLines summarizes the benefit's limits for display.
func conditionLines(b *domain.Benefit) []string {
	var lines []string
	if b.PerTxnBasisCap != nil {
		lines = append(lines, fmt.Sprintf("applies to the first %d spent per transaction", *b.PerTxnBasisCap))
	}
	if b.PerTxnDiscountCap != nil {
		lines = append(lines, fmt.Sprintf("up to %d per transaction", *b.PerTxnDiscountCap))
	}
	if len(b.MonthlyCaps) > 0 {
		lines = append(lines, "monthly cap by spend tier")
	}
	if b.PerDayCount != nil {
		lines = append(lines, fmt.Sprintf("%d time(s) per day", *b.PerDayCount))
	}
	if b.PerMonthCount != nil {
		lines = append(lines, fmt.Sprintf("%d time(s) per month", *b.PerMonthCount))
	}
	for _, w := range b.Windows {
		lines = append(lines, fmt.Sprintf("valid %s-%s", w.Start, w.End))
	}
	return lines
}

// CurrentLocation recommends one card for the nearest place. It
// returns nil, nil when no provider is configured, the lookup fails,
// or nothing is nearby; location suggestions degrade rather than
// error.
func (s *Service) CurrentLocation(ctx context.Context, userID string, lat, lng float64, at time.Time) (*domain.LocationRecommendation, error) {
	if s.places == nil {
		return nil, nil
	}

	places, err := s.places.Nearby(ctx, lat, lng, s.radius, "")
	if err != nil {
		slog.Warn("places lookup failed", "error", err)
		return nil, nil
	}
	if len(places) == 0 {
		return nil, nil
	}
	place := places[0]

	var preferred string
	if user, err := s.repo.GetUser(ctx, userID); err == nil {
		preferred = user.PreferredKind
	}

	req := &domain.RecommendRequest{
		UserID:           userID,
		Amount:           s.cfg.AssumedAmount,
		MerchantName:     place.Name,
		MerchantCategory: place.Category,
	}
	cands, err := s.candidates(ctx, req, at)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return &domain.LocationRecommendation{Place: place, AssumedAmount: s.cfg.AssumedAmount}, nil
	}

	// The preferred-kind boost influences the pick only; the reported
	// amount stays the real expected saving.
	best := cands[0]
	bestScore := score(best, preferred, s.cfg.PreferredKindBoost)
	for _, c := range cands[1:] {
		if sc := score(c, preferred, s.cfg.PreferredKindBoost); sc > bestScore {
			best = c
			bestScore = sc
		}
	}

	return &domain.LocationRecommendation{
		Place:          place,
		Recommendation: best.rec,
		AssumedAmount:  s.cfg.AssumedAmount,
	}, nil
}

func score(c *candidate, preferred string, boost float64) float64 {
	sc := float64(c.rec.Amount)
	if preferred != "" && string(c.kind) == preferred && boost > 0 {
		sc *= boost
	}
	return sc
}

// MissedBenefits replays the user's recent transactions and reports
// the ones where another registered card would have saved more,
// largest gap first. A non-positive limit uses the configured default.
func (s *Service) MissedBenefits(ctx context.Context, userID string, limit int, now time.Time) ([]*domain.MissedBenefit, error) {
	if limit <= 0 {
		limit = s.cfg.MissedLimit
	}
	ucs, err := s.repo.ListUserCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user cards: %w", err)
	}
	cards := make(map[string]*domain.Card, len(ucs))
	for _, uc := range ucs {
		card, err := s.repo.GetCard(ctx, uc.CardID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cards[card.ID] = card
	}

	from := now.AddDate(0, 0, -s.cfg.MissedWindowDays)
	txs, err := s.repo.ListTransactions(ctx, userID, "", from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	missed := []*domain.MissedBenefit{}
	for _, tx := range txs {
		if tx.Status == domain.StatusCancelled {
			continue
		}

		var actual int64
		agg, err := s.repo.GetAggregationByTransaction(ctx, tx.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if agg != nil {
			actual = agg.Amount
		}

		req := &domain.RecommendRequest{
			UserID:           userID,
			Amount:           tx.Amount,
			MerchantName:     tx.MerchantName,
			MerchantCategory: tx.MerchantCategory,
		}
		var better *candidate
		for _, card := range cards {
			if card.ID == tx.CardID {
				continue
			}
			c, err := s.bestForCard(ctx, req, card, tx.ApprovedAt)
			if err != nil {
				return nil, err
			}
			if c != nil && (better == nil || c.rec.Amount > better.rec.Amount) {
				better = c
			}
		}
		if better == nil || better.rec.Amount <= actual {
			continue
		}

		m := &domain.MissedBenefit{
			TransactionID:    tx.ID,
			MerchantName:     tx.MerchantName,
			MerchantCategory: tx.MerchantCategory,
			Amount:           tx.Amount,
			ApprovedAt:       tx.ApprovedAt,
			UsedCardID:       tx.CardID,
			ActualSaving:     actual,
			BetterCardID:     better.rec.CardID,
			BetterCardName:   better.rec.CardName,
			BetterSaving:     better.rec.Amount,
			MissedAmount:     better.rec.Amount - actual,
		}
		if used, ok := cards[tx.CardID]; ok {
			m.UsedCardName = used.Name
		}
		missed = append(missed, m)
	}

	sort.SliceStable(missed, func(i, j int) bool {
		return missed[i].MissedAmount > missed[j].MissedAmount
	})
	if limit > 0 && len(missed) > limit {
		missed = missed[:limit]
	}
	return missed, nil
}

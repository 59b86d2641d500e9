// Package worker runs the transaction ingestion pipeline, either
// inline or driven by the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cardlens/cardlens/internal/badges"
	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/performance"
	"github.com/cardlens/cardlens/internal/repository"
	"github.com/cardlens/cardlens/internal/rules"
)

// Pipeline runs one transaction through persistence, performance
// classification, benefit matching and badge checks.
type Pipeline struct {
	repo       domain.Repository
	classifier *performance.Classifier
	tracker    *performance.Tracker
	badges     *badges.Service
	bus        domain.EventBus
}

// NewPipeline creates the ingestion pipeline. bus may be nil when no
// downstream consumers exist.
func NewPipeline(repo domain.Repository, classifier *performance.Classifier, tracker *performance.Tracker, badgeSvc *badges.Service, bus domain.EventBus) *Pipeline {
	return &Pipeline{
		repo:       repo,
		classifier: classifier,
		tracker:    tracker,
		badges:     badgeSvc,
		bus:        bus,
	}
}

// BadgeEarnedEvent is the payload published on the badge earned topic.
type BadgeEarnedEvent struct {
	UserID   string    `json:"userId"`
	BadgeID  string    `json:"badgeId"`
	Name     string    `json:"name"`
	Tier     string    `json:"tier"`
	EarnedAt time.Time `json:"earnedAt"`
}

// Process ingests a transaction and returns the benefit granted for
// it, nil when no benefit applies. The transaction ID is assigned here
// when empty.
func (p *Pipeline) Process(ctx context.Context, tx *domain.Transaction) (*domain.BenefitAggregation, error) {
	start := time.Now()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if err := p.repo.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}

	cls := p.classifier.Classify(tx)
	if err := p.repo.SaveClassification(ctx, cls); err != nil {
		return nil, fmt.Errorf("failed to save classification: %w", err)
	}

	agg, err := p.matchBenefit(ctx, tx)
	if err != nil {
		return nil, err
	}
	if agg != nil {
		agg.ID = uuid.New().String()
		if err := p.repo.SaveAggregation(ctx, agg); err != nil {
			return nil, fmt.Errorf("failed to save aggregation: %w", err)
		}
		p.publish(ctx, domain.TopicBenefitApplied, agg, "benefit_id", agg.BenefitID)
	}

	p.checkBadges(ctx, tx)

	slog.Info("transaction processed",
		"tx_id", tx.ID,
		"user_id", tx.UserID,
		"card_id", tx.CardID,
		"counted", cls.Counted,
		"granted", agg != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return agg, nil
}

// matchBenefit finds the first benefit paying out for the transaction.
// An unknown card skips matching rather than failing ingestion.
func (p *Pipeline) matchBenefit(ctx context.Context, tx *domain.Transaction) (*domain.BenefitAggregation, error) {
	if tx.Status == domain.StatusCancelled {
		return nil, nil
	}

	card, err := p.repo.GetCard(ctx, tx.CardID)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Warn("transaction references unknown card",
			"tx_id", tx.ID,
			"card_id", tx.CardID,
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	benefits, err := p.repo.ListBenefitsByCard(ctx, tx.CardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list benefits: %w", err)
	}
	if len(benefits) == 0 {
		return nil, nil
	}

	cs, err := p.tracker.CardState(ctx, tx.UserID, card, tx.ApprovedAt)
	if err != nil {
		return nil, err
	}

	var stateErr error
	agg := rules.FirstMatch(tx, benefits, func(b *domain.Benefit) rules.PeriodState {
		st, err := p.tracker.BenefitState(ctx, tx.UserID, cs, b, tx.ApprovedAt)
		if err != nil && stateErr == nil {
			stateErr = err
		}
		return st
	})
	if stateErr != nil {
		return nil, stateErr
	}
	return agg, nil
}

// checkBadges awards any newly earned badges. Failures are logged, not
// fatal to ingestion.
func (p *Pipeline) checkBadges(ctx context.Context, tx *domain.Transaction) {
	if p.badges == nil {
		return
	}
	earned, err := p.badges.CheckAndAward(ctx, tx.UserID, tx.ApprovedAt)
	if err != nil {
		slog.Error("badge check failed",
			"user_id", tx.UserID,
			"error", err,
		)
		return
	}
	for _, badge := range earned {
		p.publish(ctx, domain.TopicBadgeEarned, &BadgeEarnedEvent{
			UserID:   tx.UserID,
			BadgeID:  badge.ID,
			Name:     badge.Name,
			Tier:     badge.Tier,
			EarnedAt: tx.ApprovedAt,
		}, "badge_id", badge.ID)
	}
}

func (p *Pipeline) publish(ctx context.Context, topic string, payload any, args ...any) {
	if p.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, topic, data); err != nil {
		slog.Error("failed to publish event", append([]any{"topic", topic, "error", err}, args...)...)
	}
}

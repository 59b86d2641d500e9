package badges

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "cardlens-badges-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestService(t *testing.T) (*Service, domain.Repository) {
	t.Helper()
	repo := newTestRepo(t)
	svc := NewService(repo, domain.BadgesConfig{
		RepresentativeTiers: []string{"Gold", "Silver"},
	})
	return svc, repo
}

func seedBadge(t *testing.T, repo domain.Repository, id, tier, condType string, cond any) *domain.Badge {
	t.Helper()
	raw, err := json.Marshal(cond)
	if err != nil {
		t.Fatalf("failed to marshal condition: %v", err)
	}
	badge := &domain.Badge{
		ID:            id,
		Name:          id,
		Tier:          tier,
		ConditionType: condType,
		Condition:     raw,
	}
	if err := repo.SaveBadge(context.Background(), badge); err != nil {
		t.Fatalf("SaveBadge failed: %v", err)
	}
	return badge
}

func seedGrant(t *testing.T, repo domain.Repository, txID string, amount int64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	tx := &domain.Transaction{
		ID:               txID,
		UserID:           "user-001",
		CardID:           "card-001",
		Amount:           amount * 10,
		MerchantName:     "Mega Coffee",
		MerchantCategory: "cafe",
		Status:           domain.StatusApproved,
		ApprovedAt:       at,
		CreatedAt:        at,
	}
	if err := repo.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}
	agg := &domain.BenefitAggregation{
		ID:            "agg-" + txID,
		TransactionID: txID,
		CardID:        "card-001",
		BenefitID:     "benefit-001",
		Amount:        amount,
		GrantedAt:     at,
	}
	if err := repo.SaveAggregation(ctx, agg); err != nil {
		t.Fatalf("SaveAggregation failed: %v", err)
	}
}

func TestCheckAndAwardBenefitMonthly(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	seedBadge(t, repo, "saver", "Silver", domain.BadgeCondBenefitMonthly, map[string]any{"minAmount": 5000})
	seedGrant(t, repo, "tx-001", 3000, now.AddDate(0, 0, -5))

	awarded, err := svc.CheckAndAward(ctx, "user-001", now)
	if err != nil {
		t.Fatalf("CheckAndAward failed: %v", err)
	}
	if len(awarded) != 0 {
		t.Fatalf("expected no badges yet, got %d", len(awarded))
	}

	seedGrant(t, repo, "tx-002", 2500, now.AddDate(0, 0, -1))
	awarded, err = svc.CheckAndAward(ctx, "user-001", now)
	if err != nil {
		t.Fatalf("CheckAndAward failed: %v", err)
	}
	if len(awarded) != 1 || awarded[0].ID != "saver" {
		t.Fatalf("expected saver badge, got %+v", awarded)
	}

	// Already earned badges are not awarded again.
	awarded, err = svc.CheckAndAward(ctx, "user-001", now)
	if err != nil {
		t.Fatalf("CheckAndAward failed: %v", err)
	}
	if len(awarded) != 0 {
		t.Errorf("expected no re-award, got %d", len(awarded))
	}
}

func TestProgressBenefitStreak(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	badge := seedBadge(t, repo, "streak", "Gold", domain.BadgeCondBenefitStreak, map[string]any{"minAmount": 1000, "months": 3})

	// Qualifying grants this month and last month, nothing in January.
	seedGrant(t, repo, "tx-001", 1500, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	seedGrant(t, repo, "tx-002", 1200, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))

	p, err := svc.Progress(ctx, "user-001", badge, now)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Current != 2 || p.Target != 3 {
		t.Errorf("expected streak 2/3, got %d/%d", p.Current, p.Target)
	}

	seedGrant(t, repo, "tx-003", 1100, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	p, err = svc.Progress(ctx, "user-001", badge, now)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Current != 3 || p.Ratio != 1.0 {
		t.Errorf("expected completed streak, got %d ratio %.2f", p.Current, p.Ratio)
	}
}

func TestProgressStreakBrokenMonth(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	badge := seedBadge(t, repo, "streak", "Gold", domain.BadgeCondBenefitStreak, map[string]any{"minAmount": 1000, "months": 3})

	// January qualifies but February does not, so the streak stops at
	// the current month.
	seedGrant(t, repo, "tx-001", 1500, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	seedGrant(t, repo, "tx-002", 1100, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))

	p, err := svc.Progress(context.Background(), "user-001", badge, now)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Current != 1 {
		t.Errorf("expected streak 1, got %d", p.Current)
	}
}

func TestCheckAndAwardCardCount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBadge(t, repo, "collector", "Bronze", domain.BadgeCondCardCount, map[string]any{"minCount": 2})

	for _, cardID := range []string{"card-001", "card-002"} {
		card := &domain.Card{ID: cardID, Name: cardID, Issuer: "First Bank", CreatedAt: now}
		if err := repo.SaveCard(ctx, card); err != nil {
			t.Fatalf("SaveCard failed: %v", err)
		}
		uc := &domain.UserCard{UserID: "user-001", CardID: cardID, RegisteredAt: now}
		if err := repo.RegisterUserCard(ctx, uc); err != nil {
			t.Fatalf("RegisterUserCard failed: %v", err)
		}
	}

	awarded, err := svc.CheckAndAward(ctx, "user-001", now)
	if err != nil {
		t.Fatalf("CheckAndAward failed: %v", err)
	}
	if len(awarded) != 1 || awarded[0].ID != "collector" {
		t.Fatalf("expected collector badge, got %+v", awarded)
	}
}

func TestProgressCategoryTxCount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	badge := seedBadge(t, repo, "cafe-regular", "Silver", domain.BadgeCondCategoryTxCount, map[string]any{"category": "cafe", "minCount": 5})

	for i := 0; i < 3; i++ {
		at := now.AddDate(0, 0, -i)
		tx := &domain.Transaction{
			ID:               "tx-cafe-" + string(rune('a'+i)),
			UserID:           "user-001",
			CardID:           "card-001",
			Amount:           4500,
			MerchantName:     "Mega Coffee",
			MerchantCategory: "cafe",
			Status:           domain.StatusApproved,
			ApprovedAt:       at,
			CreatedAt:        at,
		}
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}
	// A cancelled transaction does not count.
	cancelled := &domain.Transaction{
		ID: "tx-cancelled", UserID: "user-001", CardID: "card-001",
		Amount: 4500, MerchantCategory: "cafe",
		Status: domain.StatusCancelled, ApprovedAt: now, CreatedAt: now,
	}
	if err := repo.SaveTransaction(ctx, cancelled); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}

	p, err := svc.Progress(ctx, "user-001", badge, now)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Current != 3 || p.Target != 5 {
		t.Errorf("expected 3/5, got %d/%d", p.Current, p.Target)
	}
	if p.Ratio != 0.6 {
		t.Errorf("expected ratio 0.6, got %.2f", p.Ratio)
	}
}

func TestUserBadges(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	seedBadge(t, repo, "saver", "Silver", domain.BadgeCondBenefitMonthly, map[string]any{"minAmount": 1000})
	seedBadge(t, repo, "collector", "Bronze", domain.BadgeCondCardCount, map[string]any{"minCount": 3})
	seedGrant(t, repo, "tx-001", 2000, now.AddDate(0, 0, -1))

	if _, err := svc.CheckAndAward(ctx, "user-001", now); err != nil {
		t.Fatalf("CheckAndAward failed: %v", err)
	}

	statuses, err := svc.UserBadges(ctx, "user-001", now)
	if err != nil {
		t.Fatalf("UserBadges failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 badge statuses, got %d", len(statuses))
	}

	byID := make(map[string]*domain.BadgeStatus)
	for _, st := range statuses {
		byID[st.Badge.ID] = st
	}
	if !byID["saver"].Earned || byID["saver"].EarnedAt == nil {
		t.Error("expected saver to be earned")
	}
	if byID["collector"].Earned {
		t.Error("expected collector to be unearned")
	}
	if byID["collector"].Progress.Target != 3 {
		t.Errorf("expected collector target 3, got %d", byID["collector"].Progress.Target)
	}
}

func TestSetRepresentative(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	seedBadge(t, repo, "saver", "Silver", domain.BadgeCondBenefitMonthly, map[string]any{"minAmount": 1000})
	seedBadge(t, repo, "starter", "Bronze", domain.BadgeCondCardCount, map[string]any{"minCount": 1})
	seedGrant(t, repo, "tx-001", 2000, now.AddDate(0, 0, -1))

	if _, err := svc.CheckAndAward(ctx, "user-001", now); err != nil {
		t.Fatalf("CheckAndAward failed: %v", err)
	}

	if err := svc.SetRepresentative(ctx, "user-001", "saver"); err != nil {
		t.Fatalf("SetRepresentative failed: %v", err)
	}
	owned, err := repo.ListUserBadges(ctx, "user-001")
	if err != nil {
		t.Fatalf("ListUserBadges failed: %v", err)
	}
	if len(owned) != 1 || !owned[0].Representative {
		t.Errorf("expected saver to be representative: %+v", owned)
	}

	// Bronze badges cannot be representative.
	if err := svc.SetRepresentative(ctx, "user-001", "starter"); err == nil {
		t.Error("expected error for non-representative tier")
	}

	// Unearned badges cannot be representative either.
	seedBadge(t, repo, "legend", "Gold", domain.BadgeCondBenefitMonthly, map[string]any{"minAmount": 10000000})
	if err := svc.SetRepresentative(ctx, "user-001", "legend"); err == nil {
		t.Error("expected error for unearned badge")
	}
}

package recommend

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/performance"
	"github.com/cardlens/cardlens/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "cardlens-recommend-*.db")
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

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

type stubPlaces struct {
	places []*domain.Place
	err    error
}

func (s *stubPlaces) Nearby(ctx context.Context, lat, lng float64, radius int, category string) ([]*domain.Place, error) {
	return s.places, s.err
}

// seedCatalog registers two cards for user-001: card-cafe pays 10% at
// cafes capped at 1000 per transaction, card-flat pays a flat 500 on
// anything.
func seedCatalog(t *testing.T, repo domain.Repository) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	cards := []*domain.Card{
		{ID: "card-cafe", Name: "Cafe Lover", Issuer: "First Bank", CreatedAt: now},
		{ID: "card-flat", Name: "Flat Saver", Issuer: "Second Bank", CreatedAt: now},
	}
	for _, c := range cards {
		if err := repo.SaveCard(ctx, c); err != nil {
			t.Fatalf("SaveCard failed: %v", err)
		}
		uc := &domain.UserCard{UserID: "user-001", CardID: c.ID, RegisteredAt: now}
		if err := repo.RegisterUserCard(ctx, uc); err != nil {
			t.Fatalf("RegisterUserCard failed: %v", err)
		}
	}

	benefits := []*domain.Benefit{
		{
			ID: "benefit-cafe", CardID: "card-cafe", Category: "cafe",
			Title: "10% cafe discount", Kind: domain.KindDiscount,
			Rate: f64(0.10), PerTxnDiscountCap: i64(1000), Priority: 1,
		},
		{
			ID: "benefit-flat", CardID: "card-flat",
			Title: "500 everywhere", Kind: domain.KindRebate,
			FlatAmount: i64(500), Priority: 2,
		},
	}
	for _, b := range benefits {
		if err := repo.SaveBenefit(ctx, b); err != nil {
			t.Fatalf("SaveBenefit failed: %v", err)
		}
	}
}

func newTestService(t *testing.T, repo domain.Repository, places domain.PlacesClient) *Service {
	t.Helper()
	cfg := domain.RecommendConfig{
		MinSaving:          300,
		AssumedAmount:      10000,
		PreferredKindBoost: 1.5,
		MissedLimit:        10,
		MissedWindowDays:   30,
	}
	return NewService(repo, performance.NewTracker(repo), places, cfg, 200)
}

func TestRecommendRanking(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	svc := newTestService(t, repo, nil)
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	recs, err := svc.Recommend(context.Background(), &domain.RecommendRequest{
		UserID:           "user-001",
		Amount:           8000,
		MerchantCategory: "cafe",
	}, at)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].CardID != "card-cafe" || recs[0].Amount != 800 {
		t.Errorf("expected card-cafe saving 800 first, got %s/%d", recs[0].CardID, recs[0].Amount)
	}
	if recs[1].CardID != "card-flat" || recs[1].Amount != 500 {
		t.Errorf("expected card-flat saving 500 second, got %s/%d", recs[1].CardID, recs[1].Amount)
	}
	if recs[0].BenefitID != "benefit-cafe" {
		t.Errorf("unexpected benefit: %s", recs[0].BenefitID)
	}
}

func TestRecommendMinSavingThreshold(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	svc := newTestService(t, repo, nil)
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	// A 2000 payment earns 200 on cafe, below the 300 threshold. Only
	// the flat 500 survives.
	recs, err := svc.Recommend(context.Background(), &domain.RecommendRequest{
		UserID:           "user-001",
		Amount:           2000,
		MerchantCategory: "cafe",
	}, at)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 1 || recs[0].CardID != "card-flat" {
		t.Fatalf("expected only card-flat, got %+v", recs)
	}
}

func TestRecommendNoEligibleCards(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, nil)

	recs, err := svc.Recommend(context.Background(), &domain.RecommendRequest{
		UserID:           "user-without-cards",
		Amount:           8000,
		MerchantCategory: "cafe",
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty result, got %d", len(recs))
	}
}

func TestRecommendSkipsUnknownCard(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	svc := newTestService(t, repo, nil)
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	recs, err := svc.Recommend(context.Background(), &domain.RecommendRequest{
		UserID:           "user-001",
		Amount:           8000,
		MerchantCategory: "cafe",
		CardIDs:          []string{"card-cafe", "no-such-card"},
	}, at)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 1 || recs[0].CardID != "card-cafe" {
		t.Fatalf("expected card-cafe only, got %+v", recs)
	}
}

func TestRecommendRespectsMonthlyUsage(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	// Rebuild the cafe benefit with a 1500 monthly cap, mostly used.
	benefit := &domain.Benefit{
		ID: "benefit-cafe", CardID: "card-cafe", Category: "cafe",
		Title: "10% cafe discount", Kind: domain.KindDiscount,
		Rate: f64(0.10), Priority: 1,
		MonthlyCaps: []domain.SpendTier{{MinSpend: 0, MonthlyCap: 1500}},
	}
	if err := repo.SaveBenefit(ctx, benefit); err != nil {
		t.Fatalf("SaveBenefit failed: %v", err)
	}

	prior := &domain.Transaction{
		ID: "tx-prior", UserID: "user-001", CardID: "card-cafe",
		Amount: 12000, MerchantCategory: "cafe",
		Status: domain.StatusApproved, ApprovedAt: at.AddDate(0, 0, -3), CreatedAt: at.AddDate(0, 0, -3),
	}
	if err := repo.SaveTransaction(ctx, prior); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}
	agg := &domain.BenefitAggregation{
		ID: "agg-prior", TransactionID: "tx-prior", CardID: "card-cafe",
		BenefitID: "benefit-cafe", Amount: 1200, GrantedAt: prior.ApprovedAt,
	}
	if err := repo.SaveAggregation(ctx, agg); err != nil {
		t.Fatalf("SaveAggregation failed: %v", err)
	}

	svc := newTestService(t, repo, nil)
	recs, err := svc.Recommend(ctx, &domain.RecommendRequest{
		UserID:           "user-001",
		Amount:           8000,
		MerchantCategory: "cafe",
	}, at)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	// Only 300 of cap room remains, so the flat 500 wins.
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].CardID != "card-flat" {
		t.Errorf("expected card-flat first, got %s", recs[0].CardID)
	}
	if recs[1].Amount != 300 {
		t.Errorf("expected capped saving 300, got %d", recs[1].Amount)
	}
}

func TestCurrentLocation(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	places := &stubPlaces{places: []*domain.Place{
		{ID: "p1", Name: "Mega Coffee", Category: "cafe", Distance: 40},
		{ID: "p2", Name: "Burger Town", Category: "food", Distance: 90},
	}}
	svc := newTestService(t, repo, places)

	loc, err := svc.CurrentLocation(context.Background(), "user-001", 37.5, 127.0, at)
	if err != nil {
		t.Fatalf("CurrentLocation failed: %v", err)
	}
	if loc == nil || loc.Place.ID != "p1" {
		t.Fatalf("expected nearest place p1, got %+v", loc)
	}
	if loc.AssumedAmount != 10000 {
		t.Errorf("expected assumed amount 10000, got %d", loc.AssumedAmount)
	}
	// 10% of 10000 capped at 1000 beats the flat 500.
	if loc.Recommendation == nil || loc.Recommendation.CardID != "card-cafe" {
		t.Fatalf("expected card-cafe, got %+v", loc.Recommendation)
	}
	if loc.Recommendation.Amount != 1000 {
		t.Errorf("expected amount 1000, got %d", loc.Recommendation.Amount)
	}
}

func TestCurrentLocationPreferredKindBoost(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	// 10% of 10000 is 1000 vs flat 500; a 1.5x rebate boost lifts
	// the flat card to 750, still short. Shrink the cafe cap so the
	// boost flips the pick while amounts stay truthful.
	benefit := &domain.Benefit{
		ID: "benefit-cafe", CardID: "card-cafe", Category: "cafe",
		Title: "10% cafe discount", Kind: domain.KindDiscount,
		Rate: f64(0.10), PerTxnDiscountCap: i64(600), Priority: 1,
	}
	if err := repo.SaveBenefit(ctx, benefit); err != nil {
		t.Fatalf("SaveBenefit failed: %v", err)
	}
	user := &domain.User{ID: "user-001", Name: "Jordan", PreferredKind: "rebate", CreatedAt: at}
	if err := repo.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	places := &stubPlaces{places: []*domain.Place{
		{ID: "p1", Name: "Mega Coffee", Category: "cafe", Distance: 40},
	}}
	svc := newTestService(t, repo, places)

	loc, err := svc.CurrentLocation(ctx, "user-001", 37.5, 127.0, at)
	if err != nil {
		t.Fatalf("CurrentLocation failed: %v", err)
	}
	if loc.Recommendation == nil || loc.Recommendation.CardID != "card-flat" {
		t.Fatalf("expected boosted card-flat, got %+v", loc.Recommendation)
	}
	if loc.Recommendation.Amount != 500 {
		t.Errorf("expected unboosted amount 500, got %d", loc.Recommendation.Amount)
	}
}

func TestCurrentLocationDegrades(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	at := time.Now().UTC()

	for _, tc := range []struct {
		name   string
		places domain.PlacesClient
	}{
		{"NoProvider", nil},
		{"LookupError", &stubPlaces{err: errors.New("upstream down")}},
		{"NothingNearby", &stubPlaces{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, repo, tc.places)
			loc, err := svc.CurrentLocation(context.Background(), "user-001", 37.5, 127.0, at)
			if err != nil {
				t.Fatalf("CurrentLocation failed: %v", err)
			}
			if loc != nil {
				t.Errorf("expected nil recommendation, got %+v", loc)
			}
		})
	}
}

func TestMissedBenefits(t *testing.T) {
	repo := newTestRepo(t)
	seedCatalog(t, repo)
	svc := newTestService(t, repo, nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	// A cafe payment made on the flat card: flat earned 500, the cafe
	// card would have earned 900.
	txs := []*domain.Transaction{
		{
			ID: "tx-001", UserID: "user-001", CardID: "card-flat",
			Amount: 9000, MerchantName: "Mega Coffee", MerchantCategory: "cafe",
			Status: domain.StatusApproved, ApprovedAt: now.AddDate(0, 0, -2), CreatedAt: now.AddDate(0, 0, -2),
		},
		// Best possible already used, no miss.
		{
			ID: "tx-002", UserID: "user-001", CardID: "card-cafe",
			Amount: 9000, MerchantName: "Mega Coffee", MerchantCategory: "cafe",
			Status: domain.StatusApproved, ApprovedAt: now.AddDate(0, 0, -3), CreatedAt: now.AddDate(0, 0, -3),
		},
		// Cancelled transactions are skipped.
		{
			ID: "tx-003", UserID: "user-001", CardID: "card-flat",
			Amount: 9000, MerchantCategory: "cafe",
			Status: domain.StatusCancelled, ApprovedAt: now.AddDate(0, 0, -1), CreatedAt: now.AddDate(0, 0, -1),
		},
		// Outside the 30-day window.
		{
			ID: "tx-004", UserID: "user-001", CardID: "card-flat",
			Amount: 9000, MerchantCategory: "cafe",
			Status: domain.StatusApproved, ApprovedAt: now.AddDate(0, 0, -45), CreatedAt: now.AddDate(0, 0, -45),
		},
	}
	for _, tx := range txs {
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}
	aggs := []*domain.BenefitAggregation{
		{ID: "agg-001", TransactionID: "tx-001", CardID: "card-flat", BenefitID: "benefit-flat", Amount: 500, GrantedAt: txs[0].ApprovedAt},
		{ID: "agg-002", TransactionID: "tx-002", CardID: "card-cafe", BenefitID: "benefit-cafe", Amount: 900, GrantedAt: txs[1].ApprovedAt},
	}
	for _, agg := range aggs {
		if err := repo.SaveAggregation(ctx, agg); err != nil {
			t.Fatalf("SaveAggregation failed: %v", err)
		}
	}

	missed, err := svc.MissedBenefits(ctx, "user-001", 0, now)
	if err != nil {
		t.Fatalf("MissedBenefits failed: %v", err)
	}
	if len(missed) != 1 {
		t.Fatalf("expected 1 missed benefit, got %d", len(missed))
	}
	m := missed[0]
	if m.TransactionID != "tx-001" {
		t.Errorf("expected tx-001, got %s", m.TransactionID)
	}
	if m.UsedCardID != "card-flat" || m.ActualSaving != 500 {
		t.Errorf("unexpected used card: %s/%d", m.UsedCardID, m.ActualSaving)
	}
	if m.BetterCardID != "card-cafe" || m.BetterSaving != 900 {
		t.Errorf("unexpected better card: %s/%d", m.BetterCardID, m.BetterSaving)
	}
	if m.MissedAmount != 400 {
		t.Errorf("expected missed amount 400, got %d", m.MissedAmount)
	}
	if m.UsedCardName != "Flat Saver" || m.BetterCardName != "Cafe Lover" {
		t.Errorf("card names not resolved: %q/%q", m.UsedCardName, m.BetterCardName)
	}
}

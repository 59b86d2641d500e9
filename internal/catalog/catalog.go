// Package catalog loads card, benefit and badge definitions from JSON
// fixtures and seeds them into the repository.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
)

// Fixture is the on-disk catalog format.
type Fixture struct {
	Cards    []*domain.Card    `json:"cards"`
	Benefits []*domain.Benefit `json:"benefits"`
	Badges   []*domain.Badge   `json:"badges,omitempty"`
}

// Load reads and validates a catalog fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks referential integrity within the fixture.
func (f *Fixture) Validate() error {
	cardIDs := make(map[string]bool, len(f.Cards))
	for _, c := range f.Cards {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("card requires id and name: %+v", c)
		}
		if cardIDs[c.ID] {
			return fmt.Errorf("duplicate card id %s", c.ID)
		}
		cardIDs[c.ID] = true
	}

	benefitIDs := make(map[string]bool, len(f.Benefits))
	for _, b := range f.Benefits {
		if b.ID == "" {
			return fmt.Errorf("benefit requires id: %+v", b)
		}
		if benefitIDs[b.ID] {
			return fmt.Errorf("duplicate benefit id %s", b.ID)
		}
		benefitIDs[b.ID] = true
		if !cardIDs[b.CardID] {
			return fmt.Errorf("benefit %s references unknown card %s", b.ID, b.CardID)
		}
		if b.Rate == nil && b.FlatAmount == nil {
			return fmt.Errorf("benefit %s needs a rate or a flat amount", b.ID)
		}
		for _, w := range b.Windows {
			if err := validateWindow(w); err != nil {
				return fmt.Errorf("benefit %s: %w", b.ID, err)
			}
		}
	}

	for _, badge := range f.Badges {
		if badge.ID == "" || badge.ConditionType == "" {
			return fmt.Errorf("badge requires id and conditionType: %+v", badge)
		}
	}
	return nil
}

// validateWindow rejects windows that would never match at runtime.
// Window times are compared as strings, so "9:00" has to be caught
// here, not silently skipped during eligibility checks.
func validateWindow(w domain.TimeWindow) error {
	for _, s := range []string{w.Start, w.End} {
		// time.Parse alone accepts "9:00", which the string comparison
		// in eligibility would mis-order, so the width is checked too.
		if len(s) != 5 || s[2] != ':' {
			return fmt.Errorf("window time %q is not zero-padded HH:MM", s)
		}
		if _, err := time.Parse("15:04", s); err != nil {
			return fmt.Errorf("window time %q is not HH:MM", s)
		}
	}
	for _, d := range w.Days {
		if d < 1 || d > 7 {
			return fmt.Errorf("window day %d is outside 1 (Mon) to 7 (Sun)", d)
		}
	}
	return nil
}

// Seed upserts the fixture into the repository.
func (f *Fixture) Seed(ctx context.Context, repo domain.Repository) error {
	now := time.Now().UTC()

	for _, c := range f.Cards {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if err := repo.SaveCard(ctx, c); err != nil {
			return fmt.Errorf("failed to save card %s: %w", c.ID, err)
		}
	}
	for _, b := range f.Benefits {
		if err := repo.SaveBenefit(ctx, b); err != nil {
			return fmt.Errorf("failed to save benefit %s: %w", b.ID, err)
		}
	}
	for _, badge := range f.Badges {
		if err := repo.SaveBadge(ctx, badge); err != nil {
			return fmt.Errorf("failed to save badge %s: %w", badge.ID, err)
		}
	}

	slog.Info("catalog seeded",
		"cards", len(f.Cards),
		"benefits", len(f.Benefits),
		"badges", len(f.Badges),
	)
	return nil
}

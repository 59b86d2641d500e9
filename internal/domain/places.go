package domain

import (
	"context"
)

// Place is a nearby merchant returned by the places provider.
type Place struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"` // internal category, e.g. "cafe"
	Address  string  `json:"address,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Distance int     `json:"distance"` // meters
}

// PlacesClient looks up merchants near a coordinate.
// Implementations must degrade gracefully: a provider outage yields an
// error, and callers fall back to cached or empty results.
type PlacesClient interface {
	// Nearby returns places within radius meters of (lat, lng),
	// nearest first. Category "" means all categories.
	Nearby(ctx context.Context, lat, lng float64, radius int, category string) ([]*Place, error)
}

// PlacesConfig holds configuration for the places provider.
type PlacesConfig struct {
	BaseURL string
	APIKey  string

	// RadiusMeters is the default search radius.
	RadiusMeters int

	// CacheTTL is the places cache TTL in seconds.
	CacheTTL int
}

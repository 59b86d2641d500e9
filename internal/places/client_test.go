package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cardlens/cardlens/internal/cache"
	"github.com/cardlens/cardlens/internal/domain"
)

func newTestServer(t *testing.T, docs map[string][]searchDocument) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/local/search/category.json" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		code := r.URL.Query().Get("category_group_code")
		resp := searchResponse{Documents: docs[code]}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientNearby(t *testing.T) {
	srv := newTestServer(t, map[string][]searchDocument{
		"CE7": {
			{ID: "p2", PlaceName: "Blue Bottle", CategoryGroupCode: "CE7", AddressName: "12 Main St", X: "127.0277", Y: "37.4980", Distance: "150"},
			{ID: "p1", PlaceName: "Mega Coffee", CategoryGroupCode: "CE7", AddressName: "5 Main St", X: "127.0276", Y: "37.4979", Distance: "40"},
		},
	})

	client := NewClient(domain.PlacesConfig{BaseURL: srv.URL, APIKey: "test-key"})
	places, err := client.Nearby(context.Background(), 37.4979, 127.0276, 200, "cafe")
	if err != nil {
		t.Fatalf("Nearby failed: %v", err)
	}
	if len(places) != 2 {
		t.Fatalf("expected 2 places, got %d", len(places))
	}
	if places[0].ID != "p1" {
		t.Errorf("expected nearest place first, got %s", places[0].ID)
	}
	if places[0].Category != "cafe" {
		t.Errorf("expected category cafe, got %s", places[0].Category)
	}
	if places[0].Distance != 40 {
		t.Errorf("expected distance 40, got %d", places[0].Distance)
	}
}

func TestClientNearbyUnsupportedCategory(t *testing.T) {
	client := NewClient(domain.PlacesConfig{BaseURL: "http://localhost:0", APIKey: "k"})
	if _, err := client.Nearby(context.Background(), 37.5, 127.0, 200, "casino"); err == nil {
		t.Error("expected error for unsupported category")
	}
}

func TestClientNearbyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(domain.PlacesConfig{BaseURL: srv.URL, APIKey: "k"})
	if _, err := client.Nearby(context.Background(), 37.5, 127.0, 200, "cafe"); err == nil {
		t.Error("expected error on upstream failure")
	}
}

func TestCachedNearby(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := searchResponse{Documents: []searchDocument{
			{ID: "p1", PlaceName: "Mega Coffee", CategoryGroupCode: "CE7", X: "127.0", Y: "37.5", Distance: "40"},
		}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(domain.PlacesConfig{BaseURL: srv.URL, APIKey: "k"})
	cached := NewCached(client, cache.NewLRUCache(16), 300)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		places, err := cached.Nearby(ctx, 37.49791, 127.02761, 200, "cafe")
		if err != nil {
			t.Fatalf("Nearby failed: %v", err)
		}
		if len(places) != 1 || places[0].ID != "p1" {
			t.Fatalf("unexpected places: %+v", places)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls)
	}

	// A different rounded coordinate misses the cache.
	if _, err := cached.Nearby(ctx, 37.51, 127.02761, 200, "cafe"); err != nil {
		t.Fatalf("Nearby failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls)
	}
}

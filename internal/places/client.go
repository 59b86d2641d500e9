// Package places looks up nearby merchants through a Kakao-compatible
// local search API.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
)

// Provider category codes mapped to internal categories.
var categoryCodes = map[string]string{
	"FD6": "food",
	"CE7": "cafe",
	"CT1": "movie",
	"SW8": "transport",
	"CS2": "convenience",
	"MT1": "shopping",
}

// codeFor returns the provider code for an internal category, "" when
// unknown.
func codeFor(category string) string {
	for code, cat := range categoryCodes {
		if cat == category {
			return code
		}
	}
	return ""
}

// Client queries the provider's category search endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a places client. A zero timeout defaults to 5s.
func NewClient(cfg domain.PlacesConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

type searchResponse struct {
	Documents []searchDocument `json:"documents"`
}

type searchDocument struct {
	ID                string `json:"id"`
	PlaceName         string `json:"place_name"`
	CategoryGroupCode string `json:"category_group_code"`
	AddressName       string `json:"address_name"`
	X                 string `json:"x"` // longitude
	Y                 string `json:"y"` // latitude
	Distance          string `json:"distance"`
}

// Nearby returns places within radius meters of (lat, lng), nearest
// first. Category "" searches every supported category group.
func (c *Client) Nearby(ctx context.Context, lat, lng float64, radius int, category string) ([]*domain.Place, error) {
	codes := []string{}
	if category != "" {
		code := codeFor(category)
		if code == "" {
			return nil, fmt.Errorf("unsupported place category: %s", category)
		}
		codes = append(codes, code)
	} else {
		for code := range categoryCodes {
			codes = append(codes, code)
		}
	}

	var places []*domain.Place
	for _, code := range codes {
		batch, err := c.search(ctx, lat, lng, radius, code)
		if err != nil {
			return nil, err
		}
		places = append(places, batch...)
	}

	sort.Slice(places, func(i, j int) bool {
		return places[i].Distance < places[j].Distance
	})
	return places, nil
}

func (c *Client) search(ctx context.Context, lat, lng float64, radius int, code string) ([]*domain.Place, error) {
	endpoint := c.baseURL + "/v2/local/search/category.json"

	params := url.Values{}
	params.Set("category_group_code", code)
	params.Set("x", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("y", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("radius", strconv.Itoa(radius))
	params.Set("sort", "distance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "KakaoAK "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places request failed: status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode places response: %w", err)
	}

	places := make([]*domain.Place, 0, len(sr.Documents))
	for _, doc := range sr.Documents {
		lat, _ := strconv.ParseFloat(doc.Y, 64)
		lng, _ := strconv.ParseFloat(doc.X, 64)
		distance, _ := strconv.Atoi(doc.Distance)
		places = append(places, &domain.Place{
			ID:       doc.ID,
			Name:     doc.PlaceName,
			Category: categoryCodes[doc.CategoryGroupCode],
			Address:  doc.AddressName,
			Lat:      lat,
			Lng:      lng,
			Distance: distance,
		})
	}
	return places, nil
}

package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/geocode"
)

const (
	// DefaultBaseURL is the public OpenStreetMap Nominatim instance
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies the app as the Nominatim usage policy requires
	DefaultUserAgent = "carpool-lk/0.1 (contact: admin@carpool.lk)"
	// DefaultCountryCodes restricts searches to Sri Lanka
	DefaultCountryCodes = "lk"
)

// HTTPDoer is the subset of *http.Client used by Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client searches places through the Nominatim /search endpoint
type Client struct {
	httpClient   HTTPDoer
	baseURL      string
	userAgent    string
	countryCodes string
}

// NewClient creates a Nominatim client. Empty arguments take package defaults.
func NewClient(baseURL, userAgent, countryCodes string) *Client {
	return NewClientWithHTTPDoer(baseURL, userAgent, countryCodes, &http.Client{Timeout: 10 * time.Second})
}

// NewClientWithHTTPDoer creates a client with a custom HTTP implementation
func NewClientWithHTTPDoer(baseURL, userAgent, countryCodes string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if countryCodes == "" {
		countryCodes = DefaultCountryCodes
	}
	return &Client{
		httpClient:   doer,
		baseURL:      strings.TrimRight(baseURL, "/"),
		userAgent:    userAgent,
		countryCodes: countryCodes,
	}
}

// Search returns up to limit places for query. Items with unparseable coordinates are skipped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocode.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []geocode.Location{}, nil
	}
	limit = max(1, min(limit, geocode.MaxSuggestLimit))

	params := url.Values{}
	params.Set("q", query)
	params.Set("countrycodes", c.countryCodes)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")

	requestURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var items []searchItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	locations := make([]geocode.Location, 0, len(items))
	for _, item := range items {
		if loc, ok := item.toLocation(query); ok {
			locations = append(locations, loc)
		}
	}
	return locations, nil
}

// searchItem is one jsonv2 result; coordinates arrive as strings
type searchItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName *string `json:"display_name"`
	Name        *string `json:"name"`
}

func (item searchItem) toLocation(fallbackName string) (geocode.Location, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(item.Lat), 64)
	if err != nil {
		return geocode.Location{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(item.Lon), 64)
	if err != nil {
		return geocode.Location{}, false
	}
	point, err := geo.NewPoint(lat, lng)
	if err != nil {
		return geocode.Location{}, false
	}

	address := fallbackName
	if item.DisplayName != nil {
		address = *item.DisplayName
	}

	var label string
	switch {
	case item.Name != nil:
		label = *item.Name
	case item.DisplayName != nil:
		label, _, _ = strings.Cut(*item.DisplayName, ",")
	default:
		label = fallbackName
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = fallbackName
	}

	return geocode.Location{
		Name:    label,
		Address: strings.TrimSpace(address),
		Point:   point,
	}, true
}

package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/polyline"
)

// DefaultBaseURL is the public OSRM demo server
const DefaultBaseURL = "https://router.project-osrm.org"

// HTTPDoer is the subset of *http.Client used by Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the OSRM route service
type Client struct {
	httpClient HTTPDoer
	baseURL    string
	profile    string
}

// RouteData is the first route returned for a request
type RouteData struct {
	Points         []geo.Point
	DistanceMeters float64
	DurationSecs   float64
}

// NewClient creates a new OSRM client for the driving profile
func NewClient(baseURL string) *Client {
	return NewClientWithHTTPDoer(baseURL, &http.Client{Timeout: 10 * time.Second})
}

// NewClientWithHTTPDoer creates a client with a custom HTTP implementation
func NewClientWithHTTPDoer(baseURL string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: doer,
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    "driving",
	}
}

// Route implements routing.RoadRouter
func (c *Client) Route(ctx context.Context, waypoints []geo.Point) ([]geo.Point, error) {
	data, err := c.ComputeRoute(ctx, waypoints)
	if err != nil {
		return nil, err
	}
	return data.Points, nil
}

// ComputeRoute requests a full-overview driving route through waypoints in order
func (c *Client) ComputeRoute(ctx context.Context, waypoints []geo.Point) (*RouteData, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("at least 2 waypoints required, got %d", len(waypoints))
	}

	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=polyline",
		c.baseURL, c.profile, coordinateString(waypoints))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Code != "Ok" {
		return nil, fmt.Errorf("routing failed: %s %s", response.Code, response.Message)
	}
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	route := response.Routes[0]
	points, err := polyline.Decode(route.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode route geometry: %w", err)
	}

	return &RouteData{
		Points:         points,
		DistanceMeters: route.Distance,
		DurationSecs:   route.Duration,
	}, nil
}

// coordinateString formats waypoints as OSRM's "lng,lat;lng,lat" path segment
func coordinateString(points []geo.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.FormatFloat(p.Longitude, 'f', -1, 64) + "," +
			strconv.FormatFloat(p.Latitude, 'f', -1, 64)
	}
	return strings.Join(parts, ";")
}

type routeResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message,omitempty"`
	Routes  []routeEntry `json:"routes"`
}

type routeEntry struct {
	Geometry string  `json:"geometry"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

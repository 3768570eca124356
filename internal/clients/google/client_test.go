package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/polyline"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

// Helper function to create mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var (
	colombo    = geo.Point{Latitude: 6.9271, Longitude: 79.8612}
	kandy      = geo.Point{Latitude: 7.2906, Longitude: 80.6337}
	kegalle    = geo.Point{Latitude: 7.2513, Longitude: 80.3464}
	roadPoints = []geo.Point{colombo, {Latitude: 7.0873, Longitude: 80.0144}, kegalle, kandy}
)

func routesBody(t *testing.T, duration string, distance int32, points []geo.Point) string {
	t.Helper()
	body, err := json.Marshal(GoogleRoutesResponse{Routes: []GoogleRoute{{
		Duration:       duration,
		DistanceMeters: distance,
		Polyline:       GooglePolyline{EncodedPolyline: polyline.Encode(points)},
	}}})
	require.NoError(t, err)
	return string(body)
}

func TestComputeRoutes_Success(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, routesBody(t, "10840s", 115432, roadPoints)), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP)

	routeData, err := client.ComputeRoutes(context.Background(), []geo.Point{colombo, kandy})
	require.NoError(t, err)
	require.NotNil(t, routeData)

	assert.Equal(t, int32(10840), routeData.DurationSeconds)
	assert.Equal(t, int32(115432), routeData.DistanceMeters)
	assert.Equal(t, polyline.Encode(roadPoints), routeData.Polyline)
	require.Len(t, routeData.Points, len(roadPoints))
	assert.InDelta(t, kegalle.Latitude, routeData.Points[2].Latitude, 1e-5)

	mockHTTP.AssertExpectations(t)
}

func TestRoute_ReturnsDecodedPoints(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, routesBody(t, "60s", 1000, roadPoints)), nil)

	points, err := NewClientWithHTTPDoer("k", "https://routes.test", mockHTTP).Route(context.Background(), []geo.Point{colombo, kandy})
	require.NoError(t, err)
	assert.Len(t, points, len(roadPoints))
}

func TestComputeRoutes_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "empty routes", status: 200, body: `{"routes": []}`, want: "no routes found in response"},
		{name: "rate limit", status: 429, body: `{"error": {"message": "Quota exceeded"}}`, want: "rate limit exceeded"},
		{name: "bad request", status: 400, body: `{"error": {"message": "Invalid coordinates"}}`, want: "API error 400"},
		{name: "invalid json", status: 200, body: `{"invalid": json}`, want: "failed to decode response"},
		{name: "missing duration", status: 200, body: `{"routes":[{"distanceMeters":1,"polyline":{"encodedPolyline":""}}]}`, want: "failed to parse duration"},
		{name: "bad polyline", status: 200, body: `{"routes":[{"duration":"5s","polyline":{"encodedPolyline":"_p~iF~ps|U_"}}]}`, want: "failed to decode polyline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockHTTP := &MockHTTPDoer{}
			mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
				createMockResponse(tt.status, tt.body), nil)

			client := NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP)

			routeData, err := client.ComputeRoutes(context.Background(), []geo.Point{colombo, kandy})
			assert.Error(t, err)
			assert.Nil(t, routeData)
			assert.Contains(t, err.Error(), tt.want)

			mockHTTP.AssertExpectations(t)
		})
	}
}

func TestComputeRoutes_RequestFormat(t *testing.T) {
	var capturedRequest *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		capturedRequest = args.Get(0).(*http.Request)
	}).Return(createMockResponse(200, routesBody(t, "1s", 1, roadPoints)), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP)

	_, err := client.ComputeRoutes(context.Background(), []geo.Point{colombo, kegalle, kandy})
	require.NoError(t, err)

	require.NotNil(t, capturedRequest)
	assert.Equal(t, "POST", capturedRequest.Method)
	assert.Equal(t, "/directions/v2:computeRoutes", capturedRequest.URL.Path)
	assert.Equal(t, "test-api-key", capturedRequest.Header.Get("X-Goog-Api-Key"))
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))
	assert.Equal(t, "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline",
		capturedRequest.Header.Get("X-Goog-FieldMask"))

	body, err := io.ReadAll(capturedRequest.Body)
	require.NoError(t, err)

	var decoded struct {
		Origin        map[string]map[string]map[string]float64   `json:"origin"`
		Destination   map[string]map[string]map[string]float64   `json:"destination"`
		Intermediates []map[string]map[string]map[string]float64 `json:"intermediates"`
		TravelMode    string                                     `json:"travelMode"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, "DRIVE", decoded.TravelMode)
	assert.Equal(t, 6.9271, decoded.Origin["location"]["latLng"]["latitude"])
	assert.Equal(t, 80.6337, decoded.Destination["location"]["latLng"]["longitude"])
	require.Len(t, decoded.Intermediates, 1)
	assert.Equal(t, 7.2513, decoded.Intermediates[0]["location"]["latLng"]["latitude"])
}

func TestComputeRoutes_NoIntermediatesForTwoWaypoints(t *testing.T) {
	var body []byte
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		body, _ = io.ReadAll(args.Get(0).(*http.Request).Body)
	}).Return(createMockResponse(200, routesBody(t, "1s", 1, roadPoints)), nil)

	_, err := NewClientWithHTTPDoer("k", "https://routes.test", mockHTTP).ComputeRoutes(context.Background(), []geo.Point{colombo, kandy})
	require.NoError(t, err)
	assert.NotContains(t, string(body), "intermediates")
}

func TestComputeRoutes_NeedsTwoWaypoints(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	_, err := NewClientWithHTTPDoer("k", "https://routes.test", mockHTTP).ComputeRoutes(context.Background(), []geo.Point{colombo})
	assert.Error(t, err)
	mockHTTP.AssertNotCalled(t, "Do", mock.Anything)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    int32
		wantErr bool
	}{
		{in: "450s", want: 450},
		{in: "0s", want: 0},
		{in: "12", want: 12},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Package events publishes ride domain events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	RidePublished = "ride.published"
	RouteRepaired = "route.repaired"
)

// Envelope wraps every event on the wire
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope
func NewEnvelope(source, eventType string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// ParseData decodes the payload into v
func (e Envelope) ParseData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// RidePublishedEvent is emitted after a ride and its route are stored
type RidePublishedEvent struct {
	RideID          string    `json:"ride_id"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	DepartureAt     time.Time `json:"departure_at"`
	RouteDistanceKm float64   `json:"route_distance_km"`
	PointCount      int       `json:"point_count"`
	Degraded        bool      `json:"degraded"`
}

// RouteRepairedEvent is emitted when a legacy or corrupt route record is rebuilt
type RouteRepairedEvent struct {
	RideID     string  `json:"ride_id"`
	Source     string  `json:"source"`
	DistanceKm float64 `json:"distance_km"`
	PointCount int     `json:"point_count"`
}

// Publisher sends events keyed for partitioning
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, data interface{}) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

// Close does nothing
func (NopPublisher) Close() error { return nil }

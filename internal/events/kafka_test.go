package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockWriter is a mock implementation of messageWriter
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &MockWriter{}
	var written []kafkago.Message
	writer.On("WriteMessages", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		written = args.Get(1).([]kafkago.Message)
	}).Return(nil)

	p := newKafkaPublisher(writer, "ride.events", "carpool-server", nil)

	departure := time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC)
	err := p.Publish(context.Background(), RidePublished, "ride-1", RidePublishedEvent{
		RideID:          "ride-1",
		From:            "Colombo",
		To:              "Kandy",
		DepartureAt:     departure,
		RouteDistanceKm: 115.2,
		PointCount:      87,
	})
	require.NoError(t, err)
	require.Len(t, written, 1)

	msg := written[0]
	assert.Equal(t, "ride-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, RidePublished, string(msg.Headers[0].Value))

	var envelope Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, RidePublished, envelope.Type)
	assert.Equal(t, "carpool-server", envelope.Source)
	assert.NotEmpty(t, envelope.ID)
	assert.False(t, envelope.OccurredAt.IsZero())

	var evt RidePublishedEvent
	require.NoError(t, envelope.ParseData(&evt))
	assert.Equal(t, "Kandy", evt.To)
	assert.True(t, evt.DepartureAt.Equal(departure))
	assert.Equal(t, 87, evt.PointCount)

	writer.AssertExpectations(t)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	writer := &MockWriter{}
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))

	p := newKafkaPublisher(writer, "ride.events", "carpool-server", nil)
	err := p.Publish(context.Background(), RouteRepaired, "ride-2", RouteRepairedEvent{RideID: "ride-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Contains(t, err.Error(), "ride.events")
}

func TestKafkaPublisher_UnmarshalableData(t *testing.T) {
	writer := &MockWriter{}
	p := newKafkaPublisher(writer, "ride.events", "carpool-server", nil)

	err := p.Publish(context.Background(), RidePublished, "k", make(chan int))
	assert.Error(t, err)
	writer.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

func TestKafkaPublisher_Close(t *testing.T) {
	writer := &MockWriter{}
	writer.On("Close").Return(nil)

	require.NoError(t, newKafkaPublisher(writer, "t", "s", nil).Close())
	writer.AssertExpectations(t)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), RidePublished, "k", nil))
	assert.NoError(t, p.Close())
}

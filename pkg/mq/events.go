package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/hardwater/pkg/water"
)

// Default queue for accepted readings.
const DefaultReadingsQueue = "water-readings"

// ReadingEvent is published for every reading accepted by the ingest endpoint.
type ReadingEvent struct {
	AcceptedAt time.Time     `json:"accepted_at"`
	Area       water.AreaID  `json:"area"`
	Key        string        `json:"key"`
	Reading    water.Reading `json:"reading"`
}

// Publisher is the subset of ClientInterface used by event producers.
type Publisher interface {
	Push(ctx context.Context, data []byte) error
}

// PublishJSON encodes v and pushes it with confirmation.
func PublishJSON(ctx context.Context, p Publisher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.Push(ctx, data)
}

// DecodeReadingEvent parses a delivery body into a ReadingEvent.
func DecodeReadingEvent(d amqp.Delivery) (ReadingEvent, error) {
	var ev ReadingEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return ReadingEvent{}, fmt.Errorf("failed to decode reading event: %w", err)
	}
	if ev.Area == "" || ev.Key == "" {
		return ReadingEvent{}, fmt.Errorf("reading event is missing area or key")
	}
	return ev, nil
}

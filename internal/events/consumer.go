package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"rideengine/internal/repository"
	"rideengine/internal/service"
)

const maxReadBackoff = 30 * time.Second

// LocationHandler applies a location event.
type LocationHandler interface {
	HandleLocationChanged(ctx context.Context, ev service.LocationChanged) ([]repository.RideRef, error)
}

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// locationMessage is the wire format of a location event.
type locationMessage struct {
	UserID      string    `json:"user_id"`
	Coordinates []float64 `json:"coordinates"`
	Address     string    `json:"address,omitempty"`
}

var errMalformedLocation = errors.New("malformed location message")

// LocationConsumer reads location events from Kafka and hands them to the
// location bridge.
type LocationConsumer struct {
	reader  messageReader
	handler LocationHandler
	logger  *slog.Logger
}

// NewLocationConsumer creates a consumer in the given consumer group.
func NewLocationConsumer(brokers []string, topic, groupID string, handler LocationHandler, logger *slog.Logger) *LocationConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: groupID, MinBytes: 10e3, MaxBytes: 10e6})
	return &LocationConsumer{reader: r, handler: handler, logger: logger}
}

// Run consumes until ctx is done. Read errors back off exponentially; a bad
// message is logged and skipped.
func (c *LocationConsumer) Run(ctx context.Context) {
	backoff := time.Second

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("location consumer stopped")
				return
			}
			c.logger.Warn("kafka read failed", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxReadBackoff {
				backoff = maxReadBackoff
			}
			continue
		}
		backoff = time.Second

		c.handle(ctx, m)
	}
}

func (c *LocationConsumer) handle(ctx context.Context, m kafka.Message) {
	ev, err := decodeLocationMessage(m.Value)
	if err != nil {
		c.logger.Warn("location event invalid", "offset", m.Offset, "error", err)
		return
	}

	if _, err := c.handler.HandleLocationChanged(ctx, ev); err != nil {
		c.logger.Warn("location event rejected", "user_id", ev.UserID, "offset", m.Offset, "error", err)
	}
}

// Close closes the underlying reader.
func (c *LocationConsumer) Close() error {
	return c.reader.Close()
}

func decodeLocationMessage(b []byte) (service.LocationChanged, error) {
	var msg locationMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return service.LocationChanged{}, fmt.Errorf("%w: %v", errMalformedLocation, err)
	}
	if msg.UserID == "" {
		return service.LocationChanged{}, fmt.Errorf("%w: missing user_id", errMalformedLocation)
	}
	if len(msg.Coordinates) != 2 {
		return service.LocationChanged{}, fmt.Errorf("%w: coordinates must be [lng, lat]", errMalformedLocation)
	}
	return service.LocationChanged{
		UserID:      msg.UserID,
		Coordinates: [2]float64{msg.Coordinates[0], msg.Coordinates[1]},
		Address:     msg.Address,
	}, nil
}

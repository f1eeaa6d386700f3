// README: Outbound dispatch domain events, published to Kafka keyed by booking id.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeDriverAssigned   = "booking.driver_assigned"
	TypeOfferAccepted    = "offer.accepted"
	TypeOfferDeclined    = "offer.declined"
	TypeOfferExpired     = "offer.expired"
	TypeBookingTimedOut  = "booking.timed_out"
	TypeBookingCancelled = "booking.cancelled"
)

type DomainEvent struct {
	Type      string    `json:"type"`
	BookingID string    `json:"bookingId"`
	DriverID  string    `json:"driverId,omitempty"`
	OfferID   string    `json:"offerId,omitempty"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e DomainEvent) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e DomainEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.BookingID), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DomainEvent) error { return nil }

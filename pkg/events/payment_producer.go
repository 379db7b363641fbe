// Package events publishes ride lifecycle messages to downstream systems.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// PaymentReady is emitted once a ride completes and can be charged.
type PaymentReady struct {
	RideID        string    `json:"ride_id"`
	PassengerID   string    `json:"passenger_id"`
	DriverID      string    `json:"driver_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	PaymentStatus string    `json:"payment_status"`
	CompletedAt   time.Time `json:"completed_at"`
}

type PaymentPublisher interface {
	PublishPaymentReady(ctx context.Context, event PaymentReady) error
	Close() error
}

type KafkaPaymentProducer struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaPaymentProducer(brokers []string, topic string, timeout time.Duration) *KafkaPaymentProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.Hash{}})
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &KafkaPaymentProducer{writer: w, timeout: timeout}
}

// PublishPaymentReady keys messages by ride id so retries for one ride land
// on the same partition.
func (k *KafkaPaymentProducer) PublishPaymentReady(ctx context.Context, event PaymentReady) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode payment event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.RideID), Value: b})
}

func (k *KafkaPaymentProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// NopPaymentPublisher drops every event. Used when no brokers are configured.
type NopPaymentPublisher struct{}

func (NopPaymentPublisher) PublishPaymentReady(ctx context.Context, event PaymentReady) error {
	return nil
}

func (NopPaymentPublisher) Close() error { return nil }

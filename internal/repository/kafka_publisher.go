package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
)

// MessageProducer is the part of pkg/kafka.Producer the publishers use.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaSnapshotPublisher writes every refreshed snapshot as JSON, keyed by
// provenance so LIVE and FALLBACK events keep their own partition order.
type KafkaSnapshotPublisher struct {
	producer MessageProducer
	topic    string
}

func NewKafkaSnapshotPublisher(producer MessageProducer, topic string) domrepo.Publisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, s models.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(s.Provenance), payload); err != nil {
		return fmt.Errorf("publish snapshot to %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the underlying producer.
func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaLogPublisher ships aggregated log batches for the logger's
// collector. It does not own the producer.
type KafkaLogPublisher struct {
	producer MessageProducer
}

func NewKafkaLogPublisher(producer MessageProducer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, []byte("logs"), payload)
}

// NopPublisher drops snapshots. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.Snapshot) error { return nil }
func (NopPublisher) Close() error                                  { return nil }

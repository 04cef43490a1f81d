package repository

import (
	"context"
	"fmt"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	pkgkafka "SignalForge/pkg/kafka"
)

// KafkaResultPublisher writes finished analyses to the results topic, keyed
// by item id so reruns of an item land on the same partition.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.AnalysisResult) error {
	if r == nil {
		return nil
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(r.Input.ID), r); err != nil {
		return fmt.Errorf("publish result %s: %w", r.Input.ID, err)
	}
	return nil
}

func (p *KafkaResultPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher discards results; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.AnalysisResult) error { return nil }

func (NopPublisher) Close() error { return nil }

var (
	_ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)
	_ domrepo.ResultPublisher = NopPublisher{}
)

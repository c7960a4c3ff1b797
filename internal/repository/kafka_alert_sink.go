package repository

import (
	"context"

	"FlowSentry/internal/domain/models"
	"FlowSentry/internal/domain/repository"
	pkgkafka "FlowSentry/pkg/kafka"
)

// KafkaAlertSink publishes cluster alerts to a Kafka topic, keyed by ticker
// so downstream consumers see per-ticker order.
type KafkaAlertSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAlertSink creates the sink.
func NewKafkaAlertSink(producer *pkgkafka.Producer, topic string) repository.AlertSink {
	return &KafkaAlertSink{producer: producer, topic: topic}
}

func (s *KafkaAlertSink) Name() string { return "kafka" }

func (s *KafkaAlertSink) Deliver(ctx context.Context, ev *models.ClusterEvent) error {
	return s.producer.Publish(ctx, s.topic, []byte(ev.Ticker), ev)
}

func (s *KafkaAlertSink) Close() error {
	return nil // producer owned by DI
}

package repository

import (
	"context"

	pkgkafka "FlowSentry/pkg/kafka"
	applogger "FlowSentry/pkg/logger"
)

// KafkaLogPublisher ships aggregated log batches to a Kafka topic.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

var _ applogger.Publisher = (*KafkaLogPublisher)(nil)

// NewKafkaLogPublisher creates the publisher.
func NewKafkaLogPublisher(producer *pkgkafka.Producer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

// PublishMessage sends one aggregated batch. Log batches carry no ordering
// requirement, so no key is set.
func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

package kafka

import (
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// OutboxTopicPublisher реализует domain.OutboxPublisher поверх Producer.
// Один экземпляр пишет в один topic: outbox worker держит отдельные
// публикаторы для событий и для dead letter.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher публикует в topic, пустой topic означает TopicEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// Publish отправляет событие в Envelope с ключом по объекту, чтобы
// события одного charge или customer попадали в одну партицию.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return ErrProducerClosed
	}

	envelope := NewEnvelope(event, p.now())
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope, envelopeHeaders(envelope)...)
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func envelopeHeaders(envelope Envelope) []sarama.RecordHeader {
	return []sarama.RecordHeader{Header(HeaderEventType, envelope.EventType)}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

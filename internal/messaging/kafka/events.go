package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// Topics для Kafka
const (
	TopicEvents          = "chargemock.events"
	TopicDeadLetterQueue = "chargemock.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
)

// Envelope — сообщение, которое outbox публикует в TopicEvents.
// Payload содержит событие песочницы (object=event) как есть.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope заворачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   publishedAt.UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного объекта идут по порядку.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DeadLetter описывает запись в DLQ. Outbox worker заполняет поля события,
// consumer — поля исходного сообщения (Original*).
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id,omitempty"`
	AggregateType string          `json:"aggregate_type,omitempty"`
	AggregateID   string          `json:"aggregate_id,omitempty"`
	EventType     string          `json:"event_type,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PublishError  string          `json:"publish_error,omitempty"`
	OriginalTopic string          `json:"original_topic,omitempty"`
	OriginalKey   string          `json:"original_key,omitempty"`
	OriginalValue string          `json:"original_value,omitempty"`
	RetryCount    int             `json:"retry_count,omitempty"`
	FailedAt      string          `json:"failed_at,omitempty"`
}

// FromOutbox сообщает, что запись пришла из outbox worker.
func (d DeadLetter) FromOutbox() bool {
	return d.OutboxID != "" && len(d.Payload) > 0
}

// Envelope восстанавливает исходный конверт события для повторной публикации.
func (d DeadLetter) Envelope(publishedAt time.Time) Envelope {
	return Envelope{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       d.Payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// ParseEnvelope парсит Envelope из сообщения.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if envelope.ID == "" || envelope.EventType == "" {
		return Envelope{}, fmt.Errorf("envelope is missing id or event_type")
	}
	return envelope, nil
}

// ParseDeadLetter парсит запись DLQ. Outbox кладёт DeadLetter в Payload
// конверта, consumer пишет DeadLetter напрямую.
func ParseDeadLetter(message *sarama.ConsumerMessage) (DeadLetter, error) {
	if envelope, err := ParseEnvelope(message); err == nil && len(envelope.Payload) > 0 {
		var letter DeadLetter
		if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
			return DeadLetter{}, fmt.Errorf("failed to unmarshal dead letter payload: %w", err)
		}
		if letter.FromOutbox() {
			return letter, nil
		}
	}

	var letter DeadLetter
	if err := json.Unmarshal(message.Value, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if !letter.FromOutbox() && letter.OriginalValue == "" {
		return DeadLetter{}, fmt.Errorf("dead letter carries no replayable message")
	}
	return letter, nil
}

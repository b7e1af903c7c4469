package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	envelope := NewEnvelope(domain.OutboxMessage{
		ID:          "m-1",
		AggregateID: "test_ch_1",
		EventType:   "charge.captured",
		Payload:     []byte(`{"id":"test_evt_1"}`),
	}, at)

	if envelope.Key() != "test_ch_1" {
		t.Fatalf("unexpected key %s", envelope.Key())
	}
	if envelope.PublishedAt.Location() != time.UTC {
		t.Fatal("published_at must be UTC")
	}
	if (Envelope{ID: "m-2"}).Key() != "m-2" {
		t.Fatal("key should fall back to message id")
	}
}

func TestParseEnvelope(t *testing.T) {
	if _, err := ParseEnvelope(&sarama.ConsumerMessage{Value: []byte(`{"id":"m-1","event_type":"charge.succeeded","payload":{}}`)}); err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if _, err := ParseEnvelope(&sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if _, err := ParseEnvelope(&sarama.ConsumerMessage{Value: []byte(`{"payload":{}}`)}); err == nil {
		t.Fatal("expected error for envelope without id")
	}
}

func TestParseDeadLetter_FromOutbox(t *testing.T) {
	letter := DeadLetter{
		OutboxID:     "m-1",
		AggregateID:  "test_ch_1",
		EventType:    "charge.succeeded",
		Payload:      json.RawMessage(`{"object":"event"}`),
		PublishError: "broker down",
	}
	payload, err := json.Marshal(letter)
	if err != nil {
		t.Fatal(err)
	}
	value, err := json.Marshal(Envelope{ID: "m-1", EventType: "charge.succeeded", Payload: payload})
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseDeadLetter(&sarama.ConsumerMessage{Value: value})
	if err != nil {
		t.Fatalf("ParseDeadLetter failed: %v", err)
	}
	if !parsed.FromOutbox() || parsed.PublishError != "broker down" {
		t.Fatalf("unexpected dead letter %+v", parsed)
	}

	replay := parsed.Envelope(time.Now())
	if replay.ID != "m-1" || replay.Key() != "test_ch_1" || string(replay.Payload) != `{"object":"event"}` {
		t.Fatalf("unexpected replay envelope %+v", replay)
	}
}

func TestParseDeadLetter_FromConsumer(t *testing.T) {
	value := []byte(`{"original_topic":"chargemock.events","original_key":"k","original_value":"{}","retry_count":3}`)
	parsed, err := ParseDeadLetter(&sarama.ConsumerMessage{Value: value})
	if err != nil {
		t.Fatalf("ParseDeadLetter failed: %v", err)
	}
	if parsed.FromOutbox() || parsed.OriginalTopic != TopicEvents || parsed.RetryCount != 3 {
		t.Fatalf("unexpected dead letter %+v", parsed)
	}

	if _, err := ParseDeadLetter(&sarama.ConsumerMessage{Value: []byte(`{}`)}); err == nil {
		t.Fatal("expected error for empty dead letter")
	}
	if _, err := ParseDeadLetter(&sarama.ConsumerMessage{Value: []byte(`{`)}); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

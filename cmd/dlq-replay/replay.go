package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/messaging/kafka"
)

// rawPublisher — часть kafka.Producer, которой достаточно для повторной публикации.
type rawPublisher interface {
	PublishRaw(topic, key string, value []byte, headers ...sarama.RecordHeader) error
}

// replayMessage — сообщение, восстановленное из записи DLQ.
type replayMessage struct {
	topic   string
	key     string
	value   []byte
	headers []sarama.RecordHeader
}

// replayer превращает записи DLQ обратно в исходные сообщения.
// В dry-run режиме кандидаты только логируются.
type replayer struct {
	publisher   rawPublisher
	targetTopic string
	execute     bool
	now         func() time.Time
	logger      *log.Entry
}

// replay обрабатывает одно сообщение DLQ. Нераспознанные записи пропускаются
// (replayed=false, err=nil), ошибка возвращается только при сбое публикации.
func (r *replayer) replay(msg *sarama.ConsumerMessage) (bool, error) {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	replayMsg, err := r.extract(msg)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("skip unsupported dlq message")
		return false, nil
	}

	fields["target_topic"] = replayMsg.topic
	fields["key"] = replayMsg.key
	if !r.execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return true, nil
	}

	if err := r.publisher.PublishRaw(replayMsg.topic, replayMsg.key, replayMsg.value, replayMsg.headers...); err != nil {
		return false, fmt.Errorf("publish replay message: %w", err)
	}
	r.logger.WithFields(fields).Debug("dlq message replayed")
	return true, nil
}

func (r *replayer) extract(msg *sarama.ConsumerMessage) (replayMessage, error) {
	letter, err := kafka.ParseDeadLetter(msg)
	if err != nil {
		return replayMessage{}, err
	}

	if letter.FromOutbox() {
		envelope := letter.Envelope(r.now())
		value, err := json.Marshal(envelope)
		if err != nil {
			return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
		}
		return replayMessage{
			topic: r.targetTopic,
			key:   envelope.Key(),
			value: value,
			headers: []sarama.RecordHeader{kafka.Header(kafka.HeaderEventType, envelope.EventType)},
		}, nil
	}

	topic := letter.OriginalTopic
	if topic == "" {
		topic = r.targetTopic
	}
	return replayMessage{
		topic: topic,
		key:   letter.OriginalKey,
		value: []byte(letter.OriginalValue),
		// счётчик сбрасывается: consumer снова получает полный набор попыток
		headers: []sarama.RecordHeader{kafka.Header(kafka.HeaderRetryCount, strconv.Itoa(0))},
	}, nil
}

package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ClientID, под которым песочница представляется брокерам.
const ClientID = "chargemock"

// ErrProducerClosed возвращается при публикации через неинициализированный producer.
var ErrProducerClosed = errors.New("kafka producer is not initialized")

// Producer публикует события песочницы в Kafka через синхронный sarama producer.
// Синхронная отправка нужна outbox worker: запись помечается sent только
// после подтверждения брокером.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

// NewProducer подключается к brokers с настройками NewProducerConfig.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers list is empty")
	}
	syncProducer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return NewProducerFrom(syncProducer, logger), nil
}

// NewProducerFrom оборачивает готовый sarama.SyncProducer, в тестах это mocks.
func NewProducerFrom(syncProducer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: syncProducer, logger: logger, now: time.Now}
}

// NewProducerConfig: идемпотентный producer, подтверждение от всех ISR.
// Idempotent требует ровно одного запроса в полёте на соединение.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = ClientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 250 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// Header собирает заголовок записи.
func Header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}

// PublishEvent кодирует event в JSON и отправляет в topic.
func (p *Producer) PublishEvent(topic, key string, event any, headers ...sarama.RecordHeader) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %T for topic %s: %w", event, topic, err)
	}
	return p.PublishRaw(topic, key, value, headers...)
}

// PublishRaw отправляет уже закодированное значение. dlq-replay пользуется
// им, чтобы вернуть исходные байты в topic без перекодирования.
func (p *Producer) PublishRaw(topic, key string, value []byte, headers ...sarama.RecordHeader) error {
	if p == nil || p.sync == nil {
		return ErrProducerClosed
	}

	entry := p.logger.WithFields(log.Fields{"topic": topic, "key": key})
	partition, offset, err := p.sync.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		entry.WithError(err).Error("kafka rejected message")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("message acknowledged")
	return nil
}

// Close сбрасывает буферы и закрывает соединения.
func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

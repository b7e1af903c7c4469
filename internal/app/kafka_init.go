package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/messaging/kafka"
)

// splitBrokers разбирает список брокеров через запятую, отбрасывая пробелы.
func splitBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers выбирает публикаторов outbox: Kafka при наличии producer,
// иначе журнал событий в логе.
func outboxPublishers(producer *kafka.Producer, cfg Config, logger *log.Entry) (publisher, dlq domain.OutboxPublisher) {
	if producer == nil {
		return newLogPublisher(logger), nil
	}
	dlqTopic := cfg.KafkaDLQTopic
	if dlqTopic == "" {
		dlqTopic = kafka.TopicDeadLetterQueue
	}
	return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), kafka.NewOutboxPublisher(producer, dlqTopic)
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher пишет события outbox в лог, когда Kafka не настроена.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) *logPublisher {
	return &logPublisher{logger: logger.WithField("component", "event-log")}
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Debug("event published")
	return nil
}

package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultRetryDelay = 100 * time.Millisecond

// MessageHandler обрабатывает одно сообщение. Ошибка запускает повтор.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOptions задаёт параметры Consumer.
type ConsumerOptions struct {
	Logger        *log.Entry
	DLQProducer   *Producer
	MaxRetries    int
	RetryDelay    time.Duration
	InitialOffset int64
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*ConsumerOptions)

// WithConsumerLogger задаёт logger.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.Logger = logger
	}
}

// WithDLQ включает отправку в TopicDeadLetterQueue после исчерпания попыток.
func WithDLQ(producer *Producer) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.DLQProducer = producer
	}
}

// WithMaxRetries задаёт число повторов handler после первой ошибки.
func WithMaxRetries(maxRetries int) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.MaxRetries = maxRetries
	}
}

// WithRetryDelay задаёт паузу между повторами.
func WithRetryDelay(delay time.Duration) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.RetryDelay = delay
	}
}

// WithOldestOffset начинает чтение новой группы с самого старого сообщения.
func WithOldestOffset() ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.InitialOffset = sarama.OffsetOldest
	}
}

// Consumer читает topics в consumer group. Сообщение, которое handler
// не смог обработать за maxRetries повторов, уходит в DLQ, если она настроена.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	maxRetries  int
	retryDelay  time.Duration
	now         func() time.Time
}

// NewConsumer подключает consumer group groupID к brokers.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, options ...ConsumerOption) (*Consumer, error) {
	opts := ConsumerOptions{
		MaxRetries:    3,
		RetryDelay:    defaultRetryDelay,
		InitialOffset: sarama.OffsetNewest,
	}
	for _, option := range options {
		option(&opts)
	}

	config := sarama.NewConfig()
	config.ClientID = ClientID + "-consumer"
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = opts.InitialOffset
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("join consumer group %s: %w", groupID, err)
	}

	return newConsumer(group, topics, handler, opts), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ConsumerOptions) *Consumer {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	return &Consumer{
		consumer:    group,
		topics:      topics,
		handler:     handler,
		logger:      logger,
		dlqProducer: opts.DLQProducer,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		now:         time.Now,
	}
}

// Start запускает чтение в фоне и сразу возвращается.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается после каждого rebalance
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("consume session ended with error")
			}

			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает партицию по порядку и коммитит только
// обработанные сообщения.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(fields).Error("message processing failed after all retries")
				// Не маркируем: сообщение будет перечитано после rebalance.
				continue
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessageWithRetry вызывает handler до maxRetries+1 раз. Если все
// попытки неуспешны и DLQ настроена, сообщение уходит в DLQ и считается обработанным.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var err error
	retries := getRetryCount(message)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err = c.handler(ctx, message); err == nil {
			return nil
		}
		retries++

		if attempt == c.maxRetries {
			break
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": retries,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")

		if c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	if c.dlqProducer == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(message, err, retries); dlqErr != nil {
		return fmt.Errorf("dead-letter %s message: %w", message.Topic, dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retries,
	}).Info("message dead-lettered")
	return nil
}

// getRetryCount читает HeaderRetryCount. Сообщение, возвращённое
// dlq-replay, продолжает счёт с прежнего значения.
func getRetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == HeaderRetryCount {
			if count, err := strconv.Atoi(string(header.Value)); err == nil {
				return count
			}
		}
	}
	return 0
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error, retries int) error {
	letter := DeadLetter{
		PublishError:  processingErr.Error(),
		OriginalTopic: message.Topic,
		OriginalKey:   string(message.Key),
		OriginalValue: string(message.Value),
		RetryCount:    retries,
		FailedAt:      c.now().UTC().Format(time.RFC3339),
	}

	return c.dlqProducer.PublishEvent(
		TopicDeadLetterQueue,
		string(message.Key),
		letter,
		Header(HeaderOriginalTopic, message.Topic),
		Header(HeaderRetryCount, strconv.Itoa(retries)),
	)
}

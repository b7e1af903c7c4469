package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	defaultGroupID     = "chargemock-dlq-replay"
	envKafkaBrokers    = "CHARGEMOCK_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	// follow переключает режим на consumer group, который читает DLQ до сигнала остановки.
	follow  bool
	groupID string
}

// replayDependencies — соединения с Kafka для одного запуска.
type replayDependencies struct {
	client    offsetClient
	consumer  partitionConsumerSource
	publisher rawPublisher
	closeFns  []func() error
}

func (d *replayDependencies) close() {
	for i := len(d.closeFns) - 1; i >= 0; i-- {
		_ = d.closeFns[i]()
	}
}

var newReplayDependencies = func(cfg config, logger *log.Entry) (*replayDependencies, error) {
	deps := &replayDependencies{}

	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, logger.WithField("component", "kafka-producer"))
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		deps.publisher = producer
		deps.closeFns = append(deps.closeFns, producer.Close)
	}
	if cfg.follow {
		return deps, nil
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	deps.client = client
	deps.closeFns = append(deps.closeFns, client.Close)

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}
	deps.consumer = consumer
	deps.closeFns = append(deps.closeFns, consumer.Close)

	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.WithField("component", "dlq-replay")); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicEvents, "target topic for outbox events")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	fs.BoolVar(&cfg.follow, "follow", false, "consume DLQ continuously via consumer group until interrupted")
	fs.StringVar(&cfg.groupID, "group", defaultGroupID, "consumer group for -follow")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(envKafkaBrokers)
	}

	cfg.brokers = parseBrokers(brokersRaw)
	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, errors.New("target-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	case cfg.follow && strings.TrimSpace(cfg.groupID) == "":
		return config{}, errors.New("group is required with -follow")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
		"follow":       cfg.follow,
	}).Info("starting dlq replay")

	deps, err := newReplayDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	r := &replayer{
		publisher:   deps.publisher,
		targetTopic: cfg.targetTopic,
		execute:     cfg.execute,
		now:         time.Now,
		logger:      logger,
	}
	if cfg.execute && r.publisher == nil {
		return errors.New("producer is required in execute mode")
	}

	if cfg.follow {
		return follow(ctx, cfg, r, logger)
	}

	if deps.client == nil || deps.consumer == nil {
		return errors.New("kafka client and consumer are required")
	}
	s := &scanner{client: deps.client, consumer: deps.consumer, replayer: r, cfg: cfg}
	stats, err := s.run(ctx)
	logSummary(logger, cfg, stats)
	return err
}

// follow читает DLQ через kafka.Consumer до отмены ctx. Ошибка публикации
// оставляет сообщение непомеченным, и оно будет перечитано.
func follow(ctx context.Context, cfg config, r *replayer, logger *log.Entry) error {
	handler := func(_ context.Context, msg *sarama.ConsumerMessage) error {
		_, err := r.replay(msg)
		return err
	}

	consumer, err := kafka.NewConsumer(cfg.brokers, cfg.groupID, []string{cfg.sourceTopic}, handler,
		kafka.WithConsumerLogger(logger.WithField("component", "dlq-consumer")),
		kafka.WithOldestOffset(),
	)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return consumer.Stop()
}

func logSummary(logger *log.Entry, cfg config, stats scanStats) {
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

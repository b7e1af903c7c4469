package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/chargemock/internal/messaging/kafka"
)

// consumerLetter — запись, которую kafka.Consumer пишет после исчерпания попыток.
const consumerLetter = `{"original_topic":"chargemock.events","original_key":"ch_1","original_value":"{\"id\":\"evt_1\"}","retry_count":3}`

var replayedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func newTestReplayer(publisher rawPublisher, execute bool) *replayer {
	return &replayer{
		publisher:   publisher,
		targetTopic: kafka.TopicEvents,
		execute:     execute,
		now:         func() time.Time { return replayedAt },
		logger:      quietLogger(),
	}
}

// outboxLetter — запись, которую outbox worker публикует через OutboxTopicPublisher:
// конверт события, в payload которого лежит DeadLetter.
func outboxLetter(t *testing.T) []byte {
	t.Helper()

	letter, err := json.Marshal(kafka.DeadLetter{
		OutboxID:      "outbox-1",
		AggregateType: "charge",
		AggregateID:   "ch_1",
		EventType:     "charge.succeeded",
		Payload:       json.RawMessage(`{"id":"evt_1","object":"event"}`),
		PublishError:  "broker unavailable",
	})
	require.NoError(t, err)

	raw, err := json.Marshal(kafka.Envelope{
		ID:          "outbox-1",
		EventType:   "charge.succeeded",
		AggregateID: "ch_1",
		Payload:     letter,
	})
	require.NoError(t, err)
	return raw
}

func dlqMessage(partition int32, offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Partition: partition, Offset: offset, Value: []byte(value)}
}

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"broker-1:9092":                   {"broker-1:9092"},
		" broker-1:9092, ,broker-2:9092 ": {"broker-1:9092", "broker-2:9092"},
		"":                                {},
		" , ":                             {},
	}
	for raw, want := range tests {
		require.Equal(t, want, parseBrokers(raw), "raw=%q", raw)
	}
}

func TestReplayer_ExtractConsumerLetter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     string
		wantTopic string
		wantKey   string
	}{
		{name: "original topic", value: consumerLetter, wantTopic: "chargemock.events", wantKey: "ch_1"},
		{name: "falls back to target topic", value: `{"original_key":"ch_2","original_value":"{}"}`, wantTopic: kafka.TopicEvents, wantKey: "ch_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := newTestReplayer(nil, false).extract(dlqMessage(0, 0, tt.value))
			require.NoError(t, err)
			require.Equal(t, tt.wantTopic, got.topic)
			require.Equal(t, tt.wantKey, got.key)
			require.Equal(t, []sarama.RecordHeader{kafka.Header(kafka.HeaderRetryCount, "0")}, got.headers)
		})
	}
}

func TestReplayer_ExtractOutboxLetter(t *testing.T) {
	t.Parallel()

	got, err := newTestReplayer(nil, false).extract(&sarama.ConsumerMessage{Value: outboxLetter(t)})
	require.NoError(t, err)
	require.Equal(t, kafka.TopicEvents, got.topic)
	require.Equal(t, "ch_1", got.key)
	require.Equal(t, []sarama.RecordHeader{kafka.Header(kafka.HeaderEventType, "charge.succeeded")}, got.headers)

	envelope, err := kafka.ParseEnvelope(&sarama.ConsumerMessage{Value: got.value})
	require.NoError(t, err)
	require.Equal(t, "outbox-1", envelope.ID)
	require.Equal(t, "charge", envelope.AggregateType)
	require.JSONEq(t, `{"id":"evt_1","object":"event"}`, string(envelope.Payload))
	require.True(t, envelope.PublishedAt.Equal(replayedAt))
}

func TestReplayer_ExtractRejects(t *testing.T) {
	t.Parallel()

	for name, value := range map[string]string{
		"not json":             `not-json`,
		"empty object":         `{}`,
		"payload is a string":  `{"id":"x","payload":"not-an-object"}`,
		"plain charge event":   `{"id":"evt-1","event_type":"charge.succeeded","payload":{"id":"evt-1"}}`,
		"outbox id no payload": `{"outbox_id":"outbox-1"}`,
	} {
		_, err := newTestReplayer(nil, false).extract(dlqMessage(0, 0, value))
		require.Error(t, err, name)
	}
}

func TestReplayer_Replay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		value         string
		execute       bool
		publishErr    error
		wantReplayed  bool
		wantErr       bool
		wantPublished int
	}{
		{name: "dry-run candidate", value: consumerLetter, wantReplayed: true},
		{name: "dry-run skips garbage", value: `{}`},
		{name: "execute publishes", value: consumerLetter, execute: true, wantReplayed: true, wantPublished: 1},
		{name: "execute skips garbage", value: `{}`, execute: true},
		{name: "publish error", value: consumerLetter, execute: true, publishErr: errors.New("send fail"), wantErr: true, wantPublished: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			publisher := &stubPublisher{err: tt.publishErr}
			replayed, err := newTestReplayer(publisher, tt.execute).replay(dlqMessage(0, 7, tt.value))

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantReplayed, replayed)
			require.Len(t, publisher.sent, tt.wantPublished)
		})
	}
}

func TestReplayer_ExecuteThroughProducer(t *testing.T) {
	t.Parallel()

	syncProducer := mocks.NewSyncProducer(t, nil)
	syncProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "chargemock.events" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		if string(value) != `{"id":"evt_1"}` {
			return fmt.Errorf("unexpected value %s", value)
		}
		return nil
	})
	producer := kafka.NewProducerFrom(syncProducer, quietLogger())
	t.Cleanup(func() { _ = producer.Close() })

	replayed, err := newTestReplayer(producer, true).replay(dlqMessage(0, 0, consumerLetter))
	require.NoError(t, err)
	require.True(t, replayed)
}

func TestReadConfig_Flags(t *testing.T) {
	t.Parallel()

	cfg, err := readConfig(flag.NewFlagSet("dlq-replay", flag.ContinueOnError), []string{
		"-brokers= broker-1:9092,broker-2:9092 ",
		"-source-topic=custom.dlq",
		"-target-topic=custom.events",
		"-limit=5",
		"-execute",
		"-from-newest",
		"-idle-timeout=150ms",
	}, func(string) string { return "env-broker:9092" })
	require.NoError(t, err)

	require.Equal(t, config{
		brokers:     []string{"broker-1:9092", "broker-2:9092"},
		sourceTopic: "custom.dlq",
		targetTopic: "custom.events",
		limit:       5,
		execute:     true,
		fromNewest:  true,
		idleTimeout: 150 * time.Millisecond,
		groupID:     defaultGroupID,
	}, cfg)
}

func TestReadConfig_DefaultsWithEnvBrokers(t *testing.T) {
	t.Parallel()

	cfg, err := readConfig(flag.NewFlagSet("dlq-replay", flag.ContinueOnError), []string{"-follow"}, func(key string) string {
		if key == envKafkaBrokers {
			return "env-broker:9092"
		}
		return ""
	})
	require.NoError(t, err)

	require.Equal(t, config{
		brokers:     []string{"env-broker:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicEvents,
		limit:       defaultReplayLimit,
		idleTimeout: defaultIdleTimeout,
		follow:      true,
		groupID:     defaultGroupID,
	}, cfg)
}

func TestReadConfig_Rejects(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"no brokers":         nil,
		"blank source":       {"-brokers=b:9092", "-source-topic= "},
		"blank target":       {"-brokers=b:9092", "-target-topic= "},
		"zero limit":         {"-brokers=b:9092", "-limit=0"},
		"zero idle timeout":  {"-brokers=b:9092", "-idle-timeout=0s"},
		"follow no group":    {"-brokers=b:9092", "-follow", "-group= "},
		"unknown flag":       {"-brokers=b:9092", "-nope"},
		"limit not a number": {"-brokers=b:9092", "-limit=many"},
	}

	for name, args := range tests {
		fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, err := readConfig(fs, args, func(string) string { return "" })
		require.Error(t, err, name)
	}
}

func TestScanner_ScanPartition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		offsets       offsetRange
		messages      []*sarama.ConsumerMessage
		limit         int
		fromNewest    bool
		execute       bool
		want          scanStats
		wantStartAt   []int64
		wantPublished []string
	}{
		{
			name:        "dry-run",
			offsets:     offsetRange{oldest: 0, newest: 2},
			messages:    []*sarama.ConsumerMessage{dlqMessage(0, 0, consumerLetter)},
			limit:       10,
			want:        scanStats{processed: 1, replayed: 1},
			wantStartAt: []int64{0},
		},
		{
			name:    "execute skips garbage",
			offsets: offsetRange{oldest: 0, newest: 2},
			messages: []*sarama.ConsumerMessage{
				dlqMessage(0, 0, consumerLetter),
				dlqMessage(0, 1, `{}`),
			},
			limit:         10,
			execute:       true,
			want:          scanStats{processed: 2, replayed: 1, skipped: 1},
			wantStartAt:   []int64{0},
			wantPublished: []string{"chargemock.events/ch_1"},
		},
		{
			name:        "from newest starts at tail",
			offsets:     offsetRange{oldest: 0, newest: 10},
			messages:    []*sarama.ConsumerMessage{dlqMessage(0, 8, consumerLetter)},
			limit:       2,
			fromNewest:  true,
			want:        scanStats{processed: 1, replayed: 1},
			wantStartAt: []int64{8},
		},
		{
			name:        "stops at high-water mark",
			offsets:     offsetRange{oldest: 0, newest: 1},
			messages:    []*sarama.ConsumerMessage{dlqMessage(0, 0, consumerLetter), dlqMessage(0, 1, consumerLetter)},
			limit:       10,
			want:        scanStats{processed: 1, replayed: 1},
			wantStartAt: []int64{0},
		},
		{
			name:    "stops at limit",
			offsets: offsetRange{oldest: 0, newest: 3},
			messages: []*sarama.ConsumerMessage{
				dlqMessage(0, 0, consumerLetter),
				dlqMessage(0, 1, consumerLetter),
				dlqMessage(0, 2, consumerLetter),
			},
			limit:       2,
			want:        scanStats{processed: 2, replayed: 2},
			wantStartAt: []int64{0},
		},
		{
			name:    "empty partition is not consumed",
			offsets: offsetRange{oldest: 4, newest: 4},
			limit:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &stubOffsetClient{offsets: map[int32]offsetRange{0: tt.offsets}}
			source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: drainedPartition(tt.messages...)}}
			publisher := &stubPublisher{}
			s := &scanner{
				client:   client,
				consumer: source,
				replayer: newTestReplayer(publisher, tt.execute),
				cfg: config{
					sourceTopic: kafka.TopicDeadLetterQueue,
					fromNewest:  tt.fromNewest,
					execute:     tt.execute,
					idleTimeout: 50 * time.Millisecond,
				},
			}

			stats, err := s.scanPartition(context.Background(), 0, tt.limit)
			require.NoError(t, err)
			require.Equal(t, tt.want, stats)
			require.Equal(t, tt.wantStartAt, source.startOffsets())
			require.Equal(t, tt.wantPublished, publisher.targets())
		})
	}
}

func TestScanner_ScanPartitionErrors(t *testing.T) {
	t.Parallel()

	healthy := map[int32]offsetRange{0: {oldest: 0, newest: 2}}

	t.Run("offset lookup", func(t *testing.T) {
		t.Parallel()

		s := newTestScanner(&stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}, &stubPartitionConsumerSource{}, &stubPublisher{})
		_, err := s.scanPartition(context.Background(), 0, 1)
		require.ErrorContains(t, err, "get oldest offset for partition 0")
	})

	t.Run("consume partition", func(t *testing.T) {
		t.Parallel()

		s := newTestScanner(&stubOffsetClient{offsets: healthy}, &stubPartitionConsumerSource{consumeErr: errors.New("consume")}, &stubPublisher{})
		_, err := s.scanPartition(context.Background(), 0, 1)
		require.ErrorContains(t, err, "consume partition 0")
	})

	t.Run("consumer error closes partition", func(t *testing.T) {
		t.Parallel()

		pc := &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError, 1),
		}
		pc.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
		close(pc.errors)

		s := newTestScanner(&stubOffsetClient{offsets: healthy}, &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pc}}, &stubPublisher{})
		_, err := s.scanPartition(context.Background(), 0, 1)
		require.ErrorContains(t, err, "partition 0 consumer error")
		require.True(t, pc.closed)
	})

	t.Run("publish", func(t *testing.T) {
		t.Parallel()

		source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: drainedPartition(dlqMessage(0, 0, consumerLetter))}}
		s := newTestScanner(&stubOffsetClient{offsets: healthy}, source, &stubPublisher{err: errors.New("send fail")})
		stats, err := s.scanPartition(context.Background(), 0, 1)
		require.ErrorContains(t, err, "send fail")
		require.Zero(t, stats.processed)
	})
}

func TestScanner_IdlePartitionEndsScan(t *testing.T) {
	t.Parallel()

	source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: silentPartition()}}
	s := newTestScanner(&stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}, source, nil)
	s.cfg.idleTimeout = 10 * time.Millisecond

	stats, err := s.scanPartition(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Zero(t, stats.processed)
}

func TestScanner_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: silentPartition()}}
	s := newTestScanner(&stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}, source, nil)
	s.cfg.idleTimeout = time.Minute

	_, err := s.scanPartition(ctx, 0, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestScanner_RunVisitsPartitionsInOrderUpToLimit(t *testing.T) {
	t.Parallel()

	client := &stubOffsetClient{
		partitions: []int32{2, 0, 1},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 1},
			1: {oldest: 0, newest: 1},
			2: {oldest: 0, newest: 1},
		},
	}
	source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: drainedPartition(dlqMessage(0, 0, consumerLetter)),
		1: drainedPartition(dlqMessage(1, 0, `{}`)),
		2: drainedPartition(dlqMessage(2, 0, consumerLetter)),
	}}
	s := newTestScanner(client, source, nil)
	s.cfg.limit = 2

	stats, err := s.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, scanStats{processed: 2, replayed: 1, skipped: 1}, stats)
	require.Equal(t, []int32{0, 1}, source.partitions())
}

func TestScanner_RunPartitionsError(t *testing.T) {
	t.Parallel()

	s := newTestScanner(&stubOffsetClient{partitionsErr: errors.New("metadata")}, &stubPartitionConsumerSource{}, nil)
	_, err := s.run(context.Background())
	require.ErrorContains(t, err, "get partitions for topic "+kafka.TopicDeadLetterQueue)
}

func TestRun_Dependencies(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, limit: 1, idleTimeout: 50 * time.Millisecond}
	executeCfg := cfg
	executeCfg.execute = true

	t.Run("dependencies fail", func(t *testing.T) {
		stubDependencies(t, nil, errors.New("deps failed"))
		require.ErrorContains(t, run(context.Background(), cfg, quietLogger()), "deps failed")
	})

	t.Run("scan needs client", func(t *testing.T) {
		stubDependencies(t, &replayDependencies{}, nil)
		require.Error(t, run(context.Background(), cfg, quietLogger()))
	})

	t.Run("execute needs producer", func(t *testing.T) {
		stubDependencies(t, &replayDependencies{}, nil)
		require.ErrorContains(t, run(context.Background(), executeCfg, quietLogger()), "producer is required")
	})

	t.Run("replays and closes", func(t *testing.T) {
		client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
		source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: drainedPartition(dlqMessage(0, 0, consumerLetter))}}
		publisher := &stubPublisher{}
		stubDependencies(t, &replayDependencies{
			client:    client,
			consumer:  source,
			publisher: publisher,
			closeFns:  []func() error{client.Close, source.Close},
		}, nil)

		require.NoError(t, run(context.Background(), executeCfg, quietLogger()))
		require.Equal(t, []string{"chargemock.events/ch_1"}, publisher.targets())
		require.True(t, client.closed)
		require.True(t, source.closed)
	})
}

func TestRun_FollowWithUnreachableBroker(t *testing.T) {
	stubDependencies(t, &replayDependencies{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, config{
		brokers:     []string{"127.0.0.1:1"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicEvents,
		limit:       1,
		idleTimeout: time.Second,
		follow:      true,
		groupID:     defaultGroupID,
	}, quietLogger())
	require.Error(t, err)
}

func TestReplayDependencies_CloseInReverseOrder(t *testing.T) {
	t.Parallel()

	var closed []string
	closer := func(name string, err error) func() error {
		return func() error {
			closed = append(closed, name)
			return err
		}
	}
	deps := &replayDependencies{closeFns: []func() error{
		closer("producer", nil),
		closer("client", errors.New("ignored")),
		closer("consumer", nil),
	}}
	deps.close()

	require.Equal(t, []string{"consumer", "client", "producer"}, closed)
}

func TestMain_ScansWithStubbedDependencies(t *testing.T) {
	oldArgs, oldCommandLine := os.Args, flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	source := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: drainedPartition(dlqMessage(0, 0, consumerLetter))}}
	stubDependencies(t, &replayDependencies{client: client, consumer: source}, nil)

	os.Args = []string{"dlq-replay", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	main()

	require.Equal(t, []int32{0}, source.partitions())
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_REPLAY_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestFailExits$")
	cmd.Env = append(os.Environ(), "DLQ_REPLAY_FAIL_EXIT=1")

	var exitErr *exec.ExitError
	require.ErrorAs(t, cmd.Run(), &exitErr)
	require.Equal(t, 1, exitErr.ExitCode())
}

func newTestScanner(client offsetClient, source partitionConsumerSource, publisher *stubPublisher) *scanner {
	var raw rawPublisher
	if publisher != nil {
		raw = publisher
	}
	return &scanner{
		client:   client,
		consumer: source,
		replayer: newTestReplayer(raw, publisher != nil),
		cfg: config{
			sourceTopic: kafka.TopicDeadLetterQueue,
			limit:       defaultReplayLimit,
			execute:     publisher != nil,
			idleTimeout: 50 * time.Millisecond,
		},
	}
}

// stubDependencies подменяет newReplayDependencies до конца теста.
func stubDependencies(t *testing.T, deps *replayDependencies, err error) {
	t.Helper()

	original := newReplayDependencies
	newReplayDependencies = func(config, *log.Entry) (*replayDependencies, error) { return deps, err }
	t.Cleanup(func() { newReplayDependencies = original })
}

type stubPublisher struct {
	err  error
	sent []string
}

func (s *stubPublisher) PublishRaw(topic, key string, _ []byte, _ ...sarama.RecordHeader) error {
	s.sent = append(s.sent, topic+"/"+key)
	return s.err
}

func (s *stubPublisher) targets() []string {
	return s.sent
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if err := s.offsetErr[partition]; err != nil {
		return 0, err
	}
	switch r := s.offsets[partition]; at {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unexpected offset marker %d", at)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

// stubPartitionConsumerSource запоминает, какие партиции и с какого offset открывались.
type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	opened     []sarama.ConsumerMessage
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.opened = append(s.opened, sarama.ConsumerMessage{Partition: partition, Offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d is not stubbed", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

func (s *stubPartitionConsumerSource) startOffsets() []int64 {
	var offsets []int64
	for _, at := range s.opened {
		offsets = append(offsets, at.Offset)
	}
	return offsets
}

func (s *stubPartitionConsumerSource) partitions() []int32 {
	var partitions []int32
	for _, at := range s.opened {
		partitions = append(partitions, at.Partition)
	}
	return partitions
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }

func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

// drainedPartition отдаёт messages и закрывает каналы, как партиция,
// дочитанная до конца.
func drainedPartition(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	pc := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(messages)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, msg := range messages {
		pc.messages <- msg
	}
	close(pc.messages)
	close(pc.errors)
	return pc
}

// silentPartition никогда ничего не отдаёт.
func silentPartition() *stubPartitionConsumer {
	return &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
}

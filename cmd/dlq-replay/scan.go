package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
)

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// scanStats — итог просмотра DLQ.
type scanStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *scanStats) add(other scanStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// scanner читает DLQ от сохранённого диапазона offset'ов до конца, не
// подписываясь на новые сообщения, и останавливается на limit записях.
type scanner struct {
	client   offsetClient
	consumer partitionConsumerSource
	replayer *replayer
	cfg      config
}

func (s *scanner) run(ctx context.Context) (scanStats, error) {
	var total scanStats

	partitions, err := s.client.Partitions(s.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", s.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := s.cfg.limit - total.processed
		if remaining <= 0 {
			break
		}
		stats, err := s.scanPartition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// offsetRange возвращает [start, end) для партиции с учётом fromNewest.
func (s *scanner) offsetRange(partition int32, limit int) (int64, int64, error) {
	oldest, err := s.client.GetOffset(s.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := s.client.GetOffset(s.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}

	start := oldest
	if s.cfg.fromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}
	return start, newest, nil
}

func (s *scanner) scanPartition(ctx context.Context, partition int32, limit int) (scanStats, error) {
	var stats scanStats

	start, end, err := s.offsetRange(partition, limit)
	if err != nil || end <= start {
		return stats, err
	}

	pc, err := s.consumer.ConsumePartition(s.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(s.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumeErr := <-pc.Errors():
			if consumeErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.idleTimeout)

			replayed, err := s.replayer.replay(msg)
			if err != nil {
				return stats, err
			}
			stats.processed++
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}

			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

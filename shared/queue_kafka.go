package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/segmentio/kafka-go"
)

// KafkaQueue implements MessageQueueClient on a Kafka topic; workers
// share the topic through one consumer group.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger log.Logger
}

func NewKafkaQueue(brokers []string, topic, groupID string, logger log.Logger) *KafkaQueue {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &KafkaQueue{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 1 << 20,
			MaxWait:  time.Second,
		}),
		logger: logger,
	}
}

func (q *KafkaQueue) Publish(ctx context.Context, message JobMessage) error {
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.JobID),
		Value: value,
	})
}

func (q *KafkaQueue) Consume(ctx context.Context) (<-chan JobMessage, error) {
	out := make(chan JobMessage)
	go func() {
		defer close(out)
		for {
			m, err := q.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				level.Warn(q.logger).Log("msg", "kafka read error", "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			var jm JobMessage
			if err := json.Unmarshal(m.Value, &jm); err != nil || jm.JobID == "" {
				level.Warn(q.logger).Log("msg", "dropping malformed message", "offset", m.Offset, "err", err)
				q.commit(ctx, m)
				continue
			}
			select {
			case out <- jm:
				q.commit(ctx, m)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (q *KafkaQueue) commit(ctx context.Context, m kafka.Message) {
	if err := q.reader.CommitMessages(ctx, m); err != nil {
		level.Warn(q.logger).Log("msg", "kafka commit failed", "offset", m.Offset, "err", err)
	}
}

func (q *KafkaQueue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return fmt.Errorf("close kafka writer: %w", werr)
	}
	return rerr
}

package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	redis "github.com/redis/go-redis/v9"
)

// RedisQueue implements MessageQueueClient using a Redis stream read
// through a consumer group, so several workers share one stream.
type RedisQueue struct {
	client   *redis.Client
	name     string
	group    string
	consumer string
	maxLen   int
	block    time.Duration
	logger   log.Logger
}

func NewRedisQueue(client *redis.Client, name, group, consumer string, maxLen int, logger log.Logger) *RedisQueue {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RedisQueue{
		client:   client,
		name:     name,
		group:    group,
		consumer: consumer,
		maxLen:   maxLen,
		block:    2 * time.Second,
		logger:   logger,
	}
}

func (q *RedisQueue) Publish(ctx context.Context, message JobMessage) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: q.name, Values: map[string]any{"data": b}}
	if q.maxLen > 0 {
		args.MaxLen = int64(q.maxLen)
		args.Approx = true
	}
	return q.client.XAdd(ctx, args).Err()
}

func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.name, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.group, err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context) (<-chan JobMessage, error) {
	if q.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	out := make(chan JobMessage)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    q.group,
				Consumer: q.consumer,
				Streams:  []string{q.name, ">"},
				Count:    10,
				Block:    q.block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				level.Warn(q.logger).Log("msg", "stream read failed", "stream", q.name, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			for _, stream := range res {
				for _, msg := range stream.Messages {
					jm, ok := decodeStreamMessage(msg)
					if !ok {
						level.Warn(q.logger).Log("msg", "dropping malformed stream entry", "id", msg.ID)
						q.client.XAck(ctx, q.name, q.group, msg.ID)
						continue
					}
					select {
					case out <- jm:
					case <-ctx.Done():
						return
					}
					if err := q.client.XAck(ctx, q.name, q.group, msg.ID).Err(); err != nil {
						level.Warn(q.logger).Log("msg", "ack failed", "id", msg.ID, "err", err)
					}
				}
			}
		}
	}()
	return out, nil
}

func decodeStreamMessage(msg redis.XMessage) (JobMessage, bool) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return JobMessage{}, false
	}
	var jm JobMessage
	if err := json.Unmarshal([]byte(raw), &jm); err != nil || jm.JobID == "" {
		return JobMessage{}, false
	}
	return jm, true
}

// Close is a no-op; the client is shared and closed by its owner.
func (q *RedisQueue) Close() error { return nil }

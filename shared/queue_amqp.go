package shared

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue implements MessageQueueClient on a durable RabbitMQ queue
// published through the default exchange.
type AMQPQueue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	prefetch int
	logger   log.Logger
}

func NewAMQPQueue(url, queue string, prefetch int, logger log.Logger) (*AMQPQueue, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &AMQPQueue{conn: conn, channel: ch, queue: queue, prefetch: prefetch, logger: logger}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, message JobMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return q.channel.PublishWithContext(ctx,
		"",
		q.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Consume(ctx context.Context) (<-chan JobMessage, error) {
	msgs, err := q.channel.Consume(
		q.queue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", q.queue, err)
	}
	out := make(chan JobMessage)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					level.Warn(q.logger).Log("msg", "amqp delivery channel closed", "queue", q.queue)
					return
				}
				var jm JobMessage
				if err := json.Unmarshal(msg.Body, &jm); err != nil || jm.JobID == "" {
					level.Warn(q.logger).Log("msg", "dropping malformed delivery", "err", err)
					msg.Nack(false, false)
					continue
				}
				select {
				case out <- jm:
					msg.Ack(false)
				case <-ctx.Done():
					msg.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *AMQPQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

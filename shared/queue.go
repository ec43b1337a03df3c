// shared/queue.go
package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned by Publish after Close.
var ErrQueueClosed = errors.New("queue is closed")

// JobMessage represents the data sent through the queue for a job
type JobMessage struct {
	JobID      string `json:"job_id"`
	TargetLang string `json:"target_lang"`
}

// MessageQueueClient hands accepted jobs from the gateway to the workers.
// The channel returned by Consume is closed when ctx ends or the queue is closed.
type MessageQueueClient interface {
	Publish(ctx context.Context, message JobMessage) error
	Consume(ctx context.Context) (<-chan JobMessage, error)
	Close() error
}

// InMemoryQueue implements MessageQueueClient using a Go channel
type InMemoryQueue struct {
	queue chan JobMessage
	stop  chan struct{}
	once  sync.Once
}

// NewInMemoryQueue creates a new in-memory queue instance
func NewInMemoryQueue(bufferSize int) *InMemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryQueue{
		queue: make(chan JobMessage, bufferSize),
		stop:  make(chan struct{}),
	}
}

// Publish sends a message to the queue without blocking
func (q *InMemoryQueue) Publish(_ context.Context, message JobMessage) error {
	select {
	case <-q.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case q.queue <- message:
		return nil
	default:
		return fmt.Errorf("queue is full, cannot publish job %s", message.JobID)
	}
}

// Consume forwards queued messages until ctx ends or the queue is closed
func (q *InMemoryQueue) Consume(ctx context.Context) (<-chan JobMessage, error) {
	out := make(chan JobMessage)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			case msg := <-q.queue:
				select {
				case out <- msg:
				case <-ctx.Done():
					// put it back for the next consumer
					select {
					case q.queue <- msg:
					default:
					}
					return
				}
			}
		}
	}()
	return out, nil
}

// Len reports the number of messages waiting.
func (q *InMemoryQueue) Len() int { return len(q.queue) }

// Close stops the queue; pending messages are dropped
func (q *InMemoryQueue) Close() error {
	q.once.Do(func() {
		close(q.stop)
	})
	return nil
}

// Package memory provides an in-process queue with per-key FIFO delivery
// and at-least-once semantics, for tests and local development.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/praksys/wsmonitor/internal/queue"
)

// ErrClosed is returned for operations on a closed queue.
var ErrClosed = errors.New("memory queue closed")

type delivery struct {
	key  string
	data []byte
}

// Queue is a bounded-memory, per-key FIFO queue. A nacked (or unacked)
// message is redelivered before any later message of the same key, which
// mirrors the redelivery behavior of a partitioned broker.
type Queue struct {
	mu     sync.Mutex
	byKey  map[string][]delivery
	order  []string
	closed bool
	wake   chan struct{}
}

// New constructs an empty queue.
func New() *Queue {
	return &Queue{
		byKey: make(map[string][]delivery),
		wake:  make(chan struct{}, 1),
	}
}

// Publish appends the payload to its key's FIFO.
func (q *Queue) Publish(_ context.Context, key string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, ok := q.byKey[key]; !ok {
		q.order = append(q.order, key)
	}
	q.byKey[key] = append(q.byKey[key], delivery{key: key, data: append([]byte(nil), data...)})
	q.signal()
	return nil
}

// Receive delivers messages one at a time until the context ends. Handlers
// run synchronously; per-key order is therefore trivially preserved, and a
// message that is not acked is delivered again.
func (q *Queue) Receive(ctx context.Context, handle func(context.Context, *queue.Message)) error {
	for {
		d, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}

		acked := false
		msg := &queue.Message{
			Key:      d.key,
			Data:     d.data,
			AckFunc:  func() { acked = true },
			NackFunc: func() { acked = false },
		}
		handle(ctx, msg)
		if !acked {
			q.pushFront(d)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close rejects further publishes. Pending messages stay readable so tests
// can drain them.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len reports the number of undelivered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, msgs := range q.byKey {
		n += len(msgs)
	}
	return n
}

func (q *Queue) next() (delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, key := range q.order {
		msgs := q.byKey[key]
		if len(msgs) == 0 {
			continue
		}
		d := msgs[0]
		q.byKey[key] = msgs[1:]
		// Rotate so keys are served round-robin.
		q.order = append(append(q.order[:0:0], q.order[i+1:]...), q.order[:i+1]...)
		return d, true
	}
	return delivery{}, false
}

func (q *Queue) pushFront(d delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byKey[d.key] = append([]delivery{d}, q.byKey[d.key]...)
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

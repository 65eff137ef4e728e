// Package consumer turns the at-least-once metric stream into idempotent,
// ordered appends into each URL's history.
package consumer

import (
	"context"

	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/dedup"
	"github.com/praksys/wsmonitor/internal/metric"
	"github.com/praksys/wsmonitor/internal/metrics"
	"github.com/praksys/wsmonitor/internal/queue"
	"github.com/praksys/wsmonitor/internal/retry"
	"github.com/praksys/wsmonitor/internal/storage/postgres"
)

// Persister appends one metric to a URL's history, reporting whether it was
// appended, already present, or aimed at a deleted URL.
type Persister interface {
	AppendMetric(ctx context.Context, urlID int64, m metric.Metric) (postgres.AppendOutcome, error)
}

// Consumer drains the queue into the persister. A message is acked only
// once it has been fully handled: persisted, recognized as a duplicate or
// orphan, rejected as undecodable, or dropped after exhausting persist
// retries. Anything unacked at a crash is redelivered.
type Consumer struct {
	q      queue.Consumer
	store  Persister
	window *dedup.Window
	policy *retry.Policy
	logger *zap.Logger
}

// New builds a Consumer. A nil policy uses the default backoff.
func New(q queue.Consumer, store Persister, window *dedup.Window, policy *retry.Policy, logger *zap.Logger) *Consumer {
	if policy == nil {
		policy = retry.Default()
	}
	return &Consumer{q: q, store: store, window: window, policy: policy, logger: logger}
}

// Run consumes until the context ends.
func (c *Consumer) Run(ctx context.Context) error {
	return c.q.Receive(ctx, c.handle)
}

func (c *Consumer) handle(ctx context.Context, msg *queue.Message) {
	urlID, m, err := metric.Decode(msg.Data)
	if err != nil {
		// An undecodable message can never succeed; redelivering it would
		// wedge its partition behind a poison pill.
		c.logger.Error("dropping undecodable metric message",
			zap.String("key", msg.Key), zap.Error(err))
		msg.Ack()
		return
	}

	key := metric.KeyOf(urlID, m)
	if c.window.Seen(key) {
		metrics.ObservePersistOutcome(postgres.Duplicate.String())
		msg.Ack()
		return
	}

	var outcome postgres.AppendOutcome
	persistErr := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = c.store.AppendMetric(ctx, urlID, m)
		return err
	})
	if persistErr != nil {
		if ctx.Err() != nil {
			// Shutdown, not failure: leave the message for redelivery.
			msg.Nack()
			return
		}
		metrics.ObservePersistFailure()
		c.logger.Error("metric dropped after persist retries",
			zap.Int64("url_id", urlID),
			zap.Time("timestamp", m.Timestamp),
			zap.Error(persistErr),
		)
		msg.Ack()
		return
	}

	metrics.ObservePersistOutcome(outcome.String())
	switch outcome {
	case postgres.Appended, postgres.Duplicate:
		c.window.Remember(key)
	case postgres.Orphaned:
		c.logger.Info("metric for deleted url dropped",
			zap.Int64("url_id", urlID),
			zap.Time("timestamp", m.Timestamp),
		)
	}
	msg.Ack()
}

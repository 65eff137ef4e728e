// Package publisher serializes metrics and appends them to the durable
// queue, retrying transient failures and dropping (with a signal) on
// exhaustion.
package publisher

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/metric"
	"github.com/praksys/wsmonitor/internal/metrics"
	"github.com/praksys/wsmonitor/internal/queue"
	"github.com/praksys/wsmonitor/internal/retry"
)

// Publisher writes metrics to the queue under the URL id partition key.
type Publisher struct {
	q      queue.Publisher
	policy *retry.Policy
	logger *zap.Logger
}

// New builds a Publisher. A nil policy uses the default backoff.
func New(q queue.Publisher, policy *retry.Policy, logger *zap.Logger) *Publisher {
	if policy == nil {
		policy = retry.Default()
	}
	return &Publisher{q: q, policy: policy, logger: logger}
}

// Publish encodes and sends one metric. Transient send failures are retried
// with jittered backoff; once the policy gives up the metric is dropped,
// counted and the error returned. A dropped metric is never fatal to the
// daemon.
func (p *Publisher) Publish(ctx context.Context, urlID int64, m metric.Metric) error {
	data, err := metric.Encode(urlID, m)
	if err != nil {
		return fmt.Errorf("encode metric for url %d: %w", urlID, err)
	}
	key := strconv.FormatInt(urlID, 10)

	attempt := 0
	err = p.policy.Do(ctx, func(ctx context.Context) error {
		if attempt > 0 {
			metrics.ObservePublishRetry()
		}
		attempt++
		return p.q.Publish(ctx, key, data)
	})
	if err != nil {
		metrics.ObservePublishFailure()
		p.logger.Error("metric dropped after publish retries",
			zap.Int64("url_id", urlID),
			zap.Time("timestamp", m.Timestamp),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return fmt.Errorf("publish metric for url %d: %w", urlID, err)
	}
	return nil
}

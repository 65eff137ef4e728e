// Package pubsub implements the metric queue on Google Cloud Pub/Sub.
// Ordering keys give the per-URL FIFO guarantee a Kafka partition would.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/queue"
)

// Queue is a Pub/Sub backed queue.Publisher and queue.Consumer.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger
}

// Config identifies the topic and, for consumers, the subscription.
type Config struct {
	ProjectID    string
	Topic        string
	Subscription string
	// MaxOutstanding bounds how many messages the consumer holds unacked
	// at once. Zero keeps the client default.
	MaxOutstanding int
}

// New connects a Pub/Sub client and verifies the topic exists. The
// subscription is only resolved when Receive is used.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("pubsub project_id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close pubsub client", zap.Error(cerr))
		}
		return nil, fmt.Errorf("check topic %q: %w", cfg.Topic, err)
	}
	if !ok {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close pubsub client", zap.Error(cerr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.Topic, cfg.ProjectID)
	}
	// Ordering keys are the whole point: without them per-URL metric order
	// is lost across redeliveries.
	topic.EnableMessageOrdering = true

	q := &Queue{client: client, topic: topic, logger: logger}
	if cfg.Subscription != "" {
		sub := client.Subscription(cfg.Subscription)
		if cfg.MaxOutstanding > 0 {
			sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
		}
		q.sub = sub
	}
	return q, nil
}

// Publish appends the payload under the ordering key and waits for the
// server ack. After a failed publish the key is paused client-side; resume
// it so the caller's retry is not rejected outright.
func (q *Queue) Publish(ctx context.Context, key string, data []byte) error {
	res := q.topic.Publish(ctx, &pubsub.Message{Data: data, OrderingKey: key})
	if _, err := res.Get(ctx); err != nil {
		q.topic.ResumePublish(key)
		return fmt.Errorf("publish to %q: %w", q.topic.ID(), err)
	}
	return nil
}

// Receive pulls messages until the context ends. Pub/Sub delivers messages
// sharing an ordering key one at a time, in order, so handlers never see a
// URL's metrics out of order.
func (q *Queue) Receive(ctx context.Context, handle func(context.Context, *queue.Message)) error {
	if q.sub == nil {
		return fmt.Errorf("pubsub subscription is not configured")
	}
	err := q.sub.Receive(ctx, func(mctx context.Context, m *pubsub.Message) {
		handle(mctx, &queue.Message{
			Key:      m.OrderingKey,
			Data:     m.Data,
			AckFunc:  m.Ack,
			NackFunc: m.Nack,
		})
	})
	if err != nil {
		return fmt.Errorf("receive from %q: %w", q.sub.ID(), err)
	}
	return nil
}

// Close stops the publisher and releases the client.
func (q *Queue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

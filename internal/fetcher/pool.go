package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/clock"
	"github.com/praksys/wsmonitor/internal/metric"
	"github.com/praksys/wsmonitor/internal/metrics"
	"github.com/praksys/wsmonitor/internal/registry"
)

// Publisher hands a finished metric to the queue. Implementations own
// their retry and drop policy.
type Publisher interface {
	Publish(ctx context.Context, urlID int64, m metric.Metric) error
}

// Completer receives check completions, clearing the in-flight flag and
// re-arming the URL.
type Completer interface {
	Complete(id int64, completedAt time.Time)
}

// Pool runs a fixed number of check workers over a bounded queue. The
// scheduler submits due URLs; backpressure from a full queue blocks the
// submitter, never grows the fan-out.
type Pool struct {
	jobs      chan registry.Entry
	workers   int
	checker   *Checker
	publisher Publisher
	completer Completer
	clk       clock.Clock
	logger    *zap.Logger
}

// NewPool builds a Pool of the given width and queue depth.
func NewPool(workers, queueDepth int, checker *Checker, publisher Publisher, completer Completer, clk clock.Clock, logger *zap.Logger) *Pool {
	return &Pool{
		jobs:      make(chan registry.Entry, queueDepth),
		workers:   workers,
		checker:   checker,
		publisher: publisher,
		completer: completer,
		clk:       clk,
		logger:    logger,
	}
}

// Submit queues one due URL for checking, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, e registry.Entry) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("submit canceled: %w", ctx.Err())
	case p.jobs <- e:
		return nil
	}
}

// Run starts the workers and blocks until the context finishes and every
// worker has returned. Jobs still queued at shutdown are dropped.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, p.logger.With(zap.Int("worker", worker)))
		}(i)
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, e, logger)
		}
	}
}

func (p *Pool) process(ctx context.Context, e registry.Entry, logger *zap.Logger) {
	metrics.IncInFlight()
	m := p.checker.Check(ctx, e)
	metrics.DecInFlight()
	metrics.ObserveCheck(m.ReturnCode, time.Duration(m.ResponseTime)*time.Millisecond)

	logger.Debug("check finished",
		zap.Int64("url_id", e.ID),
		zap.String("url", e.URL),
		zap.Int("return_code", m.ReturnCode),
		zap.Int64("response_time_ms", m.ResponseTime),
		zap.Bool("regex_check", m.RegexCheck),
	)

	// Publish before signaling completion: the next check for this URL
	// cannot start until Complete runs, which keeps per-URL publish order
	// identical to check order.
	if err := p.publisher.Publish(ctx, e.ID, m); err != nil {
		logger.Warn("metric publish failed",
			zap.Int64("url_id", e.ID), zap.Error(err))
	}

	p.completer.Complete(e.ID, p.clk.Now())
}

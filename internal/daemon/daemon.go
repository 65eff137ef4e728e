// Package daemon assembles the two wsmonitor long-running processes: the
// checker, which schedules and performs URL checks and publishes their
// metrics, and dbupdate, which consumes metrics and persists them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/app"
	"github.com/praksys/wsmonitor/internal/clock/system"
	"github.com/praksys/wsmonitor/internal/consumer"
	"github.com/praksys/wsmonitor/internal/dedup"
	"github.com/praksys/wsmonitor/internal/fetcher"
	"github.com/praksys/wsmonitor/internal/logging"
	"github.com/praksys/wsmonitor/internal/ops"
	"github.com/praksys/wsmonitor/internal/publisher"
	"github.com/praksys/wsmonitor/internal/registry"
	"github.com/praksys/wsmonitor/internal/retry"
	"github.com/praksys/wsmonitor/internal/scheduler"
)

const (
	persistBaseDelay   = 250 * time.Millisecond
	persistMaxAttempts = 5
	opsShutdownGrace   = 10 * time.Second
	opsReadHeaderLimit = 5 * time.Second
)

// RunChecker runs the checker daemon until the context ends: registry
// poller, scheduler, fetch pool, and publisher, plus the ops listener.
func RunChecker(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	logger := logging.ForDaemon(a.Logger(), "checker")

	q, err := a.PublishQueue(ctx)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer func() {
		if cerr := q.Close(); cerr != nil {
			logger.Warn("close queue", zap.Error(cerr))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clk := system.New()
	pub := publisher.New(q, retry.Default(), logger.Named("publisher"))
	check := fetcher.NewChecker(cfg.Checker.Timeout, cfg.Checker.UserAgent, clk)
	sched := scheduler.New(cfg.Checker.Interval, clk, logger.Named("scheduler"))
	pool := fetcher.NewPool(cfg.Checker.Workers, cfg.Checker.QueueDepth,
		check, pub, sched, clk, logger.Named("pool"))
	poller := registry.NewPoller(a.Store(), cfg.Registry.PollInterval,
		logger.Named("registry"))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		pool.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx, poller.Updates(), pool.Submit)
	}()

	logger.Info("checker started",
		zap.Duration("interval", cfg.Checker.Interval),
		zap.Int("workers", cfg.Checker.Workers))

	err = serveOps(ctx, cfg.Ops.Port, ops.NewServer(a.Store(), logger.Named("ops")), logger)
	cancel()
	wg.Wait()
	logger.Info("checker stopped")
	return err
}

// RunDBUpdate runs the dbupdate daemon until the context ends: the metric
// consumer plus the ops listener.
func RunDBUpdate(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	logger := logging.ForDaemon(a.Logger(), "dbupdate")

	q, err := a.ConsumeQueue(ctx)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer func() {
		if cerr := q.Close(); cerr != nil {
			logger.Warn("close queue", zap.Error(cerr))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	window := dedup.NewWindow(cfg.DBUpdate.DedupWindow)
	policy := retry.NewPolicy(persistMaxAttempts, persistBaseDelay, cfg.DBUpdate.PersistWait)
	cons := consumer.New(q, a.Store(), window, policy, logger.Named("consumer"))

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- cons.Run(ctx)
	}()

	logger.Info("dbupdate started",
		zap.Int("workers", cfg.DBUpdate.Workers),
		zap.Int("dedup_window", cfg.DBUpdate.DedupWindow))

	err = serveOps(ctx, cfg.Ops.Port, ops.NewServer(a.Store(), logger.Named("ops")), logger)
	cancel()

	if cerr := <-consumeErr; cerr != nil && !errors.Is(cerr, context.Canceled) {
		logger.Error("consumer stopped with error", zap.Error(cerr))
		if err == nil {
			err = cerr
		}
	}
	logger.Info("dbupdate stopped")
	return err
}

// serveOps runs the ops HTTP listener until the context ends, then shuts it
// down gracefully. A listener failure is returned immediately so the caller
// can stop the rest of the daemon.
func serveOps(ctx context.Context, port int, srv *ops.Server, logger *zap.Logger) error {
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: opsReadHeaderLimit,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server started", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}

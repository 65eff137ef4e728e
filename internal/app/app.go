// Package app initializes and holds the long-lived services shared by the
// wsmonitor commands, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/config"
	"github.com/praksys/wsmonitor/internal/logging"
	"github.com/praksys/wsmonitor/internal/metrics"
	"github.com/praksys/wsmonitor/internal/queue"
	"github.com/praksys/wsmonitor/internal/queue/pubsub"
	"github.com/praksys/wsmonitor/internal/storage/postgres"
)

// App holds the services every command needs: configuration, the logger,
// and the Postgres store. Queues are built per daemon via PublishQueue and
// ConsumeQueue since the CLI commands never touch Pub/Sub.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  *postgres.Store
}

// New loads configuration, initializes logging and metrics, and connects
// the store. It fails fast if any critical service cannot be initialized.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	metrics.Init()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &App{cfg: cfg, logger: logger, store: store}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the Postgres store.
func (a *App) Store() *postgres.Store {
	return a.store
}

// PublishQueue connects a Pub/Sub queue for the checker daemon. No
// subscription is resolved; the checker only publishes.
func (a *App) PublishQueue(ctx context.Context) (queue.Publisher, error) {
	return pubsub.New(ctx, pubsub.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		Topic:     a.cfg.PubSub.Topic,
	}, a.logger.Named("pubsub"))
}

// ConsumeQueue connects a Pub/Sub queue for the dbupdate daemon, bounding
// outstanding messages to the consumer worker count.
func (a *App) ConsumeQueue(ctx context.Context) (queue.Consumer, error) {
	return pubsub.New(ctx, pubsub.Config{
		ProjectID:      a.cfg.PubSub.ProjectID,
		Topic:          a.cfg.PubSub.Topic,
		Subscription:   a.cfg.PubSub.Subscription,
		MaxOutstanding: a.cfg.DBUpdate.Workers,
	}, a.logger.Named("pubsub"))
}

// Close shuts down the shared services. Called once, after the command
// finishes.
func (a *App) Close() {
	a.store.Close()
	// Sync fails harmlessly when stderr is already closed at exit.
	_ = a.logger.Sync()
}

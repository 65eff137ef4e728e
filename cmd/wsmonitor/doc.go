// Package main hosts the wsmonitor entrypoint.
//
// Architecture overview:
//   - Checker daemon: internal/registry polls the websites table for the
//     watched URLs, internal/scheduler keeps each URL on its check interval
//     with at most one check in flight per URL, and internal/fetcher runs the
//     HTTP checks on a bounded worker pool. Each result is published through
//     internal/publisher to the metric queue under the URL's ordering key.
//   - Queue: internal/queue defines the durable queue contract; the
//     production implementation is Google Cloud Pub/Sub with message ordering
//     enabled, so one URL's metrics are delivered in check order. Delivery is
//     at-least-once.
//   - DBUpdate daemon: internal/consumer receives metrics, filters recent
//     duplicates through a bounded dedup window, and appends each metric to
//     its website's history in PostgreSQL. The append itself is idempotent on
//     (website, timestamp), which makes redelivery safe end to end.
//   - Persistence: internal/storage/postgres holds the websites table with a
//     metric[] history column per row, accessed through pgx.
//   - Configuration & plumbing: Viper populates config from a file and
//     WSMONITOR_* env vars; zap provides structured logging; Prometheus
//     collectors are exported on each daemon's /metrics endpoint along with
//     /healthz and a read-only /status view.
//
// Operational notes:
//   - The two daemons share nothing but the queue and the database; either
//     can restart without losing accepted metrics.
//   - Shutdown is coordinated via context cancellation from SIGINT/SIGTERM.
//     Unacked queue messages are redelivered after restart.
//   - Run locally: go run ./cmd/wsmonitor checker --config config.yaml and
//     go run ./cmd/wsmonitor dbupdate --config config.yaml.
package main

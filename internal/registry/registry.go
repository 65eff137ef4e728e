// Package registry reads the watched-URL list and keeps a compiled
// snapshot of it fresh for the scheduler.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/metrics"
)

// MonitoredURL is one registry row. ID is stable for the lifetime of the
// monitor; URL and Regexp may change between polls.
type MonitoredURL struct {
	ID     int64
	URL    string
	Regexp *string
}

// Entry is a registry row plus its compiled pattern. Pattern is nil when no
// regexp is configured.
type Entry struct {
	MonitoredURL
	Pattern *regexp.Regexp
}

// Snapshot is an immutable view of the registry at one poll.
type Snapshot struct {
	Entries map[int64]Entry
	Taken   time.Time
}

// IDs returns the snapshot's URL ids in ascending registry order.
func (s *Snapshot) IDs() []int64 {
	ids := make([]int64, 0, len(s.Entries))
	for id := range s.Entries {
		ids = append(ids, id)
	}
	return ids
}

// Lister is the registry data source, implemented by the Postgres store.
type Lister interface {
	ListURLs(ctx context.Context) ([]MonitoredURL, error)
}

// Poller re-reads the registry on a fixed interval and publishes snapshots.
// A failed read keeps the previous snapshot in effect; the next tick is the
// retry.
type Poller struct {
	lister   Lister
	interval time.Duration
	logger   *zap.Logger

	updates  chan *Snapshot
	compiled map[string]*regexp.Regexp
}

// NewPoller builds a Poller around the given data source.
func NewPoller(lister Lister, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		lister:   lister,
		interval: interval,
		logger:   logger,
		updates:  make(chan *Snapshot, 1),
		compiled: make(map[string]*regexp.Regexp),
	}
}

// Updates delivers registry snapshots. The latest snapshot wins; a slow
// consumer only ever misses intermediate states.
func (p *Poller) Updates() <-chan *Snapshot {
	return p.updates
}

// Run polls until the context ends. The first poll happens immediately so
// the scheduler starts with a populated table.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	snap, err := p.Load(ctx)
	if err != nil {
		metrics.ObserveRegistryFailure()
		p.logger.Warn("registry poll failed, keeping last snapshot", zap.Error(err))
		return
	}

	// Replace any undelivered snapshot so the consumer sees the newest.
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- snap:
	case <-ctx.Done():
	}
}

// Load reads the registry once and compiles patterns that changed since the
// previous load. An invalid pattern disables the content check for that URL
// rather than failing the whole snapshot.
func (p *Poller) Load(ctx context.Context) (*Snapshot, error) {
	urls, err := p.lister.ListURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}

	entries := make(map[int64]Entry, len(urls))
	for _, u := range urls {
		e := Entry{MonitoredURL: u}
		if u.Regexp != nil && *u.Regexp != "" {
			re, ok := p.compiled[*u.Regexp]
			if !ok {
				re, err = regexp.Compile(*u.Regexp)
				if err != nil {
					p.logger.Warn("invalid regexp, content check disabled",
						zap.Int64("url_id", u.ID),
						zap.String("regexp", *u.Regexp),
						zap.Error(err))
					re = nil
				}
				p.compiled[*u.Regexp] = re
			}
			e.Pattern = re
		}
		entries[u.ID] = e
	}
	return &Snapshot{Entries: entries, Taken: time.Now().UTC()}, nil
}

// Package scheduler owns the due-time table: which URL is checked when,
// with at most one in-flight check per URL.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/clock"
	"github.com/praksys/wsmonitor/internal/registry"
)

// tickResolution bounds how late a due check can start. Small relative to
// any sane check interval.
const tickResolution = 500 * time.Millisecond

type entry struct {
	reg      registry.Entry
	due      time.Time
	seq      uint64
	inFlight bool
	// removed is set when the registry dropped the URL while a check was
	// in flight. The entry survives until completion so the URL can never
	// have two concurrent checks, then disappears.
	removed bool
}

// Scheduler decides when each watched URL is due. All table mutation goes
// through its methods; the run loop is the only caller of Tick and
// ApplySnapshot, workers only signal completion.
type Scheduler struct {
	interval time.Duration
	clk      clock.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[int64]*entry
	nextSeq uint64
}

// New builds a Scheduler with the process-wide check interval.
func New(interval time.Duration, clk clock.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		clk:      clk,
		logger:   logger,
		entries:  make(map[int64]*entry),
	}
}

// ApplySnapshot reconciles the table with a fresh registry snapshot. New
// URLs are seeded due immediately; existing ones keep their due time but
// pick up URL/regexp edits for their next check; missing ones stop being
// scheduled, finishing any in-flight check first.
func (s *Scheduler) ApplySnapshot(snap *registry.Snapshot) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, reg := range snap.Entries {
		e, ok := s.entries[id]
		if !ok {
			s.nextSeq++
			s.entries[id] = &entry{reg: reg, due: now, seq: s.nextSeq}
			s.logger.Info("url registered", zap.Int64("url_id", id), zap.String("url", reg.URL))
			continue
		}
		e.reg = reg
		e.removed = false
	}

	for id, e := range s.entries {
		if _, ok := snap.Entries[id]; ok {
			continue
		}
		if e.inFlight {
			e.removed = true
			continue
		}
		delete(s.entries, id)
		s.logger.Info("url unregistered", zap.Int64("url_id", id))
	}
}

// Tick returns every URL due at or before now that is not already in
// flight, oldest due first and FIFO among equally due, and marks each one
// in flight.
func (s *Scheduler) Tick(now time.Time) []registry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for _, e := range s.entries {
		if e.inFlight || e.removed || e.due.After(now) {
			continue
		}
		due = append(due, e)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].seq < due[j].seq
	})

	out := make([]registry.Entry, 0, len(due))
	for _, e := range due {
		e.inFlight = true
		out = append(out, e.reg)
	}
	return out
}

// Complete clears the in-flight flag and re-arms the URL one interval after
// its completion time. Completions for URLs the registry dropped are
// discarded.
func (s *Scheduler) Complete(id int64, completedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	if e.removed {
		delete(s.entries, id)
		return
	}
	e.inFlight = false
	e.due = completedAt.Add(s.interval)
	s.nextSeq++
	e.seq = s.nextSeq
}

// Requeue clears the in-flight flag without advancing the due time, used
// when a due URL could not be handed to the fetch pool.
func (s *Scheduler) Requeue(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && !e.removed {
		e.inFlight = false
	}
}

// InFlight reports whether the URL currently has a check running.
func (s *Scheduler) InFlight(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	return ok && e.inFlight
}

// DueAt returns the URL's next due time, false when it is not scheduled.
func (s *Scheduler) DueAt(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.removed {
		return time.Time{}, false
	}
	return e.due, true
}

// Run drives the table: registry snapshots are applied as they arrive and
// due URLs are handed to dispatch in order. Dispatch may block on a full
// fetch queue; a dispatch error releases the URL for the next tick.
func (s *Scheduler) Run(ctx context.Context, updates <-chan *registry.Snapshot, dispatch func(context.Context, registry.Entry) error) {
	ticker := time.NewTicker(tickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			s.ApplySnapshot(snap)
		case <-ticker.C:
			for _, job := range s.Tick(s.clk.Now()) {
				if err := dispatch(ctx, job); err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Warn("dispatch failed, releasing url",
						zap.Int64("url_id", job.ID), zap.Error(err))
					s.Requeue(job.ID)
				}
			}
		}
	}
}

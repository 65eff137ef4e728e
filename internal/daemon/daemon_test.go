package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/clock/system"
	"github.com/praksys/wsmonitor/internal/consumer"
	"github.com/praksys/wsmonitor/internal/dedup"
	"github.com/praksys/wsmonitor/internal/fetcher"
	"github.com/praksys/wsmonitor/internal/metric"
	"github.com/praksys/wsmonitor/internal/metrics"
	"github.com/praksys/wsmonitor/internal/publisher"
	"github.com/praksys/wsmonitor/internal/queue/memory"
	"github.com/praksys/wsmonitor/internal/registry"
	"github.com/praksys/wsmonitor/internal/retry"
	"github.com/praksys/wsmonitor/internal/scheduler"
	"github.com/praksys/wsmonitor/internal/storage/postgres"
)

type recordingPersister struct {
	mu      sync.Mutex
	history map[int64][]metric.Metric
}

func newRecordingPersister() *recordingPersister {
	return &recordingPersister{history: make(map[int64][]metric.Metric)}
}

func (p *recordingPersister) AppendMetric(_ context.Context, urlID int64, m metric.Metric) (postgres.AppendOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, prev := range p.history[urlID] {
		if prev.Timestamp.Equal(m.Timestamp) {
			return postgres.Duplicate, nil
		}
	}
	p.history[urlID] = append(p.history[urlID], m)
	return postgres.Appended, nil
}

func (p *recordingPersister) metricsFor(urlID int64) []metric.Metric {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]metric.Metric, len(p.history[urlID]))
	copy(out, p.history[urlID])
	return out
}

// The full path from a due check to a persisted metric: fetch pool,
// publisher, queue, consumer, and store, with the scheduler driven by hand.
func TestPipelineCheckToPersistedMetric(t *testing.T) {
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("status: ok")); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := system.New()
	logger := zap.NewNop()
	q := memory.New()
	store := newRecordingPersister()

	sched := scheduler.New(time.Hour, clk, logger)
	pub := publisher.New(q, retry.Default(), logger)
	check := fetcher.NewChecker(5*time.Second, "wsmonitor-test", clk)
	pool := fetcher.NewPool(2, 4, check, pub, sched, clk, logger)
	cons := consumer.New(q, store, dedup.NewWindow(16),
		retry.NewPolicy(2, time.Millisecond, time.Millisecond), logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pool.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := cons.Run(ctx); err != nil && ctx.Err() == nil {
			t.Error(err)
		}
	}()

	pattern := "status:\\s*ok"
	sched.ApplySnapshot(&registry.Snapshot{
		Entries: map[int64]registry.Entry{
			1: {
				MonitoredURL: registry.MonitoredURL{ID: 1, URL: srv.URL, Regexp: &pattern},
				Pattern:      regexp.MustCompile(pattern),
			},
		},
		Taken: clk.Now(),
	})

	due := sched.Tick(clk.Now())
	require.Len(t, due, 1)
	for _, e := range due {
		require.NoError(t, pool.Submit(ctx, e))
	}

	deadline := time.After(5 * time.Second)
	for len(store.metricsFor(1)) == 0 {
		select {
		case <-deadline:
			t.Fatal("metric never persisted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	got := store.metricsFor(1)
	require.Len(t, got, 1)
	require.Equal(t, http.StatusOK, got[0].ReturnCode)
	require.True(t, got[0].RegexCheck)
	require.GreaterOrEqual(t, got[0].ResponseTime, int64(0))

	// The pool reported completion, so the URL is re-armed, not stuck.
	require.Eventually(t, func() bool {
		return !sched.InFlight(1)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

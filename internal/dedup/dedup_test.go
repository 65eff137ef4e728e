package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/praksys/wsmonitor/internal/metric"
)

func keyAt(urlID int64, sec int64) metric.Key {
	return metric.Key{URLID: urlID, Timestamp: time.Unix(sec, 0).UTC()}
}

func TestRememberThenSeen(t *testing.T) {
	t.Parallel()

	w := NewWindow(4)
	k := keyAt(1, 1700000000)
	assert.False(t, w.Seen(k))
	w.Remember(k)
	assert.True(t, w.Seen(k))

	// Same URL, later check: distinct identity.
	assert.False(t, w.Seen(keyAt(1, 1700000060)))
}

func TestWindowEvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	w := NewWindow(2)
	a, b, c := keyAt(1, 1), keyAt(1, 2), keyAt(1, 3)
	w.Remember(a)
	w.Remember(b)
	w.Remember(c)

	assert.False(t, w.Seen(a), "oldest entry must be evicted")
	assert.True(t, w.Seen(b))
	assert.True(t, w.Seen(c))
}

func TestRememberIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWindow(2)
	a, b := keyAt(1, 1), keyAt(2, 1)
	w.Remember(a)
	w.Remember(a)
	w.Remember(a)
	w.Remember(b)

	// Re-remembering must not consume extra slots.
	assert.True(t, w.Seen(a))
	assert.True(t, w.Seen(b))
}

func TestZeroCapacityDisablesWindow(t *testing.T) {
	t.Parallel()

	w := NewWindow(0)
	k := keyAt(1, 1)
	w.Remember(k)
	assert.False(t, w.Seen(k))
}

func TestWindowIsSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	w := NewWindow(1024)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := metric.Key{URLID: int64(g%4 + 1), Timestamp: time.Unix(int64(i), 0).UTC()}
				if !w.Seen(k) {
					w.Remember(k)
				}
			}
		}(g)
	}
	wg.Wait()

	// 800 distinct identities fit the window, so everything stays visible.
	for g := 1; g <= 4; g++ {
		for i := 0; i < 200; i++ {
			k := metric.Key{URLID: int64(g), Timestamp: time.Unix(int64(i), 0).UTC()}
			assert.True(t, w.Seen(k), fmt.Sprintf("key %v missing", k))
		}
	}
}

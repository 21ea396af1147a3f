package signal

import (
	"sort"
	"sync"
	"time"
)

// sample is a single timestamped value inside a window.
type sample struct {
	ts    time.Time
	value float64
}

// window holds the observations for one key.
//
// Samples are kept in arrival order and re-sorted lazily when an
// out-of-order arrival is detected, so clock skew between agent replicas is
// tolerated without paying a sort on every append.
type window struct {
	mu      sync.Mutex
	samples []sample
	sorted  bool

	// touched is the last time this window saw a Record or Aggregate call.
	// The janitor uses it to reclaim idle keys.
	touched time.Time
}

func newWindow() *window {
	return &window{sorted: true}
}

// record appends a sample and prunes everything older than retention.
func (w *window) record(ts time.Time, value float64, now time.Time, retention time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := len(w.samples); n > 0 && ts.Before(w.samples[n-1].ts) {
		w.sorted = false
	}
	w.samples = append(w.samples, sample{ts: ts, value: value})
	w.touched = now

	// Retention is measured from the newest sample, not the wall clock,
	// so backfilled or replayed history is not evicted on arrival.
	w.sortLocked()
	w.pruneLocked(w.samples[len(w.samples)-1].ts.Add(-retention))
}

// aggregate computes the requested aggregate over samples younger than
// duration relative to now. ok is false when the window holds no such
// sample; callers must treat that as "no data", not zero.
func (w *window) aggregate(kind Aggregate, duration time.Duration, now time.Time, retention time.Duration) (value float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.touched = now
	w.pruneLocked(now.Add(-retention))
	w.sortLocked()

	cutoff := now.Add(-duration)

	// Samples are sorted ascending; find the first one inside the window.
	start := sort.Search(len(w.samples), func(i int) bool {
		return !w.samples[i].ts.Before(cutoff)
	})
	live := w.samples[start:]
	if len(live) == 0 {
		return 0, false
	}

	switch kind {
	case AggregateCount:
		return float64(len(live)), true

	case AggregateRate:
		if duration <= 0 {
			return 0, false
		}
		return float64(len(live)) / duration.Seconds(), true

	case AggregateAvg:
		var sum float64
		for _, s := range live {
			sum += s.value
		}
		return sum / float64(len(live)), true

	case AggregateMax:
		max := live[0].value
		for _, s := range live[1:] {
			if s.value > max {
				max = s.value
			}
		}
		return max, true

	case AggregateP95:
		values := make([]float64, len(live))
		for i, s := range live {
			values[i] = s.value
		}
		sort.Float64s(values)
		return values[int(0.95*float64(len(values)-1))], true

	default:
		return 0, false
	}
}

// len reports the number of retained samples.
func (w *window) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// lastTouched reports when the window was last used.
func (w *window) lastTouched() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.touched
}

// pruneLocked drops samples at or older than cutoff. Caller holds w.mu.
func (w *window) pruneLocked(cutoff time.Time) {
	w.sortLocked()

	keep := sort.Search(len(w.samples), func(i int) bool {
		return w.samples[i].ts.After(cutoff)
	})
	if keep == 0 {
		return
	}

	// Copy down instead of re-slicing so the evicted prefix can be
	// garbage collected.
	n := copy(w.samples, w.samples[keep:])
	w.samples = w.samples[:n]
}

// sortLocked restores timestamp order after out-of-order arrivals.
// Caller holds w.mu.
func (w *window) sortLocked() {
	if w.sorted {
		return
	}
	sort.SliceStable(w.samples, func(i, j int) bool {
		return w.samples[i].ts.Before(w.samples[j].ts)
	})
	w.sorted = true
}

package diagram

import (
	"sort"
	"sync"
	"time"
)

// Latency summarizes render durations in milliseconds.
type Latency struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// StatsSnapshot aggregates the engine calls inside the window. Rendered and
// Failed split the latencies by outcome.
type StatsSnapshot struct {
	Count         int     `json:"count"`
	ErrorRate     float64 `json:"error_rate"`
	WindowSeconds float64 `json:"window_seconds"`
	All           Latency `json:"all"`
	Rendered      Latency `json:"rendered"`
	Failed        Latency `json:"failed"`
}

type call struct {
	at time.Time
	ms float64
	ok bool
}

// Stats keeps engine calls from a rolling window. Calls are appended in
// time order.
type Stats struct {
	mu     sync.Mutex
	calls  []call
	window time.Duration
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{window: window}
}

// Record adds one engine call. Negative durations count as zero.
func (s *Stats) Record(d time.Duration, ok bool) {
	if d < 0 {
		d = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.calls = append(s.calls, call{at: now, ms: float64(d.Microseconds()) / 1000, ok: ok})
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	s.pruneLocked(time.Now())
	var all, rendered, failed []float64
	for _, c := range s.calls {
		all = append(all, c.ms)
		if c.ok {
			rendered = append(rendered, c.ms)
		} else {
			failed = append(failed, c.ms)
		}
	}
	window := s.window
	s.mu.Unlock()

	snap := StatsSnapshot{
		Count:         len(all),
		WindowSeconds: window.Seconds(),
		All:           summarize(all),
		Rendered:      summarize(rendered),
		Failed:        summarize(failed),
	}
	if len(all) > 0 {
		snap.ErrorRate = float64(len(failed)) / float64(len(all))
	}
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	i := sort.Search(len(s.calls), func(i int) bool { return !s.calls[i].at.Before(cutoff) })
	if i > 0 {
		s.calls = append(s.calls[:0], s.calls[i:]...)
	}
}

// summarize sorts ms in place.
func summarize(ms []float64) Latency {
	if len(ms) == 0 {
		return Latency{}
	}
	sort.Float64s(ms)
	var sum float64
	for _, v := range ms {
		sum += v
	}
	return Latency{
		Count: len(ms),
		MinMs: ms[0],
		MaxMs: ms[len(ms)-1],
		AvgMs: sum / float64(len(ms)),
		P50Ms: percentile(ms, 50),
		P95Ms: percentile(ms, 95),
		P99Ms: percentile(ms, 99),
	}
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []float64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return sorted[0]
	case pct >= 100:
		return sorted[len(sorted)-1]
	}
	index := float64(len(sorted)-1) * pct / 100
	lower := int(index)
	if lower+1 >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[lower+1]-sorted[lower])*weight
}

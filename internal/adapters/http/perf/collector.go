// Package perf keeps a bounded in-memory record of request, query and
// upstream API timings for the admin performance page.
package perf

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultRingSize = 10000

type EntryKind uint8

const (
	KindRequest EntryKind = iota // inbound HTTP request
	KindQuery                    // local sqlite statement
	KindAPI                      // outbound call to the REST API
)

// Entry is one timed operation. Failed is decided by the recorder: a 5xx
// response, a failed statement, or an API call that got no answer or a 5xx.
type Entry struct {
	Kind       EntryKind
	Path       string // "GET /admin/countries/{id}", "UPDATE outbox", "PATCH /questions"
	StatusCode int    // 0 for queries and transport failures
	Failed     bool
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring of entries.
// INVARIANT: when full, the oldest entry is overwritten
type Collector struct {
	mu    sync.Mutex
	ring  []Entry
	next  int
	total atomic.Int64
}

// NewCollector allocates a ring of size entries, or DefaultRingSize when
// size is not positive.
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{ring: make([]Entry, size)}
}

// Record stores e. A nil collector drops it.
func (c *Collector) Record(e Entry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ring[c.next] = e
	c.next = (c.next + 1) % len(c.ring)
	c.mu.Unlock()
	c.total.Add(1)
}

// TotalRecorded counts every entry ever recorded, including overwritten ones.
func (c *Collector) TotalRecorded() int64 {
	return c.total.Load()
}

// Snapshot is the aggregate of one window, one Summary per kind.
type Snapshot struct {
	Since         time.Time `json:"since"`
	TotalRecorded int64     `json:"total_recorded"`
	Requests      Summary   `json:"requests"`
	Queries       Summary   `json:"queries"`
	API           Summary   `json:"api"`
}

// Summary describes one kind of entry over the window.
type Summary struct {
	Count     int        `json:"count"`
	P50Ms     float64    `json:"p50_ms"`
	P95Ms     float64    `json:"p95_ms"`
	P99Ms     float64    `json:"p99_ms"`
	ErrorRate float64    `json:"error_rate"`
	Slowest   []PathStat `json:"slowest"`
}

// PathStat aggregates one route, statement label or API call.
type PathStat struct {
	Path    string  `json:"path"`
	Count   int     `json:"count"`
	Failed  int     `json:"failed"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	TotalMs float64 `json:"total_ms"`
}

// series accumulates one kind while scanning the ring.
type series struct {
	durations []float64
	failed    int
	paths     map[string]*PathStat
}

func (s *series) add(e Entry) {
	if s.paths == nil {
		s.paths = make(map[string]*PathStat)
	}
	s.durations = append(s.durations, e.DurationMs)
	st := s.paths[e.Path]
	if st == nil {
		st = &PathStat{Path: e.Path}
		s.paths[e.Path] = st
	}
	st.Count++
	st.TotalMs += e.DurationMs
	st.MaxMs = max(st.MaxMs, e.DurationMs)
	if e.Failed {
		st.Failed++
		s.failed++
	}
}

func (s *series) summary(topN int) Summary {
	n := len(s.durations)
	if n == 0 {
		return Summary{}
	}
	slices.Sort(s.durations)
	out := Summary{
		Count:     n,
		P50Ms:     percentile(s.durations, 50),
		P95Ms:     percentile(s.durations, 95),
		P99Ms:     percentile(s.durations, 99),
		ErrorRate: float64(s.failed) / float64(n),
	}
	for _, st := range s.paths {
		st.AvgMs = st.TotalMs / float64(st.Count)
		out.Slowest = append(out.Slowest, *st)
	}
	slices.SortFunc(out.Slowest, func(a, b PathStat) int {
		return cmp.Or(cmp.Compare(b.AvgMs, a.AvgMs), cmp.Compare(a.Path, b.Path))
	})
	if len(out.Slowest) > topN {
		out.Slowest = out.Slowest[:topN]
	}
	return out
}

// Snapshot aggregates entries stamped at or after since. It copies and
// sorts, so it belongs on the dashboard, not on hot paths.
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := slices.Clone(c.ring)
	c.mu.Unlock()

	var kinds [3]series
	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) || int(e.Kind) >= len(kinds) {
			continue
		}
		kinds[e.Kind].add(e)
	}
	return Snapshot{
		Since:         since,
		TotalRecorded: c.TotalRecorded(),
		Requests:      kinds[KindRequest].summary(topN),
		Queries:       kinds[KindQuery].summary(topN),
		API:           kinds[KindAPI].summary(topN),
	}
}

// percentile interpolates the p-th percentile of sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Package analytics aggregates query patterns, sessions and latency, and optionally
// exports raw events to Kafka.
package analytics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kham/internal/config"
)

const topQueryCount = 10

// Stats is a point-in-time summary.
type Stats struct {
	TotalEvents       int64               `json:"total_events"`
	ByType            map[EventType]int64 `json:"by_type"`
	ByMode            map[string]int64    `json:"by_mode"`
	TotalSearches     int64               `json:"total_searches"`
	ZeroResultCount   int64               `json:"zero_result_count"`
	FailedCount       int64               `json:"failed_count"`
	CacheHits         int64               `json:"cache_hits"`
	CacheMisses       int64               `json:"cache_misses"`
	PartialQueries    int64               `json:"partial_queries"`
	DocumentsIndexed  int64               `json:"documents_indexed"`
	AvgLatencyMs      float64             `json:"avg_latency_ms"`
	P50LatencyMs      float64             `json:"p50_latency_ms"`
	P95LatencyMs      float64             `json:"p95_latency_ms"`
	P99LatencyMs      float64             `json:"p99_latency_ms"`
	TopQueries        []QueryCount        `json:"top_queries"`
	ZeroResultQueries []QueryCount        `json:"zero_result_queries"`
	ActiveSessions    int                 `json:"active_sessions"`
	QueriesPerMinute  float64             `json:"queries_per_minute"`
	Since             time.Time           `json:"since"`
}

// QueryCount is a query with its occurrence count.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps counters shared by all requests behind one mutex.
type Aggregator struct {
	maxSamples int
	sessionTTL time.Duration
	now        func() time.Time

	mu          sync.Mutex
	total       int64
	byType      map[EventType]int64
	byMode      map[string]int64
	searches    int64
	zero        int64
	failed      int64
	cacheHits   int64
	cacheMisses int64
	partial     int64
	docs        int64
	latencies   []float64 // ring buffer of the most recent samples
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
	sessions    map[string]time.Time
	since       time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator(cfg config.AnalyticsConfig) *Aggregator {
	a := &Aggregator{
		maxSamples: cfg.MaxLatencySamples,
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
	}
	if a.maxSamples <= 0 {
		a.maxSamples = 10000
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = 30 * time.Minute
	}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.total, a.searches, a.zero, a.failed = 0, 0, 0, 0
	a.cacheHits, a.cacheMisses, a.partial, a.docs = 0, 0, 0, 0
	a.byType = make(map[EventType]int64)
	a.byMode = make(map[string]int64)
	a.latencies = make([]float64, 0, a.maxSamples)
	a.next = 0
	a.queries = make(map[string]int64)
	a.zeroQueries = make(map[string]int64)
	a.sessions = make(map[string]time.Time)
	a.since = a.now()
}

// Record adds one event.
func (a *Aggregator) Record(e Event) {
	query := normalizeQuery(e.Query)
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byType[e.Type]++
	if e.Mode != "" {
		a.byMode[e.Mode]++
	}
	if e.Failed {
		a.failed++
	}
	if e.PartialTokens > 0 {
		a.partial++
	}
	switch e.Type {
	case EventSearch:
		a.searches++
		if e.CacheHit {
			a.cacheHits++
		} else {
			a.cacheMisses++
		}
		if query != "" {
			a.queries[query]++
			if e.TotalHits == 0 && !e.Failed {
				a.zero++
				a.zeroQueries[query]++
			}
		}
	case EventQueryProcess:
		if query != "" {
			a.queries[query]++
		}
	case EventIndex:
		a.docs += int64(e.Documents)
	}

	if len(a.latencies) < a.maxSamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % a.maxSamples
	}

	if e.SessionID != "" {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = a.now()
		}
		a.sessions[e.SessionID] = ts
	}
}

// Stats summarizes everything recorded since the last reset. Expired sessions are pruned.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for id, seen := range a.sessions {
		if now.Sub(seen) > a.sessionTTL {
			delete(a.sessions, id)
		}
	}

	s := Stats{
		TotalEvents:       a.total,
		ByType:            make(map[EventType]int64, len(a.byType)),
		ByMode:            make(map[string]int64, len(a.byMode)),
		TotalSearches:     a.searches,
		ZeroResultCount:   a.zero,
		FailedCount:       a.failed,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		PartialQueries:    a.partial,
		DocumentsIndexed:  a.docs,
		TopQueries:        topN(a.queries, topQueryCount),
		ZeroResultQueries: topN(a.zeroQueries, topQueryCount),
		ActiveSessions:    len(a.sessions),
		Since:             a.since,
	}
	for k, v := range a.byType {
		s.ByType[k] = v
	}
	for k, v := range a.byMode {
		s.ByMode[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := append([]float64(nil), a.latencies...)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		s.AvgLatencyMs = sum / float64(len(sorted))
		s.P50LatencyMs = percentile(sorted, 50)
		s.P95LatencyMs = percentile(sorted, 95)
		s.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := now.Sub(a.since).Minutes(); elapsed > 0 {
		s.QueriesPerMinute = float64(a.searches) / elapsed
	}
	return s
}

// Reset clears all counters.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

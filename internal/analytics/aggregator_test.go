package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kham/internal/config"
)

func newTestAggregator(samples int, ttl time.Duration) (*Aggregator, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := &Aggregator{maxSamples: samples, sessionTTL: ttl, now: func() time.Time { return now }}
	a.reset()
	return a, &now
}

func TestAggregatorCountsSearches(t *testing.T) {
	a, _ := newTestAggregator(100, time.Minute)
	a.Record(Event{Type: EventSearch, Query: "ร้านอาหาร", Mode: "general", TotalHits: 3, LatencyMs: 10})
	a.Record(Event{Type: EventSearch, Query: "  ร้านอาหาร ", Mode: "general", TotalHits: 0, LatencyMs: 20, CacheHit: true})
	a.Record(Event{Type: EventSearch, Query: "Pizza", Mode: "compound", TotalHits: 0, LatencyMs: 30, PartialTokens: 1})
	a.Record(Event{Type: EventQueryProcess, Query: "pizza", Mode: "compound", LatencyMs: 1})
	a.Record(Event{Type: EventIndex, Documents: 7, LatencyMs: 5})

	s := a.Stats()
	assert.Equal(t, int64(5), s.TotalEvents)
	assert.Equal(t, int64(3), s.TotalSearches)
	assert.Equal(t, int64(2), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(2), s.CacheMisses)
	assert.Equal(t, int64(1), s.PartialQueries)
	assert.Equal(t, int64(7), s.DocumentsIndexed)
	assert.Equal(t, int64(3), s.ByType[EventSearch])
	assert.Equal(t, int64(2), s.ByMode["compound"])

	require.Len(t, s.TopQueries, 2)
	assert.Equal(t, QueryCount{Query: "pizza", Count: 2}, s.TopQueries[0])
	assert.Equal(t, QueryCount{Query: "ร้านอาหาร", Count: 2}, s.TopQueries[1])
	assert.ElementsMatch(t, []QueryCount{{"pizza", 1}, {"ร้านอาหาร", 1}}, s.ZeroResultQueries)
}

func TestAggregatorFailedSearchIsNotZeroResult(t *testing.T) {
	a, _ := newTestAggregator(10, time.Minute)
	a.Record(Event{Type: EventSearch, Query: "x", Failed: true})
	s := a.Stats()
	assert.Equal(t, int64(1), s.FailedCount)
	assert.Equal(t, int64(0), s.ZeroResultCount)
}

func TestAggregatorLatencyPercentiles(t *testing.T) {
	a, _ := newTestAggregator(1000, time.Minute)
	for i := 1; i <= 100; i++ {
		a.Record(Event{Type: EventTokenize, LatencyMs: float64(i)})
	}
	s := a.Stats()
	assert.InDelta(t, 50.5, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, 51.0, s.P50LatencyMs)
	assert.Equal(t, 96.0, s.P95LatencyMs)
	assert.Equal(t, 100.0, s.P99LatencyMs)
}

func TestAggregatorLatencySamplesAreBounded(t *testing.T) {
	a, _ := newTestAggregator(4, time.Minute)
	for i := 1; i <= 10; i++ {
		a.Record(Event{Type: EventTokenize, LatencyMs: float64(i)})
	}
	assert.Len(t, a.latencies, 4)
	// only 7..10 remain
	assert.InDelta(t, 8.5, a.Stats().AvgLatencyMs, 1e-9)
}

func TestAggregatorSessionsExpire(t *testing.T) {
	a, now := newTestAggregator(10, 10*time.Minute)
	a.Record(Event{Type: EventSearch, SessionID: "a", Timestamp: *now})
	a.Record(Event{Type: EventSearch, SessionID: "b", Timestamp: now.Add(-20 * time.Minute)})
	a.Record(Event{Type: EventSearch, SessionID: "a", Timestamp: *now})
	assert.Equal(t, 1, a.Stats().ActiveSessions)

	*now = now.Add(11 * time.Minute)
	assert.Equal(t, 0, a.Stats().ActiveSessions)
}

func TestAggregatorQueriesPerMinute(t *testing.T) {
	a, now := newTestAggregator(10, time.Minute)
	for i := 0; i < 6; i++ {
		a.Record(Event{Type: EventSearch, Query: "q"})
	}
	*now = now.Add(2 * time.Minute)
	assert.InDelta(t, 3.0, a.Stats().QueriesPerMinute, 1e-9)
}

func TestAggregatorReset(t *testing.T) {
	a, _ := newTestAggregator(10, time.Minute)
	a.Record(Event{Type: EventSearch, Query: "q", SessionID: "s", LatencyMs: 4})
	a.Reset()
	s := a.Stats()
	assert.Zero(t, s.TotalEvents)
	assert.Empty(t, s.TopQueries)
	assert.Zero(t, s.ActiveSessions)
	assert.Zero(t, s.P99LatencyMs)
}

func TestNewAggregatorDefaults(t *testing.T) {
	a := NewAggregator(config.AnalyticsConfig{})
	assert.Equal(t, 10000, a.maxSamples)
	assert.Equal(t, 30*time.Minute, a.sessionTTL)
}

func TestAggregatorConcurrentRecord(t *testing.T) {
	a := NewAggregator(config.AnalyticsConfig{MaxLatencySamples: 50})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				a.Record(Event{Type: EventSearch, Query: "q", LatencyMs: 1})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), a.Stats().TotalSearches)
}

type memorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (s *memorySink) Publish(_ context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestCollectorForwardsToSink(t *testing.T) {
	sink := &memorySink{}
	c := NewCollector(NewAggregator(config.AnalyticsConfig{}), sink, 16, nil)
	c.Start(context.Background())

	c.Track(Event{Type: EventSearch, Query: "a"})
	c.Track(Event{Type: EventSearch, Query: "b"})
	require.NoError(t, c.Close())

	assert.Equal(t, 2, sink.count())
	assert.True(t, sink.closed)
	assert.False(t, sink.events[0].Timestamp.IsZero())
	assert.Equal(t, int64(2), c.Aggregator().Stats().TotalSearches)

	// tracking after close still aggregates but does not export
	c.Track(Event{Type: EventSearch, Query: "c"})
	assert.Equal(t, 2, sink.count())
	assert.Equal(t, int64(3), c.Aggregator().Stats().TotalSearches)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	sink := &memorySink{}
	c := NewCollector(NewAggregator(config.AnalyticsConfig{}), sink, 1, nil)
	// not started, so nothing drains the buffer
	c.Track(Event{Type: EventSearch})
	c.Track(Event{Type: EventSearch})
	c.Track(Event{Type: EventSearch})
	assert.Equal(t, int64(2), c.Dropped())
	assert.Equal(t, int64(3), c.Aggregator().Stats().TotalSearches)

	c.Start(context.Background())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, sink.count())
}

func TestCollectorSinkErrorsAreLogged(t *testing.T) {
	sink := &memorySink{err: errors.New("broker down")}
	c := NewCollector(NewAggregator(config.AnalyticsConfig{}), sink, 4, nil)
	c.Start(context.Background())
	c.Track(Event{Type: EventSearch})
	require.NoError(t, c.Close())
	assert.Equal(t, 1, sink.count())
}

func TestCollectorWithoutSink(t *testing.T) {
	c := NewCollector(NewAggregator(config.AnalyticsConfig{}), nil, 4, nil)
	c.Start(context.Background())
	c.Track(Event{Type: EventTokenize})
	require.NoError(t, c.Close())
	assert.Equal(t, int64(1), c.Aggregator().Stats().TotalEvents)
}

func TestEncodeKafkaMessages(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	msgs, err := encode([]Event{
		{Type: EventSearch, Query: "ร้าน", SessionID: "s1", Timestamp: ts},
		{Type: EventTokenize, Timestamp: ts},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "s1", string(msgs[0].Key))
	assert.Equal(t, "tokenize", string(msgs[1].Key))
	assert.Equal(t, ts, msgs[0].Time)

	var got Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &got))
	assert.Equal(t, "ร้าน", got.Query)
	assert.Equal(t, EventSearch, got.Type)
}

func TestKafkaSinkUnreachableBroker(t *testing.T) {
	sink := NewKafkaSink(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "kham-events"})
	defer sink.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, sink.Publish(ctx, Event{Type: EventSearch}))
}

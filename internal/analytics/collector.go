package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kham/pkg/utils"
)

// Sink receives raw events for export.
type Sink interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Tracker records events.
type Tracker interface {
	Track(e Event)
}

// Collector records every event in an Aggregator and forwards it to an optional Sink
// through a bounded buffer. Events are dropped when the buffer is full.
type Collector struct {
	agg    *Aggregator
	sink   Sink
	events chan Event
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	dropped int64
}

// NewCollector creates a collector. sink may be nil.
func NewCollector(agg *Aggregator, sink Sink, bufferSize int, logger *zap.Logger) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Collector{
		agg:    agg,
		sink:   sink,
		events: make(chan Event, bufferSize),
		logger: utils.OrNop(logger).With(zap.String("component", "analytics-collector")),
		done:   make(chan struct{}),
	}
}

// Aggregator returns the aggregator events are recorded in.
func (c *Collector) Aggregator() *Aggregator { return c.agg }

// Start begins forwarding to the sink until ctx ends or Close is called.
func (c *Collector) Start(ctx context.Context) {
	if c.sink == nil {
		close(c.done)
		return
	}
	go func() {
		defer close(c.done)
		for {
			select {
			case e, ok := <-c.events:
				if !ok {
					return
				}
				c.publish(ctx, e)
			case <-ctx.Done():
				c.drain()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", zap.Int("buffer_size", cap(c.events)))
}

// Track records e and queues it for export.
func (c *Collector) Track(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	c.agg.Record(e)
	if c.sink == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- e:
	default:
		c.dropped++
		c.logger.Warn("analytics event dropped (buffer full)", zap.Int64("dropped", c.dropped))
	}
}

// Dropped returns how many events were not exported because the buffer was full.
func (c *Collector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close flushes queued events and closes the sink. Start must have been called.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.events)
	c.mu.Unlock()
	<-c.done
	if c.sink == nil {
		return nil
	}
	return c.sink.Close()
}

func (c *Collector) publish(ctx context.Context, e Event) {
	if err := c.sink.Publish(ctx, e); err != nil {
		c.logger.Warn("failed to publish analytics event", zap.Error(err))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				return
			}
			c.publish(context.Background(), e)
		default:
			return
		}
	}
}

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"homechef/internal/platform/metrics"
)

// Dispatcher decouples order operations from broker latency. Emit enqueues
// and returns; a worker publishes in the background. When the buffer is full
// the event is dropped and counted.
type Dispatcher struct {
	sink    Publisher
	backend string
	logger  *slog.Logger
	metrics *metrics.Metrics
	breaker *breaker
	timeout time.Duration

	buffer  int
	queue   chan queued
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

type queued struct {
	ctx   context.Context
	event Event
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAsyncBuffer makes Emit asynchronous with a buffer of n events.
// Without it Emit publishes inline.
func WithAsyncBuffer(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.buffer = n
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithBreaker stops calling the sink for cooldown after threshold
// consecutive failures.
func WithBreaker(threshold int, cooldown time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.breaker = newBreaker(threshold, cooldown, time.Now)
	}
}

// WithPublishTimeout bounds each publish attempt.
func WithPublishTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher wraps sink. backend labels failure metrics.
func NewDispatcher(sink Publisher, backend string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:    sink,
		backend: backend,
		logger:  slog.Default(),
		breaker: newBreaker(5, time.Minute, time.Now),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.buffer > 0 {
		d.queue = make(chan queued, d.buffer)
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Emit publishes event, inline or through the buffer. It never returns a
// broker error; failures are logged and counted.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		d.logger.WarnContext(ctx, "event dropped after close", "event_id", event.ID, "type", string(event.Type))
		return
	}
	if d.queue == nil {
		d.publish(ctx, event)
		return
	}
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		d.metrics.IncrementEventPublishFailure(d.backend)
		d.logger.WarnContext(ctx, "event buffer full, dropping event",
			"event_id", event.ID,
			"type", string(event.Type),
			"order_id", event.OrderID.String(),
		)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for q := range d.queue {
		d.publish(q.ctx, q.event)
	}
}

func (d *Dispatcher) publish(ctx context.Context, event Event) {
	if !d.breaker.allow() {
		d.metrics.IncrementEventPublishFailure(d.backend)
		d.logger.WarnContext(ctx, "event publisher unavailable, dropping event",
			"backend", d.backend,
			"event_id", event.ID,
		)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sink.Publish(ctx, event); err != nil {
		d.breaker.recordFailure()
		d.metrics.IncrementEventPublishFailure(d.backend)
		d.logger.ErrorContext(ctx, "failed to publish event",
			"backend", d.backend,
			"event_id", event.ID,
			"type", string(event.Type),
			"order_id", event.OrderID.String(),
			"error", err,
		)
		return
	}
	d.breaker.recordSuccess()
}

// Close drains buffered events and closes the sink.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return nil
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.closeMu.Unlock()
	d.wg.Wait()
	return d.sink.Close()
}

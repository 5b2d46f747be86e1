package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderModels "homechef/internal/order/models"
	"homechef/internal/platform/metrics"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) published() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleOrder() orderModels.Order {
	return orderModels.Order{
		ID:          "order-1",
		UserID:      "customer-1",
		ProviderID:  "chef-1",
		TotalAmount: decimal.NewFromInt(30),
		Status:      orderModels.StatusPending,
	}
}

func TestStatusChanged(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	order := sampleOrder()
	order.Status = orderModels.StatusShipping

	e := StatusChanged(order, orderModels.StatusPending, at)

	assert.Equal(t, TypeOrderStatusChanged, e.Type)
	assert.Equal(t, orderModels.StatusShipping, e.Status)
	assert.Equal(t, orderModels.StatusPending, e.PreviousStatus)
	assert.Equal(t, "order-1", e.Key())
	assert.Equal(t, at, e.OccurredAt)
	assert.NotEmpty(t, e.ID)
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}
	m := Multi{ok, failing}

	err := m.Publish(context.Background(), OrderPlaced(sampleOrder(), time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.published(), 1, "healthy publishers still receive the event")

	require.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestDispatcherInline(t *testing.T) {
	sink := &recordingPublisher{}
	d := NewDispatcher(sink, "test", WithDispatcherLogger(discard))

	d.Emit(context.Background(), OrderPlaced(sampleOrder(), time.Now()))

	assert.Len(t, sink.published(), 1)
	require.NoError(t, d.Close())
	assert.True(t, sink.closed)
}

func TestDispatcherAsyncDrainsOnClose(t *testing.T) {
	sink := &recordingPublisher{}
	d := NewDispatcher(sink, "test", WithAsyncBuffer(100), WithDispatcherLogger(discard))

	for range 10 {
		d.Emit(context.Background(), OrderPlaced(sampleOrder(), time.Now()))
	}
	require.NoError(t, d.Close())

	assert.Len(t, sink.published(), 10, "all buffered events are published before close returns")
	d.Emit(context.Background(), OrderPlaced(sampleOrder(), time.Now()))
	assert.Len(t, sink.published(), 10, "emit after close is dropped")
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	sink := &recordingPublisher{block: make(chan struct{})}
	d := NewDispatcher(sink, "test",
		WithAsyncBuffer(1),
		WithDispatcherLogger(discard),
		WithDispatcherMetrics(m),
	)

	d.Emit(context.Background(), OrderPlaced(sampleOrder(), time.Now()))
	// wait until the worker holds the first event so the buffer is empty again
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), OrderPlaced(sampleOrder(), time.Now()))
	d.Emit(context.Background(), OrderPlaced(sampleOrder(), time.Now()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishFailures.WithLabelValues("test")))

	close(sink.block)
	require.NoError(t, d.Close())
	assert.Len(t, sink.published(), 2)
}

func TestDispatcherFailureIsCounted(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	sink := &recordingPublisher{err: errors.New("broker down")}
	d := NewDispatcher(sink, "kafka", WithDispatcherLogger(discard), WithDispatcherMetrics(m))

	d.Emit(context.Background(), OrderPlaced(sampleOrder(), time.Now()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishFailures.WithLabelValues("kafka")))
}

func TestBreaker(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(2, time.Minute, func() time.Time { return now })

	assert.True(t, b.allow())
	b.recordFailure()
	assert.True(t, b.allow(), "one failure keeps the breaker closed")
	b.recordFailure()
	assert.False(t, b.allow(), "threshold reached opens the breaker")

	now = now.Add(2 * time.Minute)
	assert.True(t, b.allow(), "cooldown elapsed lets one attempt through")
	b.recordFailure()
	assert.False(t, b.allow(), "a failed half-open attempt reopens immediately")

	now = now.Add(2 * time.Minute)
	assert.True(t, b.allow())
	b.recordSuccess()
	b.recordFailure()
	assert.True(t, b.allow(), "success resets the failure count")
}

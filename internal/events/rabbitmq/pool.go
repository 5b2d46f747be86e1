// Package rabbitmq publishes order events to a durable RabbitMQ queue.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errPoolClosed = errors.New("rabbitmq: channel pool closed")

// channelPool shares one connection between a fixed number of channels.
// amqp channels are not safe for concurrent publishing, so each publish
// borrows one exclusively.
type channelPool struct {
	conn     *amqp.Connection
	channels chan *amqp.Channel
	queue    string
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newChannelPool(url, queue string, size int, logger *slog.Logger) (*channelPool, error) {
	if size <= 0 {
		size = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: connect: %w", err)
	}

	pool := &channelPool{
		conn:     conn,
		channels: make(chan *amqp.Channel, size),
		queue:    queue,
		logger:   logger,
	}
	for i := range size {
		ch, err := pool.open()
		if err != nil {
			pool.close()
			return nil, fmt.Errorf("rabbitmq: open channel %d: %w", i, err)
		}
		pool.channels <- ch
	}
	logger.Info("rabbitmq channel pool ready", "queue", queue, "channels", size)
	return pool, nil
}

// open creates a channel and declares the durable queue on it.
func (p *channelPool) open() (*amqp.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	return ch, nil
}

// get waits for a free channel, replacing one the broker closed.
func (p *channelPool) get(ctx context.Context) (*amqp.Channel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, errPoolClosed
		}
		if ch.IsClosed() {
			return p.open()
		}
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// put returns ch to the pool. Closed channels are dropped and a replacement
// is opened so the pool keeps its size.
func (p *channelPool) put(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	if ch == nil || ch.IsClosed() {
		replacement, err := p.open()
		if err != nil {
			p.logger.Warn("rabbitmq channel replacement failed", "error", err)
			return
		}
		ch = replacement
	}
	select {
	case p.channels <- ch:
	default:
		_ = ch.Close()
	}
}

func (p *channelPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.channels)
	for ch := range p.channels {
		_ = ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

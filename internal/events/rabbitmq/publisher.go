package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"homechef/internal/events"
)

// Publisher sends each event as a persistent message on the default exchange,
// routed to queue.
type Publisher struct {
	pool  *channelPool
	queue string
}

// Option configures a Publisher.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	channels int
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithChannels sets the pool size.
func WithChannels(n int) Option {
	return func(c *config) {
		c.channels = n
	}
}

// New dials url and declares queue.
func New(url, queue string, opts ...Option) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("rabbitmq: url is required")
	}
	if queue == "" {
		return nil, errors.New("rabbitmq: queue is required")
	}
	cfg := config{logger: slog.Default(), channels: 4}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	pool, err := newChannelPool(url, queue, cfg.channels, cfg.logger)
	if err != nil {
		return nil, err
	}
	return &Publisher{pool: pool, queue: queue}, nil
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode event: %w", err)
	}
	ch, err := p.pool.get(ctx)
	if err != nil {
		return err
	}
	defer p.pool.put(ch)

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.pool.close()
}

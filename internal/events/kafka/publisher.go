// Package kafka publishes order events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"homechef/internal/events"
)

// Publisher produces one record per event, keyed by order id.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	partitions int32
	replicas   int16
	extra      []kgo.Opt
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTopicLayout sets the partition count and replication factor used when
// the topic has to be created.
func WithTopicLayout(partitions int32, replicas int16) Option {
	return func(c *config) {
		c.partitions = partitions
		c.replicas = replicas
	}
}

// WithClientOpts passes extra options to the franz-go client.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(c *config) {
		c.extra = append(c.extra, opts...)
	}
}

// New connects to brokers and makes sure topic exists.
func New(ctx context.Context, brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	cfg := config{logger: slog.Default(), partitions: 3, replicas: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	clientOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, cfg.extra...)
	client, err := kgo.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic, cfg.partitions, cfg.replicas); err != nil {
		client.Close()
		return nil, err
	}

	cfg.logger.InfoContext(ctx, "kafka event publisher ready", "topic", topic, "brokers", len(brokers))
	return &Publisher{client: client, topic: topic, logger: cfg.logger}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicas int16) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, partitions, replicas, nil, topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Publish writes event synchronously and waits for the broker ack.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending records and closes the client.
func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Record store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Order event backends.
const (
	EventsLog      = "log"
	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
)

// Config is the full process configuration.
type Config struct {
	Server   Server         `yaml:"server"`
	Auth     Auth           `yaml:"auth"`
	Store    Store          `yaml:"store"`
	Cart     Cart           `yaml:"cart"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Events   Events         `yaml:"events"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// DevMode logs at debug level.
	DevMode bool `yaml:"dev_mode"`
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// Store selects the record store backend.
type Store struct {
	Backend string `yaml:"backend"`
}

// Cart bounds how long an unused in-memory cart is kept.
type Cart struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EvictInterval time.Duration `yaml:"evict_interval"`
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig configures the database/sql pool.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

// Events selects where order lifecycle events are published.
type Events struct {
	Backend string `yaml:"backend"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Channels int    `yaml:"channels"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Auth: Auth{
			// Use a default for development - should be overridden in production
			JWTSigningKey: "dev-secret-key-change-in-production",
			Issuer:        "homechef",
			Audience:      "homechef-api",
		},
		Store: Store{Backend: StoreMemory},
		Cart: Cart{
			IdleTimeout:   30 * time.Minute,
			EvictInterval: time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Migrate:         true,
		},
		Events:   Events{Backend: EventsLog},
		Kafka:    KafkaConfig{Topic: "homechef.orders"},
		RabbitMQ: RabbitMQConfig{Queue: "homechef.orders", Channels: 4},
	}
}

// FromEnv builds the configuration from defaults, an optional YAML file named
// by HOMECHEF_CONFIG, and environment variables, in increasing precedence.
// A .env file in the working directory is loaded first when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("HOMECHEF_CONFIG"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := overlayEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func overlayEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "HOMECHEF_ADDR")
	setBool(&cfg.Server.DevMode, "DEV_MODE")
	setString(&cfg.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&cfg.Auth.Issuer, "JWT_ISSUER")
	setString(&cfg.Auth.Audience, "JWT_AUDIENCE")
	setString(&cfg.Store.Backend, "RECORD_STORE")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.Events.Backend, "EVENTS_BACKEND")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	setString(&cfg.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&cfg.RabbitMQ.Queue, "RABBITMQ_QUEUE")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setDuration(&cfg.Server.RequestTimeout, "REQUEST_TIMEOUT"),
		setDuration(&cfg.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
		setDuration(&cfg.Cart.IdleTimeout, "CART_IDLE_TIMEOUT"),
		setDuration(&cfg.Cart.EvictInterval, "CART_EVICT_INTERVAL"),
		setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE"),
		setInt(&cfg.Postgres.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS"),
	)
	return errors.Join(errs...)
}

// Validate checks backend selections and their required settings.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("config: REDIS_URL is required for the redis record store")
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("config: DATABASE_URL is required for the postgres record store")
		}
	default:
		return fmt.Errorf("config: unknown record store %q", c.Store.Backend)
	}

	switch c.Events.Backend {
	case EventsLog:
	case EventsKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("config: KAFKA_BROKERS is required for kafka events")
		}
	case EventsRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return errors.New("config: RABBITMQ_URL is required for rabbitmq events")
		}
	default:
		return fmt.Errorf("config: unknown events backend %q", c.Events.Backend)
	}

	if c.Cart.IdleTimeout <= 0 || c.Cart.EvictInterval <= 0 {
		return errors.New("config: CART_IDLE_TIMEOUT and CART_EVICT_INTERVAL must be positive")
	}

	if c.Auth.JWTSigningKey == "" {
		return errors.New("config: JWT_SIGNING_KEY must not be empty")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

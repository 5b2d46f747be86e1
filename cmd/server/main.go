package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	cartHandler "homechef/internal/cart/handler"
	cartService "homechef/internal/cart/service"
	"homechef/internal/events"
	"homechef/internal/events/kafka"
	"homechef/internal/events/rabbitmq"
	jwttoken "homechef/internal/jwt_token"
	menuHandler "homechef/internal/menu/handler"
	menuService "homechef/internal/menu/service"
	orderHandler "homechef/internal/order/handler"
	orderService "homechef/internal/order/service"
	"homechef/internal/platform/config"
	"homechef/internal/platform/httpserver"
	"homechef/internal/platform/logger"
	"homechef/internal/platform/metrics"
	"homechef/internal/platform/postgres"
	platformRedis "homechef/internal/platform/redis"
	"homechef/internal/recordstore"
	"homechef/internal/recordstore/memory"
	pgStore "homechef/internal/recordstore/postgres"
	redisStore "homechef/internal/recordstore/redis"
	statsService "homechef/internal/stats/service"
	httptransport "homechef/internal/transport/http"
	id "homechef/pkg/domain"
)

// eventBuffer bounds the order events queued for the broker.
const eventBuffer = 1024

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.DevMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies and serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	records, health, closeRecords, err := openRecords(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRecords()

	sink, err := openEvents(ctx, cfg, log)
	if err != nil {
		return err
	}
	dispatcher := events.NewDispatcher(sink, cfg.Events.Backend,
		events.WithAsyncBuffer(eventBuffer),
		events.WithDispatcherLogger(log),
		events.WithDispatcherMetrics(m),
	)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Warn("closing event publisher", "error", err)
		}
	}()

	stats := statsService.New(records,
		statsService.WithLogger(log),
		statsService.WithMetrics(m),
	)
	menu := menuService.New(records,
		menuService.WithLogger(log),
		menuService.WithMetrics(m),
	)
	orders := orderService.New(records, menu, stats,
		orderService.WithLogger(log),
		orderService.WithMetrics(m),
		orderService.WithEvents(dispatcher),
	)
	sessions := cartService.NewSessions(records, menu, log, cartService.WithMetrics(m))
	defer sessions.Close()

	carts := func(ctx context.Context, userID id.UserID) (orderService.Cart, error) {
		st, err := sessions.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		return st, nil
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		RequestTimeout: cfg.Server.RequestTimeout,
		Menu:           menuHandler.New(menu, log),
		Cart:           cartHandler.New(sessions, log),
		Orders:         orderHandler.New(orders, carts, log),
		Health:         health,
	})

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting homechef",
			"addr", cfg.Server.Addr,
			"record_store", cfg.Store.Backend,
			"events", cfg.Events.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := sessions.StartEviction(gctx, cfg.Cart.IdleTimeout, cfg.Cart.EvictInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openRecords returns the configured record store, its health checks and a
// release func.
func openRecords(ctx context.Context, cfg config.Config, log *slog.Logger) (recordstore.Store, map[string]httptransport.HealthCheck, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		client, err := platformRedis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		store := redisStore.New(client.Client, redisStore.WithLogger(log))
		health := map[string]httptransport.HealthCheck{"redis": client.Health}
		return store, health, func() { _ = client.Close() }, nil

	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		store := pgStore.New(db, cfg.Postgres.DSN, pgStore.WithLogger(log))
		if cfg.Postgres.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, nil, nil, err
			}
		}
		health := map[string]httptransport.HealthCheck{"postgres": db.PingContext}
		release := func() {
			if err := store.Close(); err != nil {
				log.Warn("closing record store listener", "error", err)
			}
			_ = db.Close()
		}
		return store, health, release, nil

	default:
		return memory.New(), nil, func() {}, nil
	}
}

// openEvents returns the configured order event sink.
func openEvents(ctx context.Context, cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	switch cfg.Events.Backend {
	case config.EventsKafka:
		return kafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.WithLogger(log))
	case config.EventsRabbitMQ:
		return rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue,
			rabbitmq.WithLogger(log),
			rabbitmq.WithChannels(cfg.RabbitMQ.Channels),
		)
	default:
		return events.NewLogPublisher(log), nil
	}
}

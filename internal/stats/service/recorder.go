package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	orderModels "homechef/internal/order/models"
	"homechef/internal/platform/metrics"
	"homechef/internal/recordstore"
	"homechef/internal/stats/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/sentinel"
)

// Path is where a provider's stats record lives.
func Path(providerID id.UserID) recordstore.Path {
	return recordstore.Join("providers", providerID.String(), "stats")
}

// Recorder maintains ProviderStats. Each update is a single atomic
// read-modify-write on the provider's record.
type Recorder struct {
	store   recordstore.Store
	locks   *shardedLock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func New(store recordstore.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		locks:  &shardedLock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RecordPlaced counts a new pending order worth amount for providerID.
func (r *Recorder) RecordPlaced(ctx context.Context, providerID id.UserID, amount id.Money, at time.Time) (models.ProviderStats, error) {
	return r.apply(ctx, providerID, "placed", func(s *models.ProviderStats) {
		s.ApplyPlaced(amount, at)
	})
}

// RecordTransition adjusts status counters for one order status change.
func (r *Recorder) RecordTransition(ctx context.Context, providerID id.UserID, from, to orderModels.Status, at time.Time) (models.ProviderStats, error) {
	return r.apply(ctx, providerID, "transition", func(s *models.ProviderStats) {
		s.ApplyTransition(from, to, at)
	})
}

// Get returns the stats as of at; a provider without orders has zero stats.
func (r *Recorder) Get(ctx context.Context, providerID id.UserID, at time.Time) (models.ProviderStats, error) {
	if providerID.IsNil() {
		return models.ProviderStats{}, dErrors.New(dErrors.CodeValidation, "provider id required")
	}
	stats, err := recordstore.ReadJSON[models.ProviderStats](ctx, r.store, Path(providerID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.ProviderStats{}, nil
	}
	if err != nil {
		return models.ProviderStats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load provider stats")
	}
	return stats.AsOf(at), nil
}

func (r *Recorder) apply(ctx context.Context, providerID id.UserID, kind string, mutate func(*models.ProviderStats)) (models.ProviderStats, error) {
	if providerID.IsNil() {
		return models.ProviderStats{}, dErrors.New(dErrors.CodeValidation, "provider id required")
	}

	var out models.ProviderStats
	err := r.locks.run(ctx, providerID.String(), func() error {
		var err error
		out, err = recordstore.TransactJSON(ctx, r.store, Path(providerID),
			func(current models.ProviderStats, _ bool) (models.ProviderStats, error) {
				mutate(&current)
				return current, nil
			})
		return err
	})
	if err != nil {
		r.metrics.IncrementStatsWriteFailure()
		r.logger.WarnContext(ctx, "provider stats update failed",
			"provider_id", providerID.String(),
			"kind", kind,
			"error", err,
		)
		return models.ProviderStats{}, err
	}
	return out, nil
}

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"homechef/internal/cart/models"
	"homechef/internal/recordstore"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/requestcontext"
)

// Catalog resolves a menu item id to the details a cart line carries.
type Catalog interface {
	CartItem(ctx context.Context, itemID id.ItemID) (models.CartItem, error)
}

// Sessions owns one loaded Store per signed-in user. The first request for a
// user loads the cart; concurrent first requests share that load. Carts that
// go unused are evicted by EvictIdle.
type Sessions struct {
	records recordstore.Store
	catalog Catalog
	opts    []Option
	logger  *slog.Logger

	mu         sync.Mutex
	stores     map[id.UserID]*Store
	lastAccess map[id.UserID]time.Time
	loads      singleflight.Group
}

// NewSessions builds a registry; opts are applied to every Store it creates.
func NewSessions(records recordstore.Store, catalog Catalog, logger *slog.Logger, opts ...Option) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		records:    records,
		catalog:    catalog,
		opts:       append([]Option{WithLogger(logger)}, opts...),
		logger:     logger,
		stores:     make(map[id.UserID]*Store),
		lastAccess: make(map[id.UserID]time.Time),
	}
}

// Get returns userID's loaded cart. A failed load is not cached, so the next
// call retries.
func (s *Sessions) Get(ctx context.Context, userID id.UserID) (*Store, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sign in to use the cart")
	}

	if st := s.lookup(userID); st != nil {
		return st, nil
	}

	// Shared by every waiter, so one caller's cancellation must not fail the rest.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.loads.Do(userID.String(), func() (any, error) {
		if st := s.lookup(userID); st != nil {
			return st, nil
		}
		st := New(s.records, s.opts...)
		if err := st.Load(loadCtx, userID); err != nil {
			st.Close()
			return nil, err
		}
		s.mu.Lock()
		s.stores[userID] = st
		s.lastAccess[userID] = time.Now()
		s.mu.Unlock()
		return st, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cart")
	}
	return v.(*Store), nil
}

func (s *Sessions) lookup(userID id.UserID) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[userID]
	if ok {
		s.lastAccess[userID] = time.Now()
	}
	return st
}

// Release signs userID out: the in-memory cart is dropped and remote sync
// stops. The persisted cart is kept for the next sign-in.
func (s *Sessions) Release(ctx context.Context, userID id.UserID) {
	s.mu.Lock()
	st, ok := s.stores[userID]
	delete(s.stores, userID)
	delete(s.lastAccess, userID)
	s.mu.Unlock()

	if !ok {
		return
	}
	st.Close()
	s.logger.InfoContext(ctx, "cart session released",
		"user_id", userID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
}

// Len is the number of loaded carts.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stores)
}

// EvictIdle releases every cart not accessed within idle of now, stopping
// its remote sync. Carts with a live watcher are kept. Persisted carts are
// untouched; the next Get loads them again. It returns how many carts went.
func (s *Sessions) EvictIdle(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	var evicted []*Store
	for userID, st := range s.stores {
		if now.Sub(s.lastAccess[userID]) < idle {
			continue
		}
		if st.Observed() {
			continue
		}
		delete(s.stores, userID)
		delete(s.lastAccess, userID)
		evicted = append(evicted, st)
	}
	s.mu.Unlock()

	for _, st := range evicted {
		st.Close()
	}
	return len(evicted)
}

// StartEviction runs EvictIdle every interval until ctx is cancelled.
func (s *Sessions) StartEviction(ctx context.Context, idle, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := s.EvictIdle(now, idle); n > 0 {
				s.logger.InfoContext(ctx, "evicted idle carts",
					"evicted", n,
					"loaded", s.Len(),
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases every loaded cart.
func (s *Sessions) Close() {
	s.mu.Lock()
	stores := s.stores
	s.stores = make(map[id.UserID]*Store)
	s.lastAccess = make(map[id.UserID]time.Time)
	s.mu.Unlock()

	for _, st := range stores {
		st.Close()
	}
}

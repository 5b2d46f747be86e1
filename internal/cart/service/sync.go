package service

import (
	"context"
	"sync"

	"homechef/internal/cart/models"
	"homechef/internal/recordstore"
	id "homechef/pkg/domain"
)

// remoteSync reloads a Store when its persisted cart changes underneath it,
// e.g. from another session of the same user. Change callbacks only signal a
// coalescing channel; the reload runs on its own goroutine because backends
// may deliver notifications synchronously inside a write that holds the
// cart lock.
type remoteSync struct {
	unsubscribe recordstore.Unsubscribe
	signal      chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	once        sync.Once
}

func (s *Store) startRemoteSync(ctx context.Context, userID id.UserID) *remoteSync {
	rs := &remoteSync{
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	// The subscription outlives the request that loaded the cart.
	bg := context.WithoutCancel(ctx)
	unsubscribe, err := s.records.Subscribe(bg, CartPath(userID), func(recordstore.Change) {
		select {
		case rs.signal <- struct{}{}:
		default:
		}
	})
	if err != nil {
		s.logger.WarnContext(ctx, "cart remote sync unavailable",
			"user_id", userID.String(),
			"error", err,
		)
		close(rs.stopped)
		return rs
	}
	rs.unsubscribe = unsubscribe

	go func() {
		defer close(rs.stopped)
		for {
			select {
			case <-rs.done:
				return
			case <-rs.signal:
				s.reload(bg, userID)
			}
		}
	}()
	return rs
}

// stop ends the subscription and waits for the worker. Must not be called
// with the cart lock held. Safe on nil.
func (rs *remoteSync) stop() {
	if rs == nil {
		return
	}
	rs.once.Do(func() {
		if rs.unsubscribe != nil {
			rs.unsubscribe()
		}
		close(rs.done)
		<-rs.stopped
	})
}

// reload re-reads the persisted cart if the store is still bound to userID.
func (s *Store) reload(ctx context.Context, userID id.UserID) {
	s.mu.Lock()
	if s.userID != userID {
		s.mu.Unlock()
		return
	}
	items, err := s.fetch(ctx, userID)
	if err != nil {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "cart remote reload failed",
			"user_id", userID.String(),
			"error", err,
		)
		return
	}
	changed := !sameItems(s.items, items)
	s.items = items
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
}

func sameItems(a, b map[id.ItemID]models.CartItem) bool {
	if len(a) != len(b) {
		return false
	}
	for k, x := range a {
		y, ok := b[k]
		if !ok || x.Quantity != y.Quantity || !x.Price.Equal(y.Price) || !x.AddedAt.Equal(y.AddedAt) {
			return false
		}
	}
	return true
}

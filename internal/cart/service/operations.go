package service

import (
	"context"

	"homechef/internal/cart/models"
	id "homechef/pkg/domain"
)

// watchBuffer is how many snapshots a slow watcher may fall behind before
// older ones are discarded.
const watchBuffer = 8

// Snapshot returns userID's cart.
func (s *Sessions) Snapshot(ctx context.Context, userID id.UserID) (models.Snapshot, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return models.Snapshot{}, err
	}
	return st.Snapshot(), nil
}

// AddItem adds quantity of the menu item itemID to userID's cart and returns
// the cart after the attempt. Name, price and provider come from the
// catalogue; an unknown or unavailable item is an error and the cart is left
// alone.
func (s *Sessions) AddItem(ctx context.Context, userID id.UserID, itemID id.ItemID, quantity int) (models.Snapshot, models.Outcome, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return models.Snapshot{}, models.OutcomeRejected, err
	}
	item, err := s.catalog.CartItem(ctx, itemID)
	if err != nil {
		return st.Snapshot(), models.OutcomeRejected, err
	}
	outcome := st.AddItem(ctx, item, quantity)
	return st.Snapshot(), outcome, nil
}

// UpdateQuantity sets the quantity of one line of userID's cart.
func (s *Sessions) UpdateQuantity(ctx context.Context, userID id.UserID, itemID id.ItemID, quantity int) (models.Snapshot, models.Outcome, error) {
	return s.mutate(ctx, userID, func(st *Store) models.Outcome {
		return st.UpdateQuantity(ctx, itemID, quantity)
	})
}

// RemoveItem deletes one line of userID's cart.
func (s *Sessions) RemoveItem(ctx context.Context, userID id.UserID, itemID id.ItemID) (models.Snapshot, models.Outcome, error) {
	return s.mutate(ctx, userID, func(st *Store) models.Outcome {
		return st.RemoveItem(ctx, itemID)
	})
}

// Clear empties userID's cart.
func (s *Sessions) Clear(ctx context.Context, userID id.UserID) (models.Snapshot, models.Outcome, error) {
	return s.mutate(ctx, userID, func(st *Store) models.Outcome {
		return st.Clear(ctx)
	})
}

// SignOut drops userID's in-memory cart. The persisted cart is kept.
func (s *Sessions) SignOut(ctx context.Context, userID id.UserID) {
	s.Release(ctx, userID)
}

// Watch delivers userID's cart after every change until ctx ends. When the
// reader falls behind, the oldest pending snapshot is discarded; the newest
// always wins.
func (s *Sessions) Watch(ctx context.Context, userID id.UserID) (<-chan models.Snapshot, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ch := make(chan models.Snapshot, watchBuffer)
	cancel := st.Subscribe(func(snap models.Snapshot) {
		for {
			select {
			case ch <- snap:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, nil
}

func (s *Sessions) mutate(ctx context.Context, userID id.UserID, op func(*Store) models.Outcome) (models.Snapshot, models.Outcome, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return models.Snapshot{}, models.OutcomeRejected, err
	}
	outcome := op(st)
	return st.Snapshot(), outcome, nil
}

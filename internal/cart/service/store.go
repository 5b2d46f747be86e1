package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"homechef/internal/cart/models"
	"homechef/internal/platform/metrics"
	"homechef/internal/recordstore"
	id "homechef/pkg/domain"
	"homechef/pkg/requestcontext"
)

var (
	// errItemAbsent aborts an UpdateQuantity transaction for an item not in the cart.
	errItemAbsent = errors.New("cart item absent")
	// errQuantityLimit aborts an AddItem merge that would pass MaxQuantity.
	errQuantityLimit = errors.New("cart line quantity limit")
	// errLineChanged aborts RemoveOrdered for a line that is no longer the one ordered.
	errLineChanged = errors.New("cart line changed since checkout snapshot")
)

// CartPath is the collection holding userID's cart items.
func CartPath(userID id.UserID) recordstore.Path {
	return recordstore.Join("users", userID.String(), "cart")
}

// ItemPath is where one cart item is persisted.
func ItemPath(userID id.UserID, itemID id.ItemID) recordstore.Path {
	return CartPath(userID).Child(itemID.String())
}

// Store is one identity's cart: an in-memory mirror of users/{uid}/cart kept
// write-through. Mutations for the store are serialised by its mutex, which
// is held across the persistence call so the mirror always matches what was
// last written.
//
// Mutators never return errors; the Outcome says whether anything happened.
type Store struct {
	records recordstore.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	userID id.UserID
	items  map[id.ItemID]models.CartItem
	remote *remoteSync

	obsMu     sync.Mutex
	observers map[uint64]func(models.Snapshot)
	nextObs   uint64
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New returns an empty, signed-out cart. Call Load to bind it to a user.
func New(records recordstore.Store, opts ...Option) *Store {
	s := &Store{
		records:   records,
		logger:    slog.Default(),
		items:     make(map[id.ItemID]models.CartItem),
		observers: make(map[uint64]func(models.Snapshot)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load replaces the in-memory cart with userID's persisted cart. An empty
// userID signs out: memory is cleared and storage is left alone. Switching
// users never carries items over. On a read failure the cart is left empty
// for userID and the error is returned.
func (s *Store) Load(ctx context.Context, userID id.UserID) error {
	s.mu.Lock()
	previous := s.remote
	s.remote = nil
	s.userID = userID
	s.items = make(map[id.ItemID]models.CartItem)

	var loadErr error
	if !userID.IsNil() {
		items, err := s.fetch(ctx, userID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to load cart",
				"user_id", userID.String(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			loadErr = err
		} else {
			s.items = items
		}
		s.remote = s.startRemoteSync(ctx, userID)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	previous.stop()
	s.notify(snap)
	return loadErr
}

// fetch reads and sanitises the persisted cart. Corrupt records and records
// with quantity < 1 are skipped.
func (s *Store) fetch(ctx context.Context, userID id.UserID) (map[id.ItemID]models.CartItem, error) {
	raw, err := recordstore.ChildrenJSON[models.CartItem](ctx, s.records, CartPath(userID), func(key string, err error) {
		s.logger.WarnContext(ctx, "skipping corrupt cart item",
			"user_id", userID.String(),
			"item_id", key,
			"error", err,
		)
	})
	if err != nil {
		return nil, err
	}
	items := make(map[id.ItemID]models.CartItem, len(raw))
	for key, item := range raw {
		item.ID = id.ItemID(key)
		if !item.Valid() {
			s.logger.WarnContext(ctx, "skipping invalid cart item",
				"user_id", userID.String(),
				"item_id", key,
			)
			continue
		}
		items[item.ID] = item
	}
	return items, nil
}

// AddItem merges quantity of item into the cart; quantity <= 0 means 1. An
// existing line keeps its details and gains quantity. A new line is stamped
// with the request time. A line never holds more than MaxQuantity; an add
// that would pass it is rejected and the line is left as it was.
func (s *Store) AddItem(ctx context.Context, item models.CartItem, quantity int) models.Outcome {
	if quantity <= 0 {
		quantity = 1
	}

	s.mu.Lock()
	userID := s.userID
	if userID.IsNil() || item.ID.IsNil() || item.Price.IsNegative() || quantity > models.MaxQuantity {
		s.mu.Unlock()
		return s.rejected(ctx, "add", userID, item.ID)
	}

	now := requestcontext.Now(ctx)
	persisted, err := recordstore.TransactJSON(ctx, s.records, ItemPath(userID, item.ID),
		func(current models.CartItem, exists bool) (models.CartItem, error) {
			if exists && current.Quantity >= 1 {
				if current.Quantity > models.MaxQuantity-quantity {
					return current, errQuantityLimit
				}
				current.ID = item.ID
				current.Quantity += quantity
				return current, nil
			}
			next := item
			next.Quantity = quantity
			next.AddedAt = now
			return next, nil
		})
	if errors.Is(err, errQuantityLimit) {
		s.mu.Unlock()
		return s.rejected(ctx, "add", userID, item.ID)
	}
	if err != nil {
		s.mu.Unlock()
		return s.persistFailed(ctx, "add", userID, item.ID, err)
	}

	s.items[item.ID] = persisted
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.applied(snap, "add")
}

// RemoveItem deletes the line for itemID.
func (s *Store) RemoveItem(ctx context.Context, itemID id.ItemID) models.Outcome {
	s.mu.Lock()
	userID := s.userID
	if userID.IsNil() || itemID.IsNil() {
		s.mu.Unlock()
		return s.rejected(ctx, "remove", userID, itemID)
	}

	if err := s.records.Delete(ctx, ItemPath(userID, itemID)); err != nil {
		s.mu.Unlock()
		return s.persistFailed(ctx, "remove", userID, itemID, err)
	}

	delete(s.items, itemID)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.applied(snap, "remove")
}

// UpdateQuantity sets the quantity of an existing line. Quantities below 1
// or above MaxQuantity are rejected; removal is RemoveItem's job.
func (s *Store) UpdateQuantity(ctx context.Context, itemID id.ItemID, quantity int) models.Outcome {
	s.mu.Lock()
	userID := s.userID
	if userID.IsNil() || itemID.IsNil() || quantity < 1 || quantity > models.MaxQuantity {
		s.mu.Unlock()
		return s.rejected(ctx, "update", userID, itemID)
	}

	persisted, err := recordstore.TransactJSON(ctx, s.records, ItemPath(userID, itemID),
		func(current models.CartItem, exists bool) (models.CartItem, error) {
			if !exists {
				return current, errItemAbsent
			}
			current.ID = itemID
			current.Quantity = quantity
			return current, nil
		})
	if errors.Is(err, errItemAbsent) {
		s.mu.Unlock()
		return s.rejected(ctx, "update", userID, itemID)
	}
	if err != nil {
		s.mu.Unlock()
		return s.persistFailed(ctx, "update", userID, itemID, err)
	}

	s.items[itemID] = persisted
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.applied(snap, "update")
}

// Clear deletes the whole persisted cart and empties memory.
func (s *Store) Clear(ctx context.Context) models.Outcome {
	s.mu.Lock()
	userID := s.userID
	if userID.IsNil() {
		s.mu.Unlock()
		return s.rejected(ctx, "clear", userID, "")
	}

	if err := s.records.Delete(ctx, CartPath(userID)); err != nil {
		s.mu.Unlock()
		return s.persistFailed(ctx, "clear", userID, "", err)
	}

	s.items = make(map[id.ItemID]models.CartItem)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.applied(snap, "clear")
}

// RemoveOrdered takes checked-out lines out of the cart. Each line is
// matched against storage by addedAt: a matching line loses the ordered
// quantity and goes once none is left, while a line that was removed or
// re-added since the snapshot is left alone. Lines not in ordered are never
// touched, so items added during checkout survive it.
func (s *Store) RemoveOrdered(ctx context.Context, ordered []models.CartItem) models.Outcome {
	s.mu.Lock()
	userID := s.userID
	if userID.IsNil() {
		s.mu.Unlock()
		return s.rejected(ctx, "checkout", userID, "")
	}

	changed := false
	for _, line := range ordered {
		var (
			removed    bool
			seen       models.CartItem
			seenExists bool
		)
		persisted, err := recordstore.TransactJSON(ctx, s.records, ItemPath(userID, line.ID),
			func(current models.CartItem, exists bool) (models.CartItem, error) {
				seen, seenExists = current, exists
				if !exists || !current.AddedAt.Equal(line.AddedAt) {
					return current, errLineChanged
				}
				if current.Quantity <= line.Quantity {
					removed = true
					return current, recordstore.ErrRemove
				}
				current.ID = line.ID
				current.Quantity -= line.Quantity
				return current, nil
			})
		switch {
		case errors.Is(err, errLineChanged):
			seen.ID = line.ID
			if seenExists && seen.Valid() {
				s.items[line.ID] = seen
			} else {
				delete(s.items, line.ID)
			}
		case err != nil:
			snap := s.snapshotLocked()
			s.mu.Unlock()
			if changed {
				s.notify(snap)
			}
			return s.persistFailed(ctx, "checkout", userID, line.ID, err)
		case removed:
			delete(s.items, line.ID)
		default:
			s.items[line.ID] = persisted
		}
		changed = true
	}

	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.applied(snap, "checkout")
}

// UserID is the identity the cart is bound to, or empty when signed out.
func (s *Store) UserID() id.UserID {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Snapshot copies the current cart with fresh totals.
func (s *Store) Snapshot() models.Snapshot {
	if s == nil {
		return models.NewSnapshot("", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns the cart lines ordered by addedAt.
func (s *Store) Items() []models.CartItem {
	return s.Snapshot().Items
}

// TotalItems is the sum of quantities, recomputed on every call.
func (s *Store) TotalItems() int {
	return models.TotalItems(s.Items())
}

// TotalPrice is the sum of line totals, recomputed on every call.
func (s *Store) TotalPrice() id.Money {
	return models.TotalPrice(s.Items())
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// outside the cart lock and must not block for long.
func (s *Store) Subscribe(fn func(models.Snapshot)) (cancel func()) {
	s.obsMu.Lock()
	s.nextObs++
	key := s.nextObs
	s.observers[key] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, key)
			s.obsMu.Unlock()
		})
	}
}

// Observed reports whether anything is subscribed to the cart.
func (s *Store) Observed() bool {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	return len(s.observers) > 0
}

func (s *Store) snapshotLocked() models.Snapshot {
	items := make([]models.CartItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	return models.NewSnapshot(s.userID, items)
}

func (s *Store) notify(snap models.Snapshot) {
	s.obsMu.Lock()
	fns := make([]func(models.Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) applied(snap models.Snapshot, op string) models.Outcome {
	s.metrics.IncrementCartMutation(op, models.OutcomeApplied.String())
	s.notify(snap)
	return models.OutcomeApplied
}

func (s *Store) rejected(ctx context.Context, op string, userID id.UserID, itemID id.ItemID) models.Outcome {
	s.metrics.IncrementCartMutation(op, models.OutcomeRejected.String())
	s.logger.DebugContext(ctx, "cart mutation rejected",
		"op", op,
		"user_id", userID.String(),
		"item_id", itemID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.OutcomeRejected
}

func (s *Store) persistFailed(ctx context.Context, op string, userID id.UserID, itemID id.ItemID, err error) models.Outcome {
	s.metrics.IncrementCartMutation(op, models.OutcomePersistFailed.String())
	s.logger.ErrorContext(ctx, "cart write failed",
		"op", op,
		"user_id", userID.String(),
		"item_id", itemID.String(),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.OutcomePersistFailed
}

// Close signs the cart out and stops remote sync. Storage is untouched.
func (s *Store) Close() {
	_ = s.Load(context.Background(), "")
}

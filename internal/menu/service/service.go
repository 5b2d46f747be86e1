package service

import (
	"context"
	"errors"
	"log/slog"

	cartModels "homechef/internal/cart/models"
	"homechef/internal/menu/models"
	"homechef/internal/platform/metrics"
	"homechef/internal/recordstore"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/sentinel"
	"homechef/pkg/requestcontext"
)

// ItemsPath is the collection every menu item lives under.
const ItemsPath recordstore.Path = "menu-items"

// Path is where one menu item is stored.
func Path(itemID id.ItemID) recordstore.Path {
	return ItemsPath.Child(itemID.String())
}

// errNotOwner aborts a transaction on another provider's item.
var errNotOwner = errors.New("menu item owned by another provider")

// Filter narrows List.
type Filter struct {
	// ProviderID keeps one provider's items; empty keeps everyone's.
	ProviderID id.UserID
	// IncludeInactive keeps items customers cannot order.
	IncludeInactive bool
}

// Service is the menu catalogue. Providers edit their own items; everyone
// reads, and the cart and order services resolve item details through it so
// prices never come from the client.
type Service struct {
	records recordstore.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(records recordstore.Store, opts ...Option) *Service {
	s := &Service{
		records: records,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create lists a new active item for providerID.
func (s *Service) Create(ctx context.Context, providerID id.UserID, details models.Details) (models.MenuItem, error) {
	if providerID.IsNil() {
		return models.MenuItem{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err := details.Validate(); err != nil {
		return models.MenuItem{}, err
	}
	path, err := s.records.Push(ctx, ItemsPath)
	if err != nil {
		return models.MenuItem{}, s.writeFailed(ctx, "create", "", err)
	}
	item := models.NewMenuItem(id.ItemID(path.Base()), providerID, details, requestcontext.Now(ctx))
	if err := recordstore.CreateJSON(ctx, s.records, path, item); err != nil {
		return models.MenuItem{}, s.writeFailed(ctx, "create", item.ID, err)
	}
	s.metrics.IncrementMenuChange("create")
	s.logger.InfoContext(ctx, "menu item created",
		"request_id", requestcontext.RequestID(ctx),
		"provider_id", providerID.String(),
		"item_id", item.ID.String(),
	)
	return item, nil
}

// Update applies patch to one of providerID's items.
func (s *Service) Update(ctx context.Context, providerID id.UserID, itemID id.ItemID, patch models.Patch) (models.MenuItem, error) {
	if providerID.IsNil() {
		return models.MenuItem{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)
	updated, err := recordstore.TransactJSON(ctx, s.records, Path(itemID),
		func(current models.MenuItem, exists bool) (models.MenuItem, error) {
			if !exists {
				return current, sentinel.ErrNotFound
			}
			if current.ProviderID != providerID {
				return current, errNotOwner
			}
			current.ID = itemID
			return patch.Apply(current, now)
		})
	if err != nil {
		return models.MenuItem{}, s.mapWriteError(ctx, "update", itemID, err)
	}
	s.metrics.IncrementMenuChange("update")
	return updated, nil
}

// Delete removes one of providerID's items. Carts that already hold it keep
// their line; it can no longer be added or bought.
func (s *Service) Delete(ctx context.Context, providerID id.UserID, itemID id.ItemID) error {
	if providerID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	_, err := recordstore.TransactJSON(ctx, s.records, Path(itemID),
		func(current models.MenuItem, exists bool) (models.MenuItem, error) {
			if !exists {
				return current, sentinel.ErrNotFound
			}
			if current.ProviderID != providerID {
				return current, errNotOwner
			}
			return current, recordstore.ErrRemove
		})
	if err != nil {
		return s.mapWriteError(ctx, "delete", itemID, err)
	}
	s.metrics.IncrementMenuChange("delete")
	s.logger.InfoContext(ctx, "menu item deleted",
		"request_id", requestcontext.RequestID(ctx),
		"provider_id", providerID.String(),
		"item_id", itemID.String(),
	)
	return nil
}

// Get returns one item, active or not.
func (s *Service) Get(ctx context.Context, itemID id.ItemID) (models.MenuItem, error) {
	item, err := recordstore.ReadJSON[models.MenuItem](ctx, s.records, Path(itemID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.MenuItem{}, dErrors.New(dErrors.CodeNotFound, "menu item not found")
	}
	if err != nil {
		return models.MenuItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load menu item")
	}
	item.ID = itemID
	return item, nil
}

// List returns the items matching f, oldest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.MenuItem, error) {
	all, err := recordstore.ChildrenJSON[models.MenuItem](ctx, s.records, ItemsPath, func(key string, err error) {
		s.logger.WarnContext(ctx, "skipping unreadable menu item", "item_id", key, "error", err)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load menu")
	}
	items := make([]models.MenuItem, 0, len(all))
	for key, item := range all {
		item.ID = id.ItemID(key)
		if !f.ProviderID.IsNil() && item.ProviderID != f.ProviderID {
			continue
		}
		if !f.IncludeInactive && !item.Orderable() {
			continue
		}
		items = append(items, item)
	}
	models.SortItems(items)
	return items, nil
}

// CartItem resolves itemID to the details a cart line or order carries.
// Missing items are not found; inactive ones are in an invalid state.
func (s *Service) CartItem(ctx context.Context, itemID id.ItemID) (cartModels.CartItem, error) {
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return cartModels.CartItem{}, err
	}
	if !item.Orderable() {
		return cartModels.CartItem{}, dErrors.New(dErrors.CodeInvalidState, "menu item is not available")
	}
	return item.CartItem(), nil
}

func (s *Service) mapWriteError(ctx context.Context, op string, itemID id.ItemID, err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "menu item not found")
	case errors.Is(err, errNotOwner):
		return dErrors.New(dErrors.CodeForbidden, "only the item's provider can change it")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "menu item was changed concurrently, try again")
	}
	return s.writeFailed(ctx, op, itemID, err)
}

func (s *Service) writeFailed(ctx context.Context, op string, itemID id.ItemID, err error) error {
	s.logger.ErrorContext(ctx, "menu write failed",
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"item_id", itemID.String(),
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save menu item")
}

package service

import (
	"context"
	"errors"

	"homechef/internal/order/models"
	"homechef/internal/recordstore"
	statsModels "homechef/internal/stats/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/sentinel"
	"homechef/pkg/requestcontext"
)

// watchBuffer bounds change notifications queued for one provider stream.
const watchBuffer = 64

// CustomerOrders splits a customer's orders the way the orders page shows them.
type CustomerOrders struct {
	Active    []models.Order `json:"active"`
	Delivered []models.Order `json:"delivered"`
}

// ListForCustomer returns the user's orders newest first, split into active
// and delivered.
func (s *Service) ListForCustomer(ctx context.Context, userID id.UserID) (CustomerOrders, error) {
	if userID.IsNil() {
		return CustomerOrders{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	orders, err := s.list(ctx, func(o models.Order) bool { return o.UserID == userID })
	if err != nil {
		return CustomerOrders{}, err
	}
	out := CustomerOrders{Active: []models.Order{}, Delivered: []models.Order{}}
	for _, o := range orders {
		if o.IsActive() {
			out.Active = append(out.Active, o)
		} else {
			out.Delivered = append(out.Delivered, o)
		}
	}
	return out, nil
}

// ListForProvider returns the provider's orders newest first. limit <= 0
// returns all of them.
func (s *Service) ListForProvider(ctx context.Context, providerID id.UserID, limit int) ([]models.Order, error) {
	if providerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	orders, err := s.list(ctx, func(o models.Order) bool { return o.ProviderID == providerID })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// Get returns one order visible to userID as its customer or provider.
func (s *Service) Get(ctx context.Context, userID id.UserID, orderID id.OrderID) (models.Order, error) {
	if userID.IsNil() {
		return models.Order{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	order, err := recordstore.ReadJSON[models.Order](ctx, s.records, Path(orderID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Order{}, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return models.Order{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load order")
	}
	if order.UserID != userID && order.ProviderID != userID {
		// indistinguishable from a missing order
		return models.Order{}, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// Stats returns the provider's statistics for the current month.
func (s *Service) Stats(ctx context.Context, providerID id.UserID) (statsModels.ProviderStats, error) {
	if providerID.IsNil() {
		return statsModels.ProviderStats{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return s.stats.Get(ctx, providerID, requestcontext.Now(ctx))
}

func (s *Service) list(ctx context.Context, keep func(models.Order) bool) ([]models.Order, error) {
	all, err := recordstore.ChildrenJSON[models.Order](ctx, s.records, OrdersPath, func(key string, err error) {
		s.logger.WarnContext(ctx, "skipping unreadable order", "order_id", key, "error", err)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load orders")
	}
	orders := make([]models.Order, 0, len(all))
	for _, o := range all {
		if keep(o) {
			orders = append(orders, o)
		}
	}
	models.SortNewestFirst(orders)
	return orders, nil
}

// WatchProvider streams the provider's orders as they are created or change.
// The channel closes when ctx ends. Bursts beyond the stream buffer are
// dropped; clients resync with ListForProvider.
func (s *Service) WatchProvider(ctx context.Context, providerID id.UserID) (<-chan models.Order, error) {
	if providerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	changed := make(chan recordstore.Path, watchBuffer)
	unsubscribe, err := s.records.Subscribe(ctx, OrdersPath, func(c recordstore.Change) {
		if c.Kind != recordstore.ChangeWritten || c.Path.Parent() != OrdersPath {
			return
		}
		select {
		case changed <- c.Path:
		default:
			s.logger.WarnContext(ctx, "order stream lagging, dropping change",
				"provider_id", providerID.String(),
				"path", c.Path.String(),
			)
		}
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to watch orders")
	}

	out := make(chan models.Order)
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-changed:
				order, err := recordstore.ReadJSON[models.Order](ctx, s.records, path)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.WarnContext(ctx, "failed to read changed order", "path", path.String(), "error", err)
					}
					continue
				}
				if order.ProviderID != providerID {
					continue
				}
				select {
				case out <- order:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

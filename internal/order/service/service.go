package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cartModels "homechef/internal/cart/models"
	"homechef/internal/events"
	"homechef/internal/order/models"
	"homechef/internal/platform/metrics"
	"homechef/internal/recordstore"
	statsModels "homechef/internal/stats/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/sentinel"
	"homechef/pkg/requestcontext"
)

// OrdersPath is the collection every order lives under.
const OrdersPath recordstore.Path = "orders"

// Path is where one order is stored.
func Path(orderID id.OrderID) recordstore.Path {
	return OrdersPath.Child(orderID.String())
}

// Cart is the part of the cart store checkout needs.
type Cart interface {
	Snapshot() cartModels.Snapshot
	RemoveOrdered(ctx context.Context, ordered []cartModels.CartItem) cartModels.Outcome
}

// Catalog resolves a menu item id to the details an order line carries.
type Catalog interface {
	CartItem(ctx context.Context, itemID id.ItemID) (cartModels.CartItem, error)
}

// StatsRecorder maintains provider statistics.
type StatsRecorder interface {
	RecordPlaced(ctx context.Context, providerID id.UserID, amount id.Money, at time.Time) (statsModels.ProviderStats, error)
	RecordTransition(ctx context.Context, providerID id.UserID, from, to models.Status, at time.Time) (statsModels.ProviderStats, error)
	Get(ctx context.Context, providerID id.UserID, at time.Time) (statsModels.ProviderStats, error)
}

// EventEmitter hands order events to the publishing pipeline.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Service creates orders and moves them through their lifecycle.
type Service struct {
	records recordstore.Store
	catalog Catalog
	stats   StatsRecorder
	events  EventEmitter
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
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

// WithEvents publishes order.placed and order.status_changed through emitter.
func WithEvents(emitter EventEmitter) Option {
	return func(s *Service) {
		s.events = emitter
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(records recordstore.Store, catalog Catalog, stats StatsRecorder, opts ...Option) *Service {
	s := &Service{
		records: records,
		catalog: catalog,
		stats:   stats,
		logger:  slog.Default(),
		tracer:  otel.Tracer("homechef/order"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CheckoutCart turns every cart line into its own pending order, then takes
// the ordered lines out of the cart. Lines added while checkout runs stay in
// the cart. If any order write fails the cart is kept and the caller gets one
// opaque error; orders already written stay, and a retry with the same cart
// reuses their ids instead of duplicating them.
func (s *Service) CheckoutCart(ctx context.Context, userID id.UserID, cart Cart) ([]models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CheckoutCart")
	defer span.End()

	if userID.IsNil() {
		return nil, s.fail(span, dErrors.New(dErrors.CodeUnauthorized, "sign in to place an order"))
	}
	snap := cart.Snapshot()
	if snap.UserID != userID {
		return nil, s.fail(span, dErrors.New(dErrors.CodeForbidden, "cart belongs to another user"))
	}
	span.SetAttributes(attribute.String("user_id", userID.String()), attribute.Int("cart.items", len(snap.Items)))
	if snap.IsEmpty() {
		return []models.Order{}, nil
	}

	now := requestcontext.Now(ctx)
	key := IdempotencyKey(userID, snap.Items)
	orders := make([]models.Order, 0, len(snap.Items))
	created := 0
	for _, item := range snap.Items {
		order := models.NewOrder(OrderIDFor(key, item.ID), userID, item, models.SourceCart, key, now)
		stored, fresh, err := s.create(ctx, order)
		if err != nil {
			s.metrics.IncrementCheckoutFailure()
			s.metrics.AddOrdersCreated(string(models.SourceCart), created)
			s.logger.ErrorContext(ctx, "checkout failed",
				"request_id", requestcontext.RequestID(ctx),
				"user_id", userID.String(),
				"item_id", item.ID.String(),
				"orders_written", len(orders),
				"error", err,
			)
			return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to place order, try again"))
		}
		if fresh {
			created++
			s.afterPlaced(ctx, stored, now)
		}
		orders = append(orders, stored)
	}
	s.metrics.AddOrdersCreated(string(models.SourceCart), created)

	if outcome := cart.RemoveOrdered(ctx, snap.Items); outcome != cartModels.OutcomeApplied {
		s.logger.WarnContext(ctx, "ordered lines not removed from cart",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID.String(),
			"outcome", outcome.String(),
		)
	}

	s.logger.InfoContext(ctx, "cart checked out",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"orders", len(orders),
		"created", created,
	)
	return orders, nil
}

// BuyNow places a single order for the menu item itemID without touching the
// cart. Name, price and provider come from the catalogue.
func (s *Service) BuyNow(ctx context.Context, userID id.UserID, itemID id.ItemID, quantity int) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.BuyNow")
	defer span.End()

	if userID.IsNil() {
		return models.Order{}, s.fail(span, dErrors.New(dErrors.CodeUnauthorized, "sign in to place an order"))
	}
	if itemID.IsNil() {
		return models.Order{}, s.fail(span, dErrors.New(dErrors.CodeValidation, "item id is required"))
	}
	if quantity > cartModels.MaxQuantity {
		return models.Order{}, s.fail(span, dErrors.New(dErrors.CodeValidation, "quantity is too large"))
	}
	if quantity <= 0 {
		quantity = 1
	}
	span.SetAttributes(attribute.String("user_id", userID.String()), attribute.String("item_id", itemID.String()))

	item, err := s.catalog.CartItem(ctx, itemID)
	if err != nil {
		return models.Order{}, s.fail(span, err)
	}
	item.Quantity = quantity

	now := requestcontext.Now(ctx)
	path, err := s.records.Push(ctx, OrdersPath)
	if err != nil {
		return models.Order{}, s.buyNowFailed(ctx, span, userID, item.ID, err)
	}
	order := models.NewOrder(id.OrderID(path.Base()), userID, item, models.SourceBuyNow, "", now)
	if err := recordstore.CreateJSON(ctx, s.records, path, order); err != nil {
		return models.Order{}, s.buyNowFailed(ctx, span, userID, item.ID, err)
	}
	s.metrics.AddOrdersCreated(string(models.SourceBuyNow), 1)
	s.afterPlaced(ctx, order, now)

	s.logger.InfoContext(ctx, "buy-now order placed",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"order_id", order.ID.String(),
	)
	return order, nil
}

func (s *Service) buyNowFailed(ctx context.Context, span trace.Span, userID id.UserID, itemID id.ItemID, err error) error {
	s.metrics.IncrementCheckoutFailure()
	s.logger.ErrorContext(ctx, "buy-now failed",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"item_id", itemID.String(),
		"error", err,
	)
	return s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to place order, try again"))
}

// create writes order unless its id already exists, in which case the stored
// order is returned with fresh=false.
func (s *Service) create(ctx context.Context, order models.Order) (models.Order, bool, error) {
	err := recordstore.CreateJSON(ctx, s.records, Path(order.ID), order)
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, sentinel.ErrAlreadyExists) {
		return models.Order{}, false, err
	}
	existing, err := recordstore.ReadJSON[models.Order](ctx, s.records, Path(order.ID))
	if err != nil {
		return models.Order{}, false, err
	}
	return existing, false, nil
}

// afterPlaced runs the best-effort side effects of a new order.
func (s *Service) afterPlaced(ctx context.Context, order models.Order, now time.Time) {
	if _, err := s.stats.RecordPlaced(ctx, order.ProviderID, order.TotalAmount, now); err != nil {
		s.logger.WarnContext(ctx, "provider stats not updated for new order",
			"order_id", order.ID.String(),
			"provider_id", order.ProviderID.String(),
			"error", err,
		)
	}
	if s.events != nil {
		s.events.Emit(ctx, events.OrderPlaced(order, now))
	}
}

// Transition moves an order to next on behalf of its provider.
func (s *Service) Transition(ctx context.Context, providerID id.UserID, orderID id.OrderID, next models.Status) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Transition")
	defer span.End()

	if providerID.IsNil() {
		return models.Order{}, s.fail(span, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	if orderID.IsNil() {
		return models.Order{}, s.fail(span, dErrors.New(dErrors.CodeValidation, "order id is required"))
	}
	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("status.next", next.String()),
	)

	now := requestcontext.Now(ctx)
	var previous models.Status
	updated, err := recordstore.TransactJSON(ctx, s.records, Path(orderID),
		func(current models.Order, exists bool) (models.Order, error) {
			if !exists {
				return current, dErrors.New(dErrors.CodeNotFound, "order not found")
			}
			if current.ProviderID != providerID {
				return current, dErrors.New(dErrors.CodeForbidden, "only the order's provider can change its status")
			}
			if err := current.CanTransition(next); err != nil {
				return current, err
			}
			previous = current.Status
			current.ApplyTransition(next, now)
			return current, nil
		})
	if err != nil {
		var de *dErrors.Error
		switch {
		case errors.As(err, &de):
		case errors.Is(err, sentinel.ErrConflict):
			err = dErrors.Wrap(err, dErrors.CodeConflict, "order was changed concurrently, try again")
		default:
			s.logger.ErrorContext(ctx, "order status update failed",
				"request_id", requestcontext.RequestID(ctx),
				"order_id", orderID.String(),
				"error", err,
			)
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to update order status")
		}
		return models.Order{}, s.fail(span, err)
	}

	s.metrics.IncrementStatusTransition(next.String())
	if _, err := s.stats.RecordTransition(ctx, providerID, previous, next, now); err != nil {
		s.logger.WarnContext(ctx, "provider stats not updated for transition",
			"order_id", orderID.String(),
			"provider_id", providerID.String(),
			"error", err,
		)
	}
	if s.events != nil {
		s.events.Emit(ctx, events.StatusChanged(updated, previous, now))
	}

	s.logger.InfoContext(ctx, "order status changed",
		"request_id", requestcontext.RequestID(ctx),
		"order_id", orderID.String(),
		"from", previous.String(),
		"to", next.String(),
	)
	return updated, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

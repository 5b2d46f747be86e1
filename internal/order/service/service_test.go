package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	cartModels "homechef/internal/cart/models"
	cartService "homechef/internal/cart/service"
	"homechef/internal/events"
	"homechef/internal/order/models"
	"homechef/internal/platform/metrics"
	"homechef/internal/recordstore"
	"homechef/internal/recordstore/memory"
	"homechef/internal/recordstore/storetest"
	statsService "homechef/internal/stats/service"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/requestcontext"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(_ context.Context, event events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) emitted() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event(nil), e.events...)
}

// menuStub is a catalogue of items offered by the test.
type menuStub struct {
	mu    sync.Mutex
	items map[id.ItemID]cartModels.CartItem
}

func (m *menuStub) CartItem(_ context.Context, itemID id.ItemID) (cartModels.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return cartModels.CartItem{}, dErrors.New(dErrors.CodeNotFound, "menu item not found")
	}
	return item, nil
}

// sideCart adds a line through a second session of the same user the first
// time checkout takes its snapshot.
type sideCart struct {
	*cartService.Store
	ctx   context.Context
	other *cartService.Store
	add   cartModels.CartItem
	qty   int
	once  sync.Once

	added cartModels.Outcome
}

func (c *sideCart) Snapshot() cartModels.Snapshot {
	snap := c.Store.Snapshot()
	c.once.Do(func() {
		c.added = c.other.AddItem(c.ctx, c.add, c.qty)
	})
	return snap
}

type OrderServiceSuite struct {
	suite.Suite
	menu    *menuStub
	records *storetest.Faulty
	stats   *statsService.Recorder
	emitter *recordingEmitter
	metrics *metrics.Metrics
	service *Service
	logger  *slog.Logger
	ctx     context.Context
	now     time.Time
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.records = storetest.NewFaulty(memory.New())
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.stats = statsService.New(s.records, statsService.WithLogger(s.logger))
	s.emitter = &recordingEmitter{}
	s.menu = &menuStub{items: make(map[id.ItemID]cartModels.CartItem)}
	s.service = New(s.records, s.menu, s.stats,
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithEvents(s.emitter),
	)
	s.now = time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func dish(itemID string, price int64, providerID id.UserID) cartModels.CartItem {
	return cartModels.CartItem{
		ID:         id.ItemID(itemID),
		Name:       "Dish " + itemID,
		Price:      decimal.NewFromInt(price),
		ProviderID: providerID,
	}
}

// offer puts item on the menu and returns its id.
func (s *OrderServiceSuite) offer(item cartModels.CartItem) id.ItemID {
	s.menu.mu.Lock()
	defer s.menu.mu.Unlock()
	s.menu.items[item.ID] = item
	return item.ID
}

// cartWith loads a cart for userID and adds the given items with quantities.
func (s *OrderServiceSuite) cartWith(userID id.UserID, lines map[cartModels.CartItem]int) *cartService.Store {
	cart := cartService.New(s.records, cartService.WithLogger(s.logger))
	s.T().Cleanup(cart.Close)
	s.Require().NoError(cart.Load(s.ctx, userID))
	for item, qty := range lines {
		s.Require().Equal(cartModels.OutcomeApplied, cart.AddItem(s.ctx, item, qty))
	}
	return cart
}

func (s *OrderServiceSuite) storedOrders() map[string]models.Order {
	orders, err := recordstore.ChildrenJSON[models.Order](context.Background(), s.records, OrdersPath, nil)
	s.Require().NoError(err)
	return orders
}

func (s *OrderServiceSuite) providerStats(providerID id.UserID) (total, pending, completed, cancelled int64) {
	st, err := s.stats.Get(context.Background(), providerID, s.now)
	s.Require().NoError(err)
	return st.TotalOrders, st.PendingOrders, st.CompletedOrders, st.CancelledOrders
}

func (s *OrderServiceSuite) TestCheckoutCreatesOneOrderPerItemAndClearsCart() {
	cart := s.cartWith("customer-1", map[cartModels.CartItem]int{
		dish("a", 10, "chef-1"): 2,
		dish("b", 5, "chef-2"):  1,
	})

	orders, err := s.service.CheckoutCart(s.ctx, "customer-1", cart)

	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal(id.ItemID("a"), orders[0].Items[0].ItemID)
	s.True(decimal.NewFromInt(20).Equal(orders[0].TotalAmount))
	s.Equal(id.UserID("chef-1"), orders[0].ProviderID)
	s.True(decimal.NewFromInt(5).Equal(orders[1].TotalAmount))
	for _, o := range orders {
		s.Equal(models.StatusPending, o.Status)
		s.Equal(models.SourceCart, o.Source)
		s.Equal(s.now, o.CreatedAt)
		s.Equal(o.CreatedAt, o.UpdatedAt)
		s.Len(o.Items, 1)
		s.NotEmpty(o.IdempotencyKey)
	}
	s.Len(s.storedOrders(), 2)

	s.True(cart.Snapshot().IsEmpty(), "cart is cleared in memory")
	persisted, err := s.records.Children(context.Background(), cartService.CartPath("customer-1"))
	s.Require().NoError(err)
	s.Empty(persisted, "cart is cleared in storage")

	total, pending, _, _ := s.providerStats("chef-1")
	s.Equal(int64(1), total)
	s.Equal(int64(1), pending)
	st, err := s.stats.Get(context.Background(), "chef-1", s.now)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(20).Equal(st.TotalRevenue))

	emitted := s.emitter.emitted()
	s.Require().Len(emitted, 2)
	s.Equal(events.TypeOrderPlaced, emitted[0].Type)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.OrdersCreated.WithLabelValues("cart")))
}

func (s *OrderServiceSuite) TestCheckoutFailureKeepsCartAndRetryDoesNotDuplicate() {
	cart := s.cartWith("customer-1", map[cartModels.CartItem]int{
		dish("a", 10, "chef-1"): 1,
		dish("b", 5, "chef-1"):  1,
		dish("c", 8, "chef-1"):  1,
	})
	s.records.FailOn(storetest.OpCreate, 2, errors.New("disk full"))

	orders, err := s.service.CheckoutCart(s.ctx, "customer-1", cart)

	s.Require().Error(err)
	s.Nil(orders)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	var de *dErrors.Error
	s.Require().ErrorAs(err, &de)
	s.Equal("failed to place order, try again", de.Message)
	stored := s.storedOrders()
	s.Require().Len(stored, 1, "only the order before the failure is written")
	for _, o := range stored {
		s.Equal(id.ItemID("a"), o.Items[0].ItemID)
	}
	s.Len(cart.Snapshot().Items, 3, "cart keeps every line")
	persisted, err := s.records.Children(context.Background(), cartService.CartPath("customer-1"))
	s.Require().NoError(err)
	s.Len(persisted, 3, "stored cart keeps every line")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CheckoutFailures))

	s.records.Heal()
	orders, err = s.service.CheckoutCart(s.ctx, "customer-1", cart)

	s.Require().NoError(err)
	s.Len(orders, 3)
	s.Len(s.storedOrders(), 3, "retry reuses the order already written")
	total, pending, _, _ := s.providerStats("chef-1")
	s.Equal(int64(3), total, "stats count each order once")
	s.Equal(int64(3), pending)
	s.Len(s.emitter.emitted(), 3)
	s.True(cart.Snapshot().IsEmpty())
}

func (s *OrderServiceSuite) TestCheckoutKeepsLinesAddedDuringCheckout() {
	first := s.cartWith("customer-1", map[cartModels.CartItem]int{
		dish("a", 10, "chef-1"): 1,
		dish("b", 5, "chef-2"):  1,
	})
	second := s.cartWith("customer-1", nil)
	cart := &sideCart{Store: first, ctx: s.ctx, other: second, add: dish("c", 3, "chef-1"), qty: 1}

	orders, err := s.service.CheckoutCart(s.ctx, "customer-1", cart)

	s.Require().NoError(err)
	s.Require().Equal(cartModels.OutcomeApplied, cart.added)
	s.Len(orders, 2)
	persisted, err := s.records.Children(context.Background(), cartService.CartPath("customer-1"))
	s.Require().NoError(err)
	s.Require().Len(persisted, 1)
	s.Contains(persisted, "c", "line added after the snapshot survives checkout")
	s.Eventually(func() bool {
		items := first.Items()
		return len(items) == 1 && items[0].ID == "c"
	}, time.Second, 10*time.Millisecond)
}

func (s *OrderServiceSuite) TestCheckoutKeepsQuantityAddedDuringCheckout() {
	first := s.cartWith("customer-1", map[cartModels.CartItem]int{dish("a", 10, "chef-1"): 2})
	second := s.cartWith("customer-1", nil)
	cart := &sideCart{Store: first, ctx: s.ctx, other: second, add: dish("a", 10, "chef-1"), qty: 3}

	orders, err := s.service.CheckoutCart(s.ctx, "customer-1", cart)

	s.Require().NoError(err)
	s.Require().Equal(cartModels.OutcomeApplied, cart.added)
	s.Require().Len(orders, 1)
	s.Equal(2, orders[0].Items[0].Quantity)
	line, err := recordstore.ReadJSON[cartModels.CartItem](context.Background(), s.records, cartService.ItemPath("customer-1", "a"))
	s.Require().NoError(err)
	s.Equal(3, line.Quantity, "only the ordered quantity leaves the cart")
}

func (s *OrderServiceSuite) TestConcurrentCheckoutOfSameCart() {
	cart := s.cartWith("customer-1", map[cartModels.CartItem]int{
		dish("a", 10, "chef-1"): 1,
		dish("b", 5, "chef-1"):  3,
	})

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.CheckoutCart(s.ctx, "customer-1", cart)
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Len(s.storedOrders(), 2)
	total, _, _, _ := s.providerStats("chef-1")
	s.Equal(int64(2), total)
	s.True(cart.Snapshot().IsEmpty())
}

func (s *OrderServiceSuite) TestCheckoutEmptyCartWritesNothing() {
	cart := s.cartWith("customer-1", nil)

	orders, err := s.service.CheckoutCart(s.ctx, "customer-1", cart)

	s.Require().NoError(err)
	s.Empty(orders)
	s.Zero(s.records.Calls(storetest.OpCreate))
	s.Empty(s.emitter.emitted())
}

func (s *OrderServiceSuite) TestCheckoutRequiresUser() {
	cart := s.cartWith("customer-1", map[cartModels.CartItem]int{dish("a", 10, "chef-1"): 1})

	_, err := s.service.CheckoutCart(s.ctx, "", cart)

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Zero(s.records.Calls(storetest.OpCreate))
	s.Equal(1, cart.Snapshot().TotalItems)
}

func (s *OrderServiceSuite) TestCheckoutOfAnotherUsersCartIsForbidden() {
	cart := s.cartWith("customer-1", map[cartModels.CartItem]int{dish("a", 10, "chef-1"): 1})

	_, err := s.service.CheckoutCart(s.ctx, "customer-2", cart)

	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Zero(s.records.Calls(storetest.OpCreate))
}

func (s *OrderServiceSuite) TestBuyNow() {
	cart := s.cartWith("customer-1", map[cartModels.CartItem]int{dish("a", 10, "chef-1"): 1})

	order, err := s.service.BuyNow(s.ctx, "customer-1", s.offer(dish("z", 7, "chef-2")), 0)

	s.Require().NoError(err)
	s.Equal(models.SourceBuyNow, order.Source)
	s.Equal(models.StatusPending, order.Status)
	s.Require().Len(order.Items, 1)
	s.Equal(1, order.Items[0].Quantity, "quantity defaults to one")
	s.True(decimal.NewFromInt(7).Equal(order.TotalAmount))
	parsed, err := uuid.Parse(order.ID.String())
	s.Require().NoError(err)
	s.Equal(uuid.Version(7), parsed.Version())

	stored, err := recordstore.ReadJSON[models.Order](context.Background(), s.records, Path(order.ID))
	s.Require().NoError(err)
	s.Equal(order.ID, stored.ID)
	s.Equal(1, cart.Snapshot().TotalItems, "cart is untouched")
	total, pending, _, _ := s.providerStats("chef-2")
	s.Equal(int64(1), total)
	s.Equal(int64(1), pending)
}

func (s *OrderServiceSuite) TestBuyNowValidation() {
	itemID := s.offer(dish("z", 7, "chef-2"))

	_, err := s.service.BuyNow(s.ctx, "", itemID, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.BuyNow(s.ctx, "customer-1", "", 1)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.BuyNow(s.ctx, "customer-1", itemID, cartModels.MaxQuantity+1)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.BuyNow(s.ctx, "customer-1", "not-on-menu", 1)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Zero(s.records.Calls(storetest.OpCreate))
}

func (s *OrderServiceSuite) TestBuyNowUsesCataloguePrice() {
	itemID := s.offer(dish("z", 7, "chef-2"))

	order, err := s.service.BuyNow(s.ctx, "customer-1", itemID, 3)

	s.Require().NoError(err)
	s.Equal(id.UserID("chef-2"), order.ProviderID)
	s.True(decimal.NewFromInt(21).Equal(order.TotalAmount))
}

func (s *OrderServiceSuite) TestBuyNowStorageFailureIsOpaque() {
	s.records.FailOn(storetest.OpPush, 0, errors.New("connection reset"))

	_, err := s.service.BuyNow(s.ctx, "customer-1", s.offer(dish("z", 7, "chef-2")), 1)

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Empty(s.storedOrders())
}

func (s *OrderServiceSuite) TestStatsFailureDoesNotFailCheckout() {
	cart := s.cartWith("customer-1", map[cartModels.CartItem]int{dish("a", 10, "chef-1"): 1})
	s.records.FailOn(storetest.OpTransact, 0, errors.New("stats store down"))

	orders, err := s.service.CheckoutCart(s.ctx, "customer-1", cart)

	s.Require().NoError(err)
	s.Len(orders, 1)
}

func (s *OrderServiceSuite) placed(providerID id.UserID) models.Order {
	order, err := s.service.BuyNow(s.ctx, "customer-1", s.offer(dish("a", 25, providerID)), 2)
	s.Require().NoError(err)
	return order
}

func (s *OrderServiceSuite) TestTransitionPendingToCompleted() {
	order := s.placed("chef-1")
	later := s.now.Add(time.Hour)
	ctx := requestcontext.WithTime(context.Background(), later)

	updated, err := s.service.Transition(ctx, "chef-1", order.ID, models.StatusCompleted)

	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, updated.Status)
	s.Equal(later, updated.UpdatedAt)
	s.Equal(order.CreatedAt, updated.CreatedAt)

	stored, err := recordstore.ReadJSON[models.Order](context.Background(), s.records, Path(order.ID))
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, stored.Status)

	total, pending, completed, cancelled := s.providerStats("chef-1")
	s.Equal(int64(1), total)
	s.Zero(pending)
	s.Equal(int64(1), completed)
	s.Zero(cancelled)

	emitted := s.emitter.emitted()
	s.Require().Len(emitted, 2)
	s.Equal(events.TypeOrderStatusChanged, emitted[1].Type)
	s.Equal(models.StatusPending, emitted[1].PreviousStatus)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StatusTransitions.WithLabelValues("completed")))
}

func (s *OrderServiceSuite) TestTransitionThroughShipping() {
	order := s.placed("chef-1")

	_, err := s.service.Transition(s.ctx, "chef-1", order.ID, models.StatusShipping)
	s.Require().NoError(err)
	_, err = s.service.Transition(s.ctx, "chef-1", order.ID, models.StatusCompleted)
	s.Require().NoError(err)

	_, pending, completed, _ := s.providerStats("chef-1")
	s.Zero(pending, "leaving pending is counted once")
	s.Equal(int64(1), completed)
}

func (s *OrderServiceSuite) TestTransitionRejections() {
	tests := []struct {
		name     string
		setup    func(orderID id.OrderID)
		provider id.UserID
		next     models.Status
		code     dErrors.Code
	}{
		{
			name: "out of terminal state",
			setup: func(orderID id.OrderID) {
				_, err := s.service.Transition(s.ctx, "chef-1", orderID, models.StatusCancelled)
				s.Require().NoError(err)
			},
			provider: "chef-1",
			next:     models.StatusCompleted,
			code:     dErrors.CodeInvalidState,
		},
		{
			name:     "to the current state",
			provider: "chef-1",
			next:     models.StatusPending,
			code:     dErrors.CodeInvalidState,
		},
		{
			name: "shipping back to cancelled",
			setup: func(orderID id.OrderID) {
				_, err := s.service.Transition(s.ctx, "chef-1", orderID, models.StatusShipping)
				s.Require().NoError(err)
			},
			provider: "chef-1",
			next:     models.StatusCancelled,
			code:     dErrors.CodeInvalidState,
		},
		{
			name:     "by another provider",
			provider: "chef-2",
			next:     models.StatusCompleted,
			code:     dErrors.CodeForbidden,
		},
		{
			name:     "without identity",
			provider: "",
			next:     models.StatusCompleted,
			code:     dErrors.CodeUnauthorized,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			order := s.placed("chef-1")
			if tt.setup != nil {
				tt.setup(order.ID)
			}
			before, err := recordstore.ReadJSON[models.Order](context.Background(), s.records, Path(order.ID))
			s.Require().NoError(err)

			_, err = s.service.Transition(s.ctx, tt.provider, order.ID, tt.next)

			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
			after, err := recordstore.ReadJSON[models.Order](context.Background(), s.records, Path(order.ID))
			s.Require().NoError(err)
			s.Equal(before, after, "rejected transitions leave the order untouched")
		})
	}
}

func (s *OrderServiceSuite) TestTransitionMissingOrder() {
	_, err := s.service.Transition(s.ctx, "chef-1", "nope", models.StatusCompleted)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OrderServiceSuite) TestListForCustomerGroupsNewestFirst() {
	first := s.placed("chef-1")
	laterCtx := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
	second, err := s.service.BuyNow(laterCtx, "customer-1", s.offer(dish("b", 5, "chef-1")), 1)
	s.Require().NoError(err)
	latestCtx := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Minute))
	third, err := s.service.BuyNow(latestCtx, "customer-1", s.offer(dish("c", 5, "chef-2")), 1)
	s.Require().NoError(err)
	_, err = s.service.BuyNow(s.ctx, "customer-2", s.offer(dish("d", 5, "chef-1")), 1)
	s.Require().NoError(err)
	_, err = s.service.Transition(s.ctx, "chef-1", second.ID, models.StatusCompleted)
	s.Require().NoError(err)

	got, err := s.service.ListForCustomer(s.ctx, "customer-1")

	s.Require().NoError(err)
	s.Require().Len(got.Active, 2)
	s.Equal(third.ID, got.Active[0].ID)
	s.Equal(first.ID, got.Active[1].ID)
	s.Require().Len(got.Delivered, 1)
	s.Equal(second.ID, got.Delivered[0].ID)
}

func (s *OrderServiceSuite) TestListForProviderLimit() {
	for i := range 7 {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Minute))
		_, err := s.service.BuyNow(ctx, "customer-1", s.offer(dish("a", 5, "chef-1")), 1)
		s.Require().NoError(err)
	}
	s.placed("chef-2")

	latest, err := s.service.ListForProvider(s.ctx, "chef-1", 5)
	s.Require().NoError(err)
	s.Require().Len(latest, 5)
	s.Equal(s.now.Add(6*time.Minute), latest[0].CreatedAt)

	all, err := s.service.ListForProvider(s.ctx, "chef-1", 0)
	s.Require().NoError(err)
	s.Len(all, 7)
}

func (s *OrderServiceSuite) TestListFailureIsInternal() {
	s.records.FailOn(storetest.OpChildren, 0, errors.New("timeout"))

	_, err := s.service.ListForProvider(s.ctx, "chef-1", 5)

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *OrderServiceSuite) TestGetHidesOtherUsersOrders() {
	order := s.placed("chef-1")

	got, err := s.service.Get(s.ctx, "customer-1", order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, got.ID)

	_, err = s.service.Get(s.ctx, "chef-1", order.ID)
	s.Require().NoError(err)

	_, err = s.service.Get(s.ctx, "customer-2", order.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OrderServiceSuite) TestStats() {
	s.placed("chef-1")

	st, err := s.service.Stats(s.ctx, "chef-1")
	s.Require().NoError(err)
	s.Equal(int64(1), st.TotalOrders)
	s.True(decimal.NewFromInt(50).Equal(st.MonthlyRevenue))

	empty, err := s.service.Stats(s.ctx, "chef-9")
	s.Require().NoError(err)
	s.Zero(empty.TotalOrders)
}

func (s *OrderServiceSuite) TestWatchProvider() {
	ctx, cancel := context.WithCancel(s.ctx)
	stream, err := s.service.WatchProvider(ctx, "chef-1")
	s.Require().NoError(err)

	s.placed("chef-2")
	mine := s.placed("chef-1")

	select {
	case got := <-stream:
		s.Equal(mine.ID, got.ID)
	case <-time.After(time.Second):
		s.Fail("no order delivered")
	}

	_, err = s.service.Transition(s.ctx, "chef-1", mine.ID, models.StatusShipping)
	s.Require().NoError(err)
	select {
	case got := <-stream:
		s.Equal(models.StatusShipping, got.Status)
	case <-time.After(time.Second):
		s.Fail("no status change delivered")
	}

	cancel()
	select {
	case _, open := <-stream:
		s.False(open, "stream closes when the context ends")
	case <-time.After(time.Second):
		s.Fail("stream not closed")
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	cartModels "homechef/internal/cart/models"
	"homechef/internal/order/handler/mocks"
	"homechef/internal/order/models"
	"homechef/internal/order/service"
	statsModels "homechef/internal/stats/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/testutil"
)

type stubCart struct {
	snap cartModels.Snapshot
}

func (c stubCart) Snapshot() cartModels.Snapshot { return c.snap }

func (c stubCart) RemoveOrdered(context.Context, []cartModels.CartItem) cartModels.Outcome {
	return cartModels.OutcomeApplied
}

//go:generate mockgen -source=handler.go -destination=mocks/order-mocks.go -package=mocks Service
type OrderHandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	router   chi.Router
	cartErr  error
	lookedUp id.UserID
}

func TestOrderHandlerSuite(t *testing.T) {
	suite.Run(t, new(OrderHandlerSuite))
}

func (s *OrderHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.cartErr = nil
	s.lookedUp = ""
	lookup := func(_ context.Context, userID id.UserID) (service.Cart, error) {
		s.lookedUp = userID
		if s.cartErr != nil {
			return nil, s.cartErr
		}
		return stubCart{snap: cartModels.NewSnapshot(userID, nil)}, nil
	}
	h := New(s.service, lookup, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterProvider(s.router)
	h.RegisterProviderStream(s.router)
}

func (s *OrderHandlerSuite) do(method, target, body string, userID id.UserID) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	switch {
	case strings.HasPrefix(target, "/provider"):
		req = testutil.AsProvider(req, userID)
	case !userID.IsNil():
		req = testutil.AsCustomer(req, userID)
	}
	return testutil.DoRequest(s.router, req)
}

func sampleOrder(status models.Status) models.Order {
	at := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)
	return models.Order{
		ID:          "o-1",
		UserID:      "u1",
		ProviderID:  "chef-1",
		Items:       []models.LineItem{{ItemID: "x", Name: "Stew", Price: decimal.RequireFromString("12.50"), Quantity: 2}},
		TotalAmount: decimal.RequireFromString("25"),
		Status:      status,
		CreatedAt:   at,
		UpdatedAt:   at,
		Source:      models.SourceCart,
	}
}

func (s *OrderHandlerSuite) TestCheckout() {
	s.service.EXPECT().
		CheckoutCart(gomock.Any(), id.UserID("u1"), gomock.Any()).
		Return([]models.Order{sampleOrder(models.StatusPending)}, nil)

	w := s.do(http.MethodPost, "/orders/checkout", "", "u1")

	s.Equal(http.StatusCreated, w.Code)
	s.Equal(id.UserID("u1"), s.lookedUp)
	resp := testutil.UnmarshalResponse[CheckoutResponse](s.T(), w)
	s.Require().Len(resp.Orders, 1)
	s.Equal(models.StatusPending, resp.Orders[0].Status)
}

func (s *OrderHandlerSuite) TestCheckoutRequiresUser() {
	w := s.do(http.MethodPost, "/orders/checkout", "", "")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Empty(s.lookedUp)
}

func (s *OrderHandlerSuite) TestCheckoutCartLoadFailure() {
	s.cartErr = dErrors.New(dErrors.CodeInternal, "failed to load cart")

	w := s.do(http.MethodPost, "/orders/checkout", "", "u1")

	s.Equal(http.StatusInternalServerError, w.Code)
}

func (s *OrderHandlerSuite) TestCheckoutFailureHidesCause() {
	s.service.EXPECT().
		CheckoutCart(gomock.Any(), id.UserID("u1"), gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("disk"), dErrors.CodeInternal, "failed to place order, try again"))

	w := s.do(http.MethodPost, "/orders/checkout", "", "u1")

	s.Equal(http.StatusInternalServerError, w.Code)
	s.NotContains(w.Body.String(), "disk")
}

func (s *OrderHandlerSuite) TestBuyNow() {
	o := sampleOrder(models.StatusPending)
	o.Source = models.SourceBuyNow
	s.service.EXPECT().BuyNow(gomock.Any(), id.UserID("u1"), id.ItemID("x"), 3).Return(o, nil)

	w := s.do(http.MethodPost, "/orders/buy-now", `{"itemId":"x","quantity":3}`, "u1")

	s.Equal(http.StatusCreated, w.Code)
	s.Contains(w.Body.String(), `"source":"buy_now"`)
}

func (s *OrderHandlerSuite) TestBuyNowIgnoresClientPrice() {
	s.service.EXPECT().BuyNow(gomock.Any(), id.UserID("u1"), id.ItemID("x"), 1).
		Return(sampleOrder(models.StatusPending), nil)

	w := s.do(http.MethodPost, "/orders/buy-now", `{"itemId":"x","quantity":1,"price":"0.01"}`, "u1")

	s.Equal(http.StatusCreated, w.Code)
	s.Contains(w.Body.String(), `"totalAmount":"25"`)
}

func (s *OrderHandlerSuite) TestBuyNowValidation() {
	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"itemId":`},
		{"missing item id", `{"quantity":1}`},
		{"quantity over the cap", `{"itemId":"x","quantity":100}`},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(http.MethodPost, "/orders/buy-now", tt.body, "u1")
			s.Equal(http.StatusBadRequest, w.Code)
		})
	}
}

func (s *OrderHandlerSuite) TestListForCustomer() {
	s.service.EXPECT().ListForCustomer(gomock.Any(), id.UserID("u1")).Return(service.CustomerOrders{
		Active:    []models.Order{sampleOrder(models.StatusShipping)},
		Delivered: []models.Order{},
	}, nil)

	w := s.do(http.MethodGet, "/orders", "", "u1")

	s.Equal(http.StatusOK, w.Code)
	var resp service.CustomerOrders
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
	s.Len(resp.Active, 1)
	s.Empty(resp.Delivered)
}

func (s *OrderHandlerSuite) TestGetNotFound() {
	s.service.EXPECT().Get(gomock.Any(), id.UserID("u2"), id.OrderID("o-1")).
		Return(models.Order{}, dErrors.New(dErrors.CodeNotFound, "order not found"))

	w := s.do(http.MethodGet, "/orders/o-1", "", "u2")

	s.Equal(http.StatusNotFound, w.Code)
}

func (s *OrderHandlerSuite) TestListForProviderLimit() {
	tests := []struct {
		name  string
		query string
		limit int
	}{
		{"no limit", "", 0},
		{"explicit", "?limit=5", 5},
		{"capped", "?limit=5000", maxListLimit},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().ListForProvider(gomock.Any(), id.UserID("chef-1"), tt.limit).
				Return([]models.Order{}, nil)

			w := s.do(http.MethodGet, "/provider/orders"+tt.query, "", "chef-1")

			s.Equal(http.StatusOK, w.Code)
			s.Contains(w.Body.String(), `"orders":[]`)
		})
	}
}

func (s *OrderHandlerSuite) TestListForProviderBadLimit() {
	w := s.do(http.MethodGet, "/provider/orders?limit=-1", "", "chef-1")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *OrderHandlerSuite) TestTransition() {
	s.service.EXPECT().
		Transition(gomock.Any(), id.UserID("chef-1"), id.OrderID("o-1"), models.StatusCompleted).
		Return(sampleOrder(models.StatusCompleted), nil)

	w := s.do(http.MethodPatch, "/provider/orders/o-1/status", `{"status":"delivered"}`, "chef-1")

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"completed"`)
}

func (s *OrderHandlerSuite) TestTransitionRejected() {
	s.service.EXPECT().
		Transition(gomock.Any(), id.UserID("chef-1"), id.OrderID("o-1"), models.StatusShipping).
		Return(models.Order{}, dErrors.New(dErrors.CodeInvalidState, "order is already completed"))

	w := s.do(http.MethodPatch, "/provider/orders/o-1/status", `{"status":"shipping"}`, "chef-1")

	s.Equal(http.StatusConflict, w.Code)
}

func (s *OrderHandlerSuite) TestTransitionUnknownStatus() {
	w := s.do(http.MethodPatch, "/provider/orders/o-1/status", `{"status":"lost"}`, "chef-1")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *OrderHandlerSuite) TestStats() {
	s.service.EXPECT().Stats(gomock.Any(), id.UserID("chef-1")).Return(statsModels.ProviderStats{
		TotalOrders:   3,
		PendingOrders: 1,
	}, nil)

	w := s.do(http.MethodGet, "/provider/stats", "", "chef-1")

	s.Equal(http.StatusOK, w.Code)
	var resp statsModels.ProviderStats
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
	s.Equal(int64(3), resp.TotalOrders)
	s.Equal(int64(1), resp.PendingOrders)
}

func (s *OrderHandlerSuite) TestProviderStream() {
	updates := make(chan models.Order, 2)
	updates <- sampleOrder(models.StatusPending)
	updates <- sampleOrder(models.StatusShipping)
	close(updates)
	s.service.EXPECT().WatchProvider(gomock.Any(), id.UserID("chef-1")).Return((<-chan models.Order)(updates), nil)

	w := s.do(http.MethodGet, "/provider/orders/stream", "", "chef-1")

	s.Equal("text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	s.Equal(2, strings.Count(body, "event: order\n"))
	s.Contains(body, `"status":"shipping"`)
}

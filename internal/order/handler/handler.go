package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"homechef/internal/order/models"
	"homechef/internal/order/service"
	statsModels "homechef/internal/stats/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/httputil"
	"homechef/pkg/requestcontext"
)

// maxListLimit caps ?limit= on provider listings.
const maxListLimit = 100

// Service is the order API the handler needs.
type Service interface {
	CheckoutCart(ctx context.Context, userID id.UserID, cart service.Cart) ([]models.Order, error)
	BuyNow(ctx context.Context, userID id.UserID, itemID id.ItemID, quantity int) (models.Order, error)
	Transition(ctx context.Context, providerID id.UserID, orderID id.OrderID, next models.Status) (models.Order, error)
	ListForCustomer(ctx context.Context, userID id.UserID) (service.CustomerOrders, error)
	ListForProvider(ctx context.Context, providerID id.UserID, limit int) ([]models.Order, error)
	Get(ctx context.Context, userID id.UserID, orderID id.OrderID) (models.Order, error)
	Stats(ctx context.Context, providerID id.UserID) (statsModels.ProviderStats, error)
	WatchProvider(ctx context.Context, providerID id.UserID) (<-chan models.Order, error)
}

// CartLookup returns the signed-in user's loaded cart.
type CartLookup func(ctx context.Context, userID id.UserID) (service.Cart, error)

// Handler serves customer and provider order endpoints.
type Handler struct {
	service Service
	carts   CartLookup
	logger  *slog.Logger
}

func New(service Service, carts CartLookup, logger *slog.Logger) *Handler {
	return &Handler{service: service, carts: carts, logger: logger}
}

// Register mounts the customer endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/orders/checkout", h.HandleCheckout)
	r.Post("/orders/buy-now", h.HandleBuyNow)
	r.Get("/orders", h.HandleListCustomer)
	r.Get("/orders/{orderID}", h.HandleGet)
}

// RegisterProvider mounts the provider endpoints. The caller restricts them
// to the meal_provider role.
func (h *Handler) RegisterProvider(r chi.Router) {
	r.Get("/provider/orders", h.HandleListProvider)
	r.Patch("/provider/orders/{orderID}/status", h.HandleTransition)
	r.Get("/provider/stats", h.HandleStats)
}

// RegisterProviderStream mounts the provider order stream.
func (h *Handler) RegisterProviderStream(r chi.Router) {
	r.Get("/provider/orders/stream", h.HandleProviderStream)
}

// HandleCheckout handles POST /orders/checkout.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "sign in to place an order"))
		return
	}
	cart, err := h.carts(ctx, userID)
	if err != nil {
		h.fail(w, r, "failed to load cart for checkout", err)
		return
	}
	orders, err := h.service.CheckoutCart(ctx, userID, cart)
	if err != nil {
		h.fail(w, r, "checkout failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CheckoutResponse{Orders: orders})
}

// HandleBuyNow handles POST /orders/buy-now.
func (h *Handler) HandleBuyNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "sign in to place an order"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[BuyNowRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	order, err := h.service.BuyNow(ctx, userID, req.ParsedItemID(), req.Quantity)
	if err != nil {
		h.fail(w, r, "buy-now failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

// HandleListCustomer handles GET /orders.
func (h *Handler) HandleListCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, err := h.service.ListForCustomer(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "failed to list orders", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}

// HandleGet handles GET /orders/{orderID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	order, err := h.service.Get(ctx, requestcontext.UserID(ctx), orderID)
	if err != nil {
		h.fail(w, r, "failed to load order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// HandleListProvider handles GET /provider/orders?limit=.
func (h *Handler) HandleListProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	orders, err := h.service.ListForProvider(ctx, requestcontext.UserID(ctx), limit)
	if err != nil {
		h.fail(w, r, "failed to list provider orders", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ProviderOrdersResponse{Orders: orders})
}

// HandleTransition handles PATCH /provider/orders/{orderID}/status.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	order, err := h.service.Transition(ctx, requestcontext.UserID(ctx), orderID, req.ParsedStatus())
	if err != nil {
		h.fail(w, r, "order status change rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// HandleStats handles GET /provider/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Stats(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "failed to load provider stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleProviderStream handles GET /provider/orders/stream.
func (h *Handler) HandleProviderStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	updates, err := h.service.WatchProvider(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "failed to watch provider orders", err)
		return
	}
	if err := httputil.StreamSSE[models.Order](ctx, w, "order", nil, updates); err != nil {
		h.logger.WarnContext(ctx, "provider order stream ended",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

// fail logs at a level matching the error class and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx).String(),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

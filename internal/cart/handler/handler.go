package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"homechef/internal/cart/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/httputil"
	"homechef/pkg/requestcontext"
)

// Service is the per-user cart API.
type Service interface {
	Snapshot(ctx context.Context, userID id.UserID) (models.Snapshot, error)
	AddItem(ctx context.Context, userID id.UserID, itemID id.ItemID, quantity int) (models.Snapshot, models.Outcome, error)
	UpdateQuantity(ctx context.Context, userID id.UserID, itemID id.ItemID, quantity int) (models.Snapshot, models.Outcome, error)
	RemoveItem(ctx context.Context, userID id.UserID, itemID id.ItemID) (models.Snapshot, models.Outcome, error)
	Clear(ctx context.Context, userID id.UserID) (models.Snapshot, models.Outcome, error)
	Watch(ctx context.Context, userID id.UserID) (<-chan models.Snapshot, error)
	SignOut(ctx context.Context, userID id.UserID)
}

// Handler serves the signed-in user's cart.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts cart endpoints on r. Auth middleware is applied by the
// caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/cart", h.HandleGet)
	r.Delete("/cart", h.HandleClear)
	r.Post("/cart/items", h.HandleAddItem)
	r.Patch("/cart/items/{itemID}", h.HandleUpdateQuantity)
	r.Delete("/cart/items/{itemID}", h.HandleRemoveItem)
	r.Post("/cart/sign-out", h.HandleSignOut)
}

// RegisterStream mounts the long-lived cart stream. It is kept apart so the
// caller can leave it out of the request timeout.
func (h *Handler) RegisterStream(r chi.Router) {
	r.Get("/cart/stream", h.HandleStream)
}

// HandleGet handles GET /cart.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(ctx, userID)
	if err != nil {
		h.fail(w, r, "failed to load cart", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSnapshot(snap, nil))
}

// HandleAddItem handles POST /cart/items.
func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddItemRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	snap, outcome, err := h.service.AddItem(ctx, userID, req.ParsedItemID(), req.Quantity)
	h.respondMutation(w, r, "add", snap, outcome, err)
}

// HandleUpdateQuantity handles PATCH /cart/items/{itemID}.
func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateQuantityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	snap, outcome, err := h.service.UpdateQuantity(ctx, userID, itemID, req.Quantity)
	h.respondMutation(w, r, "update", snap, outcome, err)
}

// HandleRemoveItem handles DELETE /cart/items/{itemID}.
func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	snap, outcome, err := h.service.RemoveItem(ctx, userID, itemID)
	h.respondMutation(w, r, "remove", snap, outcome, err)
}

// HandleClear handles DELETE /cart.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	snap, outcome, err := h.service.Clear(ctx, userID)
	h.respondMutation(w, r, "clear", snap, outcome, err)
}

// HandleSignOut handles POST /cart/sign-out.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.service.SignOut(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStream handles GET /cart/stream: the current cart, then the cart after
// every change, as server-sent events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	updates, err := h.service.Watch(ctx, userID)
	if err != nil {
		h.fail(w, r, "failed to watch cart", err)
		return
	}
	snap, err := h.service.Snapshot(ctx, userID)
	if err != nil {
		h.fail(w, r, "failed to load cart", err)
		return
	}

	initial := FromSnapshot(snap, nil)
	responses := make(chan CartResponse)
	go func() {
		defer close(responses)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case responses <- FromSnapshot(snap, nil):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	if err := httputil.StreamSSE(ctx, w, "cart", &initial, responses); err != nil {
		h.logger.WarnContext(ctx, "cart stream ended",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (h *Handler) respondMutation(w http.ResponseWriter, r *http.Request, op string, snap models.Snapshot, outcome models.Outcome, err error) {
	if err != nil {
		h.fail(w, r, "cart "+op+" failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSnapshot(snap, &outcome))
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		h.logger.ErrorContext(r.Context(), "userID missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return userID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"user_id", requestcontext.UserID(r.Context()).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}

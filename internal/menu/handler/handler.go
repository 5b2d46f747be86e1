package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"homechef/internal/menu/models"
	"homechef/internal/menu/service"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/httputil"
	"homechef/pkg/requestcontext"
)

// Service is the menu API the handler needs.
type Service interface {
	Create(ctx context.Context, providerID id.UserID, details models.Details) (models.MenuItem, error)
	Update(ctx context.Context, providerID id.UserID, itemID id.ItemID, patch models.Patch) (models.MenuItem, error)
	Delete(ctx context.Context, providerID id.UserID, itemID id.ItemID) error
	Get(ctx context.Context, itemID id.ItemID) (models.MenuItem, error)
	List(ctx context.Context, f service.Filter) ([]models.MenuItem, error)
}

// Handler serves the menu catalogue.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the read endpoints every signed-in user may call.
func (h *Handler) Register(r chi.Router) {
	r.Get("/menu", h.HandleList)
	r.Get("/menu/{itemID}", h.HandleGet)
}

// RegisterProvider mounts the provider's own menu management. The caller
// restricts them to the meal_provider role.
func (h *Handler) RegisterProvider(r chi.Router) {
	r.Get("/provider/menu", h.HandleListOwn)
	r.Post("/provider/menu", h.HandleCreate)
	r.Patch("/provider/menu/{itemID}", h.HandleUpdate)
	r.Delete("/provider/menu/{itemID}", h.HandleDelete)
}

// HandleList handles GET /menu?providerId=. Only orderable items are listed.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var f service.Filter
	if raw := strings.TrimSpace(r.URL.Query().Get("providerId")); raw != "" {
		providerID, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.ProviderID = providerID
	}
	items, err := h.service.List(ctx, f)
	if err != nil {
		h.fail(w, r, "failed to list menu", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MenuResponse{Items: items})
}

// HandleGet handles GET /menu/{itemID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(ctx, itemID)
	if err != nil {
		h.fail(w, r, "failed to load menu item", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

// HandleListOwn handles GET /provider/menu, inactive items included.
func (h *Handler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.service.List(ctx, service.Filter{
		ProviderID:      requestcontext.UserID(ctx),
		IncludeInactive: true,
	})
	if err != nil {
		h.fail(w, r, "failed to list provider menu", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MenuResponse{Items: items})
}

// HandleCreate handles POST /provider/menu.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateItemRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	item, err := h.service.Create(ctx, requestcontext.UserID(ctx), req.Details())
	if err != nil {
		h.fail(w, r, "failed to create menu item", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, item)
}

// HandleUpdate handles PATCH /provider/menu/{itemID}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateItemRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	item, err := h.service.Update(ctx, requestcontext.UserID(ctx), itemID, req.Patch())
	if err != nil {
		h.fail(w, r, "failed to update menu item", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

// HandleDelete handles DELETE /provider/menu/{itemID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, requestcontext.UserID(ctx), itemID); err != nil {
		h.fail(w, r, "failed to delete menu item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (id.ItemID, bool) {
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return itemID, true
}

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

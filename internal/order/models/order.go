package models

import (
	"sort"
	"time"

	cartModels "homechef/internal/cart/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
)

// Source records how an order was placed.
type Source string

const (
	SourceCart   Source = "cart"
	SourceBuyNow Source = "buy_now"
)

// LineItem is the purchased copy of a menu item. Later menu edits do not
// change it.
type LineItem struct {
	ItemID   id.ItemID `json:"itemId"`
	Name     string    `json:"name"`
	Price    id.Money  `json:"price"`
	Quantity int       `json:"quantity"`
	ImageURL string    `json:"imageUrl,omitempty"`
}

// Order is persisted at orders/{id}. Only Status and UpdatedAt change after
// creation.
type Order struct {
	ID             id.OrderID `json:"id"`
	UserID         id.UserID  `json:"userId"`
	ProviderID     id.UserID  `json:"providerId"`
	Items          []LineItem `json:"items"`
	TotalAmount    id.Money   `json:"totalAmount"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	Source         Source     `json:"source"`
}

// NewOrder builds a pending single-line order for item.
func NewOrder(orderID id.OrderID, userID id.UserID, item cartModels.CartItem, source Source, key string, now time.Time) Order {
	return Order{
		ID:         orderID,
		UserID:     userID,
		ProviderID: item.ProviderID,
		Items: []LineItem{{
			ItemID:   item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			ImageURL: item.ImageURL,
		}},
		TotalAmount:    item.LineTotal(),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		IdempotencyKey: key,
		Source:         source,
	}
}

// CanTransition checks whether the order may move to next.
func (o *Order) CanTransition(next Status) error {
	if o.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "order is already "+o.Status.String())
	}
	if o.Status == next {
		return dErrors.New(dErrors.CodeInvalidState, "order is already "+next.String())
	}
	if !o.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidState, "cannot move order from "+o.Status.String()+" to "+next.String())
	}
	return nil
}

// ApplyTransition sets the new status. Callers check CanTransition first.
func (o *Order) ApplyTransition(next Status, now time.Time) {
	o.Status = next
	o.UpdatedAt = now
}

// IsActive reports whether the customer still waits on the order.
func (o *Order) IsActive() bool {
	return o.Status != StatusCompleted
}

// SortNewestFirst orders by createdAt descending, then id.
func SortNewestFirst(orders []Order) {
	sort.Slice(orders, func(a, b int) bool {
		if !orders[a].CreatedAt.Equal(orders[b].CreatedAt) {
			return orders[a].CreatedAt.After(orders[b].CreatedAt)
		}
		return orders[a].ID > orders[b].ID
	})
}

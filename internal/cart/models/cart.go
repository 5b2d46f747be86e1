package models

import (
	"sort"
	"time"

	id "homechef/pkg/domain"
)

// MaxQuantity caps the quantity of one cart line and of one buy-now order.
const MaxQuantity = 99

// CartItem is one line of a user's cart, persisted at users/{uid}/cart/{itemID}.
type CartItem struct {
	ID          id.ItemID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       id.Money  `json:"price"`
	Quantity    int       `json:"quantity"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	ProviderID  id.UserID `json:"providerId"`
	AddedAt     time.Time `json:"addedAt"`
}

// LineTotal is price * quantity.
func (i CartItem) LineTotal() id.Money {
	return id.LineTotal(i.Price, i.Quantity)
}

// Valid reports whether the item can live in a cart.
func (i CartItem) Valid() bool {
	return !i.ID.IsNil() && i.Quantity >= 1 && i.Quantity <= MaxQuantity && !i.Price.IsNegative()
}

// SortItems orders items by addedAt, then id, so listings and checkout are
// deterministic.
func SortItems(items []CartItem) {
	sort.Slice(items, func(a, b int) bool {
		if !items[a].AddedAt.Equal(items[b].AddedAt) {
			return items[a].AddedAt.Before(items[b].AddedAt)
		}
		return items[a].ID < items[b].ID
	})
}

// TotalItems sums quantities.
func TotalItems(items []CartItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// TotalPrice sums line totals.
func TotalPrice(items []CartItem) id.Money {
	total := id.ZeroMoney
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Snapshot is a point-in-time copy of a cart with its aggregates.
type Snapshot struct {
	UserID     id.UserID  `json:"userId"`
	Items      []CartItem `json:"items"`
	TotalItems int        `json:"totalItems"`
	TotalPrice id.Money   `json:"totalPrice"`
}

// NewSnapshot sorts items and computes totals.
func NewSnapshot(userID id.UserID, items []CartItem) Snapshot {
	if items == nil {
		items = []CartItem{}
	}
	SortItems(items)
	return Snapshot{
		UserID:     userID,
		Items:      items,
		TotalItems: TotalItems(items),
		TotalPrice: TotalPrice(items),
	}
}

// IsEmpty reports whether the snapshot holds no items.
func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

package handler

import (
	"homechef/internal/cart/models"
	id "homechef/pkg/domain"
)

// CartResponse is the cart as every cart endpoint returns it. Outcome tells
// clients whether the mutation was applied; the status is 200 either way.
type CartResponse struct {
	Items      []models.CartItem `json:"items"`
	TotalItems int               `json:"totalItems"`
	TotalPrice id.Money          `json:"totalPrice"`
	Outcome    string            `json:"outcome,omitempty"`
}

// FromSnapshot converts a snapshot, with an optional mutation outcome.
func FromSnapshot(snap models.Snapshot, outcome *models.Outcome) CartResponse {
	items := snap.Items
	if items == nil {
		items = []models.CartItem{}
	}
	resp := CartResponse{
		Items:      items,
		TotalItems: snap.TotalItems,
		TotalPrice: snap.TotalPrice,
	}
	if outcome != nil {
		resp.Outcome = outcome.String()
	}
	return resp
}

package handler

import (
	"homechef/internal/cart/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
)

// AddItemRequest is the body of POST /cart/items. Only the menu item id is
// taken from the client; the rest comes from the menu.
type AddItemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`

	parsed id.ItemID
}

// Validate parses the item id. Quantity <= 0 is left for the cart to default.
func (r *AddItemRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	itemID, err := id.ParseItemID(r.ItemID)
	if err != nil {
		return err
	}
	if r.Quantity > models.MaxQuantity {
		return dErrors.New(dErrors.CodeValidation, "quantity is too large")
	}
	r.parsed = itemID
	return nil
}

// ParsedItemID returns the validated item id.
func (r *AddItemRequest) ParsedItemID() id.ItemID {
	return r.parsed
}

// UpdateQuantityRequest is the body of PATCH /cart/items/{itemID}. A quantity
// below one is passed through; the cart rejects it as a no-op.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (r *UpdateQuantityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Quantity > models.MaxQuantity {
		return dErrors.New(dErrors.CodeValidation, "quantity is too large")
	}
	return nil
}

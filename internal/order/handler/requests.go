package handler

import (
	cartModels "homechef/internal/cart/models"
	"homechef/internal/order/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
)

// BuyNowRequest is the body of POST /orders/buy-now. Item details are looked
// up from the menu, never taken from the client.
type BuyNowRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`

	parsed id.ItemID
}

func (r *BuyNowRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	itemID, err := id.ParseItemID(r.ItemID)
	if err != nil {
		return err
	}
	if r.Quantity > cartModels.MaxQuantity {
		return dErrors.New(dErrors.CodeValidation, "quantity is too large")
	}
	r.parsed = itemID
	return nil
}

// ParsedItemID returns the validated item id.
func (r *BuyNowRequest) ParsedItemID() id.ItemID {
	return r.parsed
}

// TransitionRequest is the body of PATCH /provider/orders/{orderID}/status.
type TransitionRequest struct {
	Status string `json:"status"`

	parsed models.Status
}

// Validate accepts the canonical statuses and the "delivered" alias.
func (r *TransitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsed = status
	return nil
}

// ParsedStatus returns the validated status.
func (r *TransitionRequest) ParsedStatus() models.Status {
	return r.parsed
}

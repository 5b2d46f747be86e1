package handler

import "homechef/internal/order/models"

// CheckoutResponse is returned by POST /orders/checkout.
type CheckoutResponse struct {
	Orders []models.Order `json:"orders"`
}

// ProviderOrdersResponse is returned by GET /provider/orders.
type ProviderOrdersResponse struct {
	Orders []models.Order `json:"orders"`
}

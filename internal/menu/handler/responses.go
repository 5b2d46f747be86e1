package handler

import "homechef/internal/menu/models"

// MenuResponse is returned by the listing endpoints.
type MenuResponse struct {
	Items []models.MenuItem `json:"items"`
}

package handler

import (
	"homechef/internal/menu/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
)

// CreateItemRequest is the body of POST /provider/menu.
type CreateItemRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       id.Money `json:"price"`
	Category    string   `json:"category"`
	ImageURL    string   `json:"imageUrl"`
}

func (r *CreateItemRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return r.Details().Validate()
}

func (r *CreateItemRequest) Details() models.Details {
	return models.Details{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    models.Category(r.Category),
		ImageURL:    r.ImageURL,
	}
}

// UpdateItemRequest is the body of PATCH /provider/menu/{itemID}. Absent
// fields are left unchanged.
type UpdateItemRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Price       *id.Money `json:"price"`
	Category    *string   `json:"category"`
	ImageURL    *string   `json:"imageUrl"`
	Status      *string   `json:"status"`
}

// Validate checks the fields that can be judged alone; the combined item is
// validated by the service.
func (r *UpdateItemRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Category != nil && !models.Category(*r.Category).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "category is not recognised")
	}
	if r.Status != nil && !models.Status(*r.Status).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be active or inactive")
	}
	if r.Price != nil && !r.Price.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "price must be greater than zero")
	}
	return nil
}

func (r *UpdateItemRequest) Patch() models.Patch {
	p := models.Patch{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
	}
	if r.Category != nil {
		c := models.Category(*r.Category)
		p.Category = &c
	}
	if r.Status != nil {
		st := models.Status(*r.Status)
		p.Status = &st
	}
	return p
}

package models

import (
	"net/url"
	"sort"
	"strings"
	"time"

	cartModels "homechef/internal/cart/models"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
)

// Category groups menu items on a provider's menu.
type Category string

const (
	CategoryMainCourse Category = "main-course"
	CategoryAppetizers Category = "appetizers"
	CategoryDesserts   Category = "desserts"
	CategoryBeverages  Category = "beverages"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryMainCourse, CategoryAppetizers, CategoryDesserts, CategoryBeverages:
		return true
	}
	return false
}

// Status says whether customers can order an item.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// MenuItem is one dish a provider offers, stored at menu-items/{itemID}.
type MenuItem struct {
	ID          id.ItemID `json:"id"`
	ProviderID  id.UserID `json:"providerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       id.Money  `json:"price"`
	Category    Category  `json:"category"`
	ImageURL    string    `json:"imageUrl"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Orderable reports whether customers may add the item to a cart or buy it.
func (m MenuItem) Orderable() bool {
	return m.Status == StatusActive
}

// CartItem copies the fields a cart line carries. Quantity and addedAt are
// the cart's to set.
func (m MenuItem) CartItem() cartModels.CartItem {
	return cartModels.CartItem{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		ImageURL:    m.ImageURL,
		ProviderID:  m.ProviderID,
	}
}

// Details are the provider-editable fields of a menu item.
type Details struct {
	Name        string
	Description string
	Price       id.Money
	Category    Category
	ImageURL    string
}

// Validate checks the fields a listed item must have.
func (d Details) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return dErrors.New(dErrors.CodeValidation, "name is required")
	case strings.TrimSpace(d.Description) == "":
		return dErrors.New(dErrors.CodeValidation, "description is required")
	case !d.Price.IsPositive():
		return dErrors.New(dErrors.CodeValidation, "price must be greater than zero")
	case !d.Category.IsValid():
		return dErrors.New(dErrors.CodeValidation, "category is not recognised")
	}
	return ValidateImageURL(d.ImageURL)
}

// ValidateImageURL accepts absolute http and https URLs.
func ValidateImageURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return dErrors.New(dErrors.CodeValidation, "image url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return dErrors.New(dErrors.CodeValidation, "image url must be an http or https url")
	}
	return nil
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	Name        *string
	Description *string
	Price       *id.Money
	Category    *Category
	ImageURL    *string
	Status      *Status
}

// Apply returns item with the patch applied and re-validated.
func (p Patch) Apply(item MenuItem, now time.Time) (MenuItem, error) {
	if p.Name != nil {
		item.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		item.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.ImageURL != nil {
		item.ImageURL = strings.TrimSpace(*p.ImageURL)
	}
	if p.Status != nil {
		if !p.Status.IsValid() {
			return MenuItem{}, dErrors.New(dErrors.CodeValidation, "status must be active or inactive")
		}
		item.Status = *p.Status
	}
	if err := item.Details().Validate(); err != nil {
		return MenuItem{}, err
	}
	item.UpdatedAt = now
	return item, nil
}

// Details returns the editable fields of m.
func (m MenuItem) Details() Details {
	return Details{
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		Category:    m.Category,
		ImageURL:    m.ImageURL,
	}
}

// NewMenuItem builds an active item owned by providerID.
func NewMenuItem(itemID id.ItemID, providerID id.UserID, d Details, now time.Time) MenuItem {
	return MenuItem{
		ID:          itemID,
		ProviderID:  providerID,
		Name:        strings.TrimSpace(d.Name),
		Description: strings.TrimSpace(d.Description),
		Price:       d.Price,
		Category:    d.Category,
		ImageURL:    strings.TrimSpace(d.ImageURL),
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SortItems orders by createdAt, then id.
func SortItems(items []MenuItem) {
	sort.Slice(items, func(a, b int) bool {
		if !items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].CreatedAt.Before(items[b].CreatedAt)
		}
		return items[a].ID < items[b].ID
	})
}

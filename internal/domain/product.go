// Package domain defines the burger place entities: products, customers,
// orders, the activity feed and the persisted state document.
package domain

import "github.com/shopspring/decimal"

// ============================================================
// Products
// ============================================================

// Product is a menu item managed from the admin area.
type Product struct {
	ID          int64           `json:"id"`
	Category    string          `json:"category"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageData   string          `json:"imageData,omitempty"` // opaque blob, usually a data URL
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	Category    string          `json:"category" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageData   string          `json:"imageData,omitempty"`
}

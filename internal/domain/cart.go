package domain

import "github.com/shopspring/decimal"

// CartItem is one line of the pre-order cart, unique per product.
type CartItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// CartLine is a cart item resolved against the current menu.
type CartLine struct {
	CartItem
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// CartView is what the storefront renders.
type CartView struct {
	Lines []CartLine      `json:"lines"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

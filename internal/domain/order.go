package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Orders
// ============================================================

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	StatusPreparing OrderStatus = "Preparing"
	StatusOnTheWay  OrderStatus = "OnTheWay"
	StatusDelivered OrderStatus = "Delivered"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPreparing, StatusOnTheWay, StatusDelivered:
		return true
	}
	return false
}

// Next returns the status reached by advancing, and false when s is terminal.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case StatusPreparing:
		return StatusOnTheWay, true
	case StatusOnTheWay:
		return StatusDelivered, true
	}
	return s, false
}

// LineItem snapshots the product name and price at order time.
type LineItem struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal is price × quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a placed order. The total is never stored; see Total.
type Order struct {
	ID          int64       `json:"id"`
	DisplayCode string      `json:"displayCode"`
	CustomerID  int64       `json:"customerId"`
	Items       []LineItem  `json:"items"`
	Status      OrderStatus `json:"status"`
	EtaMinutes  int         `json:"etaMinutes"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Total sums the line snapshots.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Items {
		total = total.Add(l.Subtotal())
	}
	return total
}

// DisplayCodeFor zero-pads an order id to three digits.
func DisplayCodeFor(id int64) string {
	return fmt.Sprintf("%03d", id)
}

// OrderView is an order plus derived fields, returned by read operations.
type OrderView struct {
	Order
	Total        decimal.Decimal `json:"total"`
	CustomerName string          `json:"customerName,omitempty"`
	// RemainingMinutes is the ETA left from now; zero once delivered.
	RemainingMinutes int `json:"remainingMinutes"`
}

// OrderItemInput is one requested line of a new order.
type OrderItemInput struct {
	ProductID int64 `json:"productId" validate:"required"`
	Quantity  int   `json:"quantity" validate:"min=1"`
}

// PlaceOrderInput is the admin order form / checkout payload.
type PlaceOrderInput struct {
	CustomerID int64            `json:"customerId"`
	Items      []OrderItemInput `json:"items"`
	EtaMinutes int              `json:"etaMinutes"`
}

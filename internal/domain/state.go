package domain

import "github.com/shopspring/decimal"

// ============================================================
// Persisted state document
// ============================================================

// Sequences hold the next id to assign per entity kind.
type Sequences struct {
	Product  int64 `json:"product"`
	Customer int64 `json:"customer"`
	Order    int64 `json:"order"`
}

// State is the whole persisted document.
type State struct {
	Products   []Product  `json:"products"`
	Customers  []Customer `json:"customers"`
	Orders     []Order    `json:"orders"`
	Activities []Activity `json:"activities"`
	Sequences  Sequences  `json:"sequences"`
}

// NewState returns an empty, valid state.
func NewState() *State {
	return &State{
		Products:   []Product{},
		Customers:  []Customer{},
		Orders:     []Order{},
		Activities: []Activity{},
		Sequences:  Sequences{Product: 1, Customer: 1, Order: 1},
	}
}

// IsEmpty reports whether no entity collection holds data.
func (s *State) IsEmpty() bool {
	return len(s.Products) == 0 && len(s.Customers) == 0 && len(s.Orders) == 0
}

// Normalize replaces nil collections and pushes every sequence past the
// largest id in use, so hand-edited storage cannot cause id collisions.
func (s *State) Normalize() {
	if s.Products == nil {
		s.Products = []Product{}
	}
	if s.Customers == nil {
		s.Customers = []Customer{}
	}
	if s.Orders == nil {
		s.Orders = []Order{}
	}
	if s.Activities == nil {
		s.Activities = []Activity{}
	}

	var maxProduct, maxCustomer, maxOrder int64
	for _, p := range s.Products {
		maxProduct = max(maxProduct, p.ID)
	}
	for _, c := range s.Customers {
		maxCustomer = max(maxCustomer, c.ID)
	}
	for i := range s.Orders {
		maxOrder = max(maxOrder, s.Orders[i].ID)
		if s.Orders[i].DisplayCode == "" {
			s.Orders[i].DisplayCode = DisplayCodeFor(s.Orders[i].ID)
		}
	}

	s.Sequences.Product = max(s.Sequences.Product, maxProduct+1, 1)
	s.Sequences.Customer = max(s.Sequences.Customer, maxCustomer+1, 1)
	s.Sequences.Order = max(s.Sequences.Order, maxOrder+1, 1)
}

// Dashboard holds the admin KPIs.
type Dashboard struct {
	TotalOrders      int             `json:"totalOrders"`
	InProgressOrders int             `json:"inProgressOrders"`
	DeliveredOrders  int             `json:"deliveredOrders"`
	Products         int             `json:"products"`
	Customers        int             `json:"customers"`
	Revenue          decimal.Decimal `json:"revenue"`
	Activities       []ActivityView  `json:"activities"`
}

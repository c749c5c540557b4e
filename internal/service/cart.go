package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService keeps one storefront cart per customer, one line per product.
// All carts live in a single record on the substrate keyed by customer id.
type CartService struct {
	mu        sync.Mutex
	substrate port.Substrate
	key       string
	store     *Store
	orders    *OrderEngine
	metrics   *observability.Metrics
	logger    *zap.Logger

	carts  map[int64][]domain.CartItem
	loaded bool
}

// NewCartService creates the cart service.
func NewCartService(substrate port.Substrate, store *Store, orders *OrderEngine, metrics *observability.Metrics, logger *zap.Logger) *CartService {
	return &CartService{
		substrate: substrate,
		key:       store.Keys().Cart,
		store:     store,
		orders:    orders,
		metrics:   metrics,
		logger:    logger,
		carts:     make(map[int64][]domain.CartItem),
	}
}

// View resolves the customer's cart against the current menu. While the
// record is unreadable it shows an empty cart.
func (c *CartService) View(ctx context.Context, customerID int64) domain.CartView {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ensureLoaded(ctx)
	return c.render(ctx, c.carts[customerID])
}

// Add puts quantity units of a product in the cart, merging with an existing line.
func (c *CartService) Add(ctx context.Context, customerID, productID int64, quantity int) (domain.CartView, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return domain.CartView{}, &domain.ErrValidation{Field: "quantity", Message: "must be at least 1"}
	}
	if _, err := c.store.GetProduct(ctx, productID); err != nil {
		return domain.CartView{}, err
	}

	return c.mutate(ctx, customerID, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		if i := lineIndex(items, productID); i >= 0 {
			items[i].Quantity += quantity
			return items, true
		}
		return append(items, domain.CartItem{ProductID: productID, Quantity: quantity}), true
	})
}

// Increment adds one unit to an existing line.
func (c *CartService) Increment(ctx context.Context, customerID, productID int64) (domain.CartView, error) {
	return c.mutate(ctx, customerID, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		i := lineIndex(items, productID)
		if i < 0 {
			return items, false
		}
		items[i].Quantity++
		return items, true
	})
}

// Decrement removes one unit, dropping the line when it reaches zero.
func (c *CartService) Decrement(ctx context.Context, customerID, productID int64) (domain.CartView, error) {
	return c.mutate(ctx, customerID, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		i := lineIndex(items, productID)
		if i < 0 {
			return items, false
		}
		items[i].Quantity--
		if items[i].Quantity <= 0 {
			items = append(items[:i:i], items[i+1:]...)
		}
		return items, true
	})
}

// Remove drops the line for productID.
func (c *CartService) Remove(ctx context.Context, customerID, productID int64) (domain.CartView, error) {
	return c.mutate(ctx, customerID, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		i := lineIndex(items, productID)
		if i < 0 {
			return items, false
		}
		return append(items[:i:i], items[i+1:]...), true
	})
}

// Clear empties the customer's cart.
func (c *CartService) Clear(ctx context.Context, customerID int64) error {
	_, err := c.mutate(ctx, customerID, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		return nil, len(items) > 0
	})
	return err
}

// Checkout places an order for the customer with the cart contents and
// empties the cart on success. eta <= 0 uses the engine default.
func (c *CartService) Checkout(ctx context.Context, customerID int64, eta int) (*domain.OrderView, error) {
	ctx, span := tracer.Start(ctx, "CartService.Checkout")
	defer span.End()

	if c.store.FindCustomer(ctx, customerID) == nil {
		return nil, &domain.ErrUnauthorized{Message: "customer login required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	cart := c.carts[customerID]
	if len(cart) == 0 {
		return nil, &domain.ErrValidation{Field: "cart", Message: "cart is empty"}
	}
	items := make([]domain.OrderItemInput, 0, len(cart))
	for _, it := range cart {
		items = append(items, domain.OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := c.orders.PlaceOrder(ctx, domain.PlaceOrderInput{
		CustomerID: customerID,
		Items:      items,
		EtaMinutes: eta,
	})
	if err != nil {
		return nil, err
	}

	delete(c.carts, customerID)
	c.persist(ctx)
	c.logger.Info("checkout completed", zap.Int64("order_id", order.ID), zap.Int64("customer_id", customerID))
	return order, nil
}

// mutate applies fn to one customer's lines and saves the record when fn
// reports a change. It refuses to run until the record has been read.
func (c *CartService) mutate(ctx context.Context, customerID int64, fn func([]domain.CartItem) ([]domain.CartItem, bool)) (domain.CartView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(ctx); err != nil {
		return domain.CartView{}, err
	}

	items, changed := fn(c.carts[customerID])
	if changed {
		if len(items) == 0 {
			delete(c.carts, customerID)
		} else {
			c.carts[customerID] = items
		}
		c.persist(ctx)
	}
	return c.render(ctx, c.carts[customerID]), nil
}

// ensureLoaded reads the carts record once. A read error leaves the service
// unloaded so a later write cannot overwrite carts it never saw.
func (c *CartService) ensureLoaded(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	raw, found, err := c.substrate.GetItem(ctx, c.key)
	if err != nil {
		c.metrics.IncrPersistenceFailure("cart_load")
		c.logger.Warn("cart: record unreadable, refusing changes", zap.Error(err))
		return &domain.ErrPersistence{Op: "cart_load", Err: err}
	}

	c.loaded = true
	c.carts = make(map[int64][]domain.CartItem)
	if !found || raw == "" {
		return nil
	}
	var stored map[int64][]domain.CartItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		c.logger.Warn("cart: corrupt record, starting empty", zap.Error(err))
		return nil
	}
	for id, items := range stored {
		var kept []domain.CartItem
		for _, it := range items {
			if it.Quantity > 0 {
				kept = append(kept, it)
			}
		}
		if len(kept) > 0 {
			c.carts[id] = kept
		}
	}
	return nil
}

func (c *CartService) persist(ctx context.Context) {
	var err error
	if len(c.carts) == 0 {
		err = c.substrate.RemoveItem(ctx, c.key)
	} else {
		var payload []byte
		payload, err = json.Marshal(c.carts)
		if err == nil {
			err = c.substrate.SetItem(ctx, c.key, string(payload))
		}
	}
	if err != nil {
		c.metrics.IncrPersistenceFailure("cart_save")
		c.logger.Error("cart: save failed", zap.Error(&domain.ErrPersistence{Op: "cart_save", Err: err}))
	}
}

func (c *CartService) render(ctx context.Context, items []domain.CartItem) domain.CartView {
	view := domain.CartView{Lines: make([]domain.CartLine, 0, len(items)), Total: decimal.Zero}
	c.store.view(ctx, func(st *domain.State) {
		for _, it := range items {
			line := domain.CartLine{CartItem: it}
			if i := productIndex(st, it.ProductID); i >= 0 {
				p := st.Products[i]
				line.Name = p.Name
				line.Price = p.Price
				line.Available = true
				view.Total = view.Total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			}
			view.Count += it.Quantity
			view.Lines = append(view.Lines, line)
		}
	})
	return view
}

func lineIndex(items []domain.CartItem, productID int64) int {
	for i := range items {
		if items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

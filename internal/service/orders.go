package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultEtaMinutes is used when an order is placed without an ETA.
const DefaultEtaMinutes = 25

// OrderEngineOptions configures the lifecycle rules.
type OrderEngineOptions struct {
	DefaultEtaMinutes int
	// AllowRollback permits OnTheWay → Preparing.
	AllowRollback bool
}

// OrderEngine drives orders through Preparing → OnTheWay → Delivered and
// decides which channel each status notification goes to.
type OrderEngine struct {
	store    *Store
	notifier port.Notifier
	opts     OrderEngineOptions
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewOrderEngine creates the engine. notifier may be nil.
func NewOrderEngine(store *Store, notifier port.Notifier, opts OrderEngineOptions, metrics *observability.Metrics, logger *zap.Logger) *OrderEngine {
	if opts.DefaultEtaMinutes <= 0 {
		opts.DefaultEtaMinutes = DefaultEtaMinutes
	}
	return &OrderEngine{
		store:    store,
		notifier: notifier,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

// DefaultEta returns the ETA applied to orders placed without one.
func (e *OrderEngine) DefaultEta() int {
	return e.opts.DefaultEtaMinutes
}

// ============================================================
// Placement
// ============================================================

// PlaceOrder snapshots product names and prices into a new Preparing order.
// Duplicate product lines are merged.
func (e *OrderEngine) PlaceOrder(ctx context.Context, in domain.PlaceOrderInput) (*domain.OrderView, error) {
	ctx, span := tracer.Start(ctx, "OrderEngine.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", in.CustomerID))

	if len(in.Items) == 0 {
		return nil, &domain.ErrValidation{Field: "items", Message: "order must have at least one item"}
	}
	quantities := make(map[int64]int, len(in.Items))
	order := make([]int64, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return nil, &domain.ErrValidation{Field: "quantity", Message: "must be at least 1"}
		}
		if _, seen := quantities[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		quantities[it.ProductID] += it.Quantity
	}

	eta := in.EtaMinutes
	if eta <= 0 {
		eta = e.opts.DefaultEtaMinutes
	}

	var view domain.OrderView
	err := e.store.update(ctx, "place_order", func(st *domain.State) (bool, error) {
		ci := customerIndex(st, in.CustomerID)
		if ci < 0 {
			return false, &domain.ErrValidation{Field: "customerId", Message: "customer not found"}
		}

		items := make([]domain.LineItem, 0, len(order))
		for _, pid := range order {
			pi := productIndex(st, pid)
			if pi < 0 {
				return false, &domain.ErrValidation{Field: "productId", Message: fmt.Sprintf("product %d not found", pid)}
			}
			p := st.Products[pi]
			items = append(items, domain.LineItem{
				ProductID: p.ID,
				Name:      p.Name,
				Price:     p.Price,
				Quantity:  quantities[pid],
			})
		}

		id := st.Sequences.Order
		st.Sequences.Order++
		o := domain.Order{
			ID:          id,
			DisplayCode: domain.DisplayCodeFor(id),
			CustomerID:  in.CustomerID,
			Items:       items,
			Status:      domain.StatusPreparing,
			EtaMinutes:  eta,
			CreatedAt:   e.store.now(),
		}
		st.Orders = append([]domain.Order{o}, st.Orders...)
		customer := st.Customers[ci]
		st.Activities = e.store.feed.Append(st.Activities, domain.ActivityNew,
			"New order #"+o.DisplayCode, "Customer: "+customer.Name)

		view = e.viewOf(o, customer.Name)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.IncrOrderPlaced()
	e.logger.Info("order placed",
		zap.Int64("order_id", view.ID),
		zap.Int64("customer_id", view.CustomerID),
		zap.String("total", view.Total.StringFixed(2)),
	)
	return &view, nil
}

// ============================================================
// Status transitions
// ============================================================

// Advance moves the order one step forward. Delivered orders and missing ids
// are left untouched; the current view (or nil) is returned. The next status
// is decided under the store lock, so concurrent calls each take one step.
func (e *OrderEngine) Advance(ctx context.Context, orderID int64) (*domain.OrderView, error) {
	ctx, span := tracer.Start(ctx, "OrderEngine.Advance")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	return e.transition(ctx, "advance", orderID, func(from domain.OrderStatus) (domain.OrderStatus, bool) {
		return from.Next()
	})
}

// SetStatus applies a status change allowed by the lifecycle, appends an
// activity and hands a notification to the notifier. Missing ids are a no-op.
func (e *OrderEngine) SetStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.OrderView, error) {
	ctx, span := tracer.Start(ctx, "OrderEngine.SetStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID), attribute.String("order.status", string(status)))

	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	return e.transition(ctx, "set_status", orderID, func(domain.OrderStatus) (domain.OrderStatus, bool) {
		return status, true
	})
}

// transition moves an order to the status target picks from its current one,
// all in one store update. target returning false, or the current status,
// leaves the order untouched.
func (e *OrderEngine) transition(ctx context.Context, op string, orderID int64, target func(from domain.OrderStatus) (domain.OrderStatus, bool)) (*domain.OrderView, error) {
	var (
		view   *domain.OrderView
		notice *domain.Notification
	)
	err := e.store.update(ctx, op, func(st *domain.State) (bool, error) {
		i := orderIndex(st, orderID)
		if i < 0 {
			return false, nil
		}
		o := &st.Orders[i]
		customer := customerOf(st, o.CustomerID)

		status, ok := target(o.Status)
		if !ok || o.Status == status {
			v := e.viewOf(*o, customer.Name)
			view = &v
			return false, nil
		}
		if !e.allowed(o.Status, status) {
			return false, &domain.ErrInvalidTransition{From: o.Status, To: status}
		}

		o.Status = status
		st.Activities = e.store.feed.Append(st.Activities, domain.ActivityForStatus(status),
			statusTitle(o.DisplayCode, status), "Customer: "+customer.Name)

		v := e.viewOf(*o, customer.Name)
		view = &v
		n := decideNotification(customer, *o)
		notice = &n
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if notice == nil {
		return view, nil
	}

	e.metrics.IncrStatusTransition(string(view.Status))
	e.logger.Info("order status changed",
		zap.Int64("order_id", orderID),
		zap.String("status", string(view.Status)),
	)
	e.dispatch(ctx, *notice)
	return view, nil
}

// SetEta updates the estimated minutes, clamped to at least 1. The status is unchanged.
func (e *OrderEngine) SetEta(ctx context.Context, orderID int64, minutes int) (*domain.OrderView, error) {
	minutes = max(minutes, 1)

	var view *domain.OrderView
	err := e.store.update(ctx, "set_eta", func(st *domain.State) (bool, error) {
		i := orderIndex(st, orderID)
		if i < 0 {
			return false, nil
		}
		o := &st.Orders[i]
		o.EtaMinutes = minutes
		st.Activities = e.store.feed.Append(st.Activities, domain.ActivityPrep,
			"ETA updated", fmt.Sprintf("Order #%s - %d min", o.DisplayCode, minutes))
		v := e.viewOf(*o, customerOf(st, o.CustomerID).Name)
		view = &v
		return true, nil
	})
	return view, err
}

// DeleteOrder removes the order if present.
func (e *OrderEngine) DeleteOrder(ctx context.Context, orderID int64) error {
	return e.store.update(ctx, "delete_order", func(st *domain.State) (bool, error) {
		i := orderIndex(st, orderID)
		if i < 0 {
			return false, nil
		}
		code := st.Orders[i].DisplayCode
		st.Orders = append(st.Orders[:i:i], st.Orders[i+1:]...)
		st.Activities = e.store.feed.Append(st.Activities, domain.ActivityNew, "Order #"+code+" removed", "")
		e.metrics.IncrMutation("order", "delete")
		return true, nil
	})
}

// ============================================================
// Queries
// ============================================================

// GetOrder returns the order with derived totals.
func (e *OrderEngine) GetOrder(ctx context.Context, orderID int64) (*domain.OrderView, error) {
	var view *domain.OrderView
	e.store.view(ctx, func(st *domain.State) {
		if i := orderIndex(st, orderID); i >= 0 {
			o := st.Orders[i]
			v := e.viewOf(o, customerOf(st, o.CustomerID).Name)
			view = &v
		}
	})
	if view == nil {
		return nil, &domain.ErrNotFound{Resource: "order", ID: formatID(orderID)}
	}
	return view, nil
}

// ListOrders returns orders newest first, filtered case-insensitively on
// display code, customer name and status when query is not blank.
func (e *OrderEngine) ListOrders(ctx context.Context, query string) []domain.OrderView {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []domain.OrderView
	e.store.view(ctx, func(st *domain.State) {
		out = make([]domain.OrderView, 0, len(st.Orders))
		for _, o := range st.Orders {
			name := customerOf(st, o.CustomerID).Name
			if query != "" &&
				!strings.Contains(strings.ToLower(o.DisplayCode), query) &&
				!strings.Contains(strings.ToLower(name), query) &&
				!strings.Contains(strings.ToLower(string(o.Status)), query) {
				continue
			}
			out = append(out, e.viewOf(o, name))
		}
	})
	return out
}

// CustomerOrders returns the orders of one customer, newest first.
func (e *OrderEngine) CustomerOrders(ctx context.Context, customerID int64) []domain.OrderView {
	var out []domain.OrderView
	e.store.view(ctx, func(st *domain.State) {
		out = []domain.OrderView{}
		name := customerOf(st, customerID).Name
		for _, o := range st.Orders {
			if o.CustomerID == customerID {
				out = append(out, e.viewOf(o, name))
			}
		}
	})
	return out
}

// ============================================================
// Helpers
// ============================================================

func (e *OrderEngine) allowed(from, to domain.OrderStatus) bool {
	if next, ok := from.Next(); ok && next == to {
		return true
	}
	return e.opts.AllowRollback && from == domain.StatusOnTheWay && to == domain.StatusPreparing
}

func (e *OrderEngine) viewOf(o domain.Order, customerName string) domain.OrderView {
	o.Items = append([]domain.LineItem(nil), o.Items...)
	return domain.OrderView{
		Order:            o,
		Total:            o.Total(),
		CustomerName:     customerName,
		RemainingMinutes: remainingMinutes(o, e.store.now()),
	}
}

func (e *OrderEngine) dispatch(ctx context.Context, n domain.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.metrics.IncrNotification(string(n.Channel), "error")
		e.logger.Warn("notification dispatch failed",
			zap.Int64("order_id", n.OrderID),
			zap.String("channel", string(n.Channel)),
			zap.Error(err),
		)
		return
	}
	e.metrics.IncrNotification(string(n.Channel), "sent")
}

// decideNotification picks the customer's preferred channel, defaulting to the web app.
func decideNotification(c domain.Customer, o domain.Order) domain.Notification {
	channel := c.NotificationPreference
	if channel != domain.ChannelWhatsApp {
		channel = domain.ChannelWebApp
	}
	return domain.Notification{
		Channel:    channel,
		CustomerID: o.CustomerID,
		Phone:      c.Phone,
		OrderID:    o.ID,
		Message:    statusMessage(o),
	}
}

func statusMessage(o domain.Order) string {
	switch o.Status {
	case domain.StatusOnTheWay:
		return fmt.Sprintf("Your order #%s is on the way!", o.DisplayCode)
	case domain.StatusDelivered:
		return fmt.Sprintf("Your order #%s was delivered. Enjoy!", o.DisplayCode)
	default:
		return fmt.Sprintf("Your order #%s is being prepared (about %d min).", o.DisplayCode, o.EtaMinutes)
	}
}

func statusTitle(code string, status domain.OrderStatus) string {
	switch status {
	case domain.StatusOnTheWay:
		return "Order #" + code + " on the way"
	case domain.StatusDelivered:
		return "Order #" + code + " delivered"
	default:
		return "Order #" + code + " preparing"
	}
}

func remainingMinutes(o domain.Order, now time.Time) int {
	if o.Status == domain.StatusDelivered {
		return 0
	}
	ready := o.CreatedAt.Add(time.Duration(o.EtaMinutes) * time.Minute)
	left := ready.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}

// customerOf returns the referenced customer, or a zero value for a dangling reference.
func customerOf(st *domain.State, id int64) domain.Customer {
	if i := customerIndex(st, id); i >= 0 {
		return st.Customers[i]
	}
	return domain.Customer{ID: id}
}

func orderIndex(st *domain.State, id int64) int {
	for i := range st.Orders {
		if st.Orders[i].ID == id {
			return i
		}
	}
	return -1
}

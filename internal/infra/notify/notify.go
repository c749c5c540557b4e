// Package notify delivers the notifications decided by the order engine.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InboxSize bounds the web app inbox.
const InboxSize = 50

// Inbox keeps recent web app notifications per customer, newest first, and
// logs every notification it sees.
type Inbox struct {
	mu     sync.Mutex
	byUser map[int64][]domain.Notification
	logger *zap.Logger
}

// NewInbox creates an empty inbox.
func NewInbox(logger *zap.Logger) *Inbox {
	return &Inbox{byUser: make(map[int64][]domain.Notification), logger: logger}
}

// Notify records web app notifications and logs all of them.
func (b *Inbox) Notify(_ context.Context, n domain.Notification) error {
	b.logger.Info("notification",
		zap.String("channel", string(n.Channel)),
		zap.Int64("order_id", n.OrderID),
		zap.Int64("customer_id", n.CustomerID),
		zap.String("message", n.Message),
	)
	if n.Channel != domain.ChannelWebApp {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	list := append([]domain.Notification{n}, b.byUser[n.CustomerID]...)
	if len(list) > InboxSize {
		list = list[:InboxSize]
	}
	b.byUser[n.CustomerID] = list
	return nil
}

// For returns the notifications of one customer, newest first.
func (b *Inbox) For(customerID int64) []domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Notification{}, b.byUser[customerID]...)
}

// Fanout hands each notification to every sink concurrently.
type Fanout struct {
	sinks []port.Notifier
}

// NewFanout creates a fan-out over the non-nil sinks.
func NewFanout(sinks ...port.Notifier) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify waits for every sink and joins their errors.
func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, s := range f.sinks {
		g.Go(func() error {
			errs[i] = s.Notify(ctx, n)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

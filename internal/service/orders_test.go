package service_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrders_LifecycleKeepsSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Ana", domain.ChannelWebApp)

	o := f.order(t, c.ID, item(p.ID, 1))
	assert.Equal(t, "25.90", o.Total.StringFixed(2))
	assert.Equal(t, domain.StatusPreparing, o.Status)
	assert.Equal(t, 25, o.EtaMinutes)
	assert.Equal(t, "Ana", o.CustomerName)

	o, err := f.orders.Advance(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnTheWay, o.Status)

	o, err = f.orders.Advance(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, o.Status)
	assert.Equal(t, 0, o.RemainingMinutes)

	again, err := f.orders.Advance(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, again.Status)

	require.NoError(t, f.store.DeleteProduct(ctx, p.ID))
	got, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "X-Bacon", got.Items[0].Name)
	assert.Equal(t, "25.90", got.Items[0].Price.StringFixed(2))

	assert.Equal(t, float64(1), f.metrics.Snapshot().OrdersPlaced)
	assert.Equal(t, float64(1), f.metrics.Snapshot().Delivered)
}

func TestOrders_PlaceMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "X-Bacon", "25.90")
	b := f.product(t, "X-Salada", "22.90")
	c := f.customer(t, "Ana", domain.ChannelWebApp)

	o := f.order(t, c.ID, item(a.ID, 1), item(b.ID, 1), item(a.ID, 2))
	require.Len(t, o.Items, 2)
	assert.Equal(t, a.ID, o.Items[0].ProductID)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("100.60")))
}

func TestOrders_PlaceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Ana", domain.ChannelWebApp)

	tests := []struct {
		name  string
		in    domain.PlaceOrderInput
		field string
	}{
		{"no items", domain.PlaceOrderInput{CustomerID: c.ID}, "items"},
		{"zero quantity", domain.PlaceOrderInput{CustomerID: c.ID, Items: []domain.OrderItemInput{item(p.ID, 0)}}, "quantity"},
		{"unknown customer", domain.PlaceOrderInput{CustomerID: 99, Items: []domain.OrderItemInput{item(p.ID, 1)}}, "customerId"},
		{"unknown product", domain.PlaceOrderInput{CustomerID: c.ID, Items: []domain.OrderItemInput{item(99, 1)}}, "productId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.PlaceOrder(ctx, tt.in)
			var verr *domain.ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, f.orders.ListOrders(ctx, ""))
	assert.Equal(t, int64(1), f.store.Snapshot(ctx).Sequences.Order)
}

func TestOrders_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Ana", domain.ChannelWebApp)
	o := f.order(t, c.ID, item(p.ID, 1))

	_, err := f.orders.SetStatus(ctx, o.ID, domain.StatusDelivered)
	var terr *domain.ErrInvalidTransition
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.StatusPreparing, terr.From)

	_, err = f.orders.SetStatus(ctx, o.ID, "Cancelled")
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)

	_, err = f.orders.SetStatus(ctx, o.ID, domain.StatusOnTheWay)
	require.NoError(t, err)
	_, err = f.orders.SetStatus(ctx, o.ID, domain.StatusPreparing)
	assert.ErrorAs(t, err, &terr)

	missing, err := f.orders.SetStatus(ctx, 99, domain.StatusOnTheWay)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrders_ConcurrentAdvanceTakesOneStepEach(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Pedro", domain.ChannelWhatsApp)
	o := f.order(t, c.ID, item(p.ID, 1))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.Advance(ctx, o.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err, "advancing a delivered order is a no-op")
	}

	got, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)

	sent := f.notifier.all()
	require.Len(t, sent, 2, "one notification per real transition")
	assert.Equal(t, float64(1), f.metrics.Snapshot().Delivered)
}

func TestOrders_RollbackWhenAllowed(t *testing.T) {
	f := newFixture(t, withRollback())
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Ana", domain.ChannelWebApp)
	o := f.order(t, c.ID, item(p.ID, 1))

	_, err := f.orders.Advance(ctx, o.ID)
	require.NoError(t, err)
	back, err := f.orders.SetStatus(ctx, o.ID, domain.StatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, back.Status)
}

func TestOrders_NotificationChannel(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	web := f.customer(t, "Ana", domain.ChannelWebApp)
	wpp := f.customer(t, "Pedro", domain.ChannelWhatsApp)

	o1 := f.order(t, web.ID, item(p.ID, 1))
	o2 := f.order(t, wpp.ID, item(p.ID, 1))
	assert.Empty(t, f.notifier.all(), "placing an order does not notify")

	_, err := f.orders.Advance(ctx, o1.ID)
	require.NoError(t, err)
	_, err = f.orders.Advance(ctx, o2.ID)
	require.NoError(t, err)

	sent := f.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.ChannelWebApp, sent[0].Channel)
	assert.Equal(t, web.ID, sent[0].CustomerID)
	assert.Equal(t, domain.ChannelWhatsApp, sent[1].Channel)
	assert.Equal(t, "(11) 90000-0000", sent[1].Phone)
	assert.Contains(t, sent[1].Message, "#"+o2.DisplayCode)
	assert.Contains(t, sent[1].Message, "on the way")

	// same status is a no-op
	_, err = f.orders.SetStatus(ctx, o1.ID, domain.StatusOnTheWay)
	require.NoError(t, err)
	assert.Len(t, f.notifier.all(), 2)
}

func TestOrders_NotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.notifier.err = errors.New("gateway down")
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Pedro", domain.ChannelWhatsApp)
	o := f.order(t, c.ID, item(p.ID, 1))

	got, err := f.orders.Advance(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnTheWay, got.Status)

	stored, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnTheWay, stored.Status)
}

func TestOrders_EtaAndRemainingMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Ana", domain.ChannelWebApp)

	o, err := f.orders.PlaceOrder(ctx, domain.PlaceOrderInput{
		CustomerID: c.ID, Items: []domain.OrderItemInput{item(p.ID, 1)}, EtaMinutes: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, o.RemainingMinutes)

	f.clock.Advance(3*time.Minute + 30*time.Second)
	got, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.RemainingMinutes)

	got, err = f.orders.SetEta(ctx, o.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EtaMinutes)
	assert.Equal(t, 0, got.RemainingMinutes)
	assert.Equal(t, domain.StatusPreparing, got.Status)

	acts := f.store.Activities(ctx)
	assert.Equal(t, "ETA updated", acts[0].Title)
	assert.Equal(t, "Order #001 - 1 min - now", acts[0].Subtitle)

	missing, err := f.orders.SetEta(ctx, 99, 10)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrders_ListFilterAndCustomerOrders(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	ana := f.customer(t, "Ana Silva", domain.ChannelWebApp)
	pedro := f.customer(t, "Pedro Santos", domain.ChannelWebApp)

	f.order(t, ana.ID, item(p.ID, 1))
	second := f.order(t, pedro.ID, item(p.ID, 1))
	third := f.order(t, ana.ID, item(p.ID, 2))
	_, err := f.orders.Advance(ctx, second.ID)
	require.NoError(t, err)

	all := f.orders.ListOrders(ctx, "")
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)

	assert.Len(t, f.orders.ListOrders(ctx, "ANA"), 2)
	assert.Len(t, f.orders.ListOrders(ctx, "002"), 1)
	assert.Len(t, f.orders.ListOrders(ctx, "ontheway"), 1)
	assert.Empty(t, f.orders.ListOrders(ctx, "nobody"))

	mine := f.orders.CustomerOrders(ctx, ana.ID)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID)
	assert.Empty(t, f.orders.CustomerOrders(ctx, 99))
}

func TestOrders_DeleteAddsActivity(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	p := f.product(t, "X-Bacon", "25.90")
	c := f.customer(t, "Ana", domain.ChannelWebApp)
	o := f.order(t, c.ID, item(p.ID, 1))

	require.NoError(t, f.orders.DeleteOrder(ctx, o.ID))
	require.NoError(t, f.orders.DeleteOrder(ctx, o.ID))

	_, err := f.orders.GetOrder(ctx, o.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, "Order #001 removed", f.store.Activities(ctx)[0].Title)
}

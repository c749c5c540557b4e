package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/kv"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"
	"github.com/boddenberg/burger-place-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret        = "test-secret"
	testAdminPassword = "admin-pass"
)

var errDiskFull = errors.New("disk full")

// --- Fakes ---

// flakySubstrate wraps a memory substrate and fails on demand.
type flakySubstrate struct {
	port.Substrate
	failWrites atomic.Bool
	failReads  atomic.Bool
}

func newFlaky() *flakySubstrate {
	return &flakySubstrate{Substrate: kv.NewMemory(0)}
}

func (f *flakySubstrate) GetItem(ctx context.Context, key string) (string, bool, error) {
	if f.failReads.Load() {
		return "", false, errDiskFull
	}
	return f.Substrate.GetItem(ctx, key)
}

func (f *flakySubstrate) SetItem(ctx context.Context, key, value string) error {
	if f.failWrites.Load() {
		return errDiskFull
	}
	return f.Substrate.SetItem(ctx, key, value)
}

func (f *flakySubstrate) RemoveItem(ctx context.Context, key string) error {
	if f.failWrites.Load() {
		return errDiskFull
	}
	return f.Substrate.RemoveItem(ctx, key)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.sent...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Fixture ---

type fixture struct {
	substrate *flakySubstrate
	clock     *fakeClock
	metrics   *observability.Metrics
	notifier  *recordingNotifier
	store     *service.Store
	orders    *service.OrderEngine
	sessions  *service.SessionManager
	cart      *service.CartService

	sessionCfg service.SessionConfig
	logger     *zap.Logger
}

type fixtureOption func(*service.OrderEngineOptions)

func withRollback() fixtureOption {
	return func(o *service.OrderEngineOptions) { o.AllowRollback = true }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	return newFixtureOn(t, newFlaky(), opts...)
}

func newFixtureOn(t *testing.T, sub *flakySubstrate, opts ...fixtureOption) *fixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	keys := service.NewKeys("test_")

	store := service.NewStore(sub, service.StoreOptions{
		Keys:          keys,
		ActivityLimit: service.DefaultActivityLimit,
		BcryptCost:    bcrypt.MinCost,
		Clock:         clock.Now,
	}, metrics, logger)

	engineOpts := service.OrderEngineOptions{}
	for _, o := range opts {
		o(&engineOpts)
	}
	notifier := &recordingNotifier{}
	orders := service.NewOrderEngine(store, notifier, engineOpts, metrics, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	sessionCfg := service.SessionConfig{
		Secret:            testSecret,
		IdleTimeout:       5 * time.Minute,
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
		Keys:              keys,
		Clock:             clock.Now,
	}

	return &fixture{
		substrate: sub,
		clock:     clock,
		metrics:   metrics,
		notifier:  notifier,
		store:     store,
		orders:    orders,
		sessions:  service.NewSessionManager(sub, store, sessionCfg, metrics, logger),
		cart:      service.NewCartService(sub, store, orders, metrics, logger),

		sessionCfg: sessionCfg,
		logger:     logger,
	}
}

// restartedSessions is a session manager of a new process on the same substrate.
func (f *fixture) restartedSessions() *service.SessionManager {
	return service.NewSessionManager(f.substrate, f.store, f.sessionCfg, f.metrics, f.logger)
}

// restartedCart is a cart service of a new process on the same substrate.
func (f *fixture) restartedCart() *service.CartService {
	return service.NewCartService(f.substrate, f.store, f.orders, f.metrics, f.logger)
}

func (f *fixture) product(t *testing.T, name, price string) *domain.Product {
	t.Helper()
	p, err := f.store.CreateProduct(t.Context(), domain.ProductInput{
		Category: "Sandwiches",
		Name:     name,
		Price:    decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) customer(t *testing.T, name string, channel domain.NotificationChannel) *domain.CustomerView {
	t.Helper()
	c, err := f.store.CreateCustomer(t.Context(), domain.CustomerInput{
		Name:                   name,
		Password:               "secret",
		Phone:                  "(11) 90000-0000",
		NotificationPreference: channel,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) order(t *testing.T, customerID int64, items ...domain.OrderItemInput) *domain.OrderView {
	t.Helper()
	o, err := f.orders.PlaceOrder(t.Context(), domain.PlaceOrderInput{CustomerID: customerID, Items: items})
	require.NoError(t, err)
	return o
}

func item(productID int64, qty int) domain.OrderItemInput {
	return domain.OrderItemInput{ProductID: productID, Quantity: qty}
}

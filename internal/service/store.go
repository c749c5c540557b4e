// Package service holds the state core of the burger place: the domain store,
// the order lifecycle engine, the session manager and the cart.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var tracer = otel.Tracer("service/store")

const minPasswordLength = 4

// Keys names every record the service keeps on the substrate.
type Keys struct {
	State           string
	AdminSession    string
	CustomerSession string
	Cart            string
}

// NewKeys prefixes the record names, e.g. "burger_place_state_v1".
func NewKeys(prefix string) Keys {
	return Keys{
		State:           prefix + "state_v1",
		AdminSession:    prefix + "admin_session",
		CustomerSession: prefix + "customer_session",
		Cart:            prefix + "cart",
	}
}

// All lists every key, for reset.
func (k Keys) All() []string {
	return []string{k.State, k.AdminSession, k.CustomerSession, k.Cart}
}

// StoreOptions tunes the domain store.
type StoreOptions struct {
	Keys          Keys
	ActivityLimit int
	BcryptCost    int
	Clock         func() time.Time
}

// Store is the single source of truth for products, customers, orders and
// the activity feed. Every operation runs under one mutex to completion, so
// callers never observe a half-applied mutation.
type Store struct {
	mu        sync.Mutex
	substrate port.Substrate
	keys      Keys
	state     *domain.State
	loaded    bool
	sync      domain.SyncStatus

	feed       *ActivityFeed
	validate   *validator.Validate
	bcryptCost int
	now        func() time.Time
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewStore creates a store on top of substrate. Nothing is read until the
// first operation or an explicit Load.
func NewStore(substrate port.Substrate, opts StoreOptions, metrics *observability.Metrics, logger *zap.Logger) *Store {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Keys.State == "" {
		opts.Keys = NewKeys("burger_place_")
	}
	return &Store{
		substrate:  substrate,
		keys:       opts.Keys,
		state:      domain.NewState(),
		sync:       domain.SyncStatus{Synced: true},
		feed:       NewActivityFeed(opts.ActivityLimit, opts.Clock),
		validate:   newValidator(),
		bcryptCost: opts.BcryptCost,
		now:        opts.Clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// Keys returns the record names used on the substrate.
func (s *Store) Keys() Keys {
	return s.keys
}

// Feed exposes the activity feed used by the store.
func (s *Store) Feed() *ActivityFeed {
	return s.feed
}

// ============================================================
// Persistence
// ============================================================

// Load replaces the in-memory state with the persisted document. A missing
// or corrupt document yields an empty state. It reports whether a document
// was found and decoded.
//
// An unreadable substrate is different: the error is returned, the current
// state is kept and the store stays unloaded, so mutations are refused until
// a later load succeeds instead of overwriting data it never saw.
func (s *Store) Load(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "Store.Load")
	defer span.End()

	raw, ok, err := s.substrate.GetItem(ctx, s.keys.State)
	if err != nil {
		now := s.now()
		s.sync = domain.SyncStatus{Synced: false, LastError: "load: " + err.Error(), FailedAt: &now}
		s.metrics.IncrPersistenceFailure("load")
		s.logger.Error("store: state unreadable, refusing writes until it loads",
			zap.Error(&domain.ErrPersistence{Op: "load", Err: err}),
		)
		return false, &domain.ErrPersistence{Op: "load", Err: err}
	}

	s.loaded = true
	s.state = domain.NewState()
	s.sync = domain.SyncStatus{Synced: true}
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}

	var st domain.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.metrics.IncrPersistenceFailure("decode")
		s.logger.Warn("store: corrupt state document, starting empty", zap.Error(err))
		return false, nil
	}
	st.Normalize()
	if len(st.Activities) > s.feed.Limit() {
		st.Activities = st.Activities[:s.feed.Limit()]
	}
	s.state = &st

	span.SetAttributes(
		attribute.Int("products", len(st.Products)),
		attribute.Int("customers", len(st.Customers)),
		attribute.Int("orders", len(st.Orders)),
	)
	return true, nil
}

// Save writes the full document. A failure is recorded in SyncStatus and
// logged; the in-memory state stays authoritative.
func (s *Store) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "Store.Save")
	defer span.End()

	payload, err := json.Marshal(s.state)
	if err == nil {
		err = s.substrate.SetItem(ctx, s.keys.State, string(payload))
	}
	if err != nil {
		now := s.now()
		s.sync = domain.SyncStatus{Synced: false, LastError: err.Error(), FailedAt: &now}
		s.metrics.IncrPersistenceFailure("save")
		s.logger.Error("store: save failed, keeping in-memory state",
			zap.Error(&domain.ErrPersistence{Op: "save", Err: err}),
		)
		return
	}
	s.sync = domain.SyncStatus{Synced: true}
}

// SyncStatus reports whether the last load or save reached the substrate.
func (s *Store) SyncStatus() domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync
}

// Reset removes every record this service owns and empties the memory state.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, key := range s.keys.All() {
		if err := s.substrate.RemoveItem(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	s.state = domain.NewState()
	s.loaded = true
	if len(errs) > 0 {
		return &domain.ErrPersistence{Op: "reset", Err: errors.Join(errs...)}
	}
	s.logger.Info("store: reset")
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot(ctx context.Context) domain.State {
	var out domain.State
	s.view(ctx, func(st *domain.State) {
		out = cloneState(st)
	})
	return out
}

// view runs fn with the loaded state under the lock. fn must not mutate.
// While the substrate is unreadable fn sees the last known state.
func (s *Store) view(ctx context.Context, fn func(st *domain.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		_, _ = s.loadLocked(ctx)
	}
	fn(s.state)
}

// update runs fn under the lock and persists when fn reports a change.
// fn must validate before mutating so that a returned error leaves the state untouched.
func (s *Store) update(ctx context.Context, op string, fn func(st *domain.State) (changed bool, err error)) error {
	start := time.Now()
	defer func() { s.metrics.RecordDuration(op, time.Since(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if _, err := s.loadLocked(ctx); err != nil {
			return err
		}
	}

	changed, err := fn(s.state)
	if err != nil {
		return err
	}
	if changed {
		s.saveLocked(ctx)
	}
	return nil
}

// ============================================================
// Seed
// ============================================================

// SeedIfEmpty loads first and writes the demo dataset only when there is no
// product, customer or order. Calling it again is a no-op. Nothing is seeded
// when the persisted state cannot be read.
func (s *Store) SeedIfEmpty(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadLocked(ctx); err != nil {
		return false, err
	}
	if !s.state.IsEmpty() {
		return false, nil
	}

	st, err := demoState(s.now(), s.bcryptCost, s.feed)
	if err != nil {
		return false, fmt.Errorf("build demo state: %w", err)
	}
	s.state = st
	s.saveLocked(ctx)

	s.logger.Info("store: demo data seeded",
		zap.Int("products", len(st.Products)),
		zap.Int("customers", len(st.Customers)),
		zap.Int("orders", len(st.Orders)),
	)
	return true, nil
}

// ============================================================
// Dashboard
// ============================================================

// Dashboard computes the admin KPIs and the rendered activity feed.
func (s *Store) Dashboard(ctx context.Context) domain.Dashboard {
	var d domain.Dashboard
	s.view(ctx, func(st *domain.State) {
		d.TotalOrders = len(st.Orders)
		d.Products = len(st.Products)
		d.Customers = len(st.Customers)
		for _, o := range st.Orders {
			if o.Status == domain.StatusDelivered {
				d.DeliveredOrders++
				d.Revenue = d.Revenue.Add(o.Total())
			} else {
				d.InProgressOrders++
			}
		}
		d.Activities = s.feed.Render(st.Activities)
	})
	return d
}

// Activities returns the rendered feed, newest first.
func (s *Store) Activities(ctx context.Context) []domain.ActivityView {
	var out []domain.ActivityView
	s.view(ctx, func(st *domain.State) {
		out = s.feed.Render(st.Activities)
	})
	return out
}

// ============================================================
// Helpers
// ============================================================

func (s *Store) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func cloneState(st *domain.State) domain.State {
	out := domain.State{
		Products:   append([]domain.Product(nil), st.Products...),
		Customers:  append([]domain.Customer(nil), st.Customers...),
		Orders:     make([]domain.Order, len(st.Orders)),
		Activities: append([]domain.Activity(nil), st.Activities...),
		Sequences:  st.Sequences,
	}
	for i, o := range st.Orders {
		o.Items = append([]domain.LineItem(nil), o.Items...)
		out.Orders[i] = o
	}
	return out
}

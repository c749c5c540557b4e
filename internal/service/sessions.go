package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultAdminIdleTimeout is how long an admin login stays valid.
const DefaultAdminIdleTimeout = 5 * time.Minute

// DefaultCustomerSessionTTL is how long a storefront login stays valid.
const DefaultCustomerSessionTTL = 30 * 24 * time.Hour

const (
	sessionIssuer       = "burger-place"
	sessionTypeAdmin    = "admin"
	sessionTypeCustomer = "customer"
)

// CustomerDirectory resolves and registers customers for the storefront.
type CustomerDirectory interface {
	FindCustomer(ctx context.Context, id int64) *domain.Customer
	FindCustomerByUsername(ctx context.Context, username string) *domain.Customer
	CreateCustomer(ctx context.Context, in domain.CustomerInput) (*domain.CustomerView, error)
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	Secret            string
	IdleTimeout       time.Duration
	CustomerTTL       time.Duration
	AdminUsername     string
	AdminPasswordHash string
	Keys              Keys
	Clock             func() time.Time
}

// SessionClaims is the payload of a session token. ID is the session id and
// IssuedAt the moment of login.
type SessionClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// SessionManager issues signed session tokens to admin and storefront clients
// and keeps the live ones in two tables on the substrate. A token grants
// access only while its session is still in the table, so logout and expiry
// take effect server side.
type SessionManager struct {
	mu        sync.Mutex
	substrate port.Substrate
	customers CustomerDirectory
	cfg       SessionConfig
	secret    []byte
	metrics   *observability.Metrics
	logger    *zap.Logger

	admins  *sessionTable
	clients *sessionTable
}

// NewSessionManager creates a session manager.
func NewSessionManager(substrate port.Substrate, customers CustomerDirectory, cfg SessionConfig, metrics *observability.Metrics, logger *zap.Logger) *SessionManager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultAdminIdleTimeout
	}
	if cfg.CustomerTTL <= 0 {
		cfg.CustomerTTL = DefaultCustomerSessionTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Keys.AdminSession == "" {
		cfg.Keys = NewKeys("burger_place_")
	}
	return &SessionManager{
		substrate: substrate,
		customers: customers,
		cfg:       cfg,
		secret:    []byte(cfg.Secret),
		metrics:   metrics,
		logger:    logger,
		admins:    newSessionTable(cfg.Keys.AdminSession, sessionTypeAdmin, cfg.IdleTimeout),
		clients:   newSessionTable(cfg.Keys.CustomerSession, sessionTypeCustomer, cfg.CustomerTTL),
	}
}

// IdleTimeout returns the admin re-authentication window.
func (m *SessionManager) IdleTimeout() time.Duration {
	return m.cfg.IdleTimeout
}

// ============================================================
// Administrator
// ============================================================

// AdminLogin checks the fixed admin credential pair and starts a session.
// The returned state carries the token the client presents from then on.
func (m *SessionManager) AdminLogin(ctx context.Context, req domain.LoginRequest) (*domain.AdminSession, error) {
	ctx, span := tracer.Start(ctx, "SessionManager.AdminLogin")
	defer span.End()

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(req.Username)), []byte(m.cfg.AdminUsername)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(m.cfg.AdminPasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		m.metrics.IncrLogin(sessionTypeAdmin, "failure")
		m.logger.Warn("admin login rejected")
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	now := m.cfg.Clock()
	sid := uuid.NewString()
	token, err := m.sign(sessionTypeAdmin, sessionTypeAdmin, sid, now)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.put(ctx, m.admins, sid, token)
	m.mu.Unlock()

	m.metrics.IncrLogin(sessionTypeAdmin, "success")
	m.logger.Info("admin logged in", zap.String("session_id", sid))
	st := m.adminView(now, now)
	st.Token = token
	return st, nil
}

// AdminStatus reports the session behind token. An expired session is
// discarded and reported as needing re-authentication.
func (m *SessionManager) AdminStatus(ctx context.Context, token string) *domain.AdminSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	claims, state := m.lookup(ctx, m.admins, token)
	switch state {
	case sessionActive:
		return m.adminView(claims.IssuedAt.Time, m.cfg.Clock())
	case sessionExpired:
		return &domain.AdminSession{ReauthRequired: true}
	default:
		return &domain.AdminSession{}
	}
}

// RequireAdmin fails with a re-auth error unless token belongs to a fresh
// admin session. Every access to the admin area goes through it.
func (m *SessionManager) RequireAdmin(ctx context.Context, token string) error {
	st := m.AdminStatus(ctx, token)
	if st.Authenticated {
		return nil
	}
	return &domain.ErrUnauthorized{Message: "admin session required", Reauth: true}
}

// AdminLogout ends the admin session behind token. Other sessions are untouched.
func (m *SessionManager) AdminLogout(ctx context.Context, token string) {
	claims, ok := m.parse(token, sessionTypeAdmin)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop(ctx, m.admins, claims.ID)
	m.logger.Info("admin logged out", zap.String("session_id", claims.ID))
}

func (m *SessionManager) adminView(lastAuth, now time.Time) *domain.AdminSession {
	expires := lastAuth.Add(m.cfg.IdleTimeout)
	return &domain.AdminSession{
		Authenticated: now.Sub(lastAuth) <= m.cfg.IdleTimeout,
		LastAuthAt:    &lastAuth,
		ExpiresAt:     &expires,
	}
}

// ============================================================
// Customer
// ============================================================

// CustomerLogin matches username and password against the customer
// collection and starts a customer session.
func (m *SessionManager) CustomerLogin(ctx context.Context, req domain.LoginRequest) (*domain.CustomerSession, error) {
	ctx, span := tracer.Start(ctx, "SessionManager.CustomerLogin")
	defer span.End()

	c := m.customers.FindCustomerByUsername(ctx, req.Username)
	if c == nil || c.Role != domain.RoleCustomer ||
		bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(req.Password)) != nil {
		m.metrics.IncrLogin(sessionTypeCustomer, "failure")
		return nil, &domain.ErrUnauthorized{Message: "invalid username or password"}
	}

	token, err := m.StartCustomerSession(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	m.metrics.IncrLogin(sessionTypeCustomer, "success")
	view := c.View()
	return &domain.CustomerSession{Authenticated: true, Token: token, Customer: &view}, nil
}

// Signup registers a storefront customer and logs them in.
func (m *SessionManager) Signup(ctx context.Context, in domain.CustomerInput) (*domain.CustomerSession, error) {
	in.Role = domain.RoleCustomer
	created, err := m.customers.CreateCustomer(ctx, in)
	if err != nil {
		return nil, err
	}
	token, err := m.StartCustomerSession(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return &domain.CustomerSession{Authenticated: true, Token: token, Customer: created}, nil
}

// StartCustomerSession opens a session for customerID and returns its token.
func (m *SessionManager) StartCustomerSession(ctx context.Context, customerID int64) (string, error) {
	sid := uuid.NewString()
	token, err := m.sign(sessionTypeCustomer, strconv.FormatInt(customerID, 10), sid, m.cfg.Clock())
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(ctx, m.clients, sid, token)
	m.logger.Info("customer session started",
		zap.Int64("customer_id", customerID),
		zap.String("session_id", sid),
	)
	return token, nil
}

// CurrentCustomer resolves the customer behind token. It returns nil when
// the session is unknown or expired, or the customer no longer exists.
func (m *SessionManager) CurrentCustomer(ctx context.Context, token string) *domain.Customer {
	m.mu.Lock()
	claims, state := m.lookup(ctx, m.clients, token)
	m.mu.Unlock()
	if state != sessionActive {
		return nil
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil
	}
	return m.customers.FindCustomer(ctx, id)
}

// CustomerLogout ends the customer session behind token.
func (m *SessionManager) CustomerLogout(ctx context.Context, token string) {
	claims, ok := m.parse(token, sessionTypeCustomer)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop(ctx, m.clients, claims.ID)
}

// ============================================================
// Tokens
// ============================================================

type sessionState int

const (
	sessionNone sessionState = iota
	sessionActive
	sessionExpired
)

func (m *SessionManager) sign(typ, subject, sid string, issuedAt time.Time) (string, error) {
	claims := SessionClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       sid,
			Subject:  subject,
			Issuer:   sessionIssuer,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s session: %w", typ, err)
	}
	return token, nil
}

func (m *SessionManager) parse(raw, typ string) (*SessionClaims, bool) {
	if raw == "" {
		return nil, false
	}
	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(m.cfg.Clock))
	if err != nil {
		return nil, false
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Type != typ || claims.ID == "" || claims.IssuedAt == nil {
		return nil, false
	}
	return claims, true
}

// lookup checks raw against the table. The lifetime is measured lazily from
// the login time; an expired session is dropped on sight.
func (m *SessionManager) lookup(ctx context.Context, t *sessionTable, raw string) (*SessionClaims, sessionState) {
	claims, ok := m.parse(raw, t.typ)
	if !ok {
		return nil, sessionNone
	}
	m.ensure(ctx, t)
	stored, found := t.tokens[claims.ID]
	if !found || subtle.ConstantTimeCompare([]byte(stored), []byte(raw)) != 1 {
		return nil, sessionNone
	}
	if t.expired(claims, m.cfg.Clock()) {
		m.drop(ctx, t, claims.ID)
		return claims, sessionExpired
	}
	return claims, sessionActive
}

// ============================================================
// Session tables
// ============================================================

// sessionTable holds the live sessions of one kind as session id to token,
// persisted as one JSON object. Until the record has been read once, changes
// stay in memory and are merged into it on the first successful read, so an
// unreadable substrate never wipes sessions it has not seen.
type sessionTable struct {
	key string
	typ string
	ttl time.Duration

	loaded  bool
	tokens  map[string]string
	added   map[string]string
	revoked map[string]bool
}

func newSessionTable(key, typ string, ttl time.Duration) *sessionTable {
	return &sessionTable{
		key:     key,
		typ:     typ,
		ttl:     ttl,
		tokens:  make(map[string]string),
		added:   make(map[string]string),
		revoked: make(map[string]bool),
	}
}

func (t *sessionTable) expired(claims *SessionClaims, now time.Time) bool {
	return now.Sub(claims.IssuedAt.Time) > t.ttl
}

func (m *SessionManager) ensure(ctx context.Context, t *sessionTable) {
	if t.loaded {
		return
	}
	raw, found, err := m.substrate.GetItem(ctx, t.key)
	if err != nil {
		m.metrics.IncrPersistenceFailure("session_load")
		m.logger.Warn("session: read failed, using memory", zap.String("key", t.key), zap.Error(err))
		return
	}

	stored := make(map[string]string)
	if found && raw != "" {
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			m.logger.Warn("session: discarding corrupt record", zap.String("key", t.key), zap.Error(err))
			stored = make(map[string]string)
		}
	}
	pending := len(t.added) > 0 || len(t.revoked) > 0
	for sid, token := range t.added {
		stored[sid] = token
	}
	for sid := range t.revoked {
		delete(stored, sid)
	}
	t.tokens = stored
	t.added = make(map[string]string)
	t.revoked = make(map[string]bool)
	t.loaded = true
	if pending {
		m.persist(ctx, t)
	}
}

func (m *SessionManager) put(ctx context.Context, t *sessionTable, sid, token string) {
	m.ensure(ctx, t)
	m.prune(t)
	t.tokens[sid] = token
	if !t.loaded {
		t.added[sid] = token
		return
	}
	m.persist(ctx, t)
}

func (m *SessionManager) drop(ctx context.Context, t *sessionTable, sid string) {
	m.ensure(ctx, t)
	delete(t.tokens, sid)
	if !t.loaded {
		delete(t.added, sid)
		t.revoked[sid] = true
		return
	}
	m.persist(ctx, t)
}

// prune forgets sessions whose token no longer verifies or has outlived the table's ttl.
func (m *SessionManager) prune(t *sessionTable) {
	now := m.cfg.Clock()
	for sid, raw := range t.tokens {
		if claims, ok := m.parse(raw, t.typ); ok && !t.expired(claims, now) {
			continue
		}
		delete(t.tokens, sid)
		delete(t.added, sid)
	}
}

func (m *SessionManager) persist(ctx context.Context, t *sessionTable) {
	var err error
	if len(t.tokens) == 0 {
		err = m.substrate.RemoveItem(ctx, t.key)
	} else {
		var payload []byte
		payload, err = json.Marshal(t.tokens)
		if err == nil {
			err = m.substrate.SetItem(ctx, t.key, string(payload))
		}
	}
	if err != nil {
		m.metrics.IncrPersistenceFailure("session_save")
		m.logger.Error("session: write failed, keeping sessions in memory", zap.String("key", t.key),
			zap.Error(&domain.ErrPersistence{Op: "session_save", Err: err}))
	}
}

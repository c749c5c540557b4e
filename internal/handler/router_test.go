package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/handler"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/cache"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/kv"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/notify"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"
	"github.com/boddenberg/burger-place-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t)
	srv.loginAdmin(t)

	rec := do(t, srv.router, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "burger_logins_total")
}

func TestV1WithoutStore(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/v1/storefront/menu", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz_ReportsStorageAndSync(t *testing.T) {
	srv := newTestServer(t)
	token := srv.loginAdmin(t)
	srv.substrate.failWrites.Store(true)
	do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{"name": "X", "category": "c", "price": 1}, bearer(token)...)

	rec := do(t, srv.router, http.MethodGet, "/healthz", nil)

	var body domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Services, 2)
	assert.Equal(t, "storage", body.Services[0].Name)
	assert.Equal(t, "sync", body.Services[1].Name)
}

// --- Admin ---

func TestAdmin_RequiresSession(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv.router, http.MethodGet, "/v1/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "reauth_required", decodeError(t, rec).Code)

	rec = do(t, srv.router, http.MethodPost, "/v1/admin/session", domain.LoginRequest{Username: "admin", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, decodeError(t, rec).Code)

	token := srv.loginAdmin(t)
	rec = do(t, srv.router, http.MethodGet, "/v1/admin/dashboard", nil, bearer(token)...)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/session", nil, bearer(token)...)
	var st domain.AdminSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Authenticated)
	assert.Empty(t, st.Token)

	rec = do(t, srv.router, http.MethodDelete, "/v1/admin/session", nil, bearer(token)...)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv.router, http.MethodGet, "/v1/admin/orders", nil, bearer(token)...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_LoginDoesNotAuthorizeOtherClients(t *testing.T) {
	srv := newTestServer(t)
	token := srv.loginAdmin(t)

	rec := do(t, srv.router, http.MethodGet, "/v1/admin/customers", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "reauth_required", decodeError(t, rec).Code)

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/customers", nil, "Authorization", "Basic "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/session", nil)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/customers", nil, "Authorization", "bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_ProductCRUD(t *testing.T) {
	srv := newTestServer(t)
	admin := bearer(srv.loginAdmin(t))

	rec := do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{
		"name": "X-Bacon", "category": "Sandwiches", "price": "25.90",
	}, admin...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, int64(1), p.ID)

	rec = do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{"category": "x", "price": 1}, admin...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeError(t, rec).Field)

	rec = do(t, srv.router, http.MethodPut, "/v1/admin/products/42", map[string]any{"name": "Y", "category": "x", "price": 1}, admin...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/products/abc", nil, admin...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv.router, http.MethodPost, "/v1/admin/products", "not an object", admin...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv.router, http.MethodDelete, "/v1/admin/products/1", nil, admin...)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv.router, http.MethodGet, "/v1/admin/products/1", nil, admin...)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_OrderLifecycle(t *testing.T) {
	srv := newTestServer(t)
	admin := bearer(srv.loginAdmin(t))
	productID := srv.createProduct(t, admin, "X-Bacon", "25.90")

	rec := do(t, srv.router, http.MethodPost, "/v1/admin/customers", domain.CustomerInput{Name: "Ana", Password: "1234"}, admin...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c domain.CustomerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, "ana", c.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, srv.router, http.MethodPost, "/v1/admin/customers", domain.CustomerInput{Name: "Ana B", Username: "ANA", Password: "1234"}, admin...)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv.router, http.MethodPost, "/v1/admin/orders", domain.PlaceOrderInput{
		CustomerID: c.ID, Items: []domain.OrderItemInput{{ProductID: productID, Quantity: 2}},
	}, admin...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeOrder(t, rec)
	assert.Equal(t, "001", o.DisplayCode)
	assert.Equal(t, "51.80", o.Total.StringFixed(2))

	rec = do(t, srv.router, http.MethodPut, "/v1/admin/orders/1/status", map[string]string{"status": "Delivered"}, admin...)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv.router, http.MethodPost, "/v1/admin/orders/1/advance", nil, admin...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusOnTheWay, decodeOrder(t, rec).Status)

	rec = do(t, srv.router, http.MethodPut, "/v1/admin/orders/1/eta", map[string]int{"etaMinutes": 0}, admin...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeOrder(t, rec).EtaMinutes)

	rec = do(t, srv.router, http.MethodPost, "/v1/admin/orders/9/advance", nil, admin...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv.router, http.MethodDelete, "/v1/admin/customers/1", nil, admin...)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/orders?q=ana", nil, admin...)
	var list []domain.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/dashboard", nil, admin...)
	var d domain.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, 1, d.InProgressOrders)
	assert.NotEmpty(t, d.Activities)
}

func TestAdmin_UsernameHelpers(t *testing.T) {
	srv := newTestServer(t)
	admin := bearer(srv.loginAdmin(t))
	do(t, srv.router, http.MethodPost, "/v1/admin/customers", domain.CustomerInput{Name: "Maria Oliveira", Password: "1234"}, admin...)

	rec := do(t, srv.router, http.MethodGet, "/v1/admin/customers/username-suggestion?name=Maria%20Oliveira", nil, admin...)
	assert.JSONEq(t, `{"username":"maria.oliveira2"}`, rec.Body.String())

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/customers/username-available?username=Maria.Oliveira", nil, admin...)
	assert.JSONEq(t, `{"username":"maria.oliveira","available":false}`, rec.Body.String())
}

// --- Storefront ---

func TestStorefront_SignupCartCheckout(t *testing.T) {
	srv := newTestServer(t)
	admin := bearer(srv.loginAdmin(t))
	productID := srv.createProduct(t, admin, "X-Bacon", "25.90")

	rec := do(t, srv.router, http.MethodGet, "/v1/storefront/menu", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv.router, http.MethodPost, "/v1/storefront/cart/items", map[string]int64{"productId": productID, "quantity": 2})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "the cart belongs to a logged-in customer")

	rec = do(t, srv.router, http.MethodPost, "/v1/storefront/signup", domain.CustomerInput{
		Name: "Novo Cliente", Password: "1234", Phone: "(11) 95555-0000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session domain.CustomerSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	customer := bearer(session.Token)

	rec = do(t, srv.router, http.MethodGet, "/v1/storefront/session", nil, customer...)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)
	assert.NotContains(t, rec.Body.String(), `"token"`)

	rec = do(t, srv.router, http.MethodPost, "/v1/storefront/cart/items", map[string]int64{"productId": productID, "quantity": 2}, customer...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv.router, http.MethodPost, "/v1/storefront/checkout", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	idem := append(bearer(session.Token), "Idempotency-Key", "abc-1")
	first := do(t, srv.router, http.MethodPost, "/v1/storefront/checkout", map[string]int{"etaMinutes": 30}, idem...)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := do(t, srv.router, http.MethodPost, "/v1/storefront/checkout", map[string]int{"etaMinutes": 30}, idem...)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, decodeOrder(t, first).ID, decodeOrder(t, second).ID)
	assert.Equal(t, float64(1), srv.metrics.Snapshot().IdempotentReplays)

	rec = do(t, srv.router, http.MethodGet, "/v1/storefront/my-orders", nil, customer...)
	var mine []domain.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, 30, mine[0].EtaMinutes)

	rec = do(t, srv.router, http.MethodGet, "/v1/storefront/cart", nil, customer...)
	var cart domain.CartView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Empty(t, cart.Lines)

	rec = do(t, srv.router, http.MethodPost, "/v1/storefront/checkout", nil, append(bearer(session.Token), "Idempotency-Key", "abc-2")...)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	do(t, srv.router, http.MethodPost, "/v1/admin/orders/1/advance", nil, admin...)
	rec = do(t, srv.router, http.MethodGet, "/v1/storefront/notifications", nil, customer...)
	var inbox []domain.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox, 1)
	assert.Contains(t, inbox[0].Message, "on the way")

	rec = do(t, srv.router, http.MethodDelete, "/v1/storefront/session", nil, customer...)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv.router, http.MethodGet, "/v1/storefront/my-orders", nil, customer...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStorefront_CustomersAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	admin := bearer(srv.loginAdmin(t))
	bacon := srv.createProduct(t, admin, "X-Bacon", "25.90")
	salad := srv.createProduct(t, admin, "X-Salada", "22.90")
	ana := bearer(srv.signup(t, "Ana Souza"))
	bia := bearer(srv.signup(t, "Bia Lima"))

	rec := do(t, srv.router, http.MethodPost, "/v1/storefront/cart/items", map[string]int64{"productId": bacon, "quantity": 1}, ana...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, srv.router, http.MethodPost, "/v1/storefront/cart/items", map[string]int64{"productId": salad, "quantity": 3}, bia...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv.router, http.MethodPost, "/v1/storefront/checkout", nil, ana...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "25.90", decodeOrder(t, rec).Total.StringFixed(2))

	rec = do(t, srv.router, http.MethodGet, "/v1/storefront/my-orders", nil, bia...)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv.router, http.MethodGet, "/v1/storefront/cart", nil, bia...)
	var cart domain.CartView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, salad, cart.Lines[0].ProductID)

	// a customer token does not open the admin area
	rec = do(t, srv.router, http.MethodGet, "/v1/admin/orders", nil, ana...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncWarningHeader(t *testing.T) {
	srv := newTestServer(t)
	admin := bearer(srv.loginAdmin(t))

	rec := do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{"name": "A", "category": "c", "price": 1}, admin...)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Sync-Warning"))

	srv.substrate.failWrites.Store(true)
	rec = do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{"name": "B", "category": "c", "price": 1}, admin...)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Header().Get("X-Sync-Warning"), "disk full")

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/sync", nil, admin...)
	assert.Contains(t, rec.Body.String(), `"synced":false`)

	srv.substrate.failWrites.Store(false)
	rec = do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{"name": "C", "category": "c", "price": 1}, admin...)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Sync-Warning"))

	rec = do(t, srv.router, http.MethodGet, "/v1/admin/products", nil, admin...)
	var products []domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Len(t, products, 3)
}

func TestAdmin_UnreadableStateRefusesWrites(t *testing.T) {
	srv := newTestServer(t)
	admin := bearer(srv.loginAdmin(t))

	srv.substrate.failReads.Store(true)
	rec := do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{"name": "A", "category": "c", "price": 1}, admin...)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage unavailable, try again", decodeError(t, rec).Error)

	srv.substrate.failReads.Store(false)
	rec = do(t, srv.router, http.MethodPost, "/v1/admin/products", map[string]any{"name": "A", "category": "c", "price": 1}, admin...)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// --- Helpers ---

type flakySubstrate struct {
	port.Substrate
	failWrites atomic.Bool
	failReads  atomic.Bool
}

func (f *flakySubstrate) GetItem(ctx context.Context, key string) (string, bool, error) {
	if f.failReads.Load() {
		return "", false, errors.New("connection reset")
	}
	return f.Substrate.GetItem(ctx, key)
}

func (f *flakySubstrate) SetItem(ctx context.Context, key, value string) error {
	if f.failWrites.Load() {
		return errors.New("disk full")
	}
	return f.Substrate.SetItem(ctx, key, value)
}

func (f *flakySubstrate) Ping(ctx context.Context) error {
	if f.failWrites.Load() {
		return errors.New("disk full")
	}
	return nil
}

type testServer struct {
	router    http.Handler
	substrate *flakySubstrate
	metrics   *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	sub := &flakySubstrate{Substrate: kv.NewMemory(0)}
	keys := service.NewKeys("test_")

	store := service.NewStore(sub, service.StoreOptions{Keys: keys, BcryptCost: bcrypt.MinCost}, metrics, logger)
	inbox := notify.NewInbox(logger)
	orders := service.NewOrderEngine(store, inbox, service.OrderEngineOptions{}, metrics, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.MinCost)
	require.NoError(t, err)
	sessions := service.NewSessionManager(sub, store, service.SessionConfig{
		Secret:            "test",
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
		Keys:              keys,
	}, metrics, logger)

	router := handler.NewRouter(handler.Services{
		Store:       store,
		Orders:      orders,
		Sessions:    sessions,
		Cart:        service.NewCartService(sub, store, orders, metrics, logger),
		Inbox:       inbox,
		Idempotency: cache.New[handler.CheckoutReplay](t.Context(), time.Minute),
		Substrate:   sub,
	}, metrics, logger)

	return &testServer{router: router, substrate: sub, metrics: metrics}
}

// loginAdmin opens an admin session and returns its token.
func (s *testServer) loginAdmin(t *testing.T) string {
	t.Helper()
	rec := do(t, s.router, http.MethodPost, "/v1/admin/session", domain.LoginRequest{Username: "admin", Password: "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st domain.AdminSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotEmpty(t, st.Token)
	return st.Token
}

// signup registers a storefront customer and returns the session token.
func (s *testServer) signup(t *testing.T, name string) string {
	t.Helper()
	rec := do(t, s.router, http.MethodPost, "/v1/storefront/signup", domain.CustomerInput{Name: name, Password: "1234"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session domain.CustomerSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	return session.Token
}

func (s *testServer) createProduct(t *testing.T, admin []string, name, price string) int64 {
	t.Helper()
	rec := do(t, s.router, http.MethodPost, "/v1/admin/products", map[string]any{
		"name": name, "category": "Sandwiches", "price": price,
	}, admin...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p.ID
}

// bearer is the Authorization header pair for token.
func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

// do sends body as JSON; headers are name/value pairs.
func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) domain.OrderView {
	t.Helper()
	var o domain.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	return o
}

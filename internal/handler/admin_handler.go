package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Admin session
// ============================================================

func adminLoginHandler(sessions *service.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/session")
		defer span.End()

		var req domain.LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		st, err := sessions.AdminLogin(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func adminSessionHandler(sessions *service.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessions.AdminStatus(r.Context(), bearerToken(r)))
	}
}

func adminLogoutHandler(sessions *service.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.AdminLogout(r.Context(), bearerToken(r))
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Dashboard
// ============================================================

func dashboardHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/dashboard")
		defer span.End()
		writeJSON(w, http.StatusOK, store.Dashboard(ctx))
	}
}

type syncResponse struct {
	domain.SyncStatus
	Metrics *observability.MetricsSnapshot `json:"metrics,omitempty"`
}

func syncStatusHandler(store *service.Store, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := syncResponse{SyncStatus: store.SyncStatus()}
		if metrics != nil {
			snap := metrics.Snapshot()
			resp.Metrics = &snap
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// Products
// ============================================================

func listProductsHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListProducts(r.Context()))
	}
}

func getProductHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		p, err := store.GetProduct(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func createProductHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/products")
		defer span.End()

		var req domain.ProductInput
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := store.CreateProduct(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func updateProductHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/products/{id}")
		defer span.End()

		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		span.SetAttributes(attribute.Int64("product.id", id))

		var req domain.ProductInput
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := store.UpdateProduct(ctx, id, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if p == nil {
			handleServiceError(w, &domain.ErrNotFound{Resource: "product", ID: chiID(r)}, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deleteProductHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := store.DeleteProduct(r.Context(), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Customers
// ============================================================

func listCustomersHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListCustomers(r.Context()))
	}
}

func createCustomerHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/customers")
		defer span.End()

		var req domain.CustomerInput
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := store.CreateCustomer(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func updateCustomerHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/customers/{id}")
		defer span.End()

		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		span.SetAttributes(attribute.Int64("customer.id", id))

		var req domain.CustomerInput
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := store.UpdateCustomer(ctx, id, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if c == nil {
			handleServiceError(w, &domain.ErrNotFound{Resource: "customer", ID: chiID(r)}, logger)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func deleteCustomerHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := store.DeleteCustomer(r.Context(), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func usernameSuggestionHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		writeJSON(w, http.StatusOK, map[string]string{"username": store.SuggestUsername(r.Context(), name)})
	}
}

func usernameAvailableHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		candidate := r.URL.Query().Get("username")
		writeJSON(w, http.StatusOK, map[string]any{
			"username":  service.SlugifyUsername(candidate),
			"available": store.IsUsernameAvailable(r.Context(), candidate),
		})
	}
}

// ============================================================
// Orders
// ============================================================

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

type etaRequest struct {
	EtaMinutes int `json:"etaMinutes"`
}

func listOrdersHandler(orders *service.OrderEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/orders")
		defer span.End()

		q := strings.TrimSpace(r.URL.Query().Get("q"))
		writeJSON(w, http.StatusOK, orders.ListOrders(ctx, q))
	}
}

func placeOrderHandler(orders *service.OrderEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/orders")
		defer span.End()

		var req domain.PlaceOrderInput
		if !decodeJSON(w, r, &req) {
			return
		}
		o, err := orders.PlaceOrder(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, o)
	}
}

func getOrderHandler(orders *service.OrderEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		o, err := orders.GetOrder(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func advanceOrderHandler(orders *service.OrderEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/orders/{id}/advance")
		defer span.End()

		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		span.SetAttributes(attribute.Int64("order.id", id))

		o, err := orders.Advance(ctx, id)
		respondOrder(w, r, o, err, logger)
	}
}

func setOrderStatusHandler(orders *service.OrderEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/orders/{id}/status")
		defer span.End()

		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req statusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		span.SetAttributes(attribute.Int64("order.id", id), attribute.String("order.status", string(req.Status)))

		o, err := orders.SetStatus(ctx, id, req.Status)
		respondOrder(w, r, o, err, logger)
	}
}

func setOrderEtaHandler(orders *service.OrderEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req etaRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		o, err := orders.SetEta(r.Context(), id, req.EtaMinutes)
		respondOrder(w, r, o, err, logger)
	}
}

func deleteOrderHandler(orders *service.OrderEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := orders.DeleteOrder(r.Context(), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// respondOrder writes the order, or 404 when the engine treated a missing id as a no-op.
func respondOrder(w http.ResponseWriter, r *http.Request, o *domain.OrderView, err error, logger *zap.Logger) {
	if err != nil {
		handleServiceError(w, err, logger)
		return
	}
	if o == nil {
		handleServiceError(w, &domain.ErrNotFound{Resource: "order", ID: chiID(r)}, logger)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

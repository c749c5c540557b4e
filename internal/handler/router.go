package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/notify"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"
	"github.com/boddenberg/burger-place-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles what the router exposes.
type Services struct {
	Store    *service.Store
	Orders   *service.OrderEngine
	Sessions *service.SessionManager
	Cart     *service.CartService
	// Inbox is optional; without it GET /notifications returns an empty list.
	Inbox *notify.Inbox
	// Idempotency caches checkout responses by Idempotency-Key.
	Idempotency port.Cache[CheckoutReplay]
	// Substrate is pinged by /healthz when it implements port.Pinger.
	Substrate   port.Substrate
	CORSOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(svc.CORSOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "traceparent"},
		ExposedHeaders:   []string{syncWarningHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Substrate, svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svc.Store == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "store not configured")
			}))
			return
		}
		r.Use(SyncWarning(svc.Store))

		// =============================================
		// Storefront
		// =============================================
		r.Route("/storefront", func(r chi.Router) {
			r.Get("/menu", menuHandler(svc.Store, logger))

			r.Post("/signup", signupHandler(svc.Sessions, logger))
			r.Post("/session", customerLoginHandler(svc.Sessions, logger))
			r.Get("/session", customerSessionHandler(svc.Sessions))
			r.Delete("/session", customerLogoutHandler(svc.Sessions))

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(CustomerOnly(svc.Sessions, logger))

				r.Get("/cart", cartViewHandler(svc.Cart))
				r.Delete("/cart", cartClearHandler(svc.Cart, logger))
				r.Post("/cart/items", cartAddHandler(svc.Cart, logger))
				r.Post("/cart/items/{productId}/increment", cartLineHandler(svc.Cart.Increment, logger))
				r.Post("/cart/items/{productId}/decrement", cartLineHandler(svc.Cart.Decrement, logger))
				r.Delete("/cart/items/{productId}", cartLineHandler(svc.Cart.Remove, logger))

				r.Post("/checkout", checkoutHandler(svc.Cart, svc.Idempotency, metrics, logger))
				r.Get("/my-orders", myOrdersHandler(svc.Orders))
				r.Get("/notifications", notificationsHandler(svc.Inbox))
			})
		})

		// =============================================
		// Admin
		// =============================================
		r.Route("/admin", func(r chi.Router) {
			// Public routes
			r.Post("/session", adminLoginHandler(svc.Sessions, logger))
			r.Get("/session", adminSessionHandler(svc.Sessions))
			r.Delete("/session", adminLogoutHandler(svc.Sessions))

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(AdminOnly(svc.Sessions, logger))

				r.Get("/dashboard", dashboardHandler(svc.Store))
				r.Get("/sync", syncStatusHandler(svc.Store, metrics))

				r.Get("/products", listProductsHandler(svc.Store))
				r.Post("/products", createProductHandler(svc.Store, logger))
				r.Get("/products/{id}", getProductHandler(svc.Store, logger))
				r.Put("/products/{id}", updateProductHandler(svc.Store, logger))
				r.Delete("/products/{id}", deleteProductHandler(svc.Store, logger))

				r.Get("/customers", listCustomersHandler(svc.Store))
				r.Post("/customers", createCustomerHandler(svc.Store, logger))
				r.Get("/customers/username-suggestion", usernameSuggestionHandler(svc.Store))
				r.Get("/customers/username-available", usernameAvailableHandler(svc.Store))
				r.Put("/customers/{id}", updateCustomerHandler(svc.Store, logger))
				r.Delete("/customers/{id}", deleteCustomerHandler(svc.Store, logger))

				r.Get("/orders", listOrdersHandler(svc.Orders))
				r.Post("/orders", placeOrderHandler(svc.Orders, logger))
				r.Get("/orders/{id}", getOrderHandler(svc.Orders, logger))
				r.Post("/orders/{id}/advance", advanceOrderHandler(svc.Orders, logger))
				r.Put("/orders/{id}/status", setOrderStatusHandler(svc.Orders, logger))
				r.Put("/orders/{id}/eta", setOrderEtaHandler(svc.Orders, logger))
				r.Delete("/orders/{id}", deleteOrderHandler(svc.Orders, logger))
			})
		})
	})

	return r
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(substrate port.Substrate, store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /healthz")
		defer span.End()

		status := domain.HealthStatus{Status: "healthy", Services: []domain.ServiceHealth{}}

		if pinger, ok := substrate.(port.Pinger); ok {
			start := time.Now()
			err := pinger.Ping(ctx)
			h := domain.ServiceHealth{
				Name:        "storage",
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: time.Now().UTC().Format(time.RFC3339),
			}
			if err != nil {
				logger.Warn("health: storage ping failed", zap.Error(err))
				h.Status = "unhealthy"
				status.Status = "degraded"
			}
			status.Services = append(status.Services, h)
		}

		if store != nil && !store.SyncStatus().Synced {
			status.Status = "degraded"
			status.Services = append(status.Services, domain.ServiceHealth{
				Name:        "sync",
				Status:      "out_of_sync",
				LastChecked: time.Now().UTC().Format(time.RFC3339),
			})
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

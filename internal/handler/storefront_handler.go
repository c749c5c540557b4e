package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/notify"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"
	"github.com/boddenberg/burger-place-bfa-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ============================================================
// Menu & cart
// ============================================================

func menuHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/storefront/menu")
		defer span.End()

		products := store.ListProducts(ctx)
		span.SetAttributes(attribute.Int("products", len(products)))
		writeJSON(w, http.StatusOK, products)
	}
}

func cartViewHandler(cart *service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer := CustomerFromContext(r.Context())
		writeJSON(w, http.StatusOK, cart.View(r.Context(), customer.ID))
	}
}

func cartClearHandler(cart *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer := CustomerFromContext(r.Context())
		if err := cart.Clear(r.Context(), customer.ID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart.View(r.Context(), customer.ID))
	}
}

func cartAddHandler(cart *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/storefront/cart/items")
		defer span.End()

		var req domain.OrderItemInput
		if !decodeJSON(w, r, &req) {
			return
		}
		customer := CustomerFromContext(ctx)
		view, err := cart.Add(ctx, customer.ID, req.ProductID, req.Quantity)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// cartLineHandler serves the per-line cart operations.
func cartLineHandler(op func(context.Context, int64, int64) (domain.CartView, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "productId")
		if !ok {
			return
		}
		customer := CustomerFromContext(r.Context())
		view, err := op(r.Context(), customer.ID, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ============================================================
// Checkout
// ============================================================

// CheckoutReplay is what the idempotency cache keeps per key.
type CheckoutReplay struct {
	Status int
	Order  *domain.OrderView
}

type checkoutRequest struct {
	EtaMinutes int `json:"etaMinutes"`
}

func checkoutHandler(cart *service.CartService, replays port.Cache[CheckoutReplay], metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	var inflight singleflight.Group

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/storefront/checkout")
		defer span.End()

		var req checkoutRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		customer := CustomerFromContext(ctx)
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" || replays == nil {
			order, err := cart.Checkout(ctx, customer.ID, req.EtaMinutes)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusCreated, order)
			return
		}

		scoped := strconv.FormatInt(customer.ID, 10) + ":" + key
		span.SetAttributes(attribute.String("idempotency.key", key))
		if replay, ok := replays.Get(scoped); ok {
			metrics.IncrCacheHit("checkout")
			writeJSON(w, replay.Status, replay.Order)
			return
		}
		metrics.IncrCacheMiss("checkout")

		v, err, _ := inflight.Do(scoped, func() (any, error) {
			if replay, ok := replays.Get(scoped); ok {
				return replay, nil
			}
			order, err := cart.Checkout(ctx, customer.ID, req.EtaMinutes)
			if err != nil {
				return nil, err
			}
			replay := CheckoutReplay{Status: http.StatusCreated, Order: order}
			replays.Set(scoped, replay)
			return replay, nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		replay := v.(CheckoutReplay)
		writeJSON(w, replay.Status, replay.Order)
	}
}

func myOrdersHandler(orders *service.OrderEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/storefront/my-orders")
		defer span.End()

		customer := CustomerFromContext(ctx)
		writeJSON(w, http.StatusOK, orders.CustomerOrders(ctx, customer.ID))
	}
}

func notificationsHandler(inbox *notify.Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inbox == nil {
			writeJSON(w, http.StatusOK, []domain.Notification{})
			return
		}
		customer := CustomerFromContext(r.Context())
		writeJSON(w, http.StatusOK, inbox.For(customer.ID))
	}
}

// ============================================================
// Customer session
// ============================================================

func signupHandler(sessions *service.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/storefront/signup")
		defer span.End()

		var req domain.CustomerInput
		if !decodeJSON(w, r, &req) {
			return
		}
		session, err := sessions.Signup(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

func customerLoginHandler(sessions *service.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/storefront/session")
		defer span.End()

		var req domain.LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		session, err := sessions.CustomerLogin(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func customerSessionHandler(sessions *service.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessions.CurrentCustomer(r.Context(), bearerToken(r))
		if c == nil {
			writeJSON(w, http.StatusOK, domain.CustomerSession{})
			return
		}
		view := c.View()
		writeJSON(w, http.StatusOK, domain.CustomerSession{Authenticated: true, Customer: &view})
	}
}

func customerLogoutHandler(sessions *service.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.CustomerLogout(r.Context(), bearerToken(r))
		w.WriteHeader(http.StatusNoContent)
	}
}

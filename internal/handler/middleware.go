package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const customerKey contextKey = "customer"

// syncWarningHeader is set on every response while the last write failed.
const syncWarningHeader = "X-Sync-Warning"

// bearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is missing or uses another scheme.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AdminOnly rejects requests unless they carry the token of a fresh admin session.
func AdminOnly(sessions *service.SessionManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sessions.RequireAdmin(r.Context(), bearerToken(r)); err != nil {
				logger.Warn("admin: session required",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				handleServiceError(w, err, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CustomerOnly resolves the customer behind the bearer token and injects it
// into the context. A session pointing at a removed customer counts as none.
func CustomerOnly(sessions *service.SessionManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := sessions.CurrentCustomer(r.Context(), bearerToken(r))
			if c == nil {
				handleServiceError(w, &domain.ErrUnauthorized{Message: "customer login required"}, logger)
				return
			}
			ctx := context.WithValue(r.Context(), customerKey, c)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CustomerFromContext returns the customer injected by CustomerOnly.
func CustomerFromContext(ctx context.Context) *domain.Customer {
	c, _ := ctx.Value(customerKey).(*domain.Customer)
	return c
}

// SyncWarning adds X-Sync-Warning when the store could not persist its last
// write. The check runs when the handler writes its status, after the
// operation has completed.
func SyncWarning(store *service.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&syncWarningWriter{ResponseWriter: w, store: store}, r)
		})
	}
}

type syncWarningWriter struct {
	http.ResponseWriter
	store       *service.Store
	wroteHeader bool
}

func (w *syncWarningWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if st := w.store.SyncStatus(); !st.Synced {
			w.Header().Set(syncWarningHeader, "changes kept in memory only: "+st.LastError)
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *syncWarningWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

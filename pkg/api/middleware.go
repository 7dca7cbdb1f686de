package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/metrics"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/userservice"
)

// SessionHeader carries the device session token.
const SessionHeader = "x-access-token"

type contextKey string

const sessionContextKey contextKey = "session"

// session is the authenticated request identity stored in the context.
type session struct {
	User      *models.User
	Equipment string
}

// sessionFromContext returns the authenticated session, or nil on
// routes without the sessionAuth middleware.
func sessionFromContext(ctx context.Context) *session {
	s, ok := ctx.Value(sessionContextKey).(*session)
	if !ok {
		return nil
	}
	return s
}

// sessionAuth validates the x-access-token header and stores the user in
// the request context. Missing or invalid tokens get a 401.
func sessionAuth(users *userservice.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SessionHeader)
			if token == "" {
				writeUnauthorized(w, "access token required")
				return
			}

			user, info, err := users.Validate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, &session{
				User:      user,
				Equipment: info.Equipment,
			})
			if lc := logger.FromContext(ctx); lc != nil {
				lc.UserID = user.ID
				lc.Account = user.Email
				lc.Equipment = info.Equipment
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs request start at DEBUG and completion at INFO, and
// seeds the per-request LogContext consumed by logger.*Ctx.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := logger.NewLogContext(r.RemoteAddr)
		lc.RequestID = chimiddleware.GetReqID(r.Context())
		ctx := logger.WithContext(r.Context(), lc)

		logger.DebugCtx(ctx, "request started",
			"method", r.Method,
			"path", r.URL.Path,
		)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.InfoCtx(ctx, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(lc.StartTime).String(),
		)
	})
}

// requestMetrics records per-route request counts and latency. Routes are
// labeled by chi pattern, not raw path, to keep cardinality bounded.
func requestMetrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.InFlightDelta(1)
			defer m.InFlightDelta(-1)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(r.Method, route, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
		})
	}
}

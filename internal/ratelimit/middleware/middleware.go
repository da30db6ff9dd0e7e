package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"certreg/internal/ratelimit/models"
	"certreg/pkg/platform/httputil"
	"certreg/pkg/requestcontext"
)

// Store checks and records one request against a key's window.
type Store interface {
	Allow(ctx context.Context, key string, policy models.Policy) (*models.Result, error)
}

// Middleware limits mutating requests per client IP. Reads are not limited.
type Middleware struct {
	store  Store
	policy models.Policy
	logger *slog.Logger
}

func New(store Store, policy models.Policy, logger *slog.Logger) *Middleware {
	if !policy.Enabled() {
		logger.Info("write rate limiting disabled")
	}
	return &Middleware{store: store, policy: policy, logger: logger}
}

// LimitWrites fails open: a store error lets the request through.
func (m *Middleware) LimitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.policy.Enabled() || isRead(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		result, err := m.store.Allow(ctx, "ip:"+ip, m.policy)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"client_ip", ip,
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			writeRateLimitExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:            "rate_limit_exceeded",
		ErrorDescription: "too many write requests from this address",
		RetryAfter:       result.RetryAfter,
	})
}

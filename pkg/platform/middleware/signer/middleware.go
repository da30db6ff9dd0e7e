package signer

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/httputil"
	"certreg/pkg/requestcontext"
)

// Scheme is the Authorization scheme for signer tokens.
const Scheme = "Signer "

type Middleware struct {
	verifier *Verifier
	replay   ReplayGuard
	logger   *slog.Logger
}

type Option func(*Middleware)

// WithReplayGuard rejects a token id seen before.
func WithReplayGuard(g ReplayGuard) Option {
	return func(m *Middleware) {
		m.replay = g
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func New(verifier *Verifier, opts ...Option) *Middleware {
	m := &Middleware{verifier: verifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequireSigner authenticates the request and stores the signer key in the
// context. The body is read once for hashing and restored for the handler.
func (m *Middleware) RequireSigner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), Scheme)
		if !ok || token == "" {
			m.reject(w, r, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
			return
		}

		body, err := httputil.ReadBody(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		pk, claims, err := m.verifier.Verify(token, r.Method, r.URL.Path, body)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		if m.replay != nil {
			ttl := claims.ExpiresAt.Sub(m.verifier.now()) + m.verifier.leeway
			if ttl <= 0 {
				ttl = m.verifier.leeway
			}
			fresh, err := m.replay.Claim(ctx, claims.ID, ttl)
			if err != nil {
				m.logger.ErrorContext(ctx, "replay guard unavailable",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "replay guard unavailable"))
				return
			}
			if !fresh {
				m.reject(w, r, dErrors.New(dErrors.CodeUnauthorized, "signer token already used"))
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(requestcontext.WithSigner(ctx, pk)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	m.logger.WarnContext(ctx, "unauthorized signer request",
		"error", err,
		"path", r.URL.Path,
		"client_ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

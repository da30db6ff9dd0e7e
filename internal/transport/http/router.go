package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"certreg/internal/platform/metrics"
	"certreg/pkg/platform/httputil"
	"certreg/pkg/platform/middleware/accesslog"
	"certreg/pkg/platform/middleware/metadata"
	"certreg/pkg/platform/middleware/requestid"
	"certreg/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts a feature's routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the pieces NewRouter wires together.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.HTTP
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
	Timeout  time.Duration
	Routes   []RouteRegistrar

	// TrustedProxies may set X-Forwarded-For for the client IP.
	TrustedProxies []netip.Prefix

	// Middlewares run in front of the feature routes only.
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter builds the chi router: request metadata first, then logging and
// metrics, then the feature routes. /healthz and /metrics skip the timeout.
// The whole router runs inside an otelhttp server span, which the registry
// service spans attach to.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(metadata.NewClientResolver(deps.TrustedProxies).ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(accesslog.Middleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.LatencyMiddleware)
	}

	r.Get("/healthz", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if deps.Timeout > 0 {
			r.Use(chimw.Timeout(deps.Timeout))
		}
		for _, mw := range deps.Middlewares {
			r.Use(mw)
		}
		for _, routes := range deps.Routes {
			routes.Register(r)
		}
	})
	return otelhttp.NewHandler(r, "certreg.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

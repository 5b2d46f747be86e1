package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	cartHandler "homechef/internal/cart/handler"
	menuHandler "homechef/internal/menu/handler"
	orderHandler "homechef/internal/order/handler"
	"homechef/internal/platform/metrics"
	"homechef/pkg/platform/httputil"
	authmw "homechef/pkg/platform/middleware/auth"
	request "homechef/pkg/platform/middleware/request"
	"homechef/pkg/platform/middleware/requesttime"
	"homechef/pkg/requestcontext"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Validator      authmw.JWTValidator
	RequestTimeout time.Duration
	Menu           *menuHandler.Handler
	Cart           *cartHandler.Handler
	Orders         *orderHandler.Handler
	Health         map[string]HealthCheck
}

// NewRouter wires the public API. Streaming routes skip the request timeout
// and latency histogram; everything except /health and /metrics needs a
// bearer token, and /provider routes need the meal_provider role.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(otelhttp.NewMiddleware("homechef",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	))
	r.Use(requesttime.Middleware)

	r.Get("/health", healthHandler(d.Health))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	providerOnly := authmw.RequireRole(requestcontext.RoleMealProvider, logger)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.Validator, logger))

		r.Group(func(r chi.Router) {
			if d.Cart != nil {
				d.Cart.RegisterStream(r)
			}
			if d.Orders != nil {
				r.With(providerOnly).Group(d.Orders.RegisterProviderStream)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(request.Timeout(timeout))
			r.Use(request.ContentTypeJSON)
			r.Use(request.Latency(d.Metrics))
			if d.Menu != nil {
				d.Menu.Register(r)
				r.With(providerOnly).Group(d.Menu.RegisterProvider)
			}
			if d.Cart != nil {
				d.Cart.Register(r)
			}
			if d.Orders != nil {
				d.Orders.Register(r)
				r.With(providerOnly).Group(d.Orders.RegisterProvider)
			}
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
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

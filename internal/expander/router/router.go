// Package router wires the expansion API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/handler"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/ratelimit"
)

// Options selects the optional middleware. Zero values disable each layer.
type Options struct {
	CORS           *config.CORSConfig
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// New builds the HTTP handler.
//
// Route table:
//
//	GET    /                           → expand
//	GET    /api/v1/expand              → expand
//	GET    /modules                    → list modules
//	GET    /api/v1/modules             → list modules
//	GET    /api/v1/breakers            → circuit breaker states
//	POST   /api/v1/resolve             → fill a query template
//	GET    /api/v1/cache/stats         → suggestion cache stats
//	POST   /api/v1/cache/invalidate    → drop cached suggestions
//	GET    /health/live                → liveness
//	GET    /health/ready               → readiness
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → Timeout → Metrics → mux
func New(h *handler.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Expand)
	mux.HandleFunc("GET /api/v1/expand", h.Expand)
	mux.HandleFunc("GET /modules", h.Modules)
	mux.HandleFunc("GET /api/v1/modules", h.Modules)
	mux.HandleFunc("GET /api/v1/breakers", h.Breakers)
	mux.HandleFunc("POST /api/v1/resolve", h.Resolve)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	if checker != nil {
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	}

	var chain http.Handler = mux
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.Timeout(opts.RequestTimeout)(chain)
	if opts.Limiter != nil {
		chain = middleware.RateLimit(opts.Limiter)(chain)
	}
	if opts.CORS != nil {
		chain = middleware.CORS(*opts.CORS)(chain)
	}
	chain = middleware.RequestID(chain)

	return chain
}

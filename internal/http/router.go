// Package httpapi assembles the public HTTP surface: middleware stack, health,
// metrics and the vote endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"voteboard/pkg/platform/httputil"
	"voteboard/pkg/platform/middleware/metadata"
	"voteboard/pkg/platform/middleware/request"
	"voteboard/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// Check is one dependency probed by /healthz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Routes registers feature endpoints on the router.
type Routes interface {
	Register(r chi.Router, readMiddleware ...func(http.Handler) http.Handler)
}

type Config struct {
	Logger            *slog.Logger
	TrustProxyHeaders bool
	RequestTimeout    time.Duration
	Metrics           http.Handler
	Checks            []Check
	Votes             Routes
	// ReadLimit wraps read endpoints with the per-IP read budget.
	ReadLimit func(http.Handler) http.Handler
}

func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata(cfg.TrustProxyHeaders))
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", healthHandler(cfg.Checks, cfg.Logger))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	if cfg.Votes != nil {
		var readMiddleware []func(http.Handler) http.Handler
		if cfg.ReadLimit != nil {
			readMiddleware = append(readMiddleware, cfg.ReadLimit)
		}
		cfg.Votes.Register(r, readMiddleware...)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthHandler(checks []Check, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, c := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				status := "ok"
				if err := c.Ping(ctx); err != nil {
					status = "unavailable"
					logger.WarnContext(ctx, "health check failed", "check", c.Name, "error", err)
				}
				mu.Lock()
				resp.Checks[c.Name] = status
				if status != "ok" {
					resp.Status = "degraded"
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, resp)
	}
}

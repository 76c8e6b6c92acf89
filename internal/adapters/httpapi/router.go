package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	// AuthMiddleware guards every API route. /healthz and /metrics stay open.
	AuthMiddleware func(http.Handler) http.Handler
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	// MapRateLimit is requests per second per client on /map/riders; 0 disables limiting.
	MapRateLimit float64
	MapRateBurst int
}

// NewRouter constructs the API HTTP router.
func NewRouter(api *Server, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Baseline production-safe middleware (minimal but useful).
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger.With("component", "http")))
	r.Use(middleware.Recoverer)

	// Health endpoint is deliberately unauthenticated (used for infra checks).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if opts.AuthMiddleware != nil {
			r.Use(opts.AuthMiddleware)
		}

		r.Post("/members", api.RegisterMember)
		r.Get("/members", api.ListMembers)
		r.Get("/members/me", api.GetMyMember)
		r.Get("/members/{memberId}", api.GetMember)
		r.Get("/members/{memberId}/score", api.GetScore)
		r.Get("/standings", api.ListStandings)
		r.Get("/localities/{name}", api.GetLocality)
		r.With(NewRateLimitMiddleware(opts.MapRateLimit, opts.MapRateBurst)).Get("/map/riders", api.MapRiders)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			r.Patch("/members/{memberId}", api.UpdateMember)
			r.Delete("/members/{memberId}", api.DeleteMember)
			r.Post("/members/{memberId}/score/recompute", api.RecomputeScore)
			r.Post("/members/{memberId}/placement", api.PlaceMember)
			r.Post("/admin/placements", api.RunPlacements)
			r.Get("/admin/placements/verify", api.VerifyPlacements)
			r.Post("/admin/scores/recompute", api.RecomputeAllScores)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	return r
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

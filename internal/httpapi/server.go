// Package httpapi is the thin request/response layer over the core packages:
// it decodes requests, calls into vision/intel/auth/queue, and translates
// results and errors into JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"rewear/internal/comps"
	"rewear/internal/market/auth"
	"rewear/internal/pricing"
	"rewear/internal/queue"
	"rewear/internal/vision"
)

// Server wires the HTTP routes to the core components.
type Server struct {
	analyzer vision.Analyzer
	intel    IntelService
	auth     *auth.Manager
	queue    *queue.Processor
}

// IntelService is the market-intelligence surface the handlers call.
type IntelService interface {
	Comps(ctx context.Context, query string) ([]comps.SoldComp, error)
	Recommend(ctx context.Context, query string, condition string) (pricing.PriceRecommendation, error)
	SellThrough(ctx context.Context, query string) (pricing.SellThroughReport, error)
}

// NewServer creates a Server. analyzer may be nil when no vision backend is
// configured; the analyze endpoint then responds 503.
func NewServer(analyzer vision.Analyzer, intel IntelService, authManager *auth.Manager, processor *queue.Processor) *Server {
	return &Server{
		analyzer: analyzer,
		intel:    intel,
		auth:     authManager,
		queue:    processor,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)

		r.Get("/comps", s.handleComps)
		r.Get("/recommendation", s.handleRecommendation)
		r.Get("/sell-through", s.handleSellThrough)

		r.Get("/auth/url", s.handleAuthURL)
		r.Get("/auth/callback", s.handleAuthCallback)
		r.Get("/auth/status", s.handleAuthStatus)

		r.Post("/queue", s.handleQueueAdd)
		r.Get("/queue", s.handleQueueList)
		r.Delete("/queue/{id}", s.handleQueueDelete)
		r.Post("/queue/{id}/reprocess", s.handleQueueReprocess)
		r.Post("/queue/process", s.handleQueueProcess)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"authenticated": s.auth.State() == auth.StateAuthenticated,
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

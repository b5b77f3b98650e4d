package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/support-intel/internal/assistant"
	httpmiddleware "github.com/wolfman30/support-intel/internal/http/middleware"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Conversations      *assistant.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// OperatorJWTSecret guards evaluate/complete; empty leaves them open.
	OperatorJWTSecret string
	RateLimiter       *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Conversations == nil {
		return r
	}
	h := cfg.Conversations
	r.Route("/v1/conversations/{id}", func(r chi.Router) {
		r.Group(func(public chi.Router) {
			if cfg.RateLimiter != nil {
				public.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			public.Post("/turns", h.PostTurn)
		})
		r.Group(func(operator chi.Router) {
			operator.Use(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret))
			operator.Get("/", h.GetConversation)
			operator.Post("/evaluate", h.Evaluate)
			operator.Post("/complete", h.Complete)
		})
	})
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

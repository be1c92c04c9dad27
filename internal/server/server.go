// Package server exposes keepbook's portfolio and spending services
// over a thin chi-based HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/portfolio"
	"github.com/aristath/keepbook/internal/spending"
)

// Config holds server configuration.
type Config struct {
	Port             int
	Log              zerolog.Logger
	Accounts         domain.AccountProvider
	Portfolio        *portfolio.Service
	Spending         *spending.Service
	BalanceStaleness time.Duration
	DevMode          bool
}

// Server is the HTTP facade over keepbook's services.
type Server struct {
	router           *chi.Mux
	server           *http.Server
	log              zerolog.Logger
	accounts         domain.AccountProvider
	portfolio        *portfolio.Service
	spending         *spending.Service
	balanceStaleness time.Duration
}

// New builds a Server, wiring middleware and routes, but does not
// start listening.
func New(cfg Config) *Server {
	s := &Server{
		router:           chi.NewRouter(),
		log:              cfg.Log.With().Str("component", "server").Logger(),
		accounts:         cfg.Accounts,
		portfolio:        cfg.Portfolio,
		spending:         cfg.Spending,
		balanceStaleness: cfg.BalanceStaleness,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlePortfolioSnapshot)
			r.Get("/history", s.handlePortfolioHistory)
		})
		r.Route("/spending", func(r chi.Router) {
			r.Get("/", s.handleSpendingReport)
		})
		r.Route("/connections", func(r chi.Router) {
			r.Get("/staleness", s.handleConnectionStaleness)
		})
	})
}

// Start begins serving HTTP traffic. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Int("addr_len", len(s.server.Addr)).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

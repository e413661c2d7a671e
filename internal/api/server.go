// Package api implements the read-only Query API: an HTTP surface over
// the Forecast Store, plus health, metrics, and a unified SSE event
// stream, grounded on the teacher's internal/server package shape (chi
// router, middleware stack, writeJSON helper).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/scheduler"
	"github.com/rozsasarpi/gridcast/internal/store"
)

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	Store      *store.Store
	Scheduler  *scheduler.Scheduler
	Loc        *time.Location
	Log        zerolog.Logger
	DevMode    bool
	DataDir    string
	Version    string
}

// Server is the HTTP Query API server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	store     *store.Store
	scheduler *scheduler.Scheduler
	loc       *time.Location
	dataDir   string
	version   string
	events    *Broadcaster
}

// New builds a Server wired against a Forecast Store and Scheduler.
func New(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "api_server").Logger(),
		store:     cfg.Store,
		scheduler: cfg.Scheduler,
		loc:       cfg.Loc,
		dataDir:   cfg.DataDir,
		version:   cfg.Version,
		events:    NewBroadcaster(cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Events returns the server's event broadcaster; whatever is published
// on it reaches /events/stream subscribers. cmd/gridcast feeds it
// through Publish, by wiring the Server onto the Executor.
func (s *Server) Events() *Broadcaster { return s.events }

// Publish implements pipeline.EventPublisher, letting cmd/gridcast wire
// the Server directly onto an Executor's Events field without either
// package importing the other.
func (s *Server) Publish(eventType string, data map[string]interface{}) {
	s.events.Publish(Event{Type: eventType, Data: data})
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
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
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/health/detailed", s.handleHealthDetailed)
	s.router.Get("/health/component/{name}", s.handleHealthComponent)
	s.router.Get("/storage/status", s.handleStorageStatus)
	s.router.Get("/products", s.handleProducts)
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
	s.router.Get("/events/stream", s.handleEventsStream)

	s.router.Route("/forecasts", func(r chi.Router) {
		r.Get("/{date}/{product}", s.handleGetForecast)
		r.Get("/latest/{product}", s.handleGetLatestForecast)
		r.Get("/range/{start}/{end}/{product}", s.handleGetRange)
		r.Get("/model/{date}/{product}", s.handleGetForecast)
		r.Get("/model/latest/{product}", s.handleGetLatestForecast)
	})
}

// Start begins serving HTTP requests; it blocks until Shutdown is
// called or the listener fails.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting query API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down query API server")
	return s.server.Shutdown(ctx)
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
			Msg("HTTP request")
	})
}

// parseDate parses a YYYY-MM-DD date string localized to the server's
// configured IANA timezone.
func (s *Server) parseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", value, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return d, nil
}

// Package api serves the boarddb message operations over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	metricsInterval = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Routes builds the router. gatherer backs the /metrics endpoint.
func (s *Server) Routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	instrument := func(method, endpoint string, h http.HandlerFunc) http.HandlerFunc {
		if s.metrics == nil {
			return h
		}
		return s.metrics.InstrumentHandler(method, endpoint, h)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", instrument("GET", "/api/v1/health", s.handleHealth))

		r.Post("/messages", instrument("POST", "/api/v1/messages", s.handleCreate))
		r.Get("/messages", instrument("GET", "/api/v1/messages", s.handleList))
		r.Get("/messages/{id}", instrument("GET", "/api/v1/messages/{id}", s.handleGet))
		r.Put("/messages/{id}", instrument("PUT", "/api/v1/messages/{id}", s.handleUpdate))
		r.Delete("/messages/{id}", instrument("DELETE", "/api/v1/messages/{id}", s.handleDelete))

		r.Get("/stats", instrument("GET", "/api/v1/stats", s.handleStats))
	})

	return r
}

// StartServer serves the API on config.Bind:config.Port until ctx is canceled,
// then shuts down gracefully.
func StartServer(
	ctx context.Context,
	service MessageService,
	config ServerConfig,
	logger *zerolog.Logger,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
) error {
	metrics := NewMetrics(reg)
	server := NewServer(service, metrics, logger)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(config.Bind, strconv.Itoa(config.Port)),
		Handler:           server.Routes(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.startMetricsUpdater(ctx, metricsInterval)

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info().Str("addr", httpServer.Addr).Msg("starting boarddb API server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	server.logger.Info().Msg("shutting down API server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/permitlink/internal/config"
	"github.com/permitlink/internal/pipeline"
	"github.com/permitlink/internal/store"
)

// Server exposes the ingested data over a small read-mostly HTTP API.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *zap.Logger
}

func NewServer(cfg config.WebConfig, properties *store.PropertyStore, permits *store.PermitStore, runs *store.RunStore, svc *pipeline.Service, logger *zap.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
	}

	h := &Handler{
		Properties: properties,
		Permits:    permits,
		Runs:       runs,
		Pipeline:   svc,
		Logger:     logger,
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/properties", h.ListProperties).Methods("GET")
	api.HandleFunc("/properties/{id}", h.GetProperty).Methods("GET")
	api.HandleFunc("/properties/{id}/permits", h.ListPropertyPermits).Methods("GET")
	api.HandleFunc("/permits/{id}", h.GetPermit).Methods("GET")
	api.HandleFunc("/jurisdictions/{state}/{county}/link-report", h.LinkReport).Methods("POST")
	api.HandleFunc("/jurisdictions/{state}/{county}/stats", h.JurisdictionStats).Methods("GET")
	api.HandleFunc("/runs", h.ListRuns).Methods("GET")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.Use(requestLogging(logger))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-stop:
	}

	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func requestLogging(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("took", time.Since(start)))
		})
	}
}

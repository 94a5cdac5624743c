// Package server provides the HTTP API for kham.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/analytics"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/metrics"
	"github.com/hyperjump/kham/internal/search"
	"github.com/hyperjump/kham/pkg/utils"
)

const maxBodyBytes = 32 << 20

// Server is the HTTP server for the kham API.
type Server struct {
	svc       *search.Service
	analytics *analytics.Aggregator
	metrics   *metrics.Metrics
	config    config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server. agg and m may be nil, which disables the analytics and
// metrics endpoints.
func NewServer(svc *search.Service, agg *analytics.Aggregator, m *metrics.Metrics, cfg config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		svc:       svc,
		analytics: agg,
		metrics:   m,
		config:    cfg,
		logger:    utils.OrNop(logger),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Post("/tokenize", s.handleTokenize(false))
	r.Post("/tokenize/compound", s.handleTokenize(true))
	r.Get("/tokenize/stats", s.handleTokenizeStats)
	r.Post("/query/process", s.handleQuery(false))
	r.Post("/query/compound", s.handleQuery(true))
	r.Post("/search/enhance", s.handleEnhance)
	r.Post("/search", s.handleSearch)

	r.Post("/indexes/{uid}/setup", s.handleSetupIndex)
	r.Post("/indexes/{uid}/documents", s.handleIndexDocuments)
	r.Post("/documents/process", s.handleProcessDocuments)
	r.Get("/tasks", s.handleListTasks)
	r.Get("/tasks/{id}", s.handleGetTask)

	r.Get("/dictionary", s.handleDictionary)
	r.Post("/dictionary/words", s.handleAddWords)
	r.Delete("/dictionary/words", s.handleRemoveWords)

	r.Get("/analytics", s.handleAnalytics)
	r.Post("/analytics/reset", s.handleAnalyticsReset)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

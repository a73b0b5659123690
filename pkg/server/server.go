// Package server exposes the validator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gofhir/hl7validator/pkg/logger"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/store"
	"github.com/gofhir/hl7validator/pkg/validator"
)

// Config configures the HTTP server.
type Config struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes bounds request bodies; 0 means unlimited
	MaxBodyBytes int64

	// MetricsPath serves the collector when one is set
	MetricsPath string

	// SegmentSeparator splits batch request bodies (default "\n")
	SegmentSeparator string
}

// Option configures a Server.
type Option func(*Server)

// WithStore records every validation in s and enables the /v1/runs routes.
func WithStore(s *store.Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithCollector serves c at the configured metrics path.
func WithCollector(c *metrics.Collector) Option {
	return func(srv *Server) {
		srv.collector = c
	}
}

// Server is the HTTP API around a validator.
type Server struct {
	cfg       Config
	validator *validator.Validator
	store     *store.Store
	collector *metrics.Collector
	engine    *gin.Engine
	log       *zap.SugaredLogger
}

// New builds the server and its routes.
func New(v *validator.Validator, cfg Config, opts ...Option) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.SegmentSeparator == "" {
		cfg.SegmentSeparator = "\n"
	}
	s := &Server{
		cfg:       cfg,
		validator: v,
		log:       logger.For("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	zl := s.log.Desugar()
	router.Use(ginzap.Ginzap(zl, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(zl, true))

	router.GET("/healthz", s.handleHealth)
	if s.collector != nil {
		router.GET(s.cfg.MetricsPath, gin.WrapH(s.collector.Handler()))
	}

	v1 := router.Group("/v1", s.limitBody)
	{
		v1.POST("/validate", s.handleValidate)
		v1.POST("/validate/batch", s.handleValidateBatch)
		if s.store != nil {
			v1.GET("/runs", s.handleListRuns)
			v1.GET("/runs/:id", s.handleGetRun)
		}
	}
	return router
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("HTTP server listening", "address", s.cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Infow("Shutting down HTTP server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) limitBody(c *gin.Context) {
	if s.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	}
	c.Next()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/HydroGuard/services/telemetry"
)

// ServerConfig configures the monitoring HTTP server.
type ServerConfig struct {
	// Port to listen on. Default 8080.
	Port int

	// Debug enables gin debug mode and request logging.
	Debug bool

	// IngestRatePerSecond limits POST /v1/readings across all callers.
	// Zero disables rate limiting.
	IngestRatePerSecond float64

	// IngestBurst is the token bucket burst size. Default 10 when a rate
	// is set.
	IngestBurst int

	// DrainTimeout bounds how long Shutdown waits for in-flight runs.
	// Default 30s.
	DrainTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the monitoring API server: reading ingestion, dashboard
// queries, health, and Prometheus metrics.
type Server struct {
	httpServer *http.Server
	runs       *RunManager
	drain      time.Duration
	log        *slog.Logger
}

// NewServer assembles the router and returns an unstarted server.
func NewServer(cfg ServerConfig, handlers *Handlers, runs *RunManager) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}

	v1 := router.Group("/v1")
	if cfg.IngestRatePerSecond > 0 {
		burst := cfg.IngestBurst
		if burst <= 0 {
			burst = 10
		}
		v1.Use(ingestRateLimit(rate.NewLimiter(rate.Limit(cfg.IngestRatePerSecond), burst)))
	}
	RegisterRoutes(v1, handlers)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		runs:  runs,
		drain: cfg.DrainTimeout,
		log:   cfg.Logger,
	}
}

// ingestRateLimit rejects ingestion beyond the configured rate. Queries are
// not limited; only writes consume tokens.
func ingestRateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// Run serves until the context is cancelled, then drains in-flight runs
// and shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting monitoring server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down monitoring server", "drain_timeout", s.drain.String())
	drainCtx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()

	if err := s.runs.Drain(drainCtx); err != nil {
		s.log.Warn("drain did not complete cleanly", "error", err)
	}
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

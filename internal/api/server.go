// Package api exposes the scrape pipeline over HTTP: job submission, job
// status, stored leads, health and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"leadscraper/internal/config"
	"leadscraper/internal/domain"
)

// JobRunner accepts scrape jobs and reports on them; the pipeline runner
// implements it.
type JobRunner interface {
	Submit(req domain.ScrapeRequest) (domain.Job, error)
	Status(id string) (domain.Job, bool)
}

// LeadSource serves persisted leads; the Postgres store implements it.
type LeadSource interface {
	ListLeads(ctx context.Context, keyword, location string, limit int) ([]domain.Lead, error)
	Ping(ctx context.Context) error
}

// Pinger is the health-check surface of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP surface to the pipeline and the stores.
type Server struct {
	config     *config.Config
	runner     JobRunner
	leads      LeadSource
	cache      Pinger
	logger     *zap.Logger
	router     http.Handler
	httpServer *http.Server
}

func NewServer(cfg *config.Config, runner JobRunner, leads LeadSource, cache Pinger, logger *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		runner: runner,
		leads:  leads,
		cache:  cache,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the composed router; tests drive it directly.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.ServerPort,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

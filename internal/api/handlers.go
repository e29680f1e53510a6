package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"leadscraper/internal/domain"
)

// handleScrape validates the request and queues it; the scrape itself runs
// in the background, so the response is the job handle.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req domain.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	req.Location = strings.TrimSpace(req.Location)
	if req.Keyword == "" {
		respondWithError(w, http.StatusBadRequest, "keyword is required")
		return
	}
	if req.Location == "" {
		respondWithError(w, http.StatusBadRequest, "location is required")
		return
	}

	job, err := s.runner.Submit(req)
	if err != nil {
		s.logger.Warn("job submission rejected", zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.logger.Info("scrape job queued",
		zap.String("job_id", job.ID), zap.String("query", req.Query()))
	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := s.runner.Status(jobID)
	if !ok {
		respondWithError(w, http.StatusNotFound, "job not found")
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	location := r.URL.Query().Get("location")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	leads, err := s.leads.ListLeads(r.Context(), keyword, location, limit)
	if err != nil {
		s.logger.Error("failed to list leads", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "could not list leads")
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(leads),
		"leads": leads,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := map[string]string{
		"database": "healthy",
		"cache":    "healthy",
	}

	if err := s.leads.Ping(ctx); err != nil {
		components["database"] = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := s.cache.Ping(ctx); err != nil {
		components["cache"] = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	respondWithJSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": components,
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

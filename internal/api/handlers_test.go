package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"leadscraper/internal/config"
	"leadscraper/internal/domain"
)

type fakeRunner struct {
	submitted []domain.ScrapeRequest
	submitErr error
	jobs      map[string]domain.Job
}

func (f *fakeRunner) Submit(req domain.ScrapeRequest) (domain.Job, error) {
	if f.submitErr != nil {
		return domain.Job{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return domain.Job{ID: "job-1", Request: req, Status: domain.JobPending}, nil
}

func (f *fakeRunner) Status(id string) (domain.Job, bool) {
	job, ok := f.jobs[id]
	return job, ok
}

type fakeLeadSource struct {
	leads   []domain.Lead
	listErr error
	pingErr error
}

func (f *fakeLeadSource) ListLeads(_ context.Context, keyword, location string, limit int) ([]domain.Lead, error) {
	return f.leads, f.listErr
}

func (f *fakeLeadSource) Ping(context.Context) error { return f.pingErr }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func testServer(runner *fakeRunner, leads *fakeLeadSource, cache *fakePinger) *Server {
	if runner == nil {
		runner = &fakeRunner{}
	}
	if leads == nil {
		leads = &fakeLeadSource{}
	}
	if cache == nil {
		cache = &fakePinger{}
	}
	cfg := &config.Config{ServerPort: "0"}
	return NewServer(cfg, runner, leads, cache, zap.NewNop())
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestHandleScrapeQueuesJob(t *testing.T) {
	runner := &fakeRunner{}
	s := testServer(runner, nil, nil)

	w := doRequest(s, http.MethodPost, "/api/v1/scrape",
		`{"keyword": "Cafe", "location": "Springfield", "max_results": 5}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["job_id"])
	assert.Equal(t, domain.JobPending, resp["status"])

	require.Len(t, runner.submitted, 1)
	assert.Equal(t, "Cafe", runner.submitted[0].Keyword)
	assert.Equal(t, 5, runner.submitted[0].MaxResults)
}

func TestHandleScrapeValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"blank keyword", `{"keyword": "  ", "location": "Springfield"}`, "keyword is required"},
		{"missing location", `{"keyword": "Cafe"}`, "location is required"},
		{"malformed body", `{"keyword": `, "Invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			s := testServer(runner, nil, nil)
			w := doRequest(s, http.MethodPost, "/api/v1/scrape", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tc.want)
			assert.Empty(t, runner.submitted, "invalid requests must not reach the queue")
		})
	}
}

func TestHandleScrapeQueueFull(t *testing.T) {
	runner := &fakeRunner{submitErr: errors.New("job queue is full")}
	s := testServer(runner, nil, nil)

	w := doRequest(s, http.MethodPost, "/api/v1/scrape",
		`{"keyword": "Cafe", "location": "Springfield"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleJobStatus(t *testing.T) {
	runner := &fakeRunner{jobs: map[string]domain.Job{
		"job-9": {ID: "job-9", Status: domain.JobDone, LeadCount: 12},
	}}
	s := testServer(runner, nil, nil)

	w := doRequest(s, http.MethodGet, "/api/v1/jobs/job-9", "")
	require.Equal(t, http.StatusOK, w.Code)

	var job domain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, domain.JobDone, job.Status)
	assert.Equal(t, 12, job.LeadCount)

	w = doRequest(s, http.MethodGet, "/api/v1/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleLeads(t *testing.T) {
	leads := &fakeLeadSource{leads: []domain.Lead{
		{BusinessName: "Springfield Beanery", Phone: "+1 217-555-0182"},
	}}
	s := testServer(nil, leads, nil)

	w := doRequest(s, http.MethodGet, "/api/v1/leads?keyword=Cafe&location=Springfield&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int           `json:"count"`
		Leads []domain.Lead `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, "Springfield Beanery", resp.Leads[0].BusinessName)
}

func TestHandleLeadsBadLimit(t *testing.T) {
	s := testServer(nil, nil, nil)
	w := doRequest(s, http.MethodGet, "/api/v1/leads?limit=banana", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleLeadsStoreError(t *testing.T) {
	leads := &fakeLeadSource{listErr: errors.New("connection refused")}
	s := testServer(nil, leads, nil)

	w := doRequest(s, http.MethodGet, "/api/v1/leads", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused", "internals stay out of responses")
}

func TestHandleLeadsEmptyIsArray(t *testing.T) {
	s := testServer(nil, nil, nil)
	w := doRequest(s, http.MethodGet, "/api/v1/leads", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"leads":[]`)
}

func TestHandleHealth(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		s := testServer(nil, nil, nil)
		w := doRequest(s, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	})

	t.Run("database down", func(t *testing.T) {
		leads := &fakeLeadSource{pingErr: errors.New("dial tcp: refused")}
		s := testServer(nil, leads, nil)
		w := doRequest(s, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	})

	t.Run("cache down", func(t *testing.T) {
		s := testServer(nil, nil, &fakePinger{err: errors.New("redis gone")})
		w := doRequest(s, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestMetricsEndpointMounted(t *testing.T) {
	s := testServer(nil, nil, nil)
	w := doRequest(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

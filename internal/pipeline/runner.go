package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leadscraper/internal/config"
	"leadscraper/internal/domain"
	"leadscraper/internal/monitoring"
)

// jobTimeout bounds one background run end to end, browser included.
const jobTimeout = 10 * time.Minute

var (
	ErrQueueFull     = errors.New("job queue is full")
	ErrRunnerStopped = errors.New("runner is stopped")
)

// jobExecutor is what the runner drives; the Controller implements it.
type jobExecutor interface {
	Run(ctx context.Context, req domain.ScrapeRequest, onLead domain.LeadFunc) (Result, error)
}

// RetryCounter tracks job failures across restarts; nil disables counting.
type RetryCounter interface {
	IncrJobRetries(ctx context.Context, jobID string) (int64, error)
}

// Runner executes submitted scrape jobs on a fixed pool of workers and
// keeps their statuses queryable.
type Runner struct {
	cfg     *config.Config
	exec    jobExecutor
	retries RetryCounter
	metrics *monitoring.Metrics
	logger  *zap.Logger

	queue chan string
	stop  chan struct{}
	wg    sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewRunner(cfg *config.Config, exec jobExecutor, retries RetryCounter, metrics *monitoring.Metrics, logger *zap.Logger) *Runner {
	workers := cfg.ScrapeWorkers
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		cfg:     cfg,
		exec:    exec,
		retries: retries,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan string, workers*2),
		stop:    make(chan struct{}),
		jobs:    make(map[string]*domain.Job),
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	workers := r.cfg.ScrapeWorkers
	if workers < 1 {
		workers = 1
	}
	r.logger.Info("starting scrape workers", zap.Int("workers", workers))
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop signals the workers and waits for in-flight jobs to finish. Queued
// jobs that never started stay pending.
func (r *Runner) Stop() {
	close(r.stop)
	r.wg.Wait()
	r.logger.Info("scrape workers stopped")
}

// Submit queues a request and returns its job handle. A full queue is the
// caller's problem; scrapes are too slow to buffer unboundedly.
func (r *Runner) Submit(req domain.ScrapeRequest) (domain.Job, error) {
	select {
	case <-r.stop:
		return domain.Job{}, ErrRunnerStopped
	default:
	}

	job := domain.Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    domain.JobPending,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	stored := job
	r.jobs[job.ID] = &stored
	r.mu.Unlock()

	select {
	case r.queue <- job.ID:
		r.logger.Info("job queued",
			zap.String("job_id", job.ID), zap.String("query", req.Query()))
		return job, nil
	default:
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
		return domain.Job{}, ErrQueueFull
	}
}

// Status returns a snapshot of the job.
func (r *Runner) Status(id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("worker started", zap.Int("worker_id", id))
	for {
		select {
		case <-r.stop:
			return
		case jobID := <-r.queue:
			r.process(jobID)
		}
	}
}

func (r *Runner) process(jobID string) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return
	}
	job.Status = domain.JobRunning
	job.StartedAt = time.Now()
	req := job.Request
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	res, err := r.exec.Run(ctx, req, nil)

	r.mu.Lock()
	defer r.mu.Unlock()
	job.FinishedAt = time.Now()
	if err != nil {
		job.Status = domain.JobFailed
		job.FailReason = err.Error()
		r.metrics.IncJobsTotal(domain.JobFailed)
		if r.retries != nil {
			if n, rerr := r.retries.IncrJobRetries(ctx, jobID); rerr == nil {
				r.logger.Warn("job failure recorded",
					zap.String("job_id", jobID), zap.Int64("failures", n))
			}
		}
		r.logger.Error("job failed",
			zap.String("job_id", jobID), zap.String("query", req.Query()), zap.Error(err))
		return
	}

	job.Status = domain.JobDone
	job.LeadCount = len(res.Leads)
	job.FromCache = res.FromCache
	r.metrics.IncJobsTotal(domain.JobDone)
	r.logger.Info("job complete",
		zap.String("job_id", jobID),
		zap.String("query", req.Query()),
		zap.Int("leads", job.LeadCount),
		zap.Bool("from_cache", job.FromCache),
		zap.Duration("took", job.FinishedAt.Sub(job.StartedAt)))
}

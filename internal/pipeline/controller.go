// Package pipeline ties the pieces together: it validates requests, serves
// repeats from storage, runs fresh scrapes under the retry policy, then
// enriches, exports and persists what came back.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscraper/internal/config"
	"leadscraper/internal/domain"
	"leadscraper/internal/export"
	"leadscraper/internal/monitoring"
	"leadscraper/internal/retry"
	"leadscraper/internal/scrape"
)

// maxResultsCeiling caps how much one request may ask for; a feed rarely
// serves more anyway.
const maxResultsCeiling = 200

var (
	ErrKeywordRequired  = errors.New("keyword cannot be empty")
	ErrLocationRequired = errors.New("location cannot be empty")
)

// LeadScraper runs one search; the scrape coordinator implements it.
type LeadScraper interface {
	Run(ctx context.Context, req domain.ScrapeRequest, onLead domain.LeadFunc) ([]domain.Lead, error)
}

// Enricher augments leads from their websites.
type Enricher interface {
	EnrichAll(ctx context.Context, leads []domain.Lead, workers int) []domain.Lead
}

// LeadStore persists finished runs; nil disables persistence and cache
// serving.
type LeadStore interface {
	SaveLeads(ctx context.Context, leads []domain.Lead) error
	ListLeads(ctx context.Context, keyword, location string, limit int) ([]domain.Lead, error)
}

// ScrapeCache remembers what was scraped recently; nil disables the
// short-circuit.
type ScrapeCache interface {
	MarkScraped(ctx context.Context, cacheKey string, ttl time.Duration) error
	RecentlyScraped(ctx context.Context, cacheKey string) (bool, error)
	MarkSeen(ctx context.Context, url string, ttl time.Duration) error
	WasSeen(ctx context.Context, url string) (bool, error)
}

// Result is what one pipeline run produced.
type Result struct {
	Leads     []domain.Lead `json:"leads"`
	FromCache bool          `json:"from_cache"`
	CSVPath   string        `json:"csv_path,omitempty"`
	JSONPath  string        `json:"json_path,omitempty"`
}

// Controller owns the scrape-to-export flow for one request at a time.
type Controller struct {
	cfg      *config.Config
	scraper  LeadScraper
	enricher Enricher
	store    LeadStore
	cache    ScrapeCache
	fetch    scrape.DetailFetcher
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

func NewController(
	cfg *config.Config,
	scraper LeadScraper,
	enricher Enricher,
	store LeadStore,
	cache ScrapeCache,
	fetch scrape.DetailFetcher,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		cfg:      cfg,
		scraper:  scraper,
		enricher: enricher,
		store:    store,
		cache:    cache,
		fetch:    fetch,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run executes one request end to end. onLead fires once per lead, cached
// or fresh, in the order they are produced.
func (c *Controller) Run(ctx context.Context, req domain.ScrapeRequest, onLead domain.LeadFunc) (Result, error) {
	if err := c.validate(&req); err != nil {
		return Result{}, err
	}

	if cached, ok := c.serveFromCache(ctx, req, onLead); ok {
		return cached, nil
	}

	leads, err := c.scrapeWithRetry(ctx, req, onLead)
	if err != nil {
		return Result{}, err
	}

	if c.fetch != nil && c.cfg.DeepFetch && len(leads) > 0 {
		leads = c.deepFetch(ctx, leads)
	}
	if c.enricher != nil && c.cfg.EnrichLeads && len(leads) > 0 {
		leads = c.enricher.EnrichAll(ctx, leads, c.cfg.ParallelSessions)
	}

	res := Result{Leads: leads}
	if c.cfg.ExportDir != "" && len(leads) > 0 {
		res.CSVPath, res.JSONPath = c.export(req, leads)
	}

	if c.store != nil && len(leads) > 0 {
		if err := c.store.SaveLeads(ctx, leads); err != nil {
			c.logger.Error("failed to persist leads", zap.Error(err))
			c.metrics.IncErrorsTotal("db_save_failed")
		}
	}
	if c.cache != nil {
		if err := c.cache.MarkScraped(ctx, req.CacheKey(), c.cfg.SeenTTL()); err != nil {
			c.logger.Warn("failed to mark query scraped", zap.Error(err))
		}
	}
	return res, nil
}

func (c *Controller) validate(req *domain.ScrapeRequest) error {
	req.Keyword = strings.TrimSpace(req.Keyword)
	req.Location = strings.TrimSpace(req.Location)
	if req.Keyword == "" {
		return ErrKeywordRequired
	}
	if req.Location == "" {
		return ErrLocationRequired
	}
	if req.MaxResults <= 0 {
		req.MaxResults = c.cfg.MaxResults
	}
	if req.MaxResults > maxResultsCeiling {
		req.MaxResults = maxResultsCeiling
	}
	return nil
}

// serveFromCache returns persisted leads when the same query finished
// recently. Force skips it; so does an empty store, since serving nothing
// for a query we could re-run would be worse than scraping.
func (c *Controller) serveFromCache(ctx context.Context, req domain.ScrapeRequest, onLead domain.LeadFunc) (Result, bool) {
	if c.cache == nil || c.store == nil || req.Force {
		return Result{}, false
	}
	recent, err := c.cache.RecentlyScraped(ctx, req.CacheKey())
	if err != nil {
		c.logger.Warn("cache lookup failed, scraping fresh", zap.Error(err))
		return Result{}, false
	}
	if !recent {
		return Result{}, false
	}

	leads, err := c.store.ListLeads(ctx, req.Keyword, req.Location, req.MaxResults)
	if err != nil || len(leads) == 0 {
		c.logger.Warn("cache hit without stored leads, scraping fresh",
			zap.String("query", req.Query()), zap.Error(err))
		return Result{}, false
	}

	c.logger.Info("serving from cache",
		zap.String("query", req.Query()), zap.Int("leads", len(leads)))
	for _, l := range leads {
		if onLead != nil {
			onLead(l)
		}
	}
	return Result{Leads: leads, FromCache: true}, true
}

// scrapeWithRetry runs the scraper under the run-level policy. The
// coordinator only errors before any lead is emitted, so a retried attempt
// cannot double-fire the callback.
func (c *Controller) scrapeWithRetry(ctx context.Context, req domain.ScrapeRequest, onLead domain.LeadFunc) ([]domain.Lead, error) {
	policy := retry.DefaultPolicy()
	if c.cfg.RetryMaxAttempts > 0 {
		policy = retry.Policy{
			MaxAttempts:   c.cfg.RetryMaxAttempts,
			InitialDelay:  c.cfg.RetryDelay(),
			BackoffFactor: c.cfg.RetryBackoffFactor,
			MaxDelay:      30 * time.Second,
		}
	}
	var leads []domain.Lead
	err := retry.Do(ctx, policy, c.logger, "scrape "+req.Query(), func(ctx context.Context) error {
		var runErr error
		leads, runErr = c.scraper.Run(ctx, req, onLead)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return leads, nil
}

// deepFetch re-visits each lead's place page in its own session and merges
// the richer fields back in. Pages already visited within the TTL are
// skipped.
func (c *Controller) deepFetch(ctx context.Context, leads []domain.Lead) []domain.Lead {
	var urls []string
	for i := range leads {
		u := leads[i].SourceURL
		if u == "" {
			continue
		}
		if c.cache != nil {
			if seen, err := c.cache.WasSeen(ctx, u); err == nil && seen {
				continue
			}
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return leads
	}

	c.logger.Info("deep-fetching listing pages",
		zap.Int("urls", len(urls)), zap.Int("workers", c.cfg.ParallelSessions))
	fetched := scrape.FetchDetails(ctx, urls, c.cfg.ParallelSessions, c.fetch, c.logger)

	byURL := make(map[string]domain.Lead, len(fetched))
	for _, f := range fetched {
		if f.SourceURL != "" {
			byURL[f.SourceURL] = f
		}
	}
	for i := range leads {
		detail, ok := byURL[leads[i].SourceURL]
		if !ok {
			continue
		}
		leads[i] = mergeLead(leads[i], detail)
		if c.cache != nil {
			if err := c.cache.MarkSeen(ctx, leads[i].SourceURL, c.cfg.SeenTTL()); err != nil {
				c.logger.Warn("failed to mark listing seen", zap.Error(err))
			}
		}
	}
	return leads
}

func (c *Controller) export(req domain.ScrapeRequest, leads []domain.Lead) (csvPath, jsonPath string) {
	csvPath, err := export.WriteCSV(c.cfg.ExportDir, leads, req.Keyword, req.Location)
	if err != nil {
		c.logger.Error("csv export failed", zap.Error(err))
		c.metrics.IncErrorsTotal("export_failed")
		csvPath = ""
	}
	jsonPath, err = export.WriteJSON(c.cfg.ExportDir, leads, req.Keyword, req.Location)
	if err != nil {
		c.logger.Error("json export failed", zap.Error(err))
		c.metrics.IncErrorsTotal("export_failed")
		jsonPath = ""
	}
	return csvPath, jsonPath
}

// mergeLead keeps base's identity and takes detail's field wherever detail
// has one; a freshly rendered place page beats a feed card.
func mergeLead(base, detail domain.Lead) domain.Lead {
	merged := base
	if detail.BusinessName != "" {
		merged.BusinessName = detail.BusinessName
	}
	if detail.Phone != "" {
		merged.Phone = detail.Phone
	}
	if detail.Website != "" {
		merged.Website = detail.Website
	}
	if detail.Address != "" {
		merged.Address = detail.Address
	}
	if detail.Rating != "" {
		merged.Rating = detail.Rating
	}
	if detail.Notes != "" {
		merged.Notes = detail.Notes
	}
	return merged
}

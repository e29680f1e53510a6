package scrape

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"leadscraper/internal/config"
	"leadscraper/internal/domain"
	"leadscraper/internal/proxy"
)

// DetailFetcher resolves one place URL into a lead, owning its own browser
// session end to end.
type DetailFetcher func(ctx context.Context, url string) (domain.Lead, error)

// NewDetailFetcher builds the production fetcher used for deep runs.
func NewDetailFetcher(cfg *config.Config, pm *proxy.Manager, logger *zap.Logger) DetailFetcher {
	return func(ctx context.Context, url string) (domain.Lead, error) {
		return FetchListing(ctx, cfg, pm, logger, url)
	}
}

// FetchDetails fans the URLs out over a bounded pool of workers, each
// fetching one listing per iteration. Results come back unordered; a URL
// that fails or yields an unusable lead is logged and dropped rather than
// failing the batch. Each fetch opens its own session, so workers bounds
// concurrent browsers.
func FetchDetails(ctx context.Context, urls []string, workers int, fetch DetailFetcher, logger *zap.Logger) []domain.Lead {
	if len(urls) == 0 || fetch == nil {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(urls) {
		workers = len(urls)
	}

	jobs := make(chan string)
	results := make(chan domain.Lead, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				lead, err := fetch(ctx, url)
				if err != nil {
					logger.Warn("detail fetch failed",
						zap.String("url", url), zap.Error(err))
					continue
				}
				if !lead.Usable() {
					logger.Debug("detail fetch yielded unusable lead",
						zap.String("url", url))
					continue
				}
				results <- lead
			}
		}()
	}

feed:
	for _, url := range urls {
		select {
		case jobs <- url:
		case <-ctx.Done():
			logger.Warn("detail fetch canceled", zap.Error(ctx.Err()))
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	leads := make([]domain.Lead, 0, len(urls))
	for lead := range results {
		leads = append(leads, lead)
	}
	return leads
}

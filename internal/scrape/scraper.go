// Package scrape drives a map search end to end: typing the query, walking
// the results feed, extracting and normalizing listings, and handing
// deduplicated leads to the caller. The browser is assumed hostile; every
// stage degrades to partial data rather than failing the run.
package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"leadscraper/internal/config"
	"leadscraper/internal/domain"
	"leadscraper/internal/monitoring"
)

var (
	// ErrSearchBoxMissing means the search surface itself is gone; runs fail
	// fast on it since nothing downstream can work.
	ErrSearchBoxMissing = errors.New("search box not found")

	// ErrNoResults means the service explicitly reported an empty result
	// set. Runs finish cleanly with zero leads.
	ErrNoResults = errors.New("query matched no results")
)

// FeedItem is one visible result card: its place link and captured markup.
type FeedItem struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// FeedDriver is the browser-facing surface the coordinator drives. The
// chromedp-backed Driver implements it; tests substitute fakes.
type FeedDriver interface {
	Search(ctx context.Context, query string) error
	WaitForResults(ctx context.Context) error
	ListItems(ctx context.Context) ([]FeedItem, error)
	ScrollFeed(ctx context.Context) (bool, error)
	OpenDetail(ctx context.Context, item FeedItem) (domain.RawAttributes, error)
	Reload(ctx context.Context) error
	Close()
}

// DriverFactory opens a fresh driver (and its browser session) for one run.
type DriverFactory func(ctx context.Context) (FeedDriver, error)

type runState int

const (
	stateInit runState = iota
	stateSearching
	stateWaitingResults
	stateCollecting
	stateScrolling
	stateDone
	stateFailed
)

func (st runState) String() string {
	switch st {
	case stateInit:
		return "init"
	case stateSearching:
		return "searching"
	case stateWaitingResults:
		return "waiting_results"
	case stateCollecting:
		return "collecting"
	case stateScrolling:
		return "scrolling"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	waitResultAttempts = 3
	maxScrollDelay     = 5 * time.Second
)

// Scraper coordinates one scrape run through its state machine.
type Scraper struct {
	cfg       *config.Config
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	newDriver DriverFactory
}

func NewScraper(cfg *config.Config, m *monitoring.Metrics, logger *zap.Logger, factory DriverFactory) *Scraper {
	return &Scraper{cfg: cfg, metrics: m, logger: logger, newDriver: factory}
}

// Run executes the request and returns the accepted leads in the order the
// callback saw them. The caller always gets either a lead slice (possibly
// empty, possibly short of the target) and nil, or nil and one error.
func (s *Scraper) Run(ctx context.Context, req domain.ScrapeRequest, onLead domain.LeadFunc) ([]domain.Lead, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveScrapeDuration(time.Since(start)) }()

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}

	var (
		drv          FeedDriver
		leads        []domain.Lead
		runErr       error
		processed    = make(map[string]bool)
		itemsSeen    int
		waitAttempts int
		scrollFails  int
		scrollDelay  = s.cfg.ScrollDelay()
	)
	state := stateInit
	defer func() {
		if drv != nil {
			drv.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil && state != stateDone && state != stateFailed {
			runErr = fmt.Errorf("scrape canceled in state %s: %w", state, err)
			state = stateFailed
		}

		switch state {
		case stateInit:
			d, err := s.newDriver(ctx)
			if err != nil {
				runErr = fmt.Errorf("opening browser session: %w", err)
				state = stateFailed
				break
			}
			drv = d
			s.logger.Info("scrape starting",
				zap.String("query", req.Query()), zap.Int("max_results", maxResults))
			state = stateSearching

		case stateSearching:
			if err := drv.Search(ctx, req.Query()); err != nil {
				runErr = fmt.Errorf("search failed: %w", err)
				state = stateFailed
				break
			}
			state = stateWaitingResults

		case stateWaitingResults:
			waitAttempts++
			err := drv.WaitForResults(ctx)
			if err == nil {
				state = stateCollecting
				break
			}
			if errors.Is(err, ErrNoResults) {
				s.logger.Info("no results for query", zap.String("query", req.Query()))
				state = stateDone
				break
			}
			if waitAttempts >= waitResultAttempts {
				s.logger.Warn("results never appeared, returning empty",
					zap.Int("attempts", waitAttempts), zap.Error(err))
				state = stateDone
				break
			}
			s.logger.Warn("results not ready, reloading",
				zap.Int("attempt", waitAttempts), zap.Error(err))
			if rerr := drv.Reload(ctx); rerr != nil {
				s.logger.Warn("reload failed", zap.Error(rerr))
			}

		case stateCollecting:
			items, err := drv.ListItems(ctx)
			if err != nil {
				s.logger.Warn("listing capture failed", zap.Error(err))
			}
			for _, item := range items {
				if len(leads) >= maxResults {
					break
				}
				key := itemKey(item)
				if key == "" || processed[key] {
					continue
				}
				processed[key] = true
				itemsSeen++
				s.metrics.IncListingsProcessed()

				raw := ExtractFeedItem(item.HTML)
				if n := s.cfg.DetailEveryN; n > 0 && itemsSeen%n == 0 && item.URL != "" {
					detail, derr := drv.OpenDetail(ctx, item)
					if derr != nil {
						s.logger.Debug("detail pane failed, keeping card fields",
							zap.String("url", item.URL), zap.Error(derr))
						s.metrics.IncErrorsTotal("detail_failed")
					} else {
						raw.Merge(detail, true)
					}
				}

				lead := Normalize(raw)
				lead.Keyword, lead.Location = req.Keyword, req.Location
				if !lead.Usable() {
					s.logger.Debug("dropping listing with no identifying fields",
						zap.String("url", item.URL))
					continue
				}
				if IsDuplicate(leads, lead) {
					s.metrics.IncDuplicatesSkipped()
					continue
				}
				leads = append(leads, lead)
				s.metrics.IncLeadsAccepted()
				if onLead != nil {
					onLead(lead)
				}
			}
			if len(leads) >= maxResults {
				state = stateDone
				break
			}
			state = stateScrolling

		case stateScrolling:
			ok, err := drv.ScrollFeed(ctx)
			s.metrics.IncScrollRounds()
			if err != nil {
				s.logger.Warn("scroll failed", zap.Error(err))
				ok = false
			}
			if ok {
				scrollFails = 0
			} else {
				scrollFails++
				s.logger.Debug("feed did not advance",
					zap.Int("consecutive", scrollFails), zap.Int("budget", s.cfg.ScrollFailLimit))
				if scrollFails >= s.cfg.ScrollFailLimit {
					s.logger.Info("scroll budget exhausted, finishing with what we have",
						zap.Int("leads", len(leads)))
					state = stateDone
					break
				}
			}
			_ = sleepCtx(ctx, scrollDelay)
			if next := time.Duration(float64(scrollDelay) * 1.5); next <= maxScrollDelay {
				scrollDelay = next
			}
			state = stateCollecting

		case stateDone:
			if len(leads) > maxResults {
				leads = leads[:maxResults]
			}
			s.logger.Info("scrape complete",
				zap.String("query", req.Query()),
				zap.Int("leads", len(leads)),
				zap.Int("listings_seen", itemsSeen),
				zap.Duration("took", time.Since(start)))
			return leads, nil

		case stateFailed:
			s.metrics.IncErrorsTotal("scrape_failed")
			return nil, runErr
		}
	}
}

// itemKey identifies a card for the processed set: its place URL when it has
// one, else a digest of its markup.
func itemKey(item FeedItem) string {
	if item.URL != "" {
		return item.URL
	}
	if item.HTML == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(item.HTML))
	return hex.EncodeToString(sum[:])
}

// sleepCtx sleeps for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

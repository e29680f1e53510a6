package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscraper/internal/browser"
	"leadscraper/internal/config"
	"leadscraper/internal/domain"
	"leadscraper/internal/proxy"
)

// feed interactions retry transient DOM failures this many times before
// reporting them upward.
const feedOpRetries = 3

// Driver binds the feed operations to a live browser session. One driver
// serves one scrape run; the coordinator owns its lifecycle through Close.
type Driver struct {
	sess   *browser.Session
	loc    *browser.Locator
	cfg    *config.Config
	logger *zap.Logger
}

// NewDriver opens a fresh browser session and lands it on the map service.
// The caller must Close the returned driver on every path.
func NewDriver(ctx context.Context, cfg *config.Config, pm *proxy.Manager, logger *zap.Logger) (*Driver, error) {
	sess, err := browser.Open(ctx, cfg, pm, logger)
	if err != nil {
		return nil, err
	}
	if err := sess.Navigate(ctx, mapsURL); err != nil {
		sess.Close()
		return nil, fmt.Errorf("loading %s: %w", mapsURL, err)
	}
	d := &Driver{
		sess:   sess,
		loc:    browser.NewLocator(sess, dismissSelectors, logger),
		cfg:    cfg,
		logger: logger,
	}
	_ = sleepCtx(ctx, jitter(time.Second, 2*time.Second))
	d.dismissConsent(ctx)
	return d, nil
}

// Close tears down the underlying browser session.
func (d *Driver) Close() {
	d.sess.Close()
}

// Reload refreshes the page; used by the coordinator between wait attempts.
func (d *Driver) Reload(ctx context.Context) error {
	if err := d.sess.Reload(ctx); err != nil {
		return err
	}
	return sleepCtx(ctx, jitter(time.Second, 2*time.Second))
}

// Search types the query and submits it, preferring the search button and
// falling back to a return keystroke. A search surface that cannot be
// located even after reloads means the page contract is broken:
// ErrSearchBoxMissing.
func (d *Driver) Search(ctx context.Context, query string) error {
	box, ok := d.findSearchBox(ctx)
	if !ok {
		return ErrSearchBoxMissing
	}
	if err := d.sess.TypeInto(ctx, box.Selector(), query, d.cfg.ElementWait()); err != nil {
		return fmt.Errorf("typing query: %w", err)
	}
	_ = sleepCtx(ctx, jitter(500*time.Millisecond, 1500*time.Millisecond))

	if btn, ok := d.loc.FindOne(ctx, searchButtonSelectors, 3*time.Second); ok {
		if err := d.loc.SafeClick(ctx, btn); err == nil {
			d.logger.Debug("search submitted via button", zap.String("query", query))
			return sleepCtx(ctx, jitter(time.Second, 2*time.Second))
		}
	}
	if err := d.sess.PressEnter(ctx); err != nil {
		return fmt.Errorf("submitting search: %w", err)
	}
	d.logger.Debug("search submitted via enter", zap.String("query", query))
	return sleepCtx(ctx, jitter(time.Second, 2*time.Second))
}

// findSearchBox walks the search box cascade, reloading the page between
// misses. Reload recovers the occasional blank-shell render.
func (d *Driver) findSearchBox(ctx context.Context) (browser.Element, bool) {
	for attempt := 1; attempt <= feedOpRetries; attempt++ {
		if el, ok := d.loc.FindOne(ctx, searchBoxSelectors, d.cfg.ElementWait()); ok {
			return el, true
		}
		if attempt == feedOpRetries {
			break
		}
		d.logger.Warn("search box not found, reloading",
			zap.Int("attempt", attempt), zap.Int("max", feedOpRetries))
		if err := d.sess.Reload(ctx); err != nil {
			d.logger.Warn("reload failed", zap.Error(err))
		}
		_ = sleepCtx(ctx, jitter(2*time.Second, 3*time.Second))
	}
	return nil, false
}

// WaitForResults polls for the feed container and then for at least one
// result card, splitting the budget between the stages. A visible
// "no results" status wins over both: the query legitimately matched
// nothing and the run should finish empty.
func (d *Driver) WaitForResults(ctx context.Context) error {
	if _, ok := d.loc.FindOne(ctx, feedSelectors, d.cfg.ElementWait()); !ok {
		if d.noResultsShown(ctx) {
			return ErrNoResults
		}
		return errors.New("results feed never appeared")
	}
	if els := d.loc.FindMany(ctx, resultCardSelectors, d.cfg.ElementWait()); len(els) == 0 {
		if d.noResultsShown(ctx) {
			return ErrNoResults
		}
		return errors.New("results feed is present but empty")
	}
	if d.noResultsShown(ctx) {
		return ErrNoResults
	}
	return nil
}

// noResultsShown checks the status region for an explicit empty-result
// message.
func (d *Driver) noResultsShown(ctx context.Context) bool {
	el, ok := d.loc.FindOne(ctx, statusRegionSelectors, 2*time.Second)
	if !ok {
		return false
	}
	text, err := el.Text(ctx)
	if err != nil {
		return false
	}
	text = strings.ToLower(text)
	for _, marker := range noResultsMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// feedItemsJS snapshots every visible result card in one pass so the cards
// cannot go stale between URL and markup reads. Selectors are tried in
// cascade order; the first that matches anything wins.
const feedItemsJS = `(() => {
	const sels = %s;
	let cards = [];
	for (const s of sels) {
		const found = Array.from(document.querySelectorAll(s));
		if (found.length) { cards = found; break; }
	}
	return cards.map((el) => {
		let url = '';
		if (el.tagName === 'A' && el.href && el.href.includes('/maps/place/')) {
			url = el.href;
		}
		if (!url) {
			const a = el.querySelector('a[href*="/maps/place/"]');
			if (a) { url = a.href; }
		}
		return {url: url, html: el.outerHTML};
	});
})()`

// ListItems returns the currently visible result cards with their place
// links and captured markup. Transient capture failures are retried; a feed
// with no cards is an empty slice, not an error.
func (d *Driver) ListItems(ctx context.Context) ([]FeedItem, error) {
	js := fmt.Sprintf(feedItemsJS, jsArray(resultCardSelectors))
	var lastErr error
	for attempt := 1; attempt <= feedOpRetries; attempt++ {
		var items []FeedItem
		if err := d.sess.Eval(ctx, js, &items, d.cfg.ElementWait()); err != nil {
			lastErr = err
			d.logger.Debug("feed snapshot failed, retrying",
				zap.Int("attempt", attempt), zap.Error(err))
			if serr := sleepCtx(ctx, jitter(500*time.Millisecond, 1500*time.Millisecond)); serr != nil {
				return nil, serr
			}
			continue
		}
		return items, nil
	}
	return nil, fmt.Errorf("capturing feed items: %w", lastErr)
}

// scrollProbe is the feed pane's scroll geometry as reported by the page.
type scrollProbe struct {
	Found  bool    `json:"found"`
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Client float64 `json:"client"`
}

const probePaneJS = `(() => {
	const sels = %s;
	for (const s of sels) {
		const el = document.querySelector(s);
		if (el) {
			return {found: true, top: el.scrollTop, height: el.scrollHeight, client: el.clientHeight};
		}
	}
	return {found: false, top: 0, height: 0, client: 0};
})()`

// scrollPaneJS nudges the pane down by at most one viewport so lazy content
// gets a chance to load, instead of jumping straight to the bottom.
const scrollPaneJS = `(() => {
	const sels = %s;
	for (const s of sels) {
		const el = document.querySelector(s);
		if (el) {
			el.scrollTo({top: el.scrollTop + Math.min(600, el.clientHeight), behavior: 'smooth'});
			return true;
		}
	}
	return false;
})()`

// ScrollFeed advances the results feed and reports whether more content may
// have loaded. It returns false only when the pane is already at the bottom
// or no scrollable container could be reached at all; a scroll that ran but
// produced no height growth still counts, since some layouts pre-render
// without growing.
func (d *Driver) ScrollFeed(ctx context.Context) (bool, error) {
	probeJS := fmt.Sprintf(probePaneJS, jsArray(feedSelectors))
	var lastErr error
	for attempt := 1; attempt <= feedOpRetries; attempt++ {
		ok, err := d.scrollOnce(ctx, probeJS)
		if err == nil {
			return ok, nil
		}
		lastErr = err
		d.logger.Debug("scroll attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		if serr := sleepCtx(ctx, jitter(500*time.Millisecond, 1500*time.Millisecond)); serr != nil {
			return false, serr
		}
	}
	return false, fmt.Errorf("scrolling results feed: %w", lastErr)
}

func (d *Driver) scrollOnce(ctx context.Context, probeJS string) (bool, error) {
	var before scrollProbe
	if err := d.sess.Eval(ctx, probeJS, &before, 5*time.Second); err != nil {
		return false, err
	}

	if !before.Found {
		// No dedicated pane in this layout; scroll the page itself.
		d.logger.Debug("no feed pane found, scrolling whole page")
		if err := d.sess.Eval(ctx, `window.scrollBy(0, 600)`, nil, 5*time.Second); err != nil {
			return false, err
		}
		return true, sleepCtx(ctx, d.cfg.ScrollDelay())
	}

	if before.Top+before.Client >= before.Height-1 {
		d.logger.Debug("feed pane already at the bottom",
			zap.Float64("height", before.Height))
		return false, nil
	}

	if err := d.sess.Eval(ctx, fmt.Sprintf(scrollPaneJS, jsArray(feedSelectors)), nil, 5*time.Second); err != nil {
		return false, err
	}

	// Poll for height growth in sub-intervals; growth means lazy content
	// arrived and there is more to collect.
	interval := d.cfg.ScrollDelay() / 3
	for i := 0; i < 3; i++ {
		if err := sleepCtx(ctx, interval); err != nil {
			return false, err
		}
		var after scrollProbe
		if err := d.sess.Eval(ctx, probeJS, &after, 5*time.Second); err != nil {
			return false, err
		}
		if after.Found && after.Height > before.Height {
			d.logger.Debug("feed grew after scroll",
				zap.Float64("from", before.Height), zap.Float64("to", after.Height))
			return true, nil
		}
	}
	return true, nil
}

// OpenDetail clicks the card's place anchor, waits for the detail pane to
// render and extracts it. Staleness during capture retries the whole pass;
// the result may be partial but is never lost to a transient re-render.
func (d *Driver) OpenDetail(ctx context.Context, item FeedItem) (domain.RawAttributes, error) {
	if item.URL == "" {
		return nil, errors.New("listing has no place link")
	}
	anchor := []string{
		fmt.Sprintf(`a[href=%q]`, item.URL),
		fmt.Sprintf(`a[href^=%q]`, item.URL),
	}
	el, ok := d.loc.FindOne(ctx, anchor, d.cfg.ElementWait())
	if !ok {
		return nil, fmt.Errorf("listing anchor not found for %s", item.URL)
	}
	if err := d.loc.SafeClick(ctx, el); err != nil {
		return nil, fmt.Errorf("opening detail pane: %w", err)
	}
	if _, ok := d.loc.FindOne(ctx, detailReadySelectors, d.cfg.ElementWait()); !ok {
		d.logger.Debug("detail heading never appeared", zap.String("url", item.URL))
	}
	_ = sleepCtx(ctx, jitter(500*time.Millisecond, 1500*time.Millisecond))

	html, err := d.captureDetail(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing detail pane: %w", err)
	}
	raw := ExtractDetailPane(html)
	if _, ok := raw["maps_url"]; !ok {
		raw["maps_url"] = item.URL
	}
	return raw, nil
}

// captureDetail snapshots the detail pane markup, walking the pane cascade
// and retrying stale captures.
func (d *Driver) captureDetail(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= feedOpRetries; attempt++ {
		for _, sel := range detailPaneSelectors {
			html, err := d.sess.CaptureHTML(ctx, sel, d.cfg.ElementWait())
			if err == nil && html != "" {
				return html, nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr == nil || !browser.IsStale(lastErr) {
			break
		}
		if serr := sleepCtx(ctx, jitter(500*time.Millisecond, 1500*time.Millisecond)); serr != nil {
			return "", serr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("detail pane markup empty")
	}
	return "", lastErr
}

// dismissConsent clears the consent wall shown to fresh sessions. Missing
// is the normal case.
func (d *Driver) dismissConsent(ctx context.Context) {
	el, ok := d.loc.FindOne(ctx, dismissSelectors, 2*time.Second)
	if !ok {
		return
	}
	if err := d.loc.SafeClick(ctx, el); err == nil {
		d.logger.Debug("dismissed consent overlay", zap.String("selector", el.Selector()))
		_ = sleepCtx(ctx, jitter(time.Second, 2*time.Second))
	}
}

// FetchListing opens its own browser session, loads one place URL directly
// and returns the normalized lead. The session is torn down before
// returning; failures leave no browser behind.
func FetchListing(ctx context.Context, cfg *config.Config, pm *proxy.Manager, logger *zap.Logger, url string) (domain.Lead, error) {
	sess, err := browser.Open(ctx, cfg, pm, logger)
	if err != nil {
		return domain.Lead{}, err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, url); err != nil {
		return domain.Lead{}, fmt.Errorf("loading %s: %w", url, err)
	}
	loc := browser.NewLocator(sess, dismissSelectors, logger)
	if _, ok := loc.FindOne(ctx, detailReadySelectors, cfg.ElementWait()); !ok {
		logger.Debug("detail heading never appeared", zap.String("url", url))
	}
	_ = sleepCtx(ctx, jitter(time.Second, 2*time.Second))

	var html string
	var lastErr error
	for attempt := 1; attempt <= feedOpRetries; attempt++ {
		for _, sel := range detailPaneSelectors {
			html, lastErr = sess.CaptureHTML(ctx, sel, cfg.ElementWait())
			if lastErr == nil && html != "" {
				break
			}
		}
		if html != "" || lastErr == nil || !browser.IsStale(lastErr) {
			break
		}
		if serr := sleepCtx(ctx, jitter(500*time.Millisecond, 1500*time.Millisecond)); serr != nil {
			return domain.Lead{}, serr
		}
	}
	if html == "" {
		if lastErr == nil {
			lastErr = errors.New("detail pane markup empty")
		}
		return domain.Lead{}, fmt.Errorf("capturing %s: %w", url, lastErr)
	}

	raw := ExtractDetailPane(html)
	if _, ok := raw["maps_url"]; !ok {
		raw["maps_url"] = url
	}
	return Normalize(raw), nil
}

// jsArray renders a selector cascade as a JavaScript array literal.
func jsArray(sels []string) string {
	b, _ := json.Marshal(sels)
	return string(b)
}

// jitter spreads network-sensitive actions out so they do not fire in
// lockstep.
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Package enrich visits each lead's website and harvests contact and
// platform signals: email addresses, social profiles and the tech stack the
// site is built on. Enrichment is strictly additive; a site that is down or
// hostile costs a note on the lead, never the lead itself.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"leadscraper/internal/domain"
)

const (
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// maxBodyBytes caps how much of a page gets scanned; marketing sites
	// front-load their contact details anyway.
	maxBodyBytes = 2 << 20
)

var emailRe = regexp.MustCompile(`(?i)\b[\w.+-]+@[\w.-]+\.\w{2,4}\b`)

// socialPatterns is walked in order so notes come out deterministic.
var socialPatterns = []struct {
	platform string
	re       *regexp.Regexp
}{
	{"instagram", regexp.MustCompile(`(?i)instagram\.com/[\w.-]+`)},
	{"facebook", regexp.MustCompile(`(?i)facebook\.com/[\w.-]+`)},
	{"linkedin", regexp.MustCompile(`(?i)linkedin\.com/(?:company|in)/[\w.-]+`)},
	{"twitter", regexp.MustCompile(`(?i)(?:twitter|x)\.com/[\w.-]+`)},
}

// techMarkers map a platform name to the substring its pages leak.
var techMarkers = []struct {
	name   string
	marker string
}{
	{"wordpress", "wp-content"},
	{"shopify", "cdn.shopify.com"},
	{"wix", "wixstatic.com"},
	{"squarespace", "squarespace.com"},
	{"magento", "static/version"},
}

// Enricher fetches lead websites over plain HTTP; no browser involved.
type Enricher struct {
	client *http.Client
	logger *zap.Logger
}

func New(timeout time.Duration, logger *zap.Logger) *Enricher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Enricher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Enrich fills the lead's email, social and stack fields from its website.
// Fetch failures degrade to an annotation; the returned error is reserved
// for context cancellation.
func (e *Enricher) Enrich(ctx context.Context, lead *domain.Lead) error {
	if lead.Website == "" {
		lead.AppendNote("No website available")
		return nil
	}

	target := lead.Website
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		e.logger.Debug("bad website URL", zap.String("url", lead.Website), zap.Error(err))
		lead.AppendNote("Website unreachable")
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Debug("website fetch failed",
			zap.String("business", lead.BusinessName), zap.String("url", target), zap.Error(err))
		lead.AppendNote("Website unreachable")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Debug("website returned non-200",
			zap.String("url", target), zap.Int("status", resp.StatusCode))
		lead.AppendNote(fmt.Sprintf("Website returned HTTP %d", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		lead.AppendNote("Website unreachable")
		return nil
	}
	page := string(body)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		e.logger.Debug("website parse failed", zap.String("url", target), zap.Error(err))
		return nil
	}

	base := resp.Request.URL
	lead.Emails = mergeSorted(lead.Emails, collectEmails(doc, page))
	links, platforms := collectSocial(doc, base)
	lead.SocialLinks = mergeSorted(lead.SocialLinks, links)
	lead.Stack = mergeSorted(lead.Stack, detectStack(page))

	if len(lead.Stack) > 0 {
		lead.AppendNote("Technologies: " + strings.Join(lead.Stack, ", "))
	}
	if len(platforms) > 0 {
		lead.AppendNote("Social profiles: " + strings.Join(platforms, ", "))
	}
	e.logger.Debug("lead enriched",
		zap.String("business", lead.BusinessName),
		zap.Int("emails", len(lead.Emails)),
		zap.Int("social", len(lead.SocialLinks)),
		zap.Strings("stack", lead.Stack))
	return nil
}

// EnrichAll runs enrichment over the slice with at most workers concurrent
// fetches and returns the same slice. Leads keep their positions; each
// worker owns disjoint indexes so there is no locking.
func (e *Enricher) EnrichAll(ctx context.Context, leads []domain.Lead, workers int) []domain.Lead {
	if len(leads) == 0 {
		return leads
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range leads {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return leads
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := e.Enrich(ctx, &leads[idx]); err != nil {
				e.logger.Debug("enrichment aborted", zap.Error(err))
			}
		}(i)
	}
	wg.Wait()
	return leads
}

// collectEmails pulls addresses from mailto links and from visible text.
func collectEmails(doc *goquery.Document, page string) []string {
	found := map[string]bool{}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if emailRe.MatchString(addr) {
			found[strings.ToLower(addr)] = true
		}
	})
	for _, m := range emailRe.FindAllString(page, -1) {
		found[strings.ToLower(m)] = true
	}

	emails := make([]string, 0, len(found))
	for addr := range found {
		// image filenames match the pattern often enough to matter
		if strings.HasSuffix(addr, ".png") || strings.HasSuffix(addr, ".jpg") ||
			strings.HasSuffix(addr, ".gif") || strings.HasSuffix(addr, ".webp") {
			continue
		}
		emails = append(emails, addr)
	}
	sort.Strings(emails)
	return emails
}

// collectSocial returns the first matching profile link per platform plus
// the names of the platforms that matched.
func collectSocial(doc *goquery.Document, base *url.URL) ([]string, []string) {
	byPlatform := map[string]string{}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := href
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				abs = base.ResolveReference(ref).String()
			}
		}
		for _, sp := range socialPatterns {
			if _, ok := byPlatform[sp.platform]; ok {
				continue
			}
			if sp.re.MatchString(abs) {
				byPlatform[sp.platform] = abs
			}
		}
	})

	var links, platforms []string
	for _, sp := range socialPatterns {
		if link, ok := byPlatform[sp.platform]; ok {
			links = append(links, link)
			platforms = append(platforms, sp.platform)
		}
	}
	return links, platforms
}

func detectStack(page string) []string {
	lower := strings.ToLower(page)
	var stack []string
	for _, t := range techMarkers {
		if strings.Contains(lower, t.marker) {
			stack = append(stack, t.name)
		}
	}
	return stack
}

// mergeSorted unions two string sets into a sorted slice.
func mergeSorted(existing, extra []string) []string {
	if len(extra) == 0 {
		return existing
	}
	seen := map[string]bool{}
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range extra {
		seen[v] = true
	}
	merged := make([]string, 0, len(seen))
	for v := range seen {
		merged = append(merged, v)
	}
	sort.Strings(merged)
	return merged
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// RawAttributes is the untyped key/value bag harvested from a listing before
// normalization. Keys are either canonical ("business_name", "rating") or
// verbatim data-item-id values from the page ("authority", "phone:tel:...").
type RawAttributes map[string]string

// Merge folds other into r. With overwrite, non-empty values from other
// replace existing ones; otherwise existing values are kept.
func (r RawAttributes) Merge(other RawAttributes, overwrite bool) {
	for k, v := range other {
		if v == "" {
			continue
		}
		if _, ok := r[k]; ok && !overwrite {
			continue
		}
		r[k] = v
	}
}

// Lead is the normalized record produced by the scraper.
type Lead struct {
	BusinessName string   `json:"business_name"`
	Phone        string   `json:"phone"`
	Website      string   `json:"website"`
	Address      string   `json:"address"`
	Rating       string   `json:"rating"` // e.g. "4.5 stars (120 reviews)"
	Notes        string   `json:"notes"`  // pipe-delimited annotations
	SourceURL    string   `json:"source_url,omitempty"`
	Emails       []string `json:"emails,omitempty"`       // added by enrichment
	SocialLinks  []string `json:"social_links,omitempty"` // added by enrichment
	Stack        []string `json:"stack,omitempty"`        // added by enrichment
	Keyword      string   `json:"keyword,omitempty"`
	Location     string   `json:"location,omitempty"`
}

// Usable reports whether the lead carries at least one identifying field.
// Leads failing this never reach callers or storage.
func (l Lead) Usable() bool {
	return l.BusinessName != "" || l.Phone != "" || l.Website != "" || l.Address != ""
}

// AppendNote adds one annotation to the pipe-delimited notes field.
func (l *Lead) AppendNote(note string) {
	if note == "" {
		return
	}
	if l.Notes == "" {
		l.Notes = note
		return
	}
	l.Notes += " | " + note
}

// LeadFunc is invoked for every accepted lead, in acceptance order.
type LeadFunc func(Lead)

// ScrapeRequest describes one scrape run.
type ScrapeRequest struct {
	Keyword    string `json:"keyword"`
	Location   string `json:"location"`
	MaxResults int    `json:"max_results"`
	Force      bool   `json:"force"` // bypass the recently-scraped cache
}

// Query builds the search string typed into the map search box.
func (r ScrapeRequest) Query() string {
	if r.Location == "" {
		return r.Keyword
	}
	return fmt.Sprintf("%s in %s", r.Keyword, r.Location)
}

// CacheKey identifies this request in the recently-scraped cache.
func (r ScrapeRequest) CacheKey() string {
	return strings.ToLower(strings.TrimSpace(r.Keyword)) + "|" + strings.ToLower(strings.TrimSpace(r.Location))
}

// Job statuses.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Job tracks one submitted scrape request through the runner.
type Job struct {
	ID         string        `json:"id"`
	Request    ScrapeRequest `json:"request"`
	Status     string        `json:"status"`
	LeadCount  int           `json:"lead_count"`
	FromCache  bool          `json:"from_cache,omitempty"`
	FailReason string        `json:"fail_reason,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
}

// Package export writes finished lead batches to disk as CSV and JSON.
// Files are timestamped per run so repeated searches never clobber each
// other.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"leadscraper/internal/domain"
)

// csvHeader mirrors the lead schema; multi-valued enrichment columns are
// joined with ";" inside one cell.
var csvHeader = []string{
	"business_name", "phone", "website", "address", "rating", "notes",
	"source_url", "emails", "social_links", "stack", "keyword", "location",
}

// WriteCSV writes the leads under dir and returns the file path.
func WriteCSV(dir string, leads []domain.Lead, keyword, location string) (string, error) {
	path := filepath.Join(dir, fileBase(keyword, location)+".csv")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		path = appendUnique(path)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("writing csv header: %w", err)
	}
	for _, l := range leads {
		row := []string{
			l.BusinessName, l.Phone, l.Website, l.Address, l.Rating, l.Notes,
			l.SourceURL,
			strings.Join(l.Emails, ";"),
			strings.Join(l.SocialLinks, ";"),
			strings.Join(l.Stack, ";"),
			l.Keyword, l.Location,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing csv: %w", err)
	}
	return path, nil
}

// WriteJSON writes the leads as an indented JSON array and returns the file
// path.
func WriteJSON(dir string, leads []domain.Lead, keyword, location string) (string, error) {
	path := filepath.Join(dir, fileBase(keyword, location)+".json")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		path = appendUnique(path)
	}

	if leads == nil {
		leads = []domain.Lead{}
	}
	data, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding leads: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// fileBase builds "leads_<keyword>_<location>_<timestamp>" with both parts
// reduced to filename-safe tokens.
func fileBase(keyword, location string) string {
	ts := time.Now().Format("20060102_150405")
	return fmt.Sprintf("leads_%s_%s_%s", slug(keyword), slug(location), ts)
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '/':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "all"
	}
	return b.String()
}

// appendUnique is used when a run exports twice within one second; the
// suffix keeps the second file distinct.
func appendUnique(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i) + ext
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// Package storage persists leads in Postgres and tracks scrape recency in
// Redis. The two stores are independent; the pipeline treats both as
// best-effort.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscraper/internal/domain"
)

const defaultListLimit = 50

// PostgresStore persists leads keyed by what identifies a business within
// one search: keyword, location, name and address.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connString string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// SaveLeads upserts one run's leads in a single transaction. Conflicting
// rows keep their old value wherever the new one is blank, so a re-scrape
// can only add information.
func (s *PostgresStore) SaveLeads(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, l := range leads {
		batch.Queue(`
			INSERT INTO leads (
				keyword, location, business_name, phone, website, address,
				rating, notes, source_url, emails, social_links, stack
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (keyword, location, business_name, address) DO UPDATE SET
				phone        = COALESCE(NULLIF(EXCLUDED.phone, ''), leads.phone),
				website      = COALESCE(NULLIF(EXCLUDED.website, ''), leads.website),
				rating       = COALESCE(NULLIF(EXCLUDED.rating, ''), leads.rating),
				notes        = COALESCE(NULLIF(EXCLUDED.notes, ''), leads.notes),
				source_url   = COALESCE(NULLIF(EXCLUDED.source_url, ''), leads.source_url),
				emails       = CASE WHEN cardinality(EXCLUDED.emails) > 0 THEN EXCLUDED.emails ELSE leads.emails END,
				social_links = CASE WHEN cardinality(EXCLUDED.social_links) > 0 THEN EXCLUDED.social_links ELSE leads.social_links END,
				stack        = CASE WHEN cardinality(EXCLUDED.stack) > 0 THEN EXCLUDED.stack ELSE leads.stack END,
				updated_at   = NOW()`,
			l.Keyword, l.Location, l.BusinessName, l.Phone, l.Website, l.Address,
			l.Rating, l.Notes, l.SourceURL,
			emptyNotNil(l.Emails), emptyNotNil(l.SocialLinks), emptyNotNil(l.Stack),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save leads: %w", err)
	}

	return tx.Commit(ctx)
}

// ListLeads returns stored leads, newest first. Empty keyword or location
// matches everything; limit falls back to a sane default.
func (s *PostgresStore) ListLeads(ctx context.Context, keyword, location string, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT business_name, phone, website, address, rating, notes,
		       source_url, emails, social_links, stack, keyword, location
		FROM leads
		WHERE ($1 = '' OR keyword = $1)
		  AND ($2 = '' OR location = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		keyword, location, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(
			&l.BusinessName, &l.Phone, &l.Website, &l.Address, &l.Rating, &l.Notes,
			&l.SourceURL, &l.Emails, &l.SocialLinks, &l.Stack, &l.Keyword, &l.Location,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// emptyNotNil keeps text[] columns NOT NULL friendly.
func emptyNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

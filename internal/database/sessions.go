package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	SessionStatusRunning   = "running"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)

// ScrapeSession tracks one crawl run from start to finish.
type ScrapeSession struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	EndedAt       *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	PagesScraped  int        `db:"pages_scraped" json:"pages_scraped"`
	QuotesAdded   int        `db:"quotes_added" json:"quotes_added"`
	QuotesSkipped int        `db:"quotes_skipped" json:"quotes_skipped"`
	Status        string     `db:"status" json:"status"`
}

// StartSession records a new running session and returns it.
func (db *DB) StartSession(ctx context.Context) (*ScrapeSession, error) {
	session := &ScrapeSession{
		ID:     uuid.New(),
		Status: SessionStatusRunning,
	}

	err := db.pool.QueryRow(ctx, `
		INSERT INTO scrape_sessions (id, status) VALUES ($1, $2)
		RETURNING started_at`, session.ID, session.Status,
	).Scan(&session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	return session, nil
}

// FinishSession stores the final counters and status of a session.
func (db *DB) FinishSession(ctx context.Context, id uuid.UUID, pages, added, skipped int, status string) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE scrape_sessions SET
			ended_at = CURRENT_TIMESTAMP,
			pages_scraped = $2,
			quotes_added = $3,
			quotes_skipped = $4,
			status = $5
		WHERE id = $1`, id, pages, added, skipped, status)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return nil
}

// GetSession fetches one session by ID, or nil when missing.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*ScrapeSession, error) {
	s := &ScrapeSession{}
	err := db.pool.QueryRow(ctx, `
		SELECT id, started_at, ended_at, pages_scraped, quotes_added, quotes_skipped, status
		FROM scrape_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.PagesScraped, &s.QuotesAdded, &s.QuotesSkipped, &s.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns recent sessions, newest first.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]*ScrapeSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx, `
		SELECT id, started_at, ended_at, pages_scraped, quotes_added, quotes_skipped, status
		FROM scrape_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ScrapeSession
	for rows.Next() {
		s := &ScrapeSession{}
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.PagesScraped, &s.QuotesAdded, &s.QuotesSkipped, &s.Status); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/models"
)

// StoredQuote is a quote row joined with its author name.
type StoredQuote struct {
	ID        int64     `db:"id" json:"id"`
	Text      string    `db:"text" json:"text"`
	Author    string    `db:"author" json:"author"`
	Tags      []string  `db:"tags" json:"tags"`
	SourceURL *string   `db:"source_url" json:"source_url,omitempty"`
	ScrapedAt time.Time `db:"scraped_at" json:"scraped_at"`
}

// BatchResult reports what an insert batch did. Skipped counts duplicates,
// which are expected on repeated runs.
type BatchResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// InsertQuote stores one quote with its author and tags. It returns false
// without error when a quote with identical text already exists.
func (db *DB) InsertQuote(ctx context.Context, q *models.Quote) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, fmt.Errorf("invalid quote: %w", err)
	}

	inserted := false
	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		var existing int64
		err := tx.QueryRow(ctx, `SELECT id FROM quotes WHERE text = $1`, q.Text).Scan(&existing)
		if err == nil {
			return nil
		}
		if err != pgx.ErrNoRows {
			return fmt.Errorf("failed to check for duplicate: %w", err)
		}

		var authorID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO authors (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, q.Author,
		).Scan(&authorID)
		if err != nil {
			return fmt.Errorf("failed to upsert author: %w", err)
		}

		var quoteID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO quotes (text, author_id, source_url)
			VALUES ($1, $2, NULLIF($3, ''))
			RETURNING id`, q.Text, authorID, q.SourceURL,
		).Scan(&quoteID)
		if err != nil {
			return fmt.Errorf("failed to insert quote: %w", err)
		}

		for _, tag := range q.Tags {
			var tagID int64
			err = tx.QueryRow(ctx, `
				INSERT INTO tags (name) VALUES ($1)
				ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id`, tag,
			).Scan(&tagID)
			if err != nil {
				return fmt.Errorf("failed to upsert tag %q: %w", tag, err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO quote_tags (quote_id, tag_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, quoteID, tagID)
			if err != nil {
				return fmt.Errorf("failed to link tag %q: %w", tag, err)
			}
		}

		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// InsertQuotes stores a batch, counting inserts and duplicate skips.
func (db *DB) InsertQuotes(ctx context.Context, quotes []models.Quote) (BatchResult, error) {
	var result BatchResult
	for i := range quotes {
		added, err := db.InsertQuote(ctx, &quotes[i])
		if err != nil {
			return result, fmt.Errorf("quote %d: %w", i, err)
		}
		if added {
			result.Added++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

const quoteSelect = `
	SELECT q.id, q.text, a.name, q.source_url, q.scraped_at,
		   COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
	FROM quotes q
	JOIN authors a ON q.author_id = a.id
	LEFT JOIN quote_tags qt ON q.id = qt.quote_id
	LEFT JOIN tags t ON qt.tag_id = t.id`

const quoteGroup = ` GROUP BY q.id, q.text, a.name, q.source_url, q.scraped_at`

// GetAllQuotes returns every stored quote, newest first.
func (db *DB) GetAllQuotes(ctx context.Context, limit int) ([]*StoredQuote, error) {
	query := quoteSelect + quoteGroup + ` ORDER BY q.scraped_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return db.queryQuotes(ctx, query)
}

// GetQuotesByAuthor matches author names case-insensitively by substring.
func (db *DB) GetQuotesByAuthor(ctx context.Context, author string) ([]*StoredQuote, error) {
	query := quoteSelect + ` WHERE a.name ILIKE '%' || $1 || '%'` + quoteGroup + ` ORDER BY q.id`
	return db.queryQuotes(ctx, query, author)
}

// GetQuotesByTag returns quotes carrying the given tag.
func (db *DB) GetQuotesByTag(ctx context.Context, tag string) ([]*StoredQuote, error) {
	query := quoteSelect + `
	WHERE q.id IN (
		SELECT qt2.quote_id FROM quote_tags qt2
		JOIN tags t2 ON qt2.tag_id = t2.id
		WHERE t2.name ILIKE '%' || $1 || '%'
	)` + quoteGroup + ` ORDER BY q.id`
	return db.queryQuotes(ctx, query, tag)
}

// SearchQuotes matches quote text case-insensitively by keyword.
func (db *DB) SearchQuotes(ctx context.Context, keyword string) ([]*StoredQuote, error) {
	query := quoteSelect + ` WHERE q.text ILIKE '%' || $1 || '%'` + quoteGroup + ` ORDER BY q.id`
	return db.queryQuotes(ctx, query, keyword)
}

// GetRandomQuote returns one random quote, or nil when the table is empty.
func (db *DB) GetRandomQuote(ctx context.Context) (*StoredQuote, error) {
	query := quoteSelect + quoteGroup + ` ORDER BY RANDOM() LIMIT 1`
	quotes, err := db.queryQuotes(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, nil
	}
	return quotes[0], nil
}

func (db *DB) queryQuotes(ctx context.Context, query string, args ...interface{}) ([]*StoredQuote, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*StoredQuote
	for rows.Next() {
		q := &StoredQuote{}
		if err := rows.Scan(&q.ID, &q.Text, &q.Author, &q.SourceURL, &q.ScrapedAt, &q.Tags); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// AuthorCount is one entry of the top-author leaderboard.
type AuthorCount struct {
	Name   string `json:"name"`
	Quotes int    `json:"quotes"`
}

// TagCount is one entry of the top-tag leaderboard.
type TagCount struct {
	Name  string `json:"name"`
	Usage int    `json:"usage"`
}

// Statistics summarizes the stored corpus.
type Statistics struct {
	TotalQuotes   int           `json:"total_quotes"`
	TotalAuthors  int           `json:"total_authors"`
	TotalTags     int           `json:"total_tags"`
	TotalSessions int           `json:"total_sessions"`
	TopAuthors    []AuthorCount `json:"top_authors"`
	TopTags       []TagCount    `json:"top_tags"`
}

// GetStatistics returns corpus totals plus the top 5 authors and top 10 tags.
func (db *DB) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}

	counts := map[string]*int{
		`SELECT COUNT(*) FROM quotes`:          &stats.TotalQuotes,
		`SELECT COUNT(*) FROM authors`:         &stats.TotalAuthors,
		`SELECT COUNT(*) FROM tags`:            &stats.TotalTags,
		`SELECT COUNT(*) FROM scrape_sessions`: &stats.TotalSessions,
	}
	for query, dest := range counts {
		if err := db.pool.QueryRow(ctx, query).Scan(dest); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	rows, err := db.pool.Query(ctx, `
		SELECT a.name, COUNT(q.id)
		FROM authors a JOIN quotes q ON a.id = q.author_id
		GROUP BY a.id, a.name ORDER BY COUNT(q.id) DESC, a.name LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top authors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ac AuthorCount
		if err := rows.Scan(&ac.Name, &ac.Quotes); err != nil {
			return nil, fmt.Errorf("failed to scan author count: %w", err)
		}
		stats.TopAuthors = append(stats.TopAuthors, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := db.pool.Query(ctx, `
		SELECT t.name, COUNT(qt.quote_id)
		FROM tags t JOIN quote_tags qt ON t.id = qt.tag_id
		GROUP BY t.id, t.name ORDER BY COUNT(qt.quote_id) DESC, t.name LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tc TagCount
		if err := tagRows.Scan(&tc.Name, &tc.Usage); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		stats.TopTags = append(stats.TopTags, tc)
	}
	return stats, tagRows.Err()
}

package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/models"
)

// setupTestDB connects to the database named by TEST_DB_* and runs the
// migrations. Tests are skipped when no test database is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("Test database not configured, set TEST_DB_HOST to run")
	}

	port := 5432
	if raw := os.Getenv("TEST_DB_PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		require.NoError(t, err)
		port = p
	}

	ctx := context.Background()
	db, err := New(ctx, Config{
		Host:     host,
		Port:     port,
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Database: envOr("TEST_DB_NAME", "quotes_scraper_test"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testQuote(text string) *models.Quote {
	return &models.Quote{
		Text:      text,
		Author:    "Albert Einstein",
		Tags:      []string{"inspirational", "science"},
		SourceURL: "https://quotes.toscrape.com/page/1/",
		ScrapedAt: time.Now(),
	}
}

func TestInsertQuote(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	t.Run("insert and deduplicate", func(t *testing.T) {
		q := testQuote("Insanity is doing the same thing over and over again. " + time.Now().String())

		added, err := db.InsertQuote(ctx, q)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = db.InsertQuote(ctx, q)
		require.NoError(t, err)
		assert.False(t, added, "second insert of the same text is skipped")
	})

	t.Run("batch insert counts added and skipped", func(t *testing.T) {
		marker := time.Now().String()
		quotes := []models.Quote{
			*testQuote("First batch quote " + marker),
			*testQuote("Second batch quote " + marker),
			*testQuote("First batch quote " + marker),
		}

		result, err := db.InsertQuotes(ctx, quotes)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Added)
		assert.Equal(t, 1, result.Skipped)
	})

	t.Run("tags survive the round trip", func(t *testing.T) {
		text := "Tagged quote " + time.Now().String()
		_, err := db.InsertQuote(ctx, testQuote(text))
		require.NoError(t, err)

		stored, err := db.SearchQuotes(ctx, text)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.ElementsMatch(t, []string{"inspirational", "science"}, stored[0].Tags)
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	session, err := db.StartSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusRunning, session.Status)

	err = db.FinishSession(ctx, session.ID, 10, 95, 5, SessionStatusCompleted)
	require.NoError(t, err)

	got, err := db.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCompleted, got.Status)
	assert.Equal(t, 10, got.PagesScraped)
	assert.Equal(t, 95, got.QuotesAdded)
	assert.Equal(t, 5, got.QuotesSkipped)

	sessions, err := db.ListSessions(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, sessions)
}

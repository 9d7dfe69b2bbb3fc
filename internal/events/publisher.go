package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeSessionStarted is published when a scrape session begins
	EventTypeSessionStarted EventType = "SESSION_STARTED"
	// EventTypeSessionCompleted is published when a scrape session finishes
	EventTypeSessionCompleted EventType = "SESSION_COMPLETED"
	// EventTypeSessionFailed is published when a scrape session aborts
	EventTypeSessionFailed EventType = "SESSION_FAILED"
)

// SessionPayload is the payload for session lifecycle events.
type SessionPayload struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`
	StartURL      string    `json:"start_url"`
	PagesScraped  int       `json:"pages_scraped"`
	QuotesFound   int       `json:"quotes_found"`
	QuotesAdded   int       `json:"quotes_added"`
	QuotesSkipped int       `json:"quotes_skipped"`
	Error         string    `json:"error,omitempty"`
	Source        string    `json:"source"`
}

// txRunner runs a function inside a database transaction.
type txRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// outboxInserter writes events into the outbox within a transaction.
type outboxInserter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher handles event publishing using the transactional outbox pattern
type Publisher struct {
	db     txRunner
	outbox outboxInserter
	logger *slog.Logger
}

// NewPublisher creates a new event publisher with database connection
func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishSessionEvent writes a session lifecycle event to the outbox. The
// relay ships it to Redis later, so the event only exists if the
// surrounding session write committed.
func (p *Publisher) PublishSessionEvent(ctx context.Context, eventType EventType, payload *SessionPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	payload.EventType = string(eventType)
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = "scraper"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "session",
		AggregateID:   payload.SessionID,
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  database.DefaultSessionStream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"session_id", payload.SessionID,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}

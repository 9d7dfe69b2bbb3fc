package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/config"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/database"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/pkg/logger"
)

// session-consumer reads session lifecycle events from the Redis stream
// the relay feeds and keeps running counters for operators.

const (
	consumerGroup = "session-consumer-group"
	consumerName  = "consumer-1"

	counterCompleted = "stats:sessions_completed"
	counterFailed    = "stats:sessions_failed"
	counterQuotes    = "stats:quotes_added"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down...")
		cancel()
	}()

	consumer := &Consumer{
		redis:  rdb,
		stream: database.DefaultSessionStream,
		logger: logger.With("component", "session_consumer"),
	}

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
}

type Consumer struct {
	redis  *redis.Client
	stream string
	logger *slog.Logger
}

func (c *Consumer) Run(ctx context.Context) error {
	// Create consumer group (ignore error if already exists)
	c.redis.XGroupCreateMkStream(ctx, c.stream, consumerGroup, "0").Err()

	c.logger.Info("starting consumer", "stream", c.stream, "group", consumerGroup)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    consumerGroup,
				Consumer: consumerName,
				Streams:  []string{c.stream, ">"},
				Count:    10,
				Block:    5 * time.Second,
			}).Result()

			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue // No new messages
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("failed to read from stream", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					if err := c.processMessage(ctx, message); err != nil {
						c.logger.Error("failed to process message", "id", message.ID, "error", err)
						continue
					}

					if err := c.redis.XAck(ctx, c.stream, consumerGroup, message.ID).Err(); err != nil {
						c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
					}
				}
			}
		}
	}
}

type sessionEvent struct {
	SessionID     string `json:"session_id"`
	StartURL      string `json:"start_url"`
	PagesScraped  int    `json:"pages_scraped"`
	QuotesAdded   int    `json:"quotes_added"`
	QuotesSkipped int    `json:"quotes_skipped"`
	Error         string `json:"error,omitempty"`
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	eventType, ok := msg.Values["event_type"].(string)
	if !ok {
		return fmt.Errorf("missing event_type in message")
	}

	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing data in message")
	}

	var envelope struct {
		Payload sessionEvent `json:"payload"`
	}
	if err := json.Unmarshal([]byte(dataStr), &envelope); err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}
	event := envelope.Payload

	switch eventType {
	case "SESSION_STARTED":
		c.logger.Info("session started",
			"session_id", event.SessionID,
			"start_url", event.StartURL)

	case "SESSION_COMPLETED":
		c.logger.Info("session completed",
			"session_id", event.SessionID,
			"pages", event.PagesScraped,
			"added", event.QuotesAdded,
			"skipped", event.QuotesSkipped)
		pipe := c.redis.Pipeline()
		pipe.Incr(ctx, counterCompleted)
		pipe.IncrBy(ctx, counterQuotes, int64(event.QuotesAdded))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to update counters: %w", err)
		}

	case "SESSION_FAILED":
		c.logger.Warn("session failed",
			"session_id", event.SessionID,
			"pages", event.PagesScraped,
			"error", event.Error)
		if err := c.redis.Incr(ctx, counterFailed).Err(); err != nil {
			return fmt.Errorf("failed to update counters: %w", err)
		}

	default:
		// Other event types are not ours to handle.
	}

	return nil
}

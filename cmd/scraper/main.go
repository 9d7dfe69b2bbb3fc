package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/backoff"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/blockdetect"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/config"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/database"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/events"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/export"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/fetch"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/identity"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/models"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/paginate"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/parser"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/ratelimit"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/pkg/logger"
)

func main() {
	var (
		startURL = flag.String("url", "", "Start URL to scrape (overrides SCRAPER_START_URL)")
		pageCap  = flag.Int("pages", -1, "Maximum number of pages to scrape, 0 means unlimited (overrides SCRAPER_PAGE_CAP)")
		output   = flag.String("output", "", "Export format: json, csv or both (overrides EXPORT_FORMAT)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *startURL != "" {
		cfg.Scraper.StartURL = *startURL
	}
	if *pageCap >= 0 {
		cfg.Scraper.PageCap = *pageCap
	}
	if *output != "" {
		cfg.Export.Format = *output
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting quote scraper", "start_url", cfg.Scraper.StartURL, "page_cap", cfg.Scraper.PageCap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	rotator, err := buildRotator(cfg)
	if err != nil {
		logger.Error("failed to build identity rotator", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewWindowRateLimiter(
		cfg.Scraper.MinDelay,
		cfg.Scraper.MaxDelay,
		cfg.Scraper.RequestsPerMinute,
	)
	policy := backoff.NewPolicy(cfg.Backoff.MaxRetries, cfg.Backoff.BaseDelay, cfg.Backoff.MaxDelayCap)
	classifier := blockdetect.NewClassifier()
	transport := fetch.NewHTTPTransport(cfg.Scraper.RequestTimeout)
	fetcher := fetch.NewFetcher(transport, limiter, rotator, classifier, policy)

	var (
		db        *database.DB
		publisher *events.Publisher
		session   *database.ScrapeSession
	)
	if cfg.HasDatabase() {
		db, err = database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		publisher = events.NewPublisher(db, logger)

		session, err = db.StartSession(ctx)
		if err != nil {
			logger.Error("failed to start session", "error", err)
			os.Exit(1)
		}

		if err := publisher.PublishSessionEvent(ctx, events.EventTypeSessionStarted, &events.SessionPayload{
			SessionID: session.ID.String(),
			StartURL:  cfg.Scraper.StartURL,
		}); err != nil {
			logger.Warn("failed to publish session started event", "error", err)
		}
	}

	var pages, added, skipped int
	hook := func(page int, pageURL string, items []models.Quote) error {
		pages = page
		if db == nil {
			return nil
		}
		result, err := db.InsertQuotes(ctx, items)
		if err != nil {
			return err
		}
		added += result.Added
		skipped += result.Skipped
		logger.Info("page persisted",
			"page", page,
			"url", pageURL,
			"added", result.Added,
			"skipped", result.Skipped)
		return nil
	}

	driver := paginate.NewDriver(fetcher, parser.NewQuoteParser(), paginate.WithPageHook(hook))
	quotes, runErr := driver.Run(ctx, cfg.Scraper.StartURL, cfg.Scraper.PageCap)

	stats := fetcher.Stats()
	logger.Info("scrape finished",
		"pages", pages,
		"quotes", len(quotes),
		"requests", stats.Requests,
		"successes", stats.Successes,
		"failures", stats.Failures,
		"blocks", stats.Blocks,
		"captchas", stats.Captchas)
	if runErr != nil {
		logger.Warn("scrape ended early, keeping partial results",
			"error", runErr, "quotes", len(quotes))
	}

	if db != nil {
		finishSession(ctx, db, publisher, session, cfg.Scraper.StartURL, pages, added, skipped, len(quotes), runErr, logger)
	} else if err := exportQuotes(cfg, quotes, logger); err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
}

func buildRotator(cfg *config.Config) (*identity.Rotator, error) {
	opts := []identity.Option{}
	if len(cfg.Identity.UserAgents) > 0 {
		opts = append(opts, identity.WithUserAgents(cfg.Identity.UserAgents))
	}
	if cfg.Identity.RotationMode == "round_robin" {
		opts = append(opts, identity.WithMode(identity.ModeRoundRobin))
	}
	if cfg.Identity.UseProxies {
		proxies := make([]identity.ProxyEndpoint, 0, len(cfg.Identity.Proxies))
		for _, raw := range cfg.Identity.Proxies {
			p, err := identity.ParseProxy(raw)
			if err != nil {
				return nil, err
			}
			if cfg.Identity.ProxyProtocol != "" {
				p.Protocol = cfg.Identity.ProxyProtocol
			}
			proxies = append(proxies, p)
		}
		opts = append(opts, identity.WithProxies(proxies))
	}
	return identity.NewRotator(opts...)
}

func finishSession(
	ctx context.Context,
	db *database.DB,
	publisher *events.Publisher,
	session *database.ScrapeSession,
	startURL string,
	pages, added, skipped, found int,
	runErr error,
	logger *slog.Logger,
) {
	// Session bookkeeping must survive the cancelled scrape context.
	finishCtx := context.WithoutCancel(ctx)

	status := database.SessionStatusCompleted
	eventType := events.EventTypeSessionCompleted
	errMsg := ""
	if runErr != nil {
		status = database.SessionStatusFailed
		eventType = events.EventTypeSessionFailed
		errMsg = runErr.Error()
	}

	if err := db.FinishSession(finishCtx, session.ID, pages, added, skipped, status); err != nil {
		logger.Warn("failed to finish session record", "error", err)
	}
	if err := publisher.PublishSessionEvent(finishCtx, eventType, &events.SessionPayload{
		SessionID:     session.ID.String(),
		StartURL:      startURL,
		PagesScraped:  pages,
		QuotesFound:   found,
		QuotesAdded:   added,
		QuotesSkipped: skipped,
		Error:         errMsg,
	}); err != nil {
		logger.Warn("failed to publish session event", "error", err)
	}
}

func exportQuotes(cfg *config.Config, quotes []models.Quote, logger *slog.Logger) error {
	quotes = export.Dedupe(quotes)
	if len(quotes) == 0 {
		logger.Info("nothing to export")
		return nil
	}

	exporter, err := export.NewExporter(cfg.Export.OutputDir, logger)
	if err != nil {
		return err
	}

	if cfg.Export.Format == "csv" || cfg.Export.Format == "both" {
		if _, err := exporter.ToCSV(quotes, ""); err != nil {
			return err
		}
	}
	if cfg.Export.Format == "json" || cfg.Export.Format == "both" {
		if _, err := exporter.ToJSON(quotes, ""); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/api"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/config"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/database"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/identity"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if !cfg.HasDatabase() {
		logger.Error("DB_HOST must be set for the API server")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Redis.RelayInterval,
		BatchSize:    cfg.Redis.RelayBatch,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	// The API process owns the shared rotator so operators can inspect
	// and reset proxy health between scrape runs.
	rotator, err := buildRotator(cfg)
	if err != nil {
		logger.Error("failed to build identity rotator", "error", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(db, rotator, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pendingCount, _ := relay.GetPendingCount(r.Context())
		deadLetterCount, _ := relay.GetDeadLetterCount(r.Context())

		health := map[string]interface{}{
			"status": "ok",
			"outbox": map[string]interface{}{
				"pending":     pendingCount,
				"dead_letter": deadLetterCount,
			},
		}

		status := http.StatusOK
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/quotes", func(r chi.Router) {
			r.Get("/", handlers.GetQuotes)
			r.Get("/random", handlers.GetRandomQuote)
			r.Get("/search", handlers.SearchQuotes)
		})
		r.Get("/authors/{name}/quotes", handlers.GetQuotesByAuthor)
		r.Get("/tags/{name}/quotes", handlers.GetQuotesByTag)
		r.Get("/stats", handlers.GetStats)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", handlers.ListSessions)
			r.Get("/{sessionID}", handlers.GetSession)
		})
		r.Route("/proxies", func(r chi.Router) {
			r.Get("/", handlers.GetProxyStats)
			r.Post("/reset", handlers.ResetProxies)
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
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

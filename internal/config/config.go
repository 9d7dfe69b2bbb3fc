package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Backoff  BackoffConfig
	Identity IdentityConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Export   ExportConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	StartURL          string
	PageCap           int
	MinDelay          time.Duration
	MaxDelay          time.Duration
	RequestsPerMinute int
	RequestTimeout    time.Duration
}

type BackoffConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelayCap time.Duration
}

type IdentityConfig struct {
	UserAgents    []string
	RotationMode  string
	UseProxies    bool
	Proxies       []string
	ProxyProtocol string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	RelayInterval time.Duration
	RelayBatch    int
}

type ExportConfig struct {
	OutputDir string
	Format    string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			StartURL:          getEnvOrDefault("SCRAPER_START_URL", "https://quotes.toscrape.com/"),
			PageCap:           getIntOrDefault("SCRAPER_PAGE_CAP", 0),
			MinDelay:          getDurationOrDefault("SCRAPER_MIN_DELAY", 2*time.Second),
			MaxDelay:          getDurationOrDefault("SCRAPER_MAX_DELAY", 5*time.Second),
			RequestsPerMinute: getIntOrDefault("SCRAPER_REQUESTS_PER_MINUTE", 20),
			RequestTimeout:    getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Backoff: BackoffConfig{
			MaxRetries:  getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			BaseDelay:   getDurationOrDefault("SCRAPER_BASE_DELAY", 5*time.Second),
			MaxDelayCap: getDurationOrDefault("SCRAPER_MAX_DELAY_CAP", 2*time.Minute),
		},
		Identity: IdentityConfig{
			UserAgents:    getStringSliceOrDefault("SCRAPER_USER_AGENTS", nil),
			RotationMode:  getEnvOrDefault("SCRAPER_ROTATION_MODE", "random"),
			UseProxies:    getBoolOrDefault("SCRAPER_USE_PROXIES", false),
			Proxies:       getStringSliceOrDefault("SCRAPER_PROXIES", []string{}),
			ProxyProtocol: getEnvOrDefault("SCRAPER_PROXY_PROTOCOL", "http"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "quotes_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			RelayInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			RelayBatch:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Export: ExportConfig{
			OutputDir: getEnvOrDefault("EXPORT_OUTPUT_DIR", "data/output"),
			Format:    getEnvOrDefault("EXPORT_FORMAT", "json"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MinDelay > c.Scraper.MaxDelay {
		return fmt.Errorf("SCRAPER_MIN_DELAY cannot be greater than SCRAPER_MAX_DELAY")
	}

	if c.Scraper.RequestsPerMinute < 1 {
		return fmt.Errorf("SCRAPER_REQUESTS_PER_MINUTE must be at least 1")
	}

	if c.Backoff.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	if c.Backoff.BaseDelay > c.Backoff.MaxDelayCap {
		return fmt.Errorf("SCRAPER_BASE_DELAY cannot be greater than SCRAPER_MAX_DELAY_CAP")
	}

	switch c.Identity.RotationMode {
	case "random", "round_robin":
	default:
		return fmt.Errorf("SCRAPER_ROTATION_MODE must be %q or %q", "random", "round_robin")
	}

	if c.Identity.UseProxies && len(c.Identity.Proxies) == 0 {
		return fmt.Errorf("SCRAPER_USE_PROXIES is set but SCRAPER_PROXIES is empty")
	}

	switch c.Export.Format {
	case "json", "csv", "both":
	default:
		return fmt.Errorf("EXPORT_FORMAT must be json, csv or both")
	}

	return nil
}

// HasDatabase reports whether a Postgres sink is configured. Without it
// the scraper falls back to file export only.
func (c *Config) HasDatabase() bool {
	return c.Database.Host != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://quotes.toscrape.com/", cfg.Scraper.StartURL)
	assert.Equal(t, 2*time.Second, cfg.Scraper.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.Scraper.MaxDelay)
	assert.Equal(t, 20, cfg.Scraper.RequestsPerMinute)
	assert.Equal(t, 3, cfg.Backoff.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Backoff.MaxDelayCap)
	assert.False(t, cfg.Identity.UseProxies)
	assert.False(t, cfg.HasDatabase())
	assert.Equal(t, "json", cfg.Export.Format)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCRAPER_MIN_DELAY", "1s")
	t.Setenv("SCRAPER_MAX_DELAY", "3s")
	t.Setenv("SCRAPER_REQUESTS_PER_MINUTE", "10")
	t.Setenv("SCRAPER_PAGE_CAP", "5")
	t.Setenv("SCRAPER_USE_PROXIES", "true")
	t.Setenv("SCRAPER_PROXIES", "proxy1.example.com:8080, proxy2.example.com:8080:user:pass")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Scraper.MinDelay)
	assert.Equal(t, 3*time.Second, cfg.Scraper.MaxDelay)
	assert.Equal(t, 10, cfg.Scraper.RequestsPerMinute)
	assert.Equal(t, 5, cfg.Scraper.PageCap)
	assert.True(t, cfg.Identity.UseProxies)
	assert.Equal(t, []string{"proxy1.example.com:8080", "proxy2.example.com:8080:user:pass"}, cfg.Identity.Proxies)
	assert.True(t, cfg.HasDatabase())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "min delay above max delay",
			mutate:  func(c *Config) { c.Scraper.MinDelay = 10 * time.Second },
			wantErr: "SCRAPER_MIN_DELAY",
		},
		{
			name:    "zero requests per minute",
			mutate:  func(c *Config) { c.Scraper.RequestsPerMinute = 0 },
			wantErr: "SCRAPER_REQUESTS_PER_MINUTE",
		},
		{
			name:    "negative max retries",
			mutate:  func(c *Config) { c.Backoff.MaxRetries = -1 },
			wantErr: "SCRAPER_MAX_RETRIES",
		},
		{
			name:    "unknown rotation mode",
			mutate:  func(c *Config) { c.Identity.RotationMode = "sticky" },
			wantErr: "SCRAPER_ROTATION_MODE",
		},
		{
			name: "proxies enabled without list",
			mutate: func(c *Config) {
				c.Identity.UseProxies = true
				c.Identity.Proxies = nil
			},
			wantErr: "SCRAPER_PROXIES",
		},
		{
			name:    "bad export format",
			mutate:  func(c *Config) { c.Export.Format = "xml" },
			wantErr: "EXPORT_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"NG_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"NG_DB_MAX_CONNS" default:"8"`

	DecoderConcurrency int           `envconfig:"DECODER_CONCURRENCY" default:"10"`
	NavTimeout         time.Duration `envconfig:"NAV_TIMEOUT" default:"20s"`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	PollAttempts       int           `envconfig:"POLL_ATTEMPTS" default:"10"`

	SearchHL   string `envconfig:"SEARCH_HL" default:"ru"`
	SearchGL   string `envconfig:"SEARCH_GL" default:"RU"`
	SearchCEID string `envconfig:"SEARCH_CEID" default:"RU:ru"`

	CategoryFile string `envconfig:"CATEGORY_FILE" default:"categories.yaml"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("NG_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("NG_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("NG_DB_MIN_CONNS (%d) cannot exceed NG_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DecoderConcurrency < 1 {
		return fmt.Errorf("DECODER_CONCURRENCY must be >= 1")
	}
	if c.NavTimeout < time.Second {
		return fmt.Errorf("NAV_TIMEOUT must be >= 1s")
	}
	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("POLL_INTERVAL must be >= 100ms")
	}
	if c.PollAttempts < 1 {
		return fmt.Errorf("POLL_ATTEMPTS must be >= 1")
	}
	return nil
}

// SearchFeedURL builds the aggregator search feed URL for a free-text query.
func (c *Config) SearchFeedURL(query string) string {
	return fmt.Sprintf(
		"https://news.google.com/rss/search?q=%s&hl=%s&gl=%s&ceid=%s",
		url.QueryEscape(query), c.SearchHL, c.SearchGL, url.QueryEscape(c.SearchCEID),
	)
}

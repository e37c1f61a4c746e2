package config

import (
	"fmt"
	"net/url"
	"time"

	"catalog-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// SitemapURL
	if c.SitemapURL == "" {
		return warnings, fmt.Errorf("%w: sitemap_url is required", utils.ErrConfigValidation)
	}
	parsed, parseErr := url.ParseRequestURI(c.SitemapURL)
	if parseErr != nil {
		return warnings, fmt.Errorf("%w: sitemap_url is not a valid URL: %v", utils.ErrConfigValidation, parseErr)
	}

	// AllowedDomain
	if c.AllowedDomain == "" {
		warnings = append(warnings, fmt.Sprintf(
			"allowed_domain not specified, defaulting to sitemap host (%s)", parsed.Hostname()))
		c.AllowedDomain = parsed.Hostname()
	}

	// UserAgent
	if c.UserAgent == "" {
		warnings = append(warnings, "user_agent is empty, defaulting to 'catalog-scraper/1.0'")
		c.UserAgent = "catalog-scraper/1.0"
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	// BatchSize
	if c.BatchSize <= 0 {
		warnings = append(warnings, fmt.Sprintf(
			"batch_size not specified or invalid, defaulting to 2x num_workers (%d)", c.NumWorkers*2))
		c.BatchSize = c.NumWorkers * 2
	}

	// MaxRequests
	if c.MaxRequests <= 0 {
		warnings = append(warnings, "max_requests should be > 0, defaulting to 10")
		c.MaxRequests = 10
	}

	// MaxURLs
	if c.MaxURLs < 0 {
		warnings = append(warnings, "max_urls cannot be negative, setting to 0 (no limit)")
		c.MaxURLs = 0
	}

	// MaxAttempts
	if c.MaxAttempts <= 0 {
		warnings = append(warnings, "max_url_attempts should be > 0, defaulting to 3")
		c.MaxAttempts = 3
	}

	// LeaseTimeout
	if c.LeaseTimeout <= 0 {
		warnings = append(warnings, "lease_timeout not specified, defaulting to 5m")
		c.LeaseTimeout = 5 * time.Minute
	}

	// FetchTimeout
	if c.FetchTimeout <= 0 {
		warnings = append(warnings, "fetch_timeout not specified, defaulting to 30s")
		c.FetchTimeout = 30 * time.Second
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = 1 * time.Second
	}
	if c.MaxRetryDelay <= 0 || c.MaxRetryDelay < c.InitialRetryDelay {
		c.MaxRetryDelay = 30 * time.Second
	}

	// QualityAcceptThreshold
	if c.QualityAcceptThreshold < 0 || c.QualityAcceptThreshold > 1 {
		warnings = append(warnings, "quality_accept_threshold must be in [0,1], defaulting to 0.5")
		c.QualityAcceptThreshold = 0.5
	}
	if c.QualityAcceptThreshold == 0 {
		c.QualityAcceptThreshold = 0.5
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		c.StateDir = "./scraper_state"
	}

	// Mongo settings
	if c.MongoURI == "" {
		return warnings, fmt.Errorf("%w: mongo_uri is required", utils.ErrConfigValidation)
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "catalog"
	}
	if c.MongoCollection == "" {
		c.MongoCollection = "products"
	}
	if c.PersistRetries <= 0 {
		c.PersistRetries = 3
	}

	// Kafka settings
	if c.KafkaBroker == "" {
		return warnings, fmt.Errorf("%w: kafka_broker is required", utils.ErrConfigValidation)
	}
	if c.KafkaIndexTopic == "" {
		c.KafkaIndexTopic = "catalog.index-requests"
	}

	// Index summary bounds
	if c.SummaryTokenBudget <= 0 {
		c.SummaryTokenBudget = 512
	}
	if c.TokenizerEncoding == "" {
		c.TokenizerEncoding = "cl100k_base"
	}

	// CheckpointInterval
	if c.CheckpointInterval <= 0 {
		warnings = append(warnings, "checkpoint_interval not specified, defaulting to 30s")
		c.CheckpointInterval = 30 * time.Second
	}

	// HTTP client defaults
	if c.HTTPClientSettings.Timeout <= 0 {
		c.HTTPClientSettings.Timeout = c.FetchTimeout
	}
	if c.HTTPClientSettings.MaxIdleConns <= 0 {
		c.HTTPClientSettings.MaxIdleConns = 100
	}
	if c.HTTPClientSettings.MaxIdleConnsPerHost <= 0 {
		c.HTTPClientSettings.MaxIdleConnsPerHost = 10
	}
	if c.HTTPClientSettings.IdleConnTimeout <= 0 {
		c.HTTPClientSettings.IdleConnTimeout = 90 * time.Second
	}
	if c.HTTPClientSettings.TLSHandshakeTimeout <= 0 {
		c.HTTPClientSettings.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.HTTPClientSettings.ExpectContinueTimeout <= 0 {
		c.HTTPClientSettings.ExpectContinueTimeout = 1 * time.Second
	}
	if c.HTTPClientSettings.DialerTimeout <= 0 {
		c.HTTPClientSettings.DialerTimeout = 15 * time.Second
	}
	if c.HTTPClientSettings.DialerKeepAlive <= 0 {
		c.HTTPClientSettings.DialerKeepAlive = 30 * time.Second
	}

	return warnings, nil
}

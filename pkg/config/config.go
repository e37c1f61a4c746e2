package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the global pipeline configuration.
type AppConfig struct {
	// Acquisition source
	SitemapURL    string `yaml:"sitemap_url"`
	AllowedDomain string `yaml:"allowed_domain"`
	UserAgent     string `yaml:"user_agent,omitempty"`

	// Concurrency and scheduling
	NumWorkers   int           `yaml:"num_workers"`
	BatchSize    int           `yaml:"batch_size,omitempty"`
	MaxRequests  int           `yaml:"max_requests,omitempty"` // Global in-flight request cap
	MaxURLs      int           `yaml:"max_urls,omitempty"`     // 0 = no limit for this run
	MaxAttempts  int           `yaml:"max_url_attempts,omitempty"`
	LeaseTimeout time.Duration `yaml:"lease_timeout,omitempty"` // Staleness bound for reclaiming in_progress leases

	// Fetch behavior
	FetchTimeout      time.Duration `yaml:"fetch_timeout,omitempty"`
	MaxRetries        int           `yaml:"max_retries,omitempty"`
	InitialRetryDelay time.Duration `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay,omitempty"`
	DelayPerHost      time.Duration `yaml:"delay_per_host,omitempty"`
	RespectRobots     *bool         `yaml:"respect_robots,omitempty"` // nil = true

	// Quality gate
	QualityAcceptThreshold float64 `yaml:"quality_accept_threshold,omitempty"`

	// Persistence
	StateDir           string `yaml:"state_dir"`
	MongoURI           string `yaml:"mongo_uri"`
	MongoDatabase      string `yaml:"mongo_database,omitempty"`
	MongoCollection    string `yaml:"mongo_collection,omitempty"`
	PersistRetries     int    `yaml:"persist_retries,omitempty"`
	KafkaBroker        string `yaml:"kafka_broker"`
	KafkaIndexTopic    string `yaml:"kafka_index_topic,omitempty"`
	SummaryTokenBudget int    `yaml:"summary_token_budget,omitempty"`
	TokenizerEncoding  string `yaml:"tokenizer_encoding,omitempty"`

	// Checkpointing
	CheckpointInterval time.Duration `yaml:"checkpoint_interval,omitempty"`

	// HTTP client
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client.
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // Pointer for tri-state: nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file '%s': %w", path, err)
	}
	return &cfg, nil
}

// RobotsEnabled resolves the tri-state respect_robots flag (default true).
func (c *AppConfig) RobotsEnabled() bool {
	if c.RespectRobots != nil {
		return *c.RespectRobots
	}
	return true
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *AppConfig {
	return &AppConfig{
		SitemapURL:  "https://www.example.com/sitemap.xml",
		MongoURI:    "mongodb://localhost:27017",
		KafkaBroker: "localhost:9092",
	}
}

func TestValidate(t *testing.T) {
	t.Run("minimal config passes with defaults", func(t *testing.T) {
		cfg := validConfig()
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.NotEmpty(t, warnings)

		assert.Equal(t, "www.example.com", cfg.AllowedDomain)
		assert.Equal(t, 4, cfg.NumWorkers)
		assert.Equal(t, 8, cfg.BatchSize)
		assert.Equal(t, 3, cfg.MaxAttempts)
		assert.Equal(t, 5*time.Minute, cfg.LeaseTimeout)
		assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
		assert.Equal(t, 0.5, cfg.QualityAcceptThreshold)
		assert.Equal(t, "catalog", cfg.MongoDatabase)
		assert.Equal(t, "products", cfg.MongoCollection)
		assert.Equal(t, "catalog.index-requests", cfg.KafkaIndexTopic)
		assert.Equal(t, 512, cfg.SummaryTokenBudget)
		assert.Equal(t, 30*time.Second, cfg.CheckpointInterval)
	})

	t.Run("missing sitemap_url is fatal", func(t *testing.T) {
		cfg := validConfig()
		cfg.SitemapURL = ""
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("invalid sitemap_url is fatal", func(t *testing.T) {
		cfg := validConfig()
		cfg.SitemapURL = "not a url"
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("missing mongo_uri is fatal", func(t *testing.T) {
		cfg := validConfig()
		cfg.MongoURI = ""
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("missing kafka_broker is fatal", func(t *testing.T) {
		cfg := validConfig()
		cfg.KafkaBroker = ""
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("out-of-range threshold resets to default", func(t *testing.T) {
		cfg := validConfig()
		cfg.QualityAcceptThreshold = 1.5
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, 0.5, cfg.QualityAcceptThreshold)
		assert.NotEmpty(t, warnings)
	})

	t.Run("explicit values preserved", func(t *testing.T) {
		cfg := validConfig()
		cfg.NumWorkers = 16
		cfg.QualityAcceptThreshold = 0.7
		cfg.LeaseTimeout = time.Minute
		_, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.NumWorkers)
		assert.Equal(t, 0.7, cfg.QualityAcceptThreshold)
		assert.Equal(t, time.Minute, cfg.LeaseTimeout)
	})

	t.Run("robots default true", func(t *testing.T) {
		cfg := validConfig()
		assert.True(t, cfg.RobotsEnabled())
		disabled := false
		cfg.RespectRobots = &disabled
		assert.False(t, cfg.RobotsEnabled())
	})
}

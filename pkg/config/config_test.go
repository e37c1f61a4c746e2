package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
sitemap_url: https://www.example.com/sitemap.xml
allowed_domain: www.example.com
num_workers: 8
fetch_timeout: 45s
mongo_uri: mongodb://localhost:27017
kafka_broker: localhost:9092
quality_accept_threshold: 0.6
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://www.example.com/sitemap.xml", cfg.SitemapURL)
		assert.Equal(t, 8, cfg.NumWorkers)
		assert.Equal(t, 45*time.Second, cfg.FetchTimeout)
		assert.Equal(t, 0.6, cfg.QualityAcceptThreshold)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sitemap_url: [unclosed"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

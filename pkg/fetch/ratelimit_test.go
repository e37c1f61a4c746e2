package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("no delay on first request", func(t *testing.T) {
		rl := NewRateLimiter(50*time.Millisecond, testLogger())
		start := time.Now()
		rl.ApplyDelay("example.com", 50*time.Millisecond)
		assert.Less(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("delays consecutive requests to same host", func(t *testing.T) {
		rl := NewRateLimiter(50*time.Millisecond, testLogger())
		rl.UpdateLastRequestTime("example.com")
		start := time.Now()
		rl.ApplyDelay("example.com", 50*time.Millisecond)
		// Jitter is +/-10%, so at least ~40ms must have elapsed
		assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	})

	t.Run("different hosts independent", func(t *testing.T) {
		rl := NewRateLimiter(50*time.Millisecond, testLogger())
		rl.UpdateLastRequestTime("a.example.com")
		start := time.Now()
		rl.ApplyDelay("b.example.com", 50*time.Millisecond)
		assert.Less(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("zero delay is a no-op", func(t *testing.T) {
		rl := NewRateLimiter(0, testLogger())
		rl.UpdateLastRequestTime("example.com")
		start := time.Now()
		rl.ApplyDelay("example.com", 0)
		assert.Less(t, time.Since(start), 10*time.Millisecond)
	})
}

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/config"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/utils"
)

// maxBodyBytes caps how much of a product page we will read. Catalog pages
// run well under 2MB; anything larger is junk or a misdirected download.
const maxBodyBytes = 8 << 20

// Fetcher retrieves catalog pages with configured retry logic. It is
// stateless across calls and safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	cfg         *config.AppConfig
	rateLimiter *RateLimiter
	robots      *RobotsGate // nil when robots checking is disabled
	log         *logrus.Logger
}

// NewFetcher creates a new Fetcher instance.
func NewFetcher(client *http.Client, cfg *config.AppConfig, rateLimiter *RateLimiter, robots *RobotsGate, log *logrus.Logger) *Fetcher {
	return &Fetcher{
		client:      client,
		cfg:         cfg,
		rateLimiter: rateLimiter,
		robots:      robots,
		log:         log,
	}
}

// FetchPage retrieves a single catalog page and returns it as a RawPage with
// its ordered ld+json blobs collected. Transient failures (network errors,
// 5xx, 429) are retried with exponential backoff and jitter; permanent
// failures (other 4xx, malformed URLs) return immediately wrapped in
// ErrFetchPermanent.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (*models.RawPage, error) {
	reqLog := f.log.WithField("url", pageURL)

	parsed, err := url.ParseRequestURI(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed URL: %v", utils.ErrFetchPermanent, err)
	}

	if f.robots != nil {
		allowed, robotsErr := f.robots.Allowed(ctx, parsed)
		if robotsErr != nil {
			reqLog.Warnf("robots.txt check failed, proceeding: %v", robotsErr)
		} else if !allowed {
			return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, pageURL)
		}
	}

	body, err := f.fetchWithRetry(ctx, parsed, reqLog)
	if err != nil {
		return nil, err
	}

	page := &models.RawPage{
		URL:  pageURL,
		HTML: body,
	}
	page.EmbeddedJSON = collectEmbeddedJSON(body, reqLog)
	return page, nil
}

// fetchWithRetry performs the HTTP request loop with exponential backoff and
// jitter for transient errors.
func (f *Fetcher) fetchWithRetry(ctx context.Context, target *url.URL, reqLog *logrus.Entry) ([]byte, error) {
	var lastErr error

	maxRetries := f.cfg.MaxRetries
	initialRetryDelay := f.cfg.InitialRetryDelay
	maxRetryDelay := f.cfg.MaxRetryDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Check cancellation before attempting or sleeping
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry after error: %w", ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", ctx.Err())
		default:
		}

		if attempt > 0 {
			// Delay: initial * 2^(attempt-1), capped, with +/- 10% jitter
			backoff := float64(initialRetryDelay) * math.Pow(2, float64(attempt-1))
			delay := time.Duration(backoff)
			if delay <= 0 || delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			var jitter time.Duration
			if jitterRange := int64(delay) / 5; jitterRange > 0 {
				jitter = time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
			}
			finalDelay := delay + jitter
			if finalDelay < 0 {
				finalDelay = 0
			}

			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": finalDelay}).Warn("Retrying request...")

			select {
			case <-time.After(finalDelay):
			case <-ctx.Done():
				if lastErr != nil {
					return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
				}
				return nil, fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		if f.rateLimiter != nil {
			f.rateLimiter.ApplyDelay(target.Hostname(), f.cfg.DelayPerHost)
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if reqErr != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, reqErr)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, doErr := f.client.Do(req)
		if f.rateLimiter != nil {
			f.rateLimiter.UpdateLastRequestTime(target.Hostname())
		}

		if doErr != nil {
			if errors.Is(doErr, context.Canceled) || errors.Is(doErr, context.DeadlineExceeded) {
				return nil, doErr
			}
			// Network-level errors (DNS, TCP, TLS, resets) are transient
			lastErr = fmt.Errorf("%w: %v", utils.ErrFetchTransient, doErr)
			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", doErr)
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			drainAndClose(resp)
			if readErr != nil {
				lastErr = fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, readErr)
				resLog.Warnf("Body read failed, retrying: %v", readErr)
				continue
			}
			resLog.Debug("Successfully fetched")
			return body, nil

		case statusCode >= 500 || statusCode == http.StatusTooManyRequests:
			// Transient server-side condition, retry
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrFetchTransient, statusCode, resp.Status)
			drainAndClose(resp)
			resLog.Warn("Transient HTTP status, retrying...")
			continue

		default:
			// 404, 410, other 4xx, unexpected 3xx: permanent, no retry
			drainAndClose(resp)
			resLog.Warn("Permanent HTTP status, not retrying")
			return nil, fmt.Errorf("%w: status %d %s", utils.ErrFetchPermanent, statusCode, resp.Status)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}
	return nil, utils.ErrRetryFailed
}

// drainAndClose discards any unread body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// collectEmbeddedJSON extracts ld+json script blobs in document order. Parse
// failures here are not fatal; extraction has text fallbacks.
func collectEmbeddedJSON(html []byte, reqLog *logrus.Entry) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		reqLog.Debugf("HTML parse for embedded JSON failed: %v", err)
		return nil
	}
	var blobs []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			blobs = append(blobs, text)
		}
	})
	return blobs
}

package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsGate fetches, parses, and caches robots.txt per host and answers
// path-level allow checks. A fetch failure or missing file caches nil, which
// Allowed treats as "everything permitted".
type RobotsGate struct {
	client        *http.Client
	userAgent     string
	robotsCache   map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	robotsCacheMu sync.Mutex
	log           *logrus.Entry
}

// NewRobotsGate creates a RobotsGate using the shared HTTP client.
func NewRobotsGate(client *http.Client, userAgent string, log *logrus.Entry) *RobotsGate {
	return &RobotsGate{
		client:      client,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// Allowed reports whether targetURL may be fetched under the host's
// robots.txt rules.
func (rg *RobotsGate) Allowed(ctx context.Context, targetURL *url.URL) (bool, error) {
	data, err := rg.robotsData(ctx, targetURL)
	if err != nil {
		return false, err
	}
	if data == nil {
		return true, nil // No robots.txt (or unreadable): allow
	}
	group := data.FindGroup(rg.userAgent)
	if group == nil {
		return true, nil
	}
	path := targetURL.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path), nil
}

// robotsData returns cached robots data for the host, fetching on a miss.
func (rg *RobotsGate) robotsData(ctx context.Context, targetURL *url.URL) (*robotstxt.RobotsData, error) {
	host := targetURL.Hostname()

	rg.robotsCacheMu.Lock()
	data, found := rg.robotsCache[host]
	rg.robotsCacheMu.Unlock()
	if found {
		return data, nil
	}

	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	if robotsURL.Scheme != "http" && robotsURL.Scheme != "https" {
		robotsURL.Scheme = "https"
	}
	hostLog := rg.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL.String()})
	hostLog.Info("Fetching robots.txt...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rg.userAgent)

	resp, err := rg.client.Do(req)
	if err != nil {
		hostLog.Warnf("robots.txt fetch failed: %v. Caching as permissive.", err)
		rg.cache(host, nil)
		return nil, nil
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		hostLog.Debugf("robots.txt status %d. Caching as permissive.", resp.StatusCode)
		rg.cache(host, nil)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		hostLog.Warnf("robots.txt body read failed: %v. Caching as permissive.", err)
		rg.cache(host, nil)
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(body)
	if err != nil {
		hostLog.Warnf("robots.txt parse failed: %v. Caching as permissive.", err)
		rg.cache(host, nil)
		return nil, nil
	}

	rg.cache(host, parsed)
	return parsed, nil
}

func (rg *RobotsGate) cache(host string, data *robotstxt.RobotsData) {
	rg.robotsCacheMu.Lock()
	rg.robotsCache[host] = data
	rg.robotsCacheMu.Unlock()
}

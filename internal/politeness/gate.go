// Package politeness enforces robots.txt directives per host.
package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Decision is the gate's answer for one URL.
type Decision struct {
	Allowed bool
	// MinDelay is the site's Crawl-delay for our user agent, zero when the
	// site does not declare one. The caller applies its own base delay on top.
	MinDelay time.Duration
}

// Gate fetches and caches robots.txt once per domain per TTL window.
// A failed fetch is treated as fully permissive rather than blocking the
// domain indefinitely.
type Gate struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// New builds a Gate.
func New(userAgent string, ttl time.Duration, logger *zap.Logger) *Gate {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Gate{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		ttl:       ttl,
		logger:    logger,
		cache:     make(map[string]cacheEntry),
	}
}

// Check resolves the crawl policy for rawURL. Fail-open: any error fetching
// or parsing the policy document yields a permissive decision.
func (g *Gate) Check(ctx context.Context, rawURL string) Decision {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return Decision{Allowed: false}
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return Decision{Allowed: true}
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return Decision{Allowed: true}
	}
	p := parsed.Path
	if p == "" {
		p = "/"
	}
	return Decision{Allowed: group.Test(p), MinDelay: group.CrawlDelay}
}

func (g *Gate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	g.mu.Lock()
	entry, ok := g.cache[hostKey]
	g.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < g.ttl {
		return entry.data, nil
	}

	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	// FromStatusAndBytes treats 404 as allow-all, matching the contract.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	g.mu.Lock()
	g.cache[hostKey] = cacheEntry{data: data, fetchedAt: time.Now()}
	g.mu.Unlock()
	return data, nil
}

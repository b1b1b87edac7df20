// Package fetch implements the conditional HTTP fetcher using gocolly.
//
// One call performs one GET, sending any cached validators so an unchanged
// page comes back as 304 instead of a full body. The fetcher never fails on
// a non-2xx status: every outcome, including network-level failures, is
// reported through the Response so the orchestrator can classify it.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// TruncationMarker is appended to bodies cut at the configured byte cap.
const TruncationMarker = "\n[truncated]"

// Classification buckets a fetch outcome for the retry loop.
type Classification int

// Outcome classes.
const (
	ClassSuccess   Classification = iota // 2xx or 304
	ClassTransient                       // 429, 5xx, or network-level failure
	ClassPermanent                       // other 4xx
)

// Classify maps a status code (0 for network failure) onto an outcome class.
func Classify(statusCode int) Classification {
	switch {
	case statusCode == 0:
		return ClassTransient
	case statusCode >= 200 && statusCode < 300, statusCode == http.StatusNotModified:
		return ClassSuccess
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// Config controls fetcher behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	BodyCapBytes int
}

// Request is one conditional GET. ETag/LastModified come from the previous
// run's ScrapeState and may be empty.
type Request struct {
	URL          string
	ETag         string
	LastModified string
}

// Response is the outcome of one attempt. StatusCode is 0 and NetworkErr is
// set when the request never produced an HTTP response.
type Response struct {
	URL          string
	StatusCode   int
	Body         []byte
	Truncated    bool
	ETag         string
	LastModified string
	RetryAfter   string // raw Retry-After header, parsed by the retry engine
	Duration     time.Duration
	NetworkErr   error
}

// Class classifies this response.
func (r Response) Class() Classification { return Classify(r.StatusCode) }

// Fetcher implements the conditional GET using a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BodyCapBytes <= 0 {
		cfg.BodyCapBytes = 50 * 1024
	}
	// Synchronous is colly's default; colly v2.1.0's Async option ignores its
	// argument and always enables async, so it must not be passed here.
	c := colly.NewCollector()
	// Robots enforcement lives in the politeness gate, not here.
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single conditional GET.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	result := Response{URL: request.URL}
	start := time.Now()

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		if request.ETag != "" {
			r.Headers.Set("If-None-Match", request.ETag)
		}
		if request.LastModified != "" {
			r.Headers.Set("If-Modified-Since", request.LastModified)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		f.record(&result, r, start)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// Non-2xx still carries validators and Retry-After hints.
			f.record(&result, r, start)
			return
		}
		result.Duration = time.Since(start)
		result.NetworkErr = err
	})

	done := make(chan struct{}, 1)
	go func() {
		if err := collector.Visit(request.URL); err != nil && result.NetworkErr == nil && result.StatusCode == 0 {
			result.NetworkErr = err
			result.Duration = time.Since(start)
		}
		done <- struct{}{}
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case <-done:
		return result, nil
	}
}

func (f *Fetcher) record(result *Response, r *colly.Response, start time.Time) {
	body := append([]byte(nil), r.Body...)
	truncated := false
	if len(body) > f.cfg.BodyCapBytes {
		body = append(body[:f.cfg.BodyCapBytes], []byte(TruncationMarker)...)
		truncated = true
	}
	*result = Response{
		URL:          r.Request.URL.String(),
		StatusCode:   r.StatusCode,
		Body:         body,
		Truncated:    truncated,
		ETag:         r.Headers.Get("ETag"),
		LastModified: r.Headers.Get("Last-Modified"),
		RetryAfter:   r.Headers.Get("Retry-After"),
		Duration:     time.Since(start),
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

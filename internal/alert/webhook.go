// Package alert notifies operators when a source keeps failing. Delivery is
// best effort: a broken webhook must never affect the crawl itself.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/model"
)

// Failure is one failed attempt fed into diagnosis.
type Failure struct {
	StatusCode int
	ErrorText  string
}

// Notifier posts source-failure alerts to a webhook.
type Notifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewNotifier builds a Notifier. An empty URL disables delivery.
func NewNotifier(url string, timeout time.Duration, logger *zap.Logger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// SourceDown posts an alert for a source that crossed the failure threshold.
// Returns true only when the webhook accepted the message, so the caller can
// decide whether the suppression window starts.
func (n *Notifier) SourceDown(ctx context.Context, runID string, src model.Source, failures []Failure, consecutive int) bool {
	if !n.Enabled() {
		return false
	}

	payload := struct {
		Text string `json:"text"`
	}{Text: buildMessage(runID, src, failures, consecutive)}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("marshal alert payload", zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("build alert request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("alert delivery failed",
			zap.String("source", src.ID), zap.Error(err))
		metrics.IncAlert("failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("alert webhook rejected message",
			zap.String("source", src.ID), zap.Int("status", resp.StatusCode))
		metrics.IncAlert("rejected")
		return false
	}
	metrics.IncAlert("delivered")
	return true
}

// buildMessage renders the multi-line alert text: headline, status histogram,
// last error, diagnosis and suggested remediation.
func buildMessage(runID string, src model.Source, failures []Failure, consecutive int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source %s is failing (%d consecutive failures)\n", src.ID, consecutive)
	fmt.Fprintf(&b, "URL: %s\n", src.URL)
	fmt.Fprintf(&b, "Run: %s\n", runID)

	hist := statusHistogram(failures)
	if len(hist) > 0 {
		b.WriteString("Recent attempts:\n")
		for _, line := range hist {
			b.WriteString("  " + line + "\n")
		}
	}
	if last := lastError(failures); last != "" {
		fmt.Fprintf(&b, "Last error: %s\n", last)
	}

	diagnosis, remedy := Diagnose(failures)
	fmt.Fprintf(&b, "Likely cause: %s\n", diagnosis)
	fmt.Fprintf(&b, "Suggested action: %s", remedy)
	return b.String()
}

func lastError(failures []Failure) string {
	for i := len(failures) - 1; i >= 0; i-- {
		if failures[i].ErrorText != "" {
			text := failures[i].ErrorText
			if len(text) > 200 {
				text = text[:200]
			}
			return text
		}
	}
	return ""
}

func statusHistogram(failures []Failure) []string {
	counts := make(map[int]int)
	for _, f := range failures {
		counts[f.StatusCode]++
	}
	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	lines := make([]string, 0, len(codes))
	for _, code := range codes {
		label := fmt.Sprintf("HTTP %d", code)
		if code == 0 {
			label = "network error"
		}
		lines = append(lines, fmt.Sprintf("%s: %d", label, counts[code]))
	}
	return lines
}

// Diagnose guesses the dominant failure cause from recent attempts and names
// a remediation for it.
func Diagnose(failures []Failure) (string, string) {
	var rateLimited, server, client, network, parsing int
	for _, f := range failures {
		switch {
		case f.StatusCode == 429:
			rateLimited++
		case f.StatusCode >= 500:
			server++
		case f.StatusCode >= 400:
			client++
		case f.StatusCode == 0 && strings.Contains(f.ErrorText, "parse"):
			parsing++
		default:
			network++
		}
	}

	max := rateLimited
	diagnosis, remedy := "rate limited", "lower requests_per_minute for this source"
	if server > max {
		max, diagnosis, remedy = server, "server errors", "wait for the site to recover; no config change needed"
	}
	if client > max {
		max, diagnosis, remedy = client, "client errors", "check whether the page moved and update the source URL"
	}
	if parsing > max {
		max, diagnosis, remedy = parsing, "parsing failures", "inspect the page layout; extraction selectors may be stale"
	}
	if network > max {
		diagnosis, remedy = "network failures", "check DNS and connectivity from the crawl host"
	}
	return diagnosis, remedy
}

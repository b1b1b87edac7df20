// Package orchestrator drives the crawl: politeness checks, rate-limited
// fetching with retries, per-source state and operator alerts. Extraction and
// storage of page content happen in the handler it calls on success.
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/alert"
	"github.com/urbanpulse/event-harvester/internal/fetch"
	"github.com/urbanpulse/event-harvester/internal/logging"
	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/model"
	"github.com/urbanpulse/event-harvester/internal/politeness"
	"github.com/urbanpulse/event-harvester/internal/ratelimit"
	"github.com/urbanpulse/event-harvester/internal/retry"
	"github.com/urbanpulse/event-harvester/internal/store"
)

// Fetcher is the conditional GET dependency.
type Fetcher interface {
	Fetch(ctx context.Context, request fetch.Request) (fetch.Response, error)
}

// Gate is the robots.txt dependency.
type Gate interface {
	Check(ctx context.Context, rawURL string) politeness.Decision
}

// Notifier is the operator-alert dependency.
type Notifier interface {
	SourceDown(ctx context.Context, runID string, src model.Source, failures []alert.Failure, consecutive int) bool
}

// Handler consumes one successful fetch. It runs inline in the crawl loop;
// its errors are logged and counted but never retried at this level.
type Handler func(ctx context.Context, src model.Source, outcome model.FetchOutcome) error

// Config holds orchestrator tunables. BaseDelay and Jitter shape the
// courtesy wait taken before every fetch attempt.
type Config struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	Jitter            time.Duration
	FailureThreshold  int
	SuppressionWindow time.Duration
}

// Summary aggregates one run's outcomes.
type Summary struct {
	RunID        string
	Sources      int
	Fetched      int
	NotModified  int
	Failed       int
	Blocked      int
	AlertsSent   int
	HandlerError int
}

// Orchestrator coordinates one harvest run.
type Orchestrator struct {
	cfg      Config
	fetcher  Fetcher
	gate     Gate
	limiter  *ratelimit.Limiter
	policy   *retry.Policy
	states   store.ScrapeStates
	outcomes store.OutcomeLog
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds an Orchestrator.
func New(cfg Config, fetcher Fetcher, gate Gate, limiter *ratelimit.Limiter,
	policy *retry.Policy, st store.Store, notifier Notifier, logger *zap.Logger) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = 30 * time.Minute
	}
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		gate:     gate,
		limiter:  limiter,
		policy:   policy,
		states:   st,
		outcomes: st,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run crawls all sources. Sources sharing a domain run sequentially on that
// domain's limiter; distinct domains run in parallel up to the global cap.
func (o *Orchestrator) Run(ctx context.Context, sources []model.Source, handle Handler) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), Sources: len(sources)}
	var mu sync.Mutex

	byDomain := groupByDomain(sources)
	var wg sync.WaitGroup
	for domain, group := range byDomain {
		if err := o.limiter.AcquireDomainSlot(ctx); err != nil {
			wg.Wait()
			return summary, err
		}
		wg.Add(1)
		go func(domain string, group []model.Source) {
			defer wg.Done()
			defer o.limiter.ReleaseDomainSlot()
			for _, src := range group {
				result := o.harvestSource(ctx, summary.RunID, src, handle)
				mu.Lock()
				summary.Fetched += result.Fetched
				summary.NotModified += result.NotModified
				summary.Failed += result.Failed
				summary.Blocked += result.Blocked
				summary.AlertsSent += result.AlertsSent
				summary.HandlerError += result.HandlerError
				mu.Unlock()
			}
		}(domain, group)
	}
	wg.Wait()
	return summary, ctx.Err()
}

// harvestSource runs the attempt loop for one source and settles its state.
func (o *Orchestrator) harvestSource(ctx context.Context, runID string, src model.Source, handle Handler) Summary {
	var result Summary
	log := logging.ForSource(o.logger, src.ID)

	state, err := o.states.GetState(ctx, src.ID)
	if err != nil {
		log.Error("load scrape state", zap.Error(err))
		state = nil
	}
	if state == nil {
		state = &model.ScrapeState{SourceID: src.ID}
	}

	decision := o.gate.Check(ctx, src.URL)
	if !decision.Allowed {
		log.Warn("blocked by robots.txt", zap.String("url", src.URL))
		o.appendOutcome(ctx, model.FetchOutcome{
			RunID:     runID,
			SourceID:  src.ID,
			ErrorText: "blocked by robots.txt",
			FetchedAt: o.now(),
		})
		result.Blocked++
		result.Failed++
		result.AlertsSent += o.settleFailure(ctx, runID, src, state,
			[]alert.Failure{{ErrorText: "blocked by robots.txt"}})
		return result
	}

	dl := o.limiter.Domain(domainOf(src), src.RequestsPerMinute, src.Concurrency)
	var failures []alert.Failure
	var retryAfter string

	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		// Courtesy wait before every attempt: the larger of the robots
		// crawl-delay and the configured base, plus jitter. Retries add
		// the backoff term on top.
		delay := o.cfg.BaseDelay
		if decision.MinDelay > delay {
			delay = decision.MinDelay
		}
		delay += retry.Jitter(o.cfg.Jitter)
		if attempt > 0 {
			delay += o.policy.Delay(attempt-1, retryAfter, o.now())
		}
		if err := o.sleep(ctx, delay); err != nil {
			return result
		}

		if err := dl.Acquire(ctx); err != nil {
			return result
		}
		resp, err := o.fetcher.Fetch(ctx, fetch.Request{
			URL:          src.URL,
			ETag:         state.ETag,
			LastModified: state.LastModified,
		})
		dl.Release()
		if err != nil {
			// Only context cancellation reaches here.
			return result
		}

		outcome := outcomeFrom(runID, src, resp, o.now())
		o.appendOutcome(ctx, outcome)
		metrics.IncFetch(domainOf(src), classLabel(resp.Class()))

		switch resp.Class() {
		case fetch.ClassSuccess:
			o.settleSuccess(ctx, src, state, resp)
			if resp.StatusCode == 304 {
				result.NotModified++
				return result
			}
			result.Fetched++
			if handle != nil {
				if err := handle(ctx, src, outcome); err != nil {
					log.Error("handle fetched page", zap.Error(err))
					result.HandlerError++
				}
			}
			return result

		case fetch.ClassPermanent:
			log.Warn("permanent fetch failure",
				zap.Int("status", resp.StatusCode))
			failures = append(failures, alert.Failure{StatusCode: resp.StatusCode})
			result.Failed++
			result.AlertsSent += o.settleFailure(ctx, runID, src, state, failures)
			return result

		default: // transient
			failures = append(failures, alert.Failure{
				StatusCode: resp.StatusCode,
				ErrorText:  outcome.ErrorText,
			})
			retryAfter = resp.RetryAfter
			log.Debug("transient fetch failure",
				zap.Int("attempt", attempt+1),
				zap.Int("status", resp.StatusCode))
		}
	}

	log.Warn("source exhausted retry budget",
		zap.Int("attempts", o.cfg.MaxAttempts))
	result.Failed++
	result.AlertsSent += o.settleFailure(ctx, runID, src, state, failures)
	return result
}

// settleSuccess resets the failure streak and stores fresh validators. A 304
// keeps the old validators since the server sent none worth replacing.
func (o *Orchestrator) settleSuccess(ctx context.Context, src model.Source, state *model.ScrapeState, resp fetch.Response) {
	now := o.now()
	state.LastRunAt = now
	state.LastSuccessAt = now
	state.ConsecutiveFailures = 0
	if resp.ETag != "" {
		state.ETag = resp.ETag
	}
	if resp.LastModified != "" {
		state.LastModified = resp.LastModified
	}
	if err := o.states.UpsertState(ctx, *state); err != nil {
		o.logger.Error("persist scrape state",
			zap.String("source", src.ID), zap.Error(err))
	}
}

// settleFailure advances the failure streak and fires an alert when the
// streak crosses the threshold outside the suppression window. The window
// only starts when delivery succeeds, so a broken webhook keeps retrying.
// Returns the number of alerts sent (0 or 1).
func (o *Orchestrator) settleFailure(ctx context.Context, runID string, src model.Source, state *model.ScrapeState, failures []alert.Failure) int {
	now := o.now()
	state.LastRunAt = now
	state.ConsecutiveFailures++

	sent := 0
	if o.notifier != nil &&
		state.ConsecutiveFailures >= o.cfg.FailureThreshold &&
		now.Sub(state.LastAlertAt) >= o.cfg.SuppressionWindow {
		if o.notifier.SourceDown(ctx, runID, src, failures, state.ConsecutiveFailures) {
			state.LastAlertAt = now
			sent = 1
		}
	}

	if err := o.states.UpsertState(ctx, *state); err != nil {
		o.logger.Error("persist scrape state",
			zap.String("source", src.ID), zap.Error(err))
	}
	return sent
}

func (o *Orchestrator) appendOutcome(ctx context.Context, outcome model.FetchOutcome) {
	if err := o.outcomes.AppendOutcome(ctx, outcome); err != nil {
		o.logger.Error("append fetch outcome",
			zap.String("source", outcome.SourceID), zap.Error(err))
	}
}

func outcomeFrom(runID string, src model.Source, resp fetch.Response, now time.Time) model.FetchOutcome {
	outcome := model.FetchOutcome{
		RunID:        runID,
		SourceID:     src.ID,
		Success:      resp.Class() == fetch.ClassSuccess,
		StatusCode:   resp.StatusCode,
		Body:         resp.Body,
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
		FetchedAt:    now,
		Duration:     resp.Duration,
	}
	if d, ok := retry.ParseRetryAfter(resp.RetryAfter, now); ok {
		outcome.RetryAfter = d
	}
	if resp.NetworkErr != nil {
		outcome.ErrorText = resp.NetworkErr.Error()
	} else if !outcome.Success {
		outcome.ErrorText = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return outcome
}

// groupByDomain buckets sources so one slow domain never stalls another.
func groupByDomain(sources []model.Source) map[string][]model.Source {
	byDomain := make(map[string][]model.Source)
	for _, src := range sources {
		d := domainOf(src)
		byDomain[d] = append(byDomain[d], src)
	}
	return byDomain
}

func classLabel(c fetch.Classification) string {
	switch c {
	case fetch.ClassSuccess:
		return "success"
	case fetch.ClassTransient:
		return "transient"
	default:
		return "permanent"
	}
}

func domainOf(src model.Source) string {
	if src.Domain != "" {
		return src.Domain
	}
	if u, err := url.Parse(src.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return src.ID
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

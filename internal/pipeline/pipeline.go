// Package pipeline wires a fetched page through extraction, normalization,
// dedup and enrichment. It is the handler the orchestrator invokes for every
// successfully fetched body.
package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/dedup"
	"github.com/urbanpulse/event-harvester/internal/extract"
	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/model"
	"github.com/urbanpulse/event-harvester/internal/normalize"
	"github.com/urbanpulse/event-harvester/internal/store"
	"github.com/urbanpulse/event-harvester/internal/venue"
)

// Stats aggregates pipeline work across one run.
type Stats struct {
	Pages    int
	Cards    int
	Events   int
	Inserted int
	Updated  int
	Skipped  int
	Enriched int
}

// Pipeline processes fetched pages into stored events.
type Pipeline struct {
	waterfall  *extract.Waterfall
	normalizer *normalize.Normalizer
	resolver   *dedup.Resolver
	enricher   *venue.Enricher
	events     store.Events
	logger     *zap.Logger

	mu        sync.Mutex
	stats     Stats
	preferred map[string]model.ExtractionMethod
}

// New builds a Pipeline. enricher may be nil to skip venue enrichment.
func New(waterfall *extract.Waterfall, normalizer *normalize.Normalizer,
	resolver *dedup.Resolver, enricher *venue.Enricher, events store.Events,
	logger *zap.Logger) *Pipeline {
	return &Pipeline{
		waterfall:  waterfall,
		normalizer: normalizer,
		resolver:   resolver,
		enricher:   enricher,
		events:     events,
		logger:     logger,
		preferred:  make(map[string]model.ExtractionMethod),
	}
}

// HandleFetch processes one fetched page. Card-level failures are counted
// and logged, never returned: one broken listing must not sink the page,
// and one broken page must not sink the run.
func (p *Pipeline) HandleFetch(ctx context.Context, src model.Source, outcome model.FetchOutcome) error {
	if method, ok := p.preferredFor(src.ID); ok {
		src.PreferredMethod = method
	}

	doc := extract.NewDocument(src.URL, outcome.Body, src)
	result := p.waterfall.Extract(ctx, doc)
	if result.Method != "" {
		p.rememberPreferred(src.ID, result.Method)
	}

	events := p.normalizer.NormalizeBatch(result.Cards, src)
	for i := len(events); i < len(result.Cards); i++ {
		metrics.IncEventRejected("normalize")
	}

	inserted, updated, skipped := 0, 0, 0
	enriched := 0
	for _, ev := range events {
		decision, err := p.resolver.Resolve(ctx, ev)
		if err != nil {
			p.logger.Error("resolve event",
				zap.String("source", src.ID),
				zap.String("title", ev.Title),
				zap.Error(err))
			continue
		}
		switch decision {
		case dedup.DecisionInserted:
			inserted++
			if p.enrich(ctx, ev) {
				enriched++
			}
		case dedup.DecisionUpdated:
			updated++
		default:
			skipped++
		}
	}

	p.mu.Lock()
	p.stats.Pages++
	p.stats.Cards += len(result.Cards)
	p.stats.Events += len(events)
	p.stats.Inserted += inserted
	p.stats.Updated += updated
	p.stats.Skipped += skipped
	p.stats.Enriched += enriched
	p.mu.Unlock()

	p.logger.Info("page processed",
		zap.String("source", src.ID),
		zap.String("method", string(result.Method)),
		zap.Int("cards", len(result.Cards)),
		zap.Int("inserted", inserted),
		zap.Int("updated", updated),
		zap.Int("skipped", skipped))
	return nil
}

// enrich loads the freshly stored event, applies venue enrichment and
// persists any added fields.
func (p *Pipeline) enrich(ctx context.Context, ev model.NormalizedEvent) bool {
	if p.enricher == nil {
		return false
	}
	stored, err := p.events.FindByFingerprint(ctx, dedup.Fingerprint(ev))
	if err != nil || stored == nil {
		return false
	}
	rec := p.enricher.Enrich(ctx, stored)
	if len(rec.FieldsWritten) == 0 {
		return false
	}
	if err := p.events.UpdateEvent(ctx, stored); err != nil {
		p.logger.Error("persist enriched event",
			zap.String("event", stored.ID), zap.Error(err))
		return false
	}
	return true
}

// Stats returns a copy of the accumulated counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// PreferredMethods returns the winning strategy per source observed this
// run, for writing back into the source list.
func (p *Pipeline) PreferredMethods() map[string]model.ExtractionMethod {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]model.ExtractionMethod, len(p.preferred))
	for k, v := range p.preferred {
		out[k] = v
	}
	return out
}

func (p *Pipeline) preferredFor(sourceID string) (model.ExtractionMethod, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.preferred[sourceID]
	return m, ok
}

func (p *Pipeline) rememberPreferred(sourceID string, m model.ExtractionMethod) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preferred[sourceID] = m
}

// Package store persists harvester state: per-source scrape state, the fetch
// outcome log, stored events and the enrichment log. A Postgres
// implementation backs production; an in-memory one backs dry runs and tests.
package store

import (
	"context"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// ScrapeStates holds the mutable per-source crawl state.
type ScrapeStates interface {
	// GetState returns the state for a source, or nil when the source has
	// never been crawled.
	GetState(ctx context.Context, sourceID string) (*model.ScrapeState, error)
	UpsertState(ctx context.Context, state model.ScrapeState) error
}

// OutcomeLog is the append-only record of fetch attempts.
type OutcomeLog interface {
	AppendOutcome(ctx context.Context, outcome model.FetchOutcome) error
}

// Events holds deduplicated events.
type Events interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.StoredEvent, error)
	InsertEvent(ctx context.Context, ev *model.StoredEvent) error
	UpdateEvent(ctx context.Context, ev *model.StoredEvent) error
	// ListUpcoming returns events on or after the given date, ordered by
	// start time.
	ListUpcoming(ctx context.Context, fromDate string, limit int) ([]model.StoredEvent, error)
}

// EnrichmentLog is the append-only record of enrichment attempts.
type EnrichmentLog interface {
	AppendEnrichment(ctx context.Context, rec model.EnrichmentRecord) error
}

// Store bundles every persistence concern behind one handle.
type Store interface {
	ScrapeStates
	OutcomeLog
	Events
	EnrichmentLog
}

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Memory is an in-memory Store. Dry runs use it so a full pipeline pass
// leaves no trace; tests use it as a cheap fake.
type Memory struct {
	mu          sync.RWMutex
	states      map[string]model.ScrapeState
	outcomes    []model.FetchOutcome
	events      map[string]*model.StoredEvent // keyed by fingerprint
	enrichments []model.EnrichmentRecord
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		states: make(map[string]model.ScrapeState),
		events: make(map[string]*model.StoredEvent),
	}
}

// GetState implements ScrapeStates.
func (m *Memory) GetState(_ context.Context, sourceID string) (*model.ScrapeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[sourceID]; ok {
		return &s, nil
	}
	return nil, nil
}

// UpsertState implements ScrapeStates.
func (m *Memory) UpsertState(_ context.Context, state model.ScrapeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.SourceID] = state
	return nil
}

// AppendOutcome implements OutcomeLog.
func (m *Memory) AppendOutcome(_ context.Context, outcome model.FetchOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

// Outcomes returns a copy of the outcome log.
func (m *Memory) Outcomes() []model.FetchOutcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FetchOutcome, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}

// FindByFingerprint implements Events.
func (m *Memory) FindByFingerprint(_ context.Context, fingerprint string) (*model.StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ev, ok := m.events[fingerprint]; ok {
		cp := *ev
		return &cp, nil
	}
	return nil, nil
}

// InsertEvent implements Events.
func (m *Memory) InsertEvent(_ context.Context, ev *model.StoredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.events[ev.Fingerprint] = &cp
	return nil
}

// UpdateEvent implements Events.
func (m *Memory) UpdateEvent(ctx context.Context, ev *model.StoredEvent) error {
	return m.InsertEvent(ctx, ev)
}

// ListUpcoming implements Events.
func (m *Memory) ListUpcoming(_ context.Context, fromDate string, limit int) ([]model.StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.StoredEvent
	for _, ev := range m.events {
		if ev.EventDate >= fromDate {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AppendEnrichment implements EnrichmentLog.
func (m *Memory) AppendEnrichment(_ context.Context, rec model.EnrichmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrichments = append(m.enrichments, rec)
	return nil
}

// Enrichments returns a copy of the enrichment log.
func (m *Memory) Enrichments() []model.EnrichmentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.EnrichmentRecord, len(m.enrichments))
	copy(out, m.enrichments)
	return out
}

// EventCount returns the number of stored events.
func (m *Memory) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

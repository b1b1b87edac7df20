package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/model"
)

// Decision is the outcome of resolving one event against the store.
type Decision string

// Resolution outcomes.
const (
	DecisionInserted Decision = "inserted"
	DecisionUpdated  Decision = "updated"
	DecisionSkipped  Decision = "skipped"
)

// EventStore is the slice of storage the resolver needs.
type EventStore interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.StoredEvent, error)
	InsertEvent(ctx context.Context, ev *model.StoredEvent) error
	UpdateEvent(ctx context.Context, ev *model.StoredEvent) error
}

// Resolver applies the dedup and promotion rules.
type Resolver struct {
	store         EventStore
	promotionGain int
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

// NewResolver builds a Resolver. promotionGain is the number of characters a
// new description must exceed the stored one by before it replaces it.
func NewResolver(store EventStore, promotionGain int, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:         store,
		promotionGain: promotionGain,
		logger:        logger,
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
}

// Resolve stores a normalized event. First sighting of a fingerprint inserts
// a record; a later sighting may promote richer content onto the existing
// record but never degrades it. The detail URL is appended to the record's
// source URL list in every case, so provenance survives even a skip.
//
// The content hash is the delta key: when it matches the stored one, the same
// source re-sent the payload it sent last time and the field-by-field merge
// is skipped entirely.
func (r *Resolver) Resolve(ctx context.Context, ev model.NormalizedEvent) (Decision, error) {
	fingerprint := Fingerprint(ev)
	contentHash := ContentHash(ev)

	existing, err := r.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", fmt.Errorf("lookup fingerprint: %w", err)
	}

	if existing == nil {
		stored := &model.StoredEvent{
			ID:              r.newID(),
			Fingerprint:     fingerprint,
			ContentHash:     contentHash,
			NormalizedEvent: ev,
			FirstSeenAt:     r.now(),
			UpdatedAt:       r.now(),
		}
		if ev.DetailURL != "" {
			stored.AllSourceURLs = []string{ev.DetailURL}
		}
		if err := r.store.InsertEvent(ctx, stored); err != nil {
			return "", fmt.Errorf("insert event: %w", err)
		}
		metrics.IncDedupDecision(string(DecisionInserted))
		return DecisionInserted, nil
	}

	changed := appendSourceURL(existing, ev.DetailURL)
	if existing.ContentHash != contentHash && r.promote(existing, ev) {
		changed = true
	}

	decision := DecisionSkipped
	if changed {
		existing.ContentHash = contentHash
		existing.UpdatedAt = r.now()
		if err := r.store.UpdateEvent(ctx, existing); err != nil {
			return "", fmt.Errorf("update event: %w", err)
		}
		decision = DecisionUpdated
	}
	metrics.IncDedupDecision(string(decision))
	return decision, nil
}

// promote copies richer fields from the incoming event onto the stored one.
// A description wins only when strictly longer than the stored one by the
// configured gain; an image wins only when the record has none.
func (r *Resolver) promote(existing *model.StoredEvent, ev model.NormalizedEvent) bool {
	changed := false
	if len(ev.Description) > len(existing.Description)+r.promotionGain {
		existing.Description = ev.Description
		changed = true
	}
	if existing.ImageURL == "" && ev.ImageURL != "" {
		existing.ImageURL = ev.ImageURL
		changed = true
	}
	if existing.EventTime == "" && ev.EventTime != "" {
		existing.EventTime = ev.EventTime
		existing.Start = ev.Start
		changed = true
	}
	if existing.Price == "" && ev.Price != "" {
		existing.Price = ev.Price
		changed = true
	}
	if existing.TicketURL == "" && ev.TicketURL != "" {
		existing.TicketURL = ev.TicketURL
		changed = true
	}
	if changed {
		existing.Completeness = maxFloat(existing.Completeness, ev.Completeness)
	}
	return changed
}

func appendSourceURL(existing *model.StoredEvent, url string) bool {
	if url == "" {
		return false
	}
	for _, u := range existing.AllSourceURLs {
		if u == url {
			return false
		}
	}
	existing.AllSourceURLs = append(existing.AllSourceURLs, url)
	return true
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

package venue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/model"
)

// EnrichmentLog records enrichment attempts.
type EnrichmentLog interface {
	AppendEnrichment(ctx context.Context, rec model.EnrichmentRecord) error
}

// Enricher fills missing venue details on stored events. The registry is
// free and tried first; the places API is paid and only consulted for
// unknown venues, within its budget.
type Enricher struct {
	matcher *Matcher
	places  PlacesClient
	log     EnrichmentLog
	logger  *zap.Logger
	now     func() time.Time
}

// NewEnricher builds an Enricher. places may be nil to run registry-only.
func NewEnricher(matcher *Matcher, places PlacesClient, log EnrichmentLog, logger *zap.Logger) *Enricher {
	return &Enricher{
		matcher: matcher,
		places:  places,
		log:     log,
		logger:  logger,
		now:     time.Now,
	}
}

// Enrich fills the event's missing venue fields in place and returns the
// record that was logged. Existing values are never overwritten; enrichment
// only adds. A failed lookup is an outcome, not an error.
func (e *Enricher) Enrich(ctx context.Context, ev *model.StoredEvent) model.EnrichmentRecord {
	rec := model.EnrichmentRecord{
		EventID:    ev.ID,
		Status:     model.EnrichSkipped,
		Provenance: "none",
		At:         e.now(),
	}

	if ev.Venue == "" {
		e.append(ctx, rec)
		return rec
	}

	if v := e.matcher.Match(ev.Venue); v != nil {
		rec.Status = model.EnrichRegistryMatch
		rec.Provenance = "registry"
		rec.FieldsWritten = applyRegistry(ev, v)
		e.append(ctx, rec)
		metrics.IncEnrichment(string(rec.Status))
		return rec
	}

	if e.places == nil {
		e.append(ctx, rec)
		return rec
	}

	details, err := e.places.Lookup(ctx, ev.Venue)
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		rec.Status = model.EnrichBudgetExceeded
	case err != nil:
		rec.Status = model.EnrichFailed
		e.logger.Warn("places lookup failed",
			zap.String("venue", ev.Venue), zap.Error(err))
	default:
		rec.Provenance = "places"
		rec.APICalls = details.APICalls
		rec.FieldsWritten = applyPlaces(ev, details)
		if len(rec.FieldsWritten) > 0 {
			rec.Status = model.EnrichSuccess
		} else {
			rec.Status = model.EnrichPartial
		}
	}
	e.append(ctx, rec)
	metrics.IncEnrichment(string(rec.Status))
	return rec
}

func applyRegistry(ev *model.StoredEvent, v *model.RegisteredVenue) []string {
	var written []string
	if ev.Phone == "" && v.Phone != "" {
		ev.Phone = v.Phone
		written = append(written, "phone")
	}
	if ev.Website == "" && v.Website != "" {
		ev.Website = v.Website
		written = append(written, "website")
	}
	if ev.PriceTier == 0 && v.PriceTier != 0 {
		ev.PriceTier = v.PriceTier
		written = append(written, "price_tier")
	}
	if ev.Hours == nil && v.Hours != nil {
		ev.Hours = v.Hours
		written = append(written, "hours")
	}
	// Canonical registry spelling replaces whatever the source wrote.
	if ev.Venue != v.Name {
		ev.Venue = v.Name
		written = append(written, "venue")
	}
	return written
}

func applyPlaces(ev *model.StoredEvent, d *PlaceDetails) []string {
	var written []string
	if ev.Phone == "" && d.Phone != "" {
		ev.Phone = d.Phone
		written = append(written, "phone")
	}
	if ev.Website == "" && d.Website != "" {
		ev.Website = d.Website
		written = append(written, "website")
	}
	if ev.PriceTier == 0 && d.PriceTier != 0 {
		ev.PriceTier = d.PriceTier
		written = append(written, "price_tier")
	}
	if ev.Hours == nil && d.Hours != nil {
		ev.Hours = d.Hours
		written = append(written, "hours")
	}
	return written
}

func (e *Enricher) append(ctx context.Context, rec model.EnrichmentRecord) {
	if e.log == nil {
		return
	}
	if err := e.log.AppendEnrichment(ctx, rec); err != nil {
		e.logger.Warn("enrichment log append failed", zap.Error(err))
	}
}

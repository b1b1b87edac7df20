// Package normalize turns raw extraction cards into canonical events: parsed
// dates, resolved categories and a completeness score the dedup layer uses
// when choosing which record to keep.
package normalize

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Normalizer converts RawEventCards into NormalizedEvents.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

// Normalize converts one card. Cards whose date text cannot be parsed are
// rejected with an error; everything else degrades field by field.
func (n *Normalizer) Normalize(card model.RawEventCard, src model.Source) (model.NormalizedEvent, error) {
	title := collapseWhitespace(card.Title)
	if title == "" {
		return model.NormalizedEvent{}, fmt.Errorf("card has no title")
	}

	parsed, err := ParseDate(card.DateText, n.now())
	if err != nil {
		return model.NormalizedEvent{}, fmt.Errorf("source %s: %w", src.ID, err)
	}

	ev := model.NormalizedEvent{
		Title:       title,
		Start:       parsed.Start,
		EventDate:   parsed.EventDate,
		EventTime:   parsed.EventTime,
		Venue:       collapseWhitespace(card.Location),
		Category:    Categorize(card, src),
		Description: strings.TrimSpace(card.Description),
		DetailURL:   absoluteURL(src.URL, card.DetailURL),
		ImageURL:    absoluteURL(src.URL, card.ImageURL),
		Price:       strings.TrimSpace(card.Price),
		Organizer:   collapseWhitespace(card.Organizer),
		TicketURL:   absoluteURL(src.URL, card.TicketURL),
		SourceID:    src.ID,
	}
	ev.Completeness = completeness(ev)
	return ev, nil
}

// NormalizeBatch converts a batch, dropping rejects. One bad card never sinks
// the rest of the page.
func (n *Normalizer) NormalizeBatch(cards []model.RawEventCard, src model.Source) []model.NormalizedEvent {
	events := make([]model.NormalizedEvent, 0, len(cards))
	for _, card := range cards {
		ev, err := n.Normalize(card, src)
		if err != nil {
			n.logger.Debug("dropping card",
				zap.String("source", src.ID),
				zap.String("title", card.Title),
				zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events
}

// completeness scores an event in [0,1]. Title and date are guaranteed by
// extraction, so the score reflects the optional fields.
func completeness(ev model.NormalizedEvent) float64 {
	fields := []string{
		ev.EventTime, ev.Venue, ev.Description, ev.DetailURL,
		ev.ImageURL, ev.Price, ev.Organizer,
	}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}

// absoluteURL resolves a possibly relative href against the source page URL.
func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == "" {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

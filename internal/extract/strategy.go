// Package extract turns one HTML document into raw event cards by running a
// waterfall of strategies, from cheapest/most-confident-when-available to
// most expensive.
package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Strategy confidence levels reported on the cards each strategy emits.
const (
	ConfidenceHydration = 1.0
	ConfidenceJSONLD    = 0.95
	ConfidenceFeed      = 0.9
	ConfidenceDOM       = 0.6
	ConfidenceAI        = 0.4
)

// Document is one fetched page handed to the waterfall. The goquery parse is
// done at most once and shared across strategies.
type Document struct {
	URL    string
	Body   []byte
	Source model.Source

	parsed   *goquery.Document
	parseErr error
}

// NewDocument wraps a fetched body.
func NewDocument(url string, body []byte, source model.Source) *Document {
	return &Document{URL: url, Body: body, Source: source}
}

// HTML lazily parses the body.
func (d *Document) HTML() (*goquery.Document, error) {
	if d.parsed == nil && d.parseErr == nil {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(d.Body))
		if err != nil {
			d.parseErr = fmt.Errorf("parse html: %w", err)
		} else {
			d.parsed = doc
		}
	}
	return d.parsed, d.parseErr
}

// Strategy is one extraction approach. Implementations must be total: parse
// errors are swallowed and reported as zero cards, never returned.
type Strategy interface {
	Name() model.ExtractionMethod
	Extract(ctx context.Context, doc *Document) []model.RawEventCard
}

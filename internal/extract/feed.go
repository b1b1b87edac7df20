package extract

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// FeedStrategy parses RSS/Atom bodies. It only runs for sources flagged for
// feed discovery, keeping XML parsing out of the hot path for plain HTML
// sites.
type FeedStrategy struct {
	parser *gofeed.Parser
}

// NewFeedStrategy builds the strategy.
func NewFeedStrategy() *FeedStrategy {
	return &FeedStrategy{parser: gofeed.NewParser()}
}

// Name implements Strategy.
func (s *FeedStrategy) Name() model.ExtractionMethod { return model.MethodFeed }

// Extract implements Strategy.
func (s *FeedStrategy) Extract(_ context.Context, doc *Document) []model.RawEventCard {
	if !doc.Source.FeedDiscovery {
		return nil
	}
	feed, err := s.parser.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return nil
	}
	cards := make([]model.RawEventCard, 0, len(feed.Items))
	for _, item := range feed.Items {
		cards = append(cards, cardFromFeedItem(item))
	}
	return cards
}

func cardFromFeedItem(item *gofeed.Item) model.RawEventCard {
	dateText := ""
	switch {
	case item.PublishedParsed != nil:
		dateText = item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.Published != "":
		dateText = item.Published
	case item.UpdatedParsed != nil:
		dateText = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	image := ""
	if item.Image != nil {
		image = item.Image.URL
	}
	return model.RawEventCard{
		Title:       strings.TrimSpace(item.Title),
		DateText:    dateText,
		Description: strings.TrimSpace(item.Description),
		DetailURL:   item.Link,
		ImageURL:    image,
		Fragment:    item.Title,
		Confidence:  ConfidenceFeed,
	}
}

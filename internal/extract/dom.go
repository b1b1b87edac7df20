package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// DOMStrategy scrapes event cards out of page markup with CSS selectors,
// picking a CMS-specific selector list first and falling back to generic
// ones. Only the first selector group that matches anything contributes
// cards, so overlapping selectors cannot double-report the same events.
type DOMStrategy struct{}

// NewDOMStrategy builds the strategy.
func NewDOMStrategy() *DOMStrategy { return &DOMStrategy{} }

// Name implements Strategy.
func (s *DOMStrategy) Name() model.ExtractionMethod { return model.MethodDOM }

// Extract implements Strategy.
func (s *DOMStrategy) Extract(_ context.Context, doc *Document) []model.RawEventCard {
	html, err := doc.HTML()
	if err != nil {
		return nil
	}

	groups := append([]selectorGroup{}, cmsSelectors[DetectCMS(html)]...)
	groups = append(groups, genericSelectors...)

	for _, group := range groups {
		if cards := s.extractGroup(html, group); len(cards) > 0 {
			return cards
		}
	}
	return nil
}

func (s *DOMStrategy) extractGroup(html *goquery.Document, group selectorGroup) []model.RawEventCard {
	var cards []model.RawEventCard
	html.Find(group.container).Each(func(_ int, sel *goquery.Selection) {
		card := model.RawEventCard{
			Title:       firstText(sel, group.title),
			DateText:    firstDate(sel, group.date),
			Location:    firstText(sel, group.location),
			Description: firstText(sel, group.desc),
			ImageURL:    firstImage(sel, group.image),
			DetailURL:   firstHref(sel, group.link),
			Fragment:    snippet(sel),
			Confidence:  ConfidenceDOM,
		}
		if card.DateText == "" {
			// Regex over the element text is the last resort inside this
			// strategy, not a separate waterfall step.
			card.DateText = monthDatePattern.FindString(sel.Text())
		}
		if card.Title != "" {
			cards = append(cards, card)
		}
	})
	return cards
}

// firstText tries the ranked sub-selectors and returns the first non-empty
// text match.
func firstText(sel *goquery.Selection, selectors []string) string {
	for _, sub := range selectors {
		if text := strings.TrimSpace(sel.Find(sub).First().Text()); text != "" {
			return collapseSpace(text)
		}
	}
	return ""
}

// firstDate prefers a machine-readable datetime attribute over element text.
func firstDate(sel *goquery.Selection, selectors []string) string {
	for _, sub := range selectors {
		node := sel.Find(sub).First()
		if dt, ok := node.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			return strings.TrimSpace(dt)
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return collapseSpace(text)
		}
	}
	return ""
}

func firstImage(sel *goquery.Selection, selectors []string) string {
	for _, sub := range selectors {
		node := sel.Find(sub).First()
		for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
			if src, ok := node.Attr(attr); ok && src != "" {
				return src
			}
		}
	}
	return ""
}

func firstHref(sel *goquery.Selection, selectors []string) string {
	for _, sub := range selectors {
		if href, ok := sel.Find(sub).First().Attr("href"); ok && href != "" {
			return href
		}
	}
	if href, ok := sel.Attr("href"); ok {
		return href
	}
	return ""
}

// monthDatePattern matches English and Dutch month-name dates in either
// "Mar 13" or "13 maart" order.
var monthDatePattern = regexp.MustCompile(
	`(?i)\b(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|maart|mei|juni|juli|okt|maa|mrt)[a-z]*\.?\s+\d{1,2}(?:,?\s+\d{4})?|\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|maart|mei|juni|juli|okt|maa|mrt)[a-z]*\.?(?:\s+\d{4})?)\b`)

var spacePattern = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return spacePattern.ReplaceAllString(s, " ")
}

// snippet keeps a bounded chunk of the matched element for debugging.
func snippet(sel *goquery.Selection) string {
	raw, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	raw = strings.TrimSpace(raw)
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return raw
}

package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// HydrationStrategy digs event objects out of inline page-state blobs that
// frameworks embed for client-side hydration. When a site ships one, it is
// structured and complete, so this runs first in the waterfall.
type HydrationStrategy struct {
	maxDepth int
}

// NewHydrationStrategy builds the strategy with a recursion bound.
func NewHydrationStrategy(maxDepth int) *HydrationStrategy {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	return &HydrationStrategy{maxDepth: maxDepth}
}

// Name implements Strategy.
func (s *HydrationStrategy) Name() model.ExtractionMethod { return model.MethodHydration }

var stateAssignmentPattern = regexp.MustCompile(
	`window\.(?:__INITIAL_STATE__|__NUXT__|__PRELOADED_STATE__)\s*=\s*`)

// Extract implements Strategy.
func (s *HydrationStrategy) Extract(_ context.Context, doc *Document) []model.RawEventCard {
	var cards []model.RawEventCard
	for _, blob := range s.findBlobs(doc) {
		var root any
		if err := json.Unmarshal([]byte(blob), &root); err != nil {
			continue
		}
		s.walk(root, 0, &cards)
	}
	return cards
}

// findBlobs collects candidate JSON texts from framework-specific markers:
// JSON script tags like __NEXT_DATA__, and state assignments such as
// window.__INITIAL_STATE__ inside ordinary scripts.
func (s *HydrationStrategy) findBlobs(doc *Document) []string {
	html, err := doc.HTML()
	if err != nil {
		return nil
	}
	var blobs []string
	html.Find(`script[type="application/json"]`).Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("id")
		if !hydrationScriptID(id) {
			return
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			blobs = append(blobs, text)
		}
	})
	html.Find("script:not([src])").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		loc := stateAssignmentPattern.FindStringIndex(text)
		if loc == nil {
			return
		}
		if blob := balancedJSON(text[loc[1]:]); blob != "" {
			blobs = append(blobs, blob)
		}
	})
	return blobs
}

func hydrationScriptID(id string) bool {
	id = strings.ToLower(id)
	return id == "__next_data__" || id == "__nuxt_data__" ||
		strings.Contains(id, "hydration") || strings.Contains(id, "state")
}

// balancedJSON scans forward from the first brace and returns the
// brace-balanced prefix, ignoring braces inside string literals.
func balancedJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func (s *HydrationStrategy) walk(node any, depth int, cards *[]model.RawEventCard) {
	if depth > s.maxDepth {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if IsEventObject(v) {
			*cards = append(*cards, cardFromObject(v))
			return
		}
		for _, child := range v {
			s.walk(child, depth+1, cards)
		}
	case []any:
		for _, child := range v {
			s.walk(child, depth+1, cards)
		}
	}
}

// IsEventObject is the duck-typing predicate: an object is event-like when it
// carries both a title-like and a date-like key, and none of the keys that
// mark user records or navigation menus.
func IsEventObject(m map[string]any) bool {
	if hasDenyKey(m) {
		return false
	}
	return stringValue(m, titleKeys) != "" && stringValue(m, dateKeys) != ""
}

var (
	titleKeys = []string{"title", "name", "headline"}
	dateKeys  = []string{"startDate", "start_date", "start", "date", "startTime", "start_time", "when"}
	denyKeys  = []string{"username", "email", "menuItem", "menuItems", "menu_items", "password", "avatar"}

	locationKeys = []string{"location", "venue", "place"}
	descKeys     = []string{"description", "summary", "excerpt"}
	urlKeys      = []string{"url", "link", "detailUrl", "detail_url", "permalink"}
	imageKeys    = []string{"image", "imageUrl", "image_url", "thumbnail", "photo"}
)

func hasDenyKey(m map[string]any) bool {
	for _, k := range denyKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func cardFromObject(m map[string]any) model.RawEventCard {
	fragment, _ := json.Marshal(m)
	return model.RawEventCard{
		Title:       stringValue(m, titleKeys),
		DateText:    stringValue(m, dateKeys),
		Location:    nestedName(m, locationKeys),
		Description: stringValue(m, descKeys),
		DetailURL:   stringValue(m, urlKeys),
		ImageURL:    imageValue(m),
		Fragment:    string(fragment),
		Confidence:  ConfidenceHydration,
	}
}

// stringValue returns the first non-empty string under any of the keys.
func stringValue(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// nestedName resolves values that are either plain strings or objects with a
// name/address of their own.
func nestedName(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case map[string]any:
			if name := stringValue(v, []string{"name", "address", "title"}); name != "" {
				return name
			}
		}
	}
	return ""
}

func imageValue(m map[string]any) string {
	for _, k := range imageKeys {
		switch v := m[k].(type) {
		case string:
			return v
		case map[string]any:
			if u := stringValue(v, []string{"url", "src"}); u != "" {
				return u
			}
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// JSONLDStrategy reads Schema.org event blocks from
// <script type="application/ld+json"> tags. Single objects, arrays and
// @graph containers are all accepted. Malformed JSON gets one soft-repair
// pass; blocks that still fail are skipped, never fatal.
type JSONLDStrategy struct{}

// NewJSONLDStrategy builds the strategy.
func NewJSONLDStrategy() *JSONLDStrategy { return &JSONLDStrategy{} }

// Name implements Strategy.
func (s *JSONLDStrategy) Name() model.ExtractionMethod { return model.MethodJSONLD }

// ldEvent is the subset of Schema.org Event this pipeline consumes. Absent
// fields decode to zero values instead of runtime type juggling.
type ldEvent struct {
	Type        jsonldType  `json:"@type"`
	Name        string      `json:"name"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Description string      `json:"description"`
	URL         string      `json:"url"`
	Image       jsonldImage `json:"image"`
	Location    jsonldPlace `json:"location"`
	Organizer   jsonldPlace `json:"organizer"`
	Offers      jsonldOffer `json:"offers"`
}

type jsonldPlace struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// UnmarshalJSON tolerates a plain string where an object is expected.
func (p *jsonldPlace) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Name = s
		return nil
	}
	type plain jsonldPlace
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return nil // malformed sub-object loses the field, not the event
	}
	*p = jsonldPlace(v)
	return nil
}

type jsonldImage string

// UnmarshalJSON accepts a string, an array of strings, or an ImageObject.
func (i *jsonldImage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = jsonldImage(s)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		*i = jsonldImage(arr[0])
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*i = jsonldImage(obj.URL)
	}
	return nil
}

type jsonldOffer struct {
	Price string `json:"price"`
	URL   string `json:"url"`
}

// UnmarshalJSON accepts one offer or a list, and numeric or string prices.
func (o *jsonldOffer) UnmarshalJSON(data []byte) error {
	type rawOffer struct {
		Price any    `json:"price"`
		URL   string `json:"url"`
	}
	assign := func(r rawOffer) {
		switch p := r.Price.(type) {
		case string:
			o.Price = p
		case float64:
			o.Price = strconv.FormatFloat(p, 'f', -1, 64)
		}
		o.URL = r.URL
	}
	var one rawOffer
	if err := json.Unmarshal(data, &one); err == nil {
		assign(one)
		return nil
	}
	var many []rawOffer
	if err := json.Unmarshal(data, &many); err == nil && len(many) > 0 {
		assign(many[0])
	}
	return nil
}

type jsonldType []string

// UnmarshalJSON accepts "@type" as a string or an array of strings.
func (t *jsonldType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = jsonldType{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*t = jsonldType(arr)
	}
	return nil
}

// Extract implements Strategy.
func (s *JSONLDStrategy) Extract(_ context.Context, doc *Document) []model.RawEventCard {
	html, err := doc.HTML()
	if err != nil {
		return nil
	}
	var cards []model.RawEventCard
	html.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		for _, ev := range parseLDBlock(sel.Text()) {
			cards = append(cards, cardFromLD(ev))
		}
	})
	return cards
}

// parseLDBlock decodes one script block into event nodes, trying a soft
// repair when the first parse fails.
func parseLDBlock(text string) []ldEvent {
	nodes := decodeLDNodes([]byte(text))
	if nodes == nil {
		nodes = decodeLDNodes([]byte(softRepair(text)))
	}
	var events []ldEvent
	for _, raw := range nodes {
		var ev ldEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.Type.eventLike() {
			events = append(events, ev)
		}
	}
	return events
}

// decodeLDNodes flattens a block into candidate objects: a single object, a
// top-level array, or the contents of @graph.
func decodeLDNodes(data []byte) []json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr
	}
	var obj struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	if len(obj.Graph) > 0 {
		return obj.Graph
	}
	// Re-check it was a decodable object at all before returning it whole.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}
	return []json.RawMessage{json.RawMessage(data)}
}

func (t jsonldType) eventLike() bool {
	for _, v := range t {
		if strings.Contains(strings.ToLower(v), "event") || strings.EqualFold(v, "Festival") {
			return true
		}
	}
	return false
}

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// softRepair strips trailing commas and dangling brackets, the two breakages
// CMS template authors actually produce.
func softRepair(text string) string {
	text = trailingCommaPattern.ReplaceAllString(text, "$1")
	text = strings.TrimSpace(text)
	if start, end := balancedSpan(text); end > start {
		return text[start:end]
	}
	return text
}

// balancedSpan finds the outermost JSON value and returns its bounds,
// cutting off any stray commas or unmatched closers trailing it.
func balancedSpan(text string) (int, int) {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return 0, 0
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
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return 0, 0
}

func cardFromLD(ev ldEvent) model.RawEventCard {
	fragment, _ := json.Marshal(ev)
	return model.RawEventCard{
		Title:       strings.TrimSpace(ev.Name),
		DateText:    strings.TrimSpace(ev.StartDate),
		Location:    strings.TrimSpace(ev.Location.Name),
		Description: strings.TrimSpace(ev.Description),
		DetailURL:   ev.URL,
		ImageURL:    string(ev.Image),
		Price:       ev.Offers.Price,
		Organizer:   strings.TrimSpace(ev.Organizer.Name),
		TicketURL:   ev.Offers.URL,
		Fragment:    string(fragment),
		Confidence:  ConfidenceJSONLD,
	}
}

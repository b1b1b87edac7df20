package normalize

import (
	"regexp"
	"strings"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// urlHints are substrings checked against the detail URL path before any
// keyword matching. A URL slug is the strongest signal a source gives.
var urlHints = []struct {
	fragment string
	category model.Category
}{
	{"/club", model.CategoryNightlife},
	{"/nightlife", model.CategoryNightlife},
	{"/concert", model.CategoryMusic},
	{"/music", model.CategoryMusic},
	{"/muziek", model.CategoryMusic},
	{"/expo", model.CategoryArts},
	{"/theater", model.CategoryArts},
	{"/theatre", model.CategoryArts},
	{"/food", model.CategoryFood},
	{"/restaurant", model.CategoryFood},
	{"/sport", model.CategorySports},
	{"/kids", model.CategoryFamily},
	{"/family", model.CategoryFamily},
	{"/markt", model.CategoryMarket},
	{"/market", model.CategoryMarket},
}

// categoryKeywords holds English and Dutch terms per category. Matching walks
// model.CategoryPriority so a title like "club concert" lands on nightlife.
var categoryKeywords = map[model.Category][]string{
	model.CategoryNightlife: {
		"club", "clubnacht", "dj", "rave", "techno", "house night", "nachtleven",
		"afterparty", "party",
	},
	model.CategoryMusic: {
		"concert", "live music", "livemuziek", "band", "orchestra", "orkest",
		"jazz", "gig", "optreden", "album release",
	},
	model.CategoryArts: {
		"exhibition", "expositie", "tentoonstelling", "museum", "gallery",
		"galerie", "theater", "theatre", "toneel", "dans", "ballet", "film",
		"cinema", "opera",
	},
	model.CategoryFood: {
		"food", "eten", "proeverij", "tasting", "diner", "dinner", "brunch",
		"culinair", "street food", "wine", "wijn", "bier", "beer",
	},
	model.CategorySports: {
		"match", "wedstrijd", "voetbal", "football", "marathon", "run",
		"hardlopen", "tournament", "toernooi", "fitness", "yoga",
	},
	model.CategoryFamily: {
		"kids", "kinderen", "family", "familie", "gezin", "child",
		"speeltuin", "workshop voor kinderen",
	},
	model.CategoryMarket: {
		"market", "markt", "vlooienmarkt", "flea", "bazaar", "fair", "beurs",
		"braderie",
	},
	model.CategoryCommunity: {
		"meetup", "community", "buurt", "neighbourhood", "lezing", "lecture",
		"talk", "vrijwilliger", "volunteer", "open dag",
	},
}

var keywordPatterns = compileKeywordPatterns()

func compileKeywordPatterns() map[model.Category]*regexp.Regexp {
	patterns := make(map[model.Category]*regexp.Regexp, len(categoryKeywords))
	for cat, words := range categoryKeywords {
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(w)
		}
		patterns[cat] = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return patterns
}

// Categorize picks a category for an event. Tiers, in order: URL path hints,
// bilingual keyword match over title plus description, the source's default
// category, and finally the catch-all.
func Categorize(card model.RawEventCard, src model.Source) model.Category {
	path := strings.ToLower(card.DetailURL)
	for _, hint := range urlHints {
		if strings.Contains(path, hint.fragment) {
			return hint.category
		}
	}

	text := card.Title + " " + card.Description
	for _, cat := range model.CategoryPriority {
		if keywordPatterns[cat].MatchString(text) {
			return cat
		}
	}

	if src.DefaultCategory != "" {
		return src.DefaultCategory
	}
	return model.CategoryOther
}

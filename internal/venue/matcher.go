package venue

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Matcher resolves free-text location strings to registry venues. The ladder
// runs cheapest first: exact name, alias, containment, then edit distance.
type Matcher struct {
	registry         *Registry
	containmentFloor float64
	similarityFloor  float64
}

// NewMatcher builds a Matcher. containmentFloor bounds the length ratio for
// substring matches; similarityFloor bounds normalized edit-distance
// similarity for fuzzy matches.
func NewMatcher(registry *Registry, containmentFloor, similarityFloor float64) *Matcher {
	return &Matcher{
		registry:         registry,
		containmentFloor: containmentFloor,
		similarityFloor:  similarityFloor,
	}
}

// Match returns the registry venue for the given location text, or nil when
// no rung of the ladder clears its floor.
func (m *Matcher) Match(location string) *model.RegisteredVenue {
	name := normalizeName(location)
	if name == "" {
		return nil
	}

	if v, ok := m.registry.byName[name]; ok {
		return v
	}
	if v, ok := m.registry.byAlias[name]; ok {
		return v
	}

	if v := m.matchContainment(name); v != nil {
		return v
	}
	return m.matchFuzzy(name)
}

// matchContainment accepts a venue whose normalized name is contained in the
// text (or vice versa) when the shorter string covers enough of the longer
// one. "Paradiso Amsterdam tickets" should match; a bare "De" inside some
// long name should not.
func (m *Matcher) matchContainment(name string) *model.RegisteredVenue {
	for i := range m.registry.venues {
		v := &m.registry.venues[i]
		vn := normalizeName(v.Name)
		shorter, longer := vn, name
		if len(shorter) > len(longer) {
			shorter, longer = longer, shorter
		}
		if shorter == "" || !strings.Contains(longer, shorter) {
			continue
		}
		if float64(len(shorter))/float64(len(longer)) >= m.containmentFloor {
			return v
		}
	}
	return nil
}

// matchFuzzy accepts the closest venue by normalized Levenshtein similarity,
// provided it clears the floor. Catches typos and spelling variants like
// "Joh. Cruijff ArenA".
func (m *Matcher) matchFuzzy(name string) *model.RegisteredVenue {
	var best *model.RegisteredVenue
	bestScore := m.similarityFloor
	for i := range m.registry.venues {
		v := &m.registry.venues[i]
		candidates := append([]string{v.Name}, v.Aliases...)
		for _, c := range candidates {
			if score := similarity(name, normalizeName(c)); score >= bestScore {
				best = v
				bestScore = score
			}
		}
	}
	return best
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeName lowercases, strips diacritics and drops everything except
// letters and digits. "Café Noir!" and "cafe noir" normalize identically.
func normalizeName(s string) string {
	stripped, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package venue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testMatcher() *Matcher {
	return NewMatcher(DefaultRegistry(), 0.75, 0.82)
}

func TestMatchLadder(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string // expected venue name, "" for no match
	}{
		{"exact", "Paradiso", "Paradiso"},
		{"case and punctuation", "PARADISO!", "Paradiso"},
		{"alias", "De Melkweg", "Melkweg"},
		{"diacritics", "Johan Cruijff Arenà", "Johan Cruijff ArenA"},
		{"containment", "Paradiso Amsterdam", "Paradiso"},
		{"fuzzy abbreviation", "Joh. Cruijff ArenA", "Johan Cruijff ArenA"},
		{"fuzzy typo", "Concertgebouww", "Concertgebouw"},
		{"no match", "Some Random Hall", ""},
		{"empty", "", ""},
		{"short fragment stays unmatched", "De", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testMatcher().Match(tt.location)
			if tt.want == "" {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, tt.want, got.Name)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "cafenoir", normalizeName("Café Noir!"))
	require.Equal(t, normalizeName("de hallen"), normalizeName("De  Hallen"))
}

func TestSimilarityBounds(t *testing.T) {
	require.InDelta(t, 1.0, similarity("paradiso", "paradiso"), 1e-9)
	require.Less(t, similarity("paradiso", "melkweg"), 0.5)
}

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urbanpulse/event-harvester/internal/model"
)

const ldPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"MusicEvent","name":"Orgel Vreten",
 "startDate":"2026-03-01T19:30:00+01:00",
 "location":{"@type":"Place","name":"Paradiso"},
 "image":["https://img.example/a.jpg"],
 "offers":{"price":17.5,"url":"https://tickets.example/1"}}
</script>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebSite","name":"site"},
  {"@type":"Event","name":"Graph Event","startDate":"2026-04-02"}
]}
</script>
</head><body></body></html>`

func TestJSONLDExtract(t *testing.T) {
	s := NewJSONLDStrategy()
	doc := NewDocument("https://example.test", []byte(ldPage), model.Source{})

	cards := s.Extract(context.Background(), doc)
	require.Len(t, cards, 2)

	require.Equal(t, "Orgel Vreten", cards[0].Title)
	require.Equal(t, "2026-03-01T19:30:00+01:00", cards[0].DateText)
	require.Equal(t, "Paradiso", cards[0].Location)
	require.Equal(t, "https://img.example/a.jpg", cards[0].ImageURL)

	require.Equal(t, "Graph Event", cards[1].Title)
}

func TestJSONLDSkipsNonEventTypes(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
{"@type":"Organization","name":"Some Org","startDate":"2026-01-01"}
</script></head></html>`
	s := NewJSONLDStrategy()
	doc := NewDocument("https://example.test", []byte(page), model.Source{})
	require.Empty(t, s.Extract(context.Background(), doc))
}

func TestJSONLDSoftRepairsTrailingCommas(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
{"@type":"Event","name":"Broken Block","startDate":"2026-05-05",}
</script></head></html>`
	s := NewJSONLDStrategy()
	doc := NewDocument("https://example.test", []byte(page), model.Source{})

	cards := s.Extract(context.Background(), doc)
	require.Len(t, cards, 1)
	require.Equal(t, "Broken Block", cards[0].Title)
}

func TestJSONLDPermanentlyMalformedBlockIsSkipped(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{"@type":"Event","name":</script>
<script type="application/ld+json">{"@type":"Event","name":"Good","startDate":"2026-06-01"}</script>
</head></html>`
	s := NewJSONLDStrategy()
	doc := NewDocument("https://example.test", []byte(page), model.Source{})

	cards := s.Extract(context.Background(), doc)
	require.Len(t, cards, 1)
	require.Equal(t, "Good", cards[0].Title)
}

func TestJSONLDStringLocation(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
{"@type":"Event","name":"Street Fair","startDate":"2026-07-04","location":"Museumplein"}
</script></head></html>`
	s := NewJSONLDStrategy()
	doc := NewDocument("https://example.test", []byte(page), model.Source{})

	cards := s.Extract(context.Background(), doc)
	require.Len(t, cards, 1)
	require.Equal(t, "Museumplein", cards[0].Location)
}

func TestSoftRepairCutsDanglingBracket(t *testing.T) {
	fixed := softRepair(`{"@type":"Event","name":"X","startDate":"2026-01-01"}]`)
	require.Equal(t, `{"@type":"Event","name":"X","startDate":"2026-01-01"}`, fixed)
}

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urbanpulse/event-harvester/internal/model"
)

const wordpressPage = `<html><head>
<meta name="generator" content="WordPress 6.4"/>
</head><body class="wp-theme">
<div class="tribe-events-calendar-list__event">
  <h3 class="event-title">Vinyl Swap</h3>
  <time datetime="2026-09-05T12:00">Sep 5</time>
  <span class="venue">De Hallen</span>
  <p class="description">Records and coffee.</p>
  <a href="/events/vinyl-swap">details</a>
</div>
<div class="tribe-events-calendar-list__event">
  <h3 class="event-title">Pub Quiz</h3>
  <div class="event-date">Sep 6 2026</div>
</div>
</body></html>`

func TestDOMExtractWordPress(t *testing.T) {
	s := NewDOMStrategy()
	doc := NewDocument("https://example.test/agenda", []byte(wordpressPage), model.Source{})

	cards := s.Extract(context.Background(), doc)
	require.Len(t, cards, 2)
	require.Equal(t, "Vinyl Swap", cards[0].Title)
	require.Equal(t, "2026-09-05T12:00", cards[0].DateText)
	require.Equal(t, "De Hallen", cards[0].Location)
	require.Equal(t, "/events/vinyl-swap", cards[0].DetailURL)
	require.InDelta(t, ConfidenceDOM, cards[0].Confidence, 1e-9)
	require.Equal(t, "Sep 6 2026", cards[1].DateText)
}

func TestDOMGenericFallbackWhenCMSSelectorsMiss(t *testing.T) {
	page := `<html><body>
<div class="event-card"><h2>Harbour Tour</h2><span class="date">Oct 3 2026</span></div>
</body></html>`
	s := NewDOMStrategy()
	doc := NewDocument("https://example.test", []byte(page), model.Source{})

	cards := s.Extract(context.Background(), doc)
	require.Len(t, cards, 1)
	require.Equal(t, "Harbour Tour", cards[0].Title)
}

func TestDOMRegexDateFallback(t *testing.T) {
	page := `<html><body>
<div class="event-card"><h2>Kerstmarkt</h2><p>Gezellig, 12 december in de binnenstad.</p></div>
</body></html>`
	s := NewDOMStrategy()
	doc := NewDocument("https://example.test", []byte(page), model.Source{})

	cards := s.Extract(context.Background(), doc)
	require.Len(t, cards, 1)
	require.Equal(t, "12 december", cards[0].DateText)
}

func TestDOMKeepsOnlyFirstMatchingGroup(t *testing.T) {
	// Both a specific and a generic container match; only one group's
	// results may be returned to avoid duplicate detections.
	page := `<html><head><meta name="generator" content="WordPress"/></head><body>
<div class="tribe-events-calendar-list__event event-card">
  <h3>Same Event</h3><time datetime="2026-02-02">Feb 2</time>
</div>
</body></html>`
	s := NewDOMStrategy()
	doc := NewDocument("https://example.test", []byte(page), model.Source{})
	require.Len(t, s.Extract(context.Background(), doc), 1)
}

func TestDetectCMS(t *testing.T) {
	tests := []struct {
		name string
		html string
		want CMS
	}{
		{
			name: "generator meta",
			html: `<html><head><meta name="generator" content="WordPress 6.2"/></head></html>`,
			want: CMSWordPress,
		},
		{
			name: "script path",
			html: `<html><head><script src="/wp-content/themes/x/app.js"></script></head></html>`,
			want: CMSWordPress,
		},
		{
			name: "wix script",
			html: `<html><head><script src="https://static.parastorage.com/sdk.js"></script></head></html>`,
			want: CMSWix,
		},
		{
			name: "squarespace generator",
			html: `<html><head><meta name="generator" content="Squarespace"/></head></html>`,
			want: CMSSquarespace,
		},
		{
			name: "unknown",
			html: `<html><body><p>plain</p></body></html>`,
			want: CMSUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewDocument("https://x.test", []byte(tt.html), model.Source{})
			html, err := doc.HTML()
			require.NoError(t, err)
			require.Equal(t, tt.want, DetectCMS(html))
		})
	}
}

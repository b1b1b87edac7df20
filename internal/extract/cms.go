package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CMS identifies a detected content management system.
type CMS string

// Known CMS fingerprints.
const (
	CMSWordPress   CMS = "wordpress"
	CMSSquarespace CMS = "squarespace"
	CMSWix         CMS = "wix"
	CMSDrupal      CMS = "drupal"
	CMSUnknown     CMS = "unknown"
)

// DetectCMS sniffs generator meta tags, script-path substrings and body class
// fingerprints to pick a CMS-specific selector list.
func DetectCMS(doc *goquery.Document) CMS {
	if generator, ok := doc.Find(`meta[name="generator"]`).Attr("content"); ok {
		g := strings.ToLower(generator)
		switch {
		case strings.Contains(g, "wordpress"):
			return CMSWordPress
		case strings.Contains(g, "squarespace"):
			return CMSSquarespace
		case strings.Contains(g, "drupal"):
			return CMSDrupal
		case strings.Contains(g, "wix"):
			return CMSWix
		}
	}

	cms := CMSUnknown
	doc.Find("script[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		src = strings.ToLower(src)
		switch {
		case strings.Contains(src, "wp-content"), strings.Contains(src, "wp-includes"):
			cms = CMSWordPress
		case strings.Contains(src, "parastorage.com"), strings.Contains(src, "wixstatic"):
			cms = CMSWix
		case strings.Contains(src, "squarespace"):
			cms = CMSSquarespace
		case strings.Contains(src, "/sites/default/files"):
			cms = CMSDrupal
		default:
			return true
		}
		return false
	})
	if cms != CMSUnknown {
		return cms
	}

	if class, ok := doc.Find("body").Attr("class"); ok {
		c := strings.ToLower(class)
		switch {
		case strings.Contains(c, "wp-"), strings.Contains(c, "wordpress"):
			return CMSWordPress
		case strings.Contains(c, "squarespace"):
			return CMSSquarespace
		}
	}
	return CMSUnknown
}

// selectorGroup is one candidate way of locating event elements on a page.
// Sub-selector lists are ranked: the first non-empty match wins per field.
type selectorGroup struct {
	container string
	title     []string
	date      []string
	location  []string
	desc      []string
	image     []string
	link      []string
}

var defaultSubSelectors = selectorGroup{
	title:    []string{".event-title", "h1", "h2", "h3", "[class*='title']"},
	date:     []string{"time[datetime]", "time", ".event-date", ".date", "[class*='date']"},
	location: []string{".venue", ".location", "[class*='venue']", "[class*='location']"},
	desc:     []string{".description", ".excerpt", ".summary", "p"},
	image:    []string{"img"},
	link:     []string{"a[href]"},
}

func withContainer(container string) selectorGroup {
	g := defaultSubSelectors
	g.container = container
	return g
}

// cmsSelectors maps a detected CMS to its calendar-plugin selector groups,
// tried in order before the generic fallback.
var cmsSelectors = map[CMS][]selectorGroup{
	CMSWordPress: {
		withContainer(".tribe-events-calendar-list__event"),
		withContainer("article.tribe-events-event, .type-tribe_events"),
		withContainer(".mec-event-article"),
		withContainer(".em-event, .eventon_list_event"),
	},
	CMSSquarespace: {
		withContainer(".eventlist-event"),
		withContainer("article.eventlist-event--upcoming"),
	},
	CMSWix: {
		withContainer("[data-hook='event-card']"),
		withContainer("[data-hook='ev-list-item']"),
	},
	CMSDrupal: {
		withContainer(".views-row .event, .node--type-event"),
	},
}

// genericSelectors is the fallback list when no CMS group matches.
var genericSelectors = []selectorGroup{
	withContainer(".event-card"),
	withContainer(".event-item, .event-list-item, li.event"),
	withContainer("article.event, div.event"),
	withContainer("[itemtype*='schema.org/Event']"),
}

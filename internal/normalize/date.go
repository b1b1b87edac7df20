package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedDate is the result of date text normalization. EventDate and
// EventTime keep the wall clock exactly as the source published it; Start is
// the same instant converted to UTC for sorting and range queries.
type ParsedDate struct {
	Start     time.Time
	EventDate string // YYYY-MM-DD
	EventTime string // HH:MM, empty for all-day events
}

// AllDay reports whether the source gave a date without a time of day.
func (p ParsedDate) AllDay() bool { return p.EventTime == "" }

// monthNames maps English and Dutch month names and common abbreviations to
// month numbers. Lookups are lowercase and dot-stripped.
var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January, "januari": time.January,
	"february": time.February, "feb": time.February, "februari": time.February,
	"march": time.March, "mar": time.March, "maart": time.March, "mrt": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May, "mei": time.May,
	"june": time.June, "jun": time.June, "juni": time.June,
	"july": time.July, "jul": time.July, "juli": time.July,
	"august": time.August, "aug": time.August, "augustus": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October, "oktober": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	// 12 december, 12 december 2026
	dayFirstPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]+)\.?(?:\s+(\d{4}))?`)
	// December 12, Dec 12 2026, Sep 5, 2026
	monthFirstPattern = regexp.MustCompile(`(?i)\b([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?`)
	// 19:30, 8:00
	clockPattern = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	// 2026-03-01 with no time component
	bareISOPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// isoLayouts are tried in order for machine-readable date text.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseDate turns raw date text into a ParsedDate. It accepts ISO 8601
// timestamps with or without offsets, bare ISO dates, and human date text in
// English or Dutch. Text with no recognizable date is an error; the caller
// drops the card rather than guessing.
func ParseDate(text string, now time.Time) (ParsedDate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ParsedDate{}, fmt.Errorf("empty date text")
	}

	if bareISOPattern.MatchString(text) {
		t, err := time.Parse("2006-01-02", text)
		if err != nil {
			return ParsedDate{}, fmt.Errorf("parse date %q: %w", text, err)
		}
		return ParsedDate{Start: t.UTC(), EventDate: text}, nil
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return ParsedDate{
				Start:     t.UTC(),
				EventDate: t.Format("2006-01-02"),
				EventTime: t.Format("15:04"),
			}, nil
		}
	}

	return parseHumanDate(text, now)
}

// parseHumanDate handles month-name text in either day-month or month-day
// order. A missing year resolves to the current year, rolled forward when the
// resulting date is more than a day in the past, since agendas announce
// upcoming events.
func parseHumanDate(text string, now time.Time) (ParsedDate, error) {
	day, month, year, ok := findDayMonthYear(text)
	if !ok {
		return ParsedDate{}, fmt.Errorf("no recognizable date in %q", text)
	}

	yearGuessed := year == 0
	if yearGuessed {
		year = now.Year()
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return ParsedDate{}, fmt.Errorf("impossible date in %q", text)
	}
	if yearGuessed && t.Before(now.AddDate(0, 0, -1)) {
		t = t.AddDate(1, 0, 0)
	}

	p := ParsedDate{Start: t, EventDate: t.Format("2006-01-02")}
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh < 24 && mm < 60 {
			p.EventTime = fmt.Sprintf("%02d:%02d", hh, mm)
			p.Start = p.Start.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
		}
	}
	return p, nil
}

func findDayMonthYear(text string) (int, time.Month, int, bool) {
	if m := dayFirstPattern.FindStringSubmatch(text); m != nil {
		if month, ok := lookupMonth(m[2]); ok {
			return atoiOrZero(m[1]), month, atoiOrZero(m[3]), true
		}
	}
	if m := monthFirstPattern.FindStringSubmatch(text); m != nil {
		if month, ok := lookupMonth(m[1]); ok {
			return atoiOrZero(m[2]), month, atoiOrZero(m[3]), true
		}
	}
	return 0, 0, 0, false
}

func lookupMonth(word string) (time.Month, bool) {
	m, ok := monthNames[strings.ToLower(strings.TrimSuffix(word, "."))]
	return m, ok
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Package dedup decides what happens when an extracted event meets the
// event store: insert, enrich an existing record, or skip.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Fingerprint identifies an event across sources: two sites listing the same
// concert at the same venue on the same day produce the same fingerprint.
func Fingerprint(ev model.NormalizedEvent) string {
	return digest(ev.Title, ev.EventDate, ev.Venue)
}

// ContentHash identifies one source's rendition of an event. It changes when
// the source edits its listing, which is how unchanged pages are skipped
// cheaply on re-crawl.
func ContentHash(ev model.NormalizedEvent) string {
	return digest(ev.Title, ev.EventDate, ev.SourceID)
}

// digest hashes its parts after folding case and stripping everything but
// letters and digits, so punctuation and spacing differences between sources
// never split a fingerprint.
func digest(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(canonical(part)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonical(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

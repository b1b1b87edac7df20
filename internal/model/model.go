// Package model defines the core types shared across harvester subsystems.
package model

import "time"

// ExtractionMethod names one extraction strategy.
type ExtractionMethod string

// Extraction strategies in waterfall order.
const (
	MethodHydration ExtractionMethod = "hydration"
	MethodJSONLD    ExtractionMethod = "jsonld"
	MethodFeed      ExtractionMethod = "feed"
	MethodDOM       ExtractionMethod = "dom"
	MethodAI        ExtractionMethod = "ai"
)

// Source is one crawl target. PreferredMethod is overwritten by the
// orchestrator with whichever strategy last won, so later runs try it first.
type Source struct {
	ID                string           `json:"id" mapstructure:"id"`
	URL               string           `json:"url" mapstructure:"url"`
	Domain            string           `json:"domain" mapstructure:"domain"`
	RequestsPerMinute int              `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	Concurrency       int              `json:"concurrency" mapstructure:"concurrency"`
	PreferredMethod   ExtractionMethod `json:"preferred_method" mapstructure:"preferred_method"`
	FeedDiscovery     bool             `json:"feed_discovery" mapstructure:"feed_discovery"`
	DefaultCategory   Category         `json:"default_category" mapstructure:"default_category"`
	DefaultLat        float64          `json:"default_lat" mapstructure:"default_lat"`
	DefaultLng        float64          `json:"default_lng" mapstructure:"default_lng"`
}

// FetchOutcome is the result of one fetch attempt. Rows are appended to the
// outcome log keyed by run id and source id and never mutated.
type FetchOutcome struct {
	RunID        string        `json:"run_id"`
	SourceID     string        `json:"source_id"`
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code"` // 0 when the failure was network-level
	Body         []byte        `json:"-"`
	ETag         string        `json:"etag,omitempty"`
	LastModified string        `json:"last_modified,omitempty"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`
	ErrorText    string        `json:"error_text,omitempty"`
	FetchedAt    time.Time     `json:"fetched_at"`
	Duration     time.Duration `json:"duration"`
}

// NotModified reports whether the server answered the conditional GET with 304.
func (o FetchOutcome) NotModified() bool { return o.StatusCode == 304 }

// ScrapeState is the only mutable per-source state the orchestrator owns.
type ScrapeState struct {
	SourceID            string    `json:"source_id"`
	LastRunAt           time.Time `json:"last_run_at"`
	LastSuccessAt       time.Time `json:"last_success_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastAlertAt         time.Time `json:"last_alert_at"`
	ETag                string    `json:"etag"`
	LastModified        string    `json:"last_modified"`
}

// RawEventCard is the common output unit of every extraction strategy.
type RawEventCard struct {
	Title       string  `json:"title"`
	DateText    string  `json:"date_text"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	DetailURL   string  `json:"detail_url"`
	ImageURL    string  `json:"image_url"`
	Price       string  `json:"price,omitempty"`
	Organizer   string  `json:"organizer,omitempty"`
	TicketURL   string  `json:"ticket_url,omitempty"`
	Fragment    string  `json:"fragment"` // raw source fragment kept for debugging
	Confidence  float64 `json:"confidence"`
}

// Extractable reports whether the card meets the minimum-field invariant.
// Cards failing this are discarded before leaving the waterfall.
func (c RawEventCard) Extractable() bool {
	return c.Title != "" && c.DateText != ""
}

// Category is the closed set of event categories.
type Category string

// Categories. More specific ones are tested before generic ones during
// keyword matching, so ambiguity resolves by position, not scoring.
const (
	CategoryNightlife Category = "nightlife"
	CategoryMusic     Category = "music"
	CategoryArts      Category = "arts"
	CategoryFood      Category = "food"
	CategorySports    Category = "sports"
	CategoryFamily    Category = "family"
	CategoryMarket    Category = "market"
	CategoryCommunity Category = "community"
	CategoryOther     Category = "other"
)

// CategoryPriority is the fixed order keyword matching walks through.
var CategoryPriority = []Category{
	CategoryNightlife,
	CategoryMusic,
	CategoryArts,
	CategoryFood,
	CategorySports,
	CategoryFamily,
	CategoryMarket,
	CategoryCommunity,
}

// NormalizedEvent is a RawEventCard after date/venue normalization and
// categorization. Start is UTC; EventDate/EventTime keep the wall clock the
// source published.
type NormalizedEvent struct {
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	EventDate    string    `json:"event_date"` // YYYY-MM-DD
	EventTime    string    `json:"event_time"` // HH:MM, empty for all-day events
	Venue        string    `json:"venue"`
	Category     Category  `json:"category"`
	Description  string    `json:"description"`
	DetailURL    string    `json:"detail_url"`
	ImageURL     string    `json:"image_url"`
	Price        string    `json:"price,omitempty"`
	Organizer    string    `json:"organizer,omitempty"`
	TicketURL    string    `json:"ticket_url,omitempty"`
	SourceID     string    `json:"source_id"`
	Completeness float64   `json:"completeness"`
}

// StoredEvent is the durable record. Created on first sighting of a
// fingerprint; afterwards only updated, never deleted by this pipeline.
type StoredEvent struct {
	ID            string   `json:"id"`
	Fingerprint   string   `json:"fingerprint"`
	ContentHash   string   `json:"content_hash"`
	AllSourceURLs []string `json:"all_source_urls"`
	NormalizedEvent

	// Enrichment fields, written only when missing.
	Phone     string     `json:"phone,omitempty"`
	Website   string     `json:"website,omitempty"`
	PriceTier int        `json:"price_tier,omitempty"`
	Hours     *WeekHours `json:"hours,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RegisteredVenue is a static reference entity, read-only at runtime.
type RegisteredVenue struct {
	Name      string     `json:"name"`
	Aliases   []string   `json:"aliases,omitempty"`
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	PlaceID   string     `json:"place_id,omitempty"`
	Category  Category   `json:"category,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Website   string     `json:"website,omitempty"`
	PriceTier int        `json:"price_tier,omitempty"`
	Hours     *WeekHours `json:"hours,omitempty"`
}

// DayHours is one day's opening window. ClosesNextDay marks an overnight
// period: the venue is also open from midnight until Close on the following
// day.
type DayHours struct {
	Open          string `json:"open"`  // HH:MM
	Close         string `json:"close"` // HH:MM
	ClosesNextDay bool   `json:"closes_next_day,omitempty"`
}

// WeekHours is a per-day-of-week schedule.
type WeekHours struct {
	AlwaysOpen bool                      `json:"always_open,omitempty"`
	Days       map[time.Weekday]DayHours `json:"days,omitempty"`
}

// EnrichmentStatus classifies one enrichment attempt.
type EnrichmentStatus string

// Enrichment attempt statuses.
const (
	EnrichSuccess        EnrichmentStatus = "success"
	EnrichPartial        EnrichmentStatus = "partial"
	EnrichFailed         EnrichmentStatus = "failed"
	EnrichRegistryMatch  EnrichmentStatus = "registry_match"
	EnrichBudgetExceeded EnrichmentStatus = "budget_exceeded"
	EnrichSkipped        EnrichmentStatus = "skipped"
)

// EnrichmentRecord is one append-only enrichment log row.
type EnrichmentRecord struct {
	EventID       string           `json:"event_id"`
	Status        EnrichmentStatus `json:"status"`
	FieldsWritten []string         `json:"fields_written,omitempty"`
	APICalls      int              `json:"api_calls"`
	Provenance    string           `json:"provenance"` // registry | places | none
	At            time.Time        `json:"at"`
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// PostgresConfig controls the connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool pgxPool
}

// NewPostgres connects a pool and returns the store.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily for
// testing).
func NewPostgresWithPool(pool pgxPool) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// GetState implements ScrapeStates.
func (p *Postgres) GetState(ctx context.Context, sourceID string) (*model.ScrapeState, error) {
	var s model.ScrapeState
	err := p.pool.QueryRow(ctx, `
SELECT source_id, last_run_at, last_success_at, consecutive_failures,
       last_alert_at, etag, last_modified
FROM scrape_state WHERE source_id = $1`, sourceID).
		Scan(&s.SourceID, &s.LastRunAt, &s.LastSuccessAt, &s.ConsecutiveFailures,
			&s.LastAlertAt, &s.ETag, &s.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scrape state: %w", err)
	}
	return &s, nil
}

// UpsertState implements ScrapeStates.
func (p *Postgres) UpsertState(ctx context.Context, s model.ScrapeState) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO scrape_state (
	source_id, last_run_at, last_success_at, consecutive_failures,
	last_alert_at, etag, last_modified
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (source_id) DO UPDATE SET
	last_run_at = EXCLUDED.last_run_at,
	last_success_at = EXCLUDED.last_success_at,
	consecutive_failures = EXCLUDED.consecutive_failures,
	last_alert_at = EXCLUDED.last_alert_at,
	etag = EXCLUDED.etag,
	last_modified = EXCLUDED.last_modified`,
		s.SourceID, s.LastRunAt, s.LastSuccessAt, s.ConsecutiveFailures,
		s.LastAlertAt, s.ETag, s.LastModified)
	if err != nil {
		return fmt.Errorf("upsert scrape state: %w", err)
	}
	return nil
}

// AppendOutcome implements OutcomeLog.
func (p *Postgres) AppendOutcome(ctx context.Context, o model.FetchOutcome) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO fetch_outcomes (
	run_id, source_id, success, status_code, etag, last_modified,
	error_text, body, fetched_at, duration_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.RunID, o.SourceID, o.Success, o.StatusCode, o.ETag, o.LastModified,
		o.ErrorText, o.Body, o.FetchedAt, o.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("append fetch outcome: %w", err)
	}
	return nil
}

const eventColumns = `
id, fingerprint, content_hash, all_source_urls, title, start_at, event_date,
event_time, venue, category, description, detail_url, image_url, price,
organizer, ticket_url, source_id, completeness, phone, website, price_tier,
hours, first_seen_at, updated_at`

// FindByFingerprint implements Events.
func (p *Postgres) FindByFingerprint(ctx context.Context, fingerprint string) (*model.StoredEvent, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE fingerprint = $1`, fingerprint)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event by fingerprint: %w", err)
	}
	return ev, nil
}

// InsertEvent implements Events.
func (p *Postgres) InsertEvent(ctx context.Context, ev *model.StoredEvent) error {
	hours, err := marshalHours(ev.Hours)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO events (`+eventColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		ev.ID, ev.Fingerprint, ev.ContentHash, ev.AllSourceURLs, ev.Title,
		ev.Start, ev.EventDate, ev.EventTime, ev.Venue, string(ev.Category),
		ev.Description, ev.DetailURL, ev.ImageURL, ev.Price, ev.Organizer,
		ev.TicketURL, ev.SourceID, ev.Completeness, ev.Phone, ev.Website,
		ev.PriceTier, hours, ev.FirstSeenAt, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateEvent implements Events.
func (p *Postgres) UpdateEvent(ctx context.Context, ev *model.StoredEvent) error {
	hours, err := marshalHours(ev.Hours)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
UPDATE events SET
	content_hash = $2, all_source_urls = $3, title = $4, start_at = $5,
	event_date = $6, event_time = $7, venue = $8, category = $9,
	description = $10, detail_url = $11, image_url = $12, price = $13,
	organizer = $14, ticket_url = $15, completeness = $16, phone = $17,
	website = $18, price_tier = $19, hours = $20, updated_at = $21
WHERE fingerprint = $1`,
		ev.Fingerprint, ev.ContentHash, ev.AllSourceURLs, ev.Title, ev.Start,
		ev.EventDate, ev.EventTime, ev.Venue, string(ev.Category),
		ev.Description, ev.DetailURL, ev.ImageURL, ev.Price, ev.Organizer,
		ev.TicketURL, ev.Completeness, ev.Phone, ev.Website, ev.PriceTier,
		hours, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// ListUpcoming implements Events.
func (p *Postgres) ListUpcoming(ctx context.Context, fromDate string, limit int) ([]model.StoredEvent, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_date >= $1 ORDER BY start_at LIMIT $2`,
		fromDate, limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	defer rows.Close()

	var out []model.StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// AppendEnrichment implements EnrichmentLog.
func (p *Postgres) AppendEnrichment(ctx context.Context, rec model.EnrichmentRecord) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO enrichment_log (
	event_id, status, fields_written, api_calls, provenance, at
) VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.EventID, string(rec.Status), rec.FieldsWritten, rec.APICalls,
		rec.Provenance, rec.At)
	if err != nil {
		return fmt.Errorf("append enrichment record: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*model.StoredEvent, error) {
	var ev model.StoredEvent
	var category string
	var hours []byte
	err := row.Scan(&ev.ID, &ev.Fingerprint, &ev.ContentHash, &ev.AllSourceURLs,
		&ev.Title, &ev.Start, &ev.EventDate, &ev.EventTime, &ev.Venue,
		&category, &ev.Description, &ev.DetailURL, &ev.ImageURL, &ev.Price,
		&ev.Organizer, &ev.TicketURL, &ev.SourceID, &ev.Completeness,
		&ev.Phone, &ev.Website, &ev.PriceTier, &hours, &ev.FirstSeenAt,
		&ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ev.Category = model.Category(category)
	if len(hours) > 0 {
		var w model.WeekHours
		if err := json.Unmarshal(hours, &w); err != nil {
			return nil, fmt.Errorf("decode hours: %w", err)
		}
		ev.Hours = &w
	}
	return &ev, nil
}

func marshalHours(w *model.WeekHours) ([]byte, error) {
	if w == nil {
		return nil, nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode hours: %w", err)
	}
	return data, nil
}

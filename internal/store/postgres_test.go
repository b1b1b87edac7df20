package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/urbanpulse/event-harvester/internal/model"
)

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewPostgresWithPool(mock)
	require.NoError(t, err)
	return st, mock
}

func TestUpsertState(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	now := time.Unix(1760000000, 0).UTC()
	state := model.ScrapeState{
		SourceID:            "paradiso",
		LastRunAt:           now,
		LastSuccessAt:       now,
		ConsecutiveFailures: 0,
		ETag:                `"abc"`,
	}

	mock.ExpectExec("INSERT INTO scrape_state").
		WithArgs(state.SourceID, state.LastRunAt, state.LastSuccessAt,
			state.ConsecutiveFailures, state.LastAlertAt, state.ETag, state.LastModified).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.UpsertState(context.Background(), state))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStateReturnsNilWhenUnknown(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT source_id, last_run_at").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{
			"source_id", "last_run_at", "last_success_at", "consecutive_failures",
			"last_alert_at", "etag", "last_modified",
		}))

	state, err := st.GetState(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, state)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendOutcome(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	now := time.Unix(1760000000, 0).UTC()
	outcome := model.FetchOutcome{
		RunID:      "run-1",
		SourceID:   "paradiso",
		Success:    false,
		StatusCode: 503,
		Body:       []byte("<html>try later</html>"),
		ErrorText:  "status 503",
		FetchedAt:  now,
		Duration:   1500 * time.Millisecond,
	}

	mock.ExpectExec("INSERT INTO fetch_outcomes").
		WithArgs(outcome.RunID, outcome.SourceID, outcome.Success,
			outcome.StatusCode, outcome.ETag, outcome.LastModified,
			outcome.ErrorText, outcome.Body, outcome.FetchedAt, int64(1500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.AppendOutcome(context.Background(), outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAndFindEvent(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	now := time.Unix(1760000000, 0).UTC()
	ev := &model.StoredEvent{
		ID:            "id-1",
		Fingerprint:   "fp-1",
		ContentHash:   "ch-1",
		AllSourceURLs: []string{"https://a.test/e"},
		NormalizedEvent: model.NormalizedEvent{
			Title:     "Jazz Night",
			Start:     now,
			EventDate: "2026-03-01",
			EventTime: "19:30",
			Venue:     "Paradiso",
			Category:  model.CategoryMusic,
			SourceID:  "paradiso",
		},
		FirstSeenAt: now,
		UpdatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO events").
		WithArgs(ev.ID, ev.Fingerprint, ev.ContentHash, ev.AllSourceURLs,
			ev.Title, ev.Start, ev.EventDate, ev.EventTime, ev.Venue, "music",
			ev.Description, ev.DetailURL, ev.ImageURL, ev.Price, ev.Organizer,
			ev.TicketURL, ev.SourceID, ev.Completeness, ev.Phone, ev.Website,
			ev.PriceTier, []byte(nil), ev.FirstSeenAt, ev.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, st.InsertEvent(context.Background(), ev))

	cols := []string{
		"id", "fingerprint", "content_hash", "all_source_urls", "title",
		"start_at", "event_date", "event_time", "venue", "category",
		"description", "detail_url", "image_url", "price", "organizer",
		"ticket_url", "source_id", "completeness", "phone", "website",
		"price_tier", "hours", "first_seen_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM events WHERE fingerprint").
		WithArgs("fp-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			ev.ID, ev.Fingerprint, ev.ContentHash, ev.AllSourceURLs, ev.Title,
			ev.Start, ev.EventDate, ev.EventTime, ev.Venue, "music",
			ev.Description, ev.DetailURL, ev.ImageURL, ev.Price, ev.Organizer,
			ev.TicketURL, ev.SourceID, ev.Completeness, ev.Phone, ev.Website,
			ev.PriceTier, []byte(nil), ev.FirstSeenAt, ev.UpdatedAt,
		))

	got, err := st.FindByFingerprint(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Jazz Night", got.Title)
	require.Equal(t, model.CategoryMusic, got.Category)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByFingerprintMissing(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM events WHERE fingerprint").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := st.FindByFingerprint(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestAppendEnrichment(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	now := time.Unix(1760000000, 0).UTC()
	rec := model.EnrichmentRecord{
		EventID:       "id-1",
		Status:        model.EnrichRegistryMatch,
		FieldsWritten: []string{"phone", "website"},
		Provenance:    "registry",
		At:            now,
	}

	mock.ExpectExec("INSERT INTO enrichment_log").
		WithArgs(rec.EventID, "registry_match", rec.FieldsWritten,
			rec.APICalls, rec.Provenance, rec.At).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.AppendEnrichment(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

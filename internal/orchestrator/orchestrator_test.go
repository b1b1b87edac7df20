package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/alert"
	"github.com/urbanpulse/event-harvester/internal/fetch"
	"github.com/urbanpulse/event-harvester/internal/model"
	"github.com/urbanpulse/event-harvester/internal/politeness"
	"github.com/urbanpulse/event-harvester/internal/ratelimit"
	"github.com/urbanpulse/event-harvester/internal/retry"
	"github.com/urbanpulse/event-harvester/internal/store"
)

type allowGate struct{ delay time.Duration }

func (g allowGate) Check(context.Context, string) politeness.Decision {
	return politeness.Decision{Allowed: true, MinDelay: g.delay}
}

type denyGate struct{}

func (denyGate) Check(context.Context, string) politeness.Decision {
	return politeness.Decision{Allowed: false}
}

type spyNotifier struct {
	calls   int
	deliver bool
}

func (s *spyNotifier) SourceDown(context.Context, string, model.Source, []alert.Failure, int) bool {
	s.calls++
	return s.deliver
}

func newTestOrchestrator(t *testing.T, st store.Store, gate Gate, notifier Notifier) (*Orchestrator, *[]time.Duration) {
	t.Helper()
	o := New(
		Config{MaxAttempts: 3, FailureThreshold: 3, SuppressionWindow: 30 * time.Minute},
		fetch.New(fetch.Config{Timeout: 5 * time.Second}),
		gate,
		ratelimit.New(ratelimit.Config{DefaultRPM: 6000, DomainParallelism: 4}),
		retry.New(time.Millisecond, 5*time.Millisecond),
		st, notifier, zap.NewNop(),
	)
	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return o, &slept
}

func srcFor(url string) model.Source {
	return model.Source{ID: "test-src", URL: url}
}

func TestRunFetchesAndCallsHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<html>agenda</html>"))
	}))
	defer srv.Close()

	mem := store.NewMemory()
	o, _ := newTestOrchestrator(t, mem, allowGate{}, nil)

	var handled atomic.Int32
	summary, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)},
		func(_ context.Context, src model.Source, outcome model.FetchOutcome) error {
			handled.Add(1)
			require.Equal(t, "test-src", src.ID)
			require.Contains(t, string(outcome.Body), "agenda")
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fetched)
	require.Equal(t, int32(1), handled.Load())

	state, err := mem.GetState(context.Background(), "test-src")
	require.NoError(t, err)
	require.Equal(t, `"v1"`, state.ETag)
	require.Zero(t, state.ConsecutiveFailures)
	require.False(t, state.LastSuccessAt.IsZero())
}

func TestRunNotModifiedSkipsHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	require.NoError(t, mem.UpsertState(context.Background(),
		model.ScrapeState{SourceID: "test-src", ETag: `"v1"`}))

	o, _ := newTestOrchestrator(t, mem, allowGate{}, nil)
	summary, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)},
		func(context.Context, model.Source, model.FetchOutcome) error {
			t.Fatal("handler must not run on 304")
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 1, summary.NotModified)
	require.Zero(t, summary.Fetched)

	// Validators survive a 304.
	state, err := mem.GetState(context.Background(), "test-src")
	require.NoError(t, err)
	require.Equal(t, `"v1"`, state.ETag)
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	mem := store.NewMemory()
	o, slept := newTestOrchestrator(t, mem, allowGate{}, nil)

	summary, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fetched)
	require.Equal(t, int32(2), hits.Load())
	require.Len(t, *slept, 2) // courtesy wait per attempt; retry adds backoff
	require.Len(t, mem.Outcomes(), 2)
}

func TestRunRetryAfterOverridesBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	o, slept := newTestOrchestrator(t, store.NewMemory(), allowGate{}, nil)
	// Policy cap is 5ms; a 2s Retry-After must be clamped to the cap.
	_, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Len(t, *slept, 2)
	require.Equal(t, 5*time.Millisecond, (*slept)[1])
}

func TestRunPermanentFailureDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	o, _ := newTestOrchestrator(t, mem, allowGate{}, nil)

	summary, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, int32(1), hits.Load())

	state, err := mem.GetState(context.Background(), "test-src")
	require.NoError(t, err)
	require.Equal(t, 1, state.ConsecutiveFailures)
}

func TestRunRobotsBlockIsPermanent(t *testing.T) {
	mem := store.NewMemory()
	o, _ := newTestOrchestrator(t, mem, denyGate{}, nil)

	summary, err := o.Run(context.Background(),
		[]model.Source{srcFor("https://blocked.test/agenda")}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 1, summary.Failed)

	outcomes := mem.Outcomes()
	require.Len(t, outcomes, 1)
	require.Contains(t, outcomes[0].ErrorText, "robots")
}

func TestRunCrawlDelayAppliesBeforeFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// A generous rpm hint must not shortcut the robots crawl-delay: the
	// courtesy wait runs before the very first fetch, not just on retries.
	o, slept := newTestOrchestrator(t, store.NewMemory(),
		allowGate{delay: 50 * time.Millisecond}, nil)
	summary, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fetched)
	require.Len(t, *slept, 1)
	require.GreaterOrEqual(t, (*slept)[0], 50*time.Millisecond)
}

func TestRunCrawlDelayAppliesToEveryAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	o, slept := newTestOrchestrator(t, store.NewMemory(),
		allowGate{delay: 50 * time.Millisecond}, nil)
	_, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Len(t, *slept, 2)
	for _, d := range *slept {
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
	}
}

func TestRunBaseDelayAndJitterShapeCourtesyWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	o := New(
		Config{
			MaxAttempts:       3,
			BaseDelay:         20 * time.Millisecond,
			Jitter:            10 * time.Millisecond,
			FailureThreshold:  3,
			SuppressionWindow: 30 * time.Minute,
		},
		fetch.New(fetch.Config{Timeout: 5 * time.Second}),
		allowGate{delay: 5 * time.Millisecond}, // smaller than base; base wins
		ratelimit.New(ratelimit.Config{DefaultRPM: 6000, DomainParallelism: 4}),
		retry.New(time.Millisecond, 5*time.Millisecond),
		store.NewMemory(), nil, zap.NewNop(),
	)
	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Len(t, slept, 1)
	require.GreaterOrEqual(t, slept[0], 20*time.Millisecond)
	require.LessOrEqual(t, slept[0], 30*time.Millisecond)
}

func TestAlertFiresAtThresholdAndSuppresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	require.NoError(t, mem.UpsertState(context.Background(),
		model.ScrapeState{SourceID: "test-src", ConsecutiveFailures: 2}))

	notifier := &spyNotifier{deliver: true}
	o, _ := newTestOrchestrator(t, mem, allowGate{}, notifier)

	summary, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AlertsSent)
	require.Equal(t, 1, notifier.calls)

	state, err := mem.GetState(context.Background(), "test-src")
	require.NoError(t, err)
	require.Equal(t, 3, state.ConsecutiveFailures)
	require.False(t, state.LastAlertAt.IsZero())

	// Within the suppression window the next failure stays quiet.
	summary, err = o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Zero(t, summary.AlertsSent)
	require.Equal(t, 1, notifier.calls)
}

func TestFailedAlertDeliveryDoesNotStartSuppression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	require.NoError(t, mem.UpsertState(context.Background(),
		model.ScrapeState{SourceID: "test-src", ConsecutiveFailures: 5}))

	notifier := &spyNotifier{deliver: false}
	o, _ := newTestOrchestrator(t, mem, allowGate{}, notifier)

	_, err := o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, notifier.calls)

	state, err := mem.GetState(context.Background(), "test-src")
	require.NoError(t, err)
	require.True(t, state.LastAlertAt.IsZero())

	// Next run tries again immediately since no window started.
	_, err = o.Run(context.Background(), []model.Source{srcFor(srv.URL)}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, notifier.calls)
}

func TestGroupByDomain(t *testing.T) {
	groups := groupByDomain([]model.Source{
		{ID: "a", URL: "https://one.test/x"},
		{ID: "b", URL: "https://one.test/y"},
		{ID: "c", Domain: "two.test", URL: "https://two.test/z"},
	})
	require.Len(t, groups, 2)
	require.Len(t, groups["one.test"], 2)
	require.Len(t, groups["two.test"], 1)
}

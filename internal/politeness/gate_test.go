package politeness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func robotsServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(hits, 1)
			_, _ = w.Write([]byte(body))
			return
		}
		http.NotFound(w, r)
	}))
}

func TestCheckCrawlDelayAndAllow(t *testing.T) {
	var hits int32
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 5\nDisallow: /private/\n", &hits)
	defer srv.Close()

	g := New("event-harvester/1.0", time.Hour, zap.NewNop())

	d := g.Check(context.Background(), srv.URL+"/agenda")
	require.True(t, d.Allowed)
	require.Equal(t, 5*time.Second, d.MinDelay)

	d = g.Check(context.Background(), srv.URL+"/private/x")
	require.False(t, d.Allowed)
}

func TestCheckPrefersExactUserAgentGroup(t *testing.T) {
	var hits int32
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 1\n\nUser-agent: event-harvester\nCrawl-delay: 9\n", &hits)
	defer srv.Close()

	g := New("event-harvester/1.0", time.Hour, zap.NewNop())
	d := g.Check(context.Background(), srv.URL+"/")
	require.True(t, d.Allowed)
	require.Equal(t, 9*time.Second, d.MinDelay)
}

func TestCheckCachesPerTTL(t *testing.T) {
	var hits int32
	srv := robotsServer(t, "User-agent: *\nDisallow:\n", &hits)
	defer srv.Close()

	g := New("event-harvester/1.0", time.Hour, zap.NewNop())
	for i := 0; i < 4; i++ {
		d := g.Check(context.Background(), srv.URL+"/page")
		require.True(t, d.Allowed)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCheckFailsOpen(t *testing.T) {
	g := New("event-harvester/1.0", time.Hour, zap.NewNop())
	d := g.Check(context.Background(), "http://127.0.0.1:1/anything")
	require.True(t, d.Allowed)
	require.Zero(t, d.MinDelay)
}

func TestCheckMissingRobotsAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	g := New("event-harvester/1.0", time.Hour, zap.NewNop())
	d := g.Check(context.Background(), srv.URL+"/events")
	require.True(t, d.Allowed)
}

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Classification
	}{
		{name: "ok", status: 200, want: ClassSuccess},
		{name: "not modified", status: 304, want: ClassSuccess},
		{name: "rate limited", status: 429, want: ClassTransient},
		{name: "bad gateway", status: 502, want: ClassTransient},
		{name: "service unavailable", status: 503, want: ClassTransient},
		{name: "gateway timeout", status: 504, want: ClassTransient},
		{name: "server error", status: 500, want: ClassTransient},
		{name: "network failure", status: 0, want: ClassTransient},
		{name: "not found", status: 404, want: ClassPermanent},
		{name: "forbidden", status: 403, want: ClassPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status); got != tt.want {
				t.Fatalf("Classify(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestFetchSendsConditionalHeaders(t *testing.T) {
	var gotETag, gotModified string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Tue, 01 Sep 2026 10:00:00 GMT")
		_, _ = w.Write([]byte("<html>hi</html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "event-harvester-test", Timeout: 5 * time.Second, BodyCapBytes: 1024})
	resp, err := f.Fetch(context.Background(), Request{
		URL:          srv.URL,
		ETag:         `"v1"`,
		LastModified: "Mon, 31 Aug 2026 10:00:00 GMT",
	})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, `"v1"`, gotETag)
	require.Equal(t, "Mon, 31 Aug 2026 10:00:00 GMT", gotModified)
	require.Equal(t, `"v2"`, resp.ETag)
	require.Equal(t, "Tue, 01 Sep 2026 10:00:00 GMT", resp.LastModified)
	require.Equal(t, "<html>hi</html>", string(resp.Body))
}

func TestFetchCapturesNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "7", resp.RetryAfter)
	require.Equal(t, ClassTransient, resp.Class())
}

func TestFetchTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 200)))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second, BodyCapBytes: 64})
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	require.True(t, resp.Truncated)
	require.Len(t, resp.Body, 64+len(TruncationMarker))
	require.True(t, strings.HasSuffix(string(resp.Body), TruncationMarker))
}

func TestFetchReportsNetworkFailure(t *testing.T) {
	f := New(Config{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), Request{URL: "http://127.0.0.1:1/unreachable"})
	require.NoError(t, err)
	require.Equal(t, 0, resp.StatusCode)
	require.Error(t, resp.NetworkErr)
	require.Equal(t, ClassTransient, resp.Class())
}

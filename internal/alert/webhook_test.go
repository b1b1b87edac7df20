package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/model"
)

func TestSourceDownPostsMultiLineText(t *testing.T) {
	var got struct {
		Text string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, 5*time.Second, zap.NewNop())
	ok := n.SourceDown(context.Background(), "run-1",
		model.Source{ID: "paradiso", URL: "https://paradiso.test/agenda"},
		[]Failure{{StatusCode: 503}, {StatusCode: 503, ErrorText: "status 503"}, {StatusCode: 429}},
		3)

	require.True(t, ok)
	require.Contains(t, got.Text, "paradiso")
	require.Contains(t, got.Text, "3 consecutive failures")
	require.Contains(t, got.Text, "Run: run-1")
	require.Contains(t, got.Text, "HTTP 503: 2")
	require.Contains(t, got.Text, "Last error: status 503")
	require.Contains(t, got.Text, "Likely cause: server errors")
}

func TestSourceDownDeliveryFailureReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, 5*time.Second, zap.NewNop())
	ok := n.SourceDown(context.Background(), "run-1", model.Source{ID: "s"},
		[]Failure{{StatusCode: 500}}, 3)
	require.False(t, ok)
}

func TestSourceDownDisabledWithoutURL(t *testing.T) {
	n := NewNotifier("", 5*time.Second, zap.NewNop())
	require.False(t, n.Enabled())
	require.False(t, n.SourceDown(context.Background(), "run-1", model.Source{ID: "s"}, nil, 3))
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		name     string
		failures []Failure
		want     string
	}{
		{"rate limited", []Failure{{StatusCode: 429}, {StatusCode: 429}, {StatusCode: 500}}, "rate limited"},
		{"server errors", []Failure{{StatusCode: 502}, {StatusCode: 503}}, "server errors"},
		{"client errors", []Failure{{StatusCode: 404}, {StatusCode: 410}}, "client errors"},
		{"network", []Failure{{StatusCode: 0, ErrorText: "dial tcp: timeout"}}, "network failures"},
		{"parsing", []Failure{
			{StatusCode: 0, ErrorText: "parse date: no recognizable date"},
			{StatusCode: 0, ErrorText: "parse html"},
		}, "parsing failures"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diagnosis, remedy := Diagnose(tt.failures)
			require.Equal(t, tt.want, diagnosis)
			require.NotEmpty(t, remedy)
		})
	}
}

package reputation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/l0p7/emailrep/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type errDoer struct{ err error }

func (d errDoer) Do(*http.Request) (*http.Response, error) { return nil, d.err }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.Client(), ClientOptions{Endpoint: srv.URL, UserAgent: "Polarity", Logger: newTestLogger()})
	require.NoError(t, err)
	return client
}

func TestLookupSendsExpectedRequest(t *testing.T) {
	var got *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"reputation":"high"}`)
	})

	out := client.Lookup(context.Background(), entity.Email("bill+test@example.com"), "secret")
	require.Equal(t, KindHit, out.Kind)
	require.NotNil(t, got)
	assert.Equal(t, "/bill+test@example.com", got.URL.Path)
	assert.Equal(t, "true", got.URL.Query().Get("summary"))
	assert.Equal(t, "secret", got.Header.Get("Key"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "Polarity", got.Header.Get("User-Agent"))
}

func TestLookupEscapesPathSegments(t *testing.T) {
	var rawPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		_, _ = io.WriteString(w, `[]`)
	})
	tests := []struct {
		value string
		want  string
	}{
		{value: "a/b@example.com", want: "/a%2Fb@example.com"},
		{value: "..", want: "/.."},
		{value: ".", want: "/."},
	}
	for _, tt := range tests {
		rawPath = ""
		out := client.Lookup(context.Background(), entity.Email(tt.value), "k")
		require.Equal(t, KindMiss, out.Kind, tt.value)
		require.Equal(t, tt.want, rawPath, tt.value)
	}
}

func TestLookupKeepsEndpointBasePath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.Client(), ClientOptions{Endpoint: srv.URL + "/v1/", Logger: newTestLogger()})
	require.NoError(t, err)
	out := client.Lookup(context.Background(), entity.Email(".."), "k")
	require.Equal(t, KindMiss, out.Kind)
	require.Equal(t, "/v1/..", path)
}

func TestLookupClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		headers  map[string]string
		kind     Kind
		details  map[string]any
		daily    *string
		monthly  *string
		errCheck func(t *testing.T, err error)
	}{
		{
			name:   "hit with counters",
			status: http.StatusOK,
			body:   `{"reputation":"high","suspicious":false}`,
			headers: map[string]string{
				"x-rate-limit-daily-remaining":   "99",
				"x-rate-limit-monthly-remaining": "999",
			},
			kind:    KindHit,
			details: map[string]any{"reputation": "high", "suspicious": false},
			daily:   strPtr("99"),
			monthly: strPtr("999"),
		},
		{
			name:   "hit without counters",
			status: http.StatusOK,
			body:   `{"reputation":"low"}`,
			kind:   KindHit,
			details: map[string]any{
				"reputation": "low",
			},
		},
		{
			name:   "miss on empty array",
			status: http.StatusOK,
			body:   ` [] `,
			kind:   KindMiss,
		},
		{
			name:   "hit with empty body",
			status: http.StatusOK,
			body:   "",
			kind:   KindHit,
		},
		{
			name:   "hit with null body",
			status: http.StatusOK,
			body:   "null",
			kind:   KindHit,
		},
		{
			name:   "hit with false body",
			status: http.StatusOK,
			body:   "false",
			kind:   KindHit,
		},
		{
			name:   "hit with zero body",
			status: http.StatusOK,
			body:   "0",
			kind:   KindHit,
		},
		{
			name:   "hit with empty string body",
			status: http.StatusOK,
			body:   `""`,
			kind:   KindHit,
		},
		{
			name:   "truthy scalar payload",
			status: http.StatusOK,
			body:   "true",
			kind:   KindUpstreamError,
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   "{not json",
			kind:   KindUpstreamError,
			errCheck: func(t *testing.T, err error) {
				var upstream *UpstreamError
				require.True(t, errors.As(err, &upstream))
				require.Equal(t, http.StatusOK, upstream.Status)
			},
		},
		{
			name:   "unexpected array payload",
			status: http.StatusOK,
			body:   `[{"a":1}]`,
			kind:   KindUpstreamError,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"status":"fail"}`,
			headers: map[string]string{"x-rate-limit-daily-remaining": "0"},
			kind:    KindRateLimited,
			daily:   strPtr("0"),
			errCheck: func(t *testing.T, err error) {
				var rl *RateLimitError
				require.True(t, errors.As(err, &rl))
				require.Equal(t, "0", *rl.Counters.DailyRemaining)
				require.Nil(t, rl.Counters.MonthlyRemaining)
			},
		},
		{
			name:   "upstream error",
			status: http.StatusUnauthorized,
			body:   `{"status":"fail","reason":"invalid key"}`,
			kind:   KindUpstreamError,
			errCheck: func(t *testing.T, err error) {
				var upstream *UpstreamError
				require.True(t, errors.As(err, &upstream))
				require.Equal(t, http.StatusUnauthorized, upstream.Status)
				require.Contains(t, upstream.Body, "invalid key")
				require.Contains(t, upstream.Error(), "401")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			out := client.Lookup(context.Background(), entity.Email("a@example.com"), "key")
			require.Equal(t, tt.kind, out.Kind)
			require.Equal(t, "a@example.com", out.Identifier.Value)
			if tt.details != nil {
				require.Equal(t, tt.details, out.Details)
			} else {
				require.Nil(t, out.Details)
			}
			require.Equal(t, tt.daily, out.Counters.DailyRemaining)
			require.Equal(t, tt.monthly, out.Counters.MonthlyRemaining)
			if tt.errCheck != nil {
				tt.errCheck(t, out.Err)
			}
			if tt.kind == KindHit || tt.kind == KindMiss {
				require.NoError(t, out.Err)
			}
		})
	}
}

func TestLookupTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	client, err := NewClient(errDoer{err: cause}, ClientOptions{Endpoint: "https://emailrep.io"})
	require.NoError(t, err)

	out := client.Lookup(context.Background(), entity.Email("a@example.com"), "key")
	require.Equal(t, KindTransportError, out.Kind)
	require.True(t, out.Fatal())
	require.ErrorIs(t, out.Err, cause)

	var transport *TransportError
	require.True(t, errors.As(out.Err, &transport))
	require.Equal(t, "a@example.com", transport.Identifier)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil, ClientOptions{Endpoint: "https://emailrep.io"})
	require.Error(t, err)

	_, err = NewClient(http.DefaultClient, ClientOptions{Endpoint: "emailrep.io"})
	require.Error(t, err)
}

func TestCounters(t *testing.T) {
	c := Counters{DailyRemaining: strPtr("12"), MonthlyRemaining: strPtr("n/a")}
	require.True(t, c.Present())
	daily, ok := c.Daily()
	require.True(t, ok)
	require.EqualValues(t, 12, daily)
	_, ok = c.Monthly()
	require.False(t, ok)
	require.False(t, Counters{}.Present())
}

func TestUpstreamErrorTruncatesBody(t *testing.T) {
	err := &UpstreamError{Identifier: "a@example.com", Status: 500, Body: strings.Repeat("x", 1000)}
	require.Less(t, len(err.Error()), 400)
}

func strPtr(s string) *string { return &s }

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCreation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		baseURL     string
		timeout     time.Duration
		wantTimeout time.Duration
	}{
		{
			name:        "default configuration",
			baseURL:     "https://maps.example.com",
			timeout:     0,
			wantTimeout: 30 * time.Second,
		},
		{
			name:        "custom configuration",
			baseURL:     "https://maps.test.com",
			timeout:     5 * time.Second,
			wantTimeout: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := New(Options{
				BaseURL: tt.baseURL,
				Timeout: tt.timeout,
			})

			assert.Equal(t, tt.baseURL, client.baseURL)
			assert.Equal(t, tt.wantTimeout, client.httpClient.Timeout)
		})
	}
}

func TestRequestFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		apiKey    string
		params    url.Values
		wantQuery url.Values
	}{
		{
			name:      "no params and no key",
			wantQuery: url.Values{},
		},
		{
			name:      "key is appended",
			apiKey:    "secret",
			params:    url.Values{"address": {"Athens, GA"}},
			wantQuery: url.Values{"address": {"Athens, GA"}, "key": {"secret"}},
		},
		{
			name:      "params without key",
			params:    url.Values{"radius": {"16093"}, "type": {"bus_station"}},
			wantQuery: url.Values{"radius": {"16093"}, "type": {"bus_station"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.Query())
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"OK"}`))
			}))
			defer server.Close()

			client := New(Options{
				BaseURL: server.URL,
				APIKey:  tt.apiKey,
				Timeout: 5 * time.Second,
			})

			resp, err := client.Get(context.Background(), "/maps/api/geocode/json", tt.params)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"status":"OK"}`, string(resp.Body))
		})
	}
}

func TestParamsAreNotMutated(t *testing.T) {
	client := New(Options{BaseURL: "https://maps.example.com", APIKey: "secret"})
	params := url.Values{"address": {"Athens"}}

	_ = client.buildURL("/x", params)

	assert.Equal(t, url.Values{"address": {"Athens"}}, params)
}

func TestNonSuccessStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, APIKey: "secret", Timeout: 5 * time.Second})

	_, err := client.Get(context.Background(), "/maps/api/place/nearbysearch/json", nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.NotContains(t, statusErr.Error(), "secret")
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(Options{
		BaseURL: server.URL,
		Timeout: 100 * time.Millisecond,
	})

	_, err := client.Get(context.Background(), "/test", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestRateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, RatePerSecond: 1})

	_, err := client.Get(context.Background(), "/test", nil)
	require.NoError(t, err)

	// The single token is spent; the next wait would exceed the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, "/test", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetFuncOverride(t *testing.T) {
	client := &Client{
		GetFunc: func(ctx context.Context, path string, params url.Values) (*Response, error) {
			return &Response{StatusCode: http.StatusTeapot, Body: []byte(path)}, nil
		},
	}

	resp, err := client.Get(context.Background(), "/override", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "/override", string(resp.Body))
}

func BenchmarkHTTPClient(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(Options{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	ctx := context.Background()

	b.Run("Sequential Requests", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := client.Get(ctx, "/test", nil)
			require.NoError(b, err)
		}
	})
}

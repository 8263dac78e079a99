package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"specwatch/internal/config"
	"specwatch/internal/errorwrapper"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(cfg config.FetcherConfig) *Fetcher {
	return NewFetcher(nil, zerolog.Nop(), cfg)
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"abc123"`)
		_, _ = w.Write([]byte(`{"openapi": "3.0.0"}`))
	}))
	defer server.Close()

	result, err := newTestFetcher(config.NewDefaultFetcherConfig()).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"openapi": "3.0.0"}`, string(result.Content))
	assert.Equal(t, "application/json", result.ContentType)
	assert.Equal(t, `"abc123"`, result.ETag)
	assert.Equal(t, http.StatusOK, result.HTTPStatusCode)
}

func TestFetchSendsUserAgent(t *testing.T) {
	var seenAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	cfg := config.NewDefaultFetcherConfig()
	cfg.UserAgent = "specwatch-test/1.0"
	_, err := newTestFetcher(cfg).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "specwatch-test/1.0", seenAgent)
}

func TestFetchConditionalNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"openapi": "3.0.0"}`))
	}))
	defer server.Close()

	f := newTestFetcher(config.NewDefaultFetcherConfig())

	first, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, `"v1"`, first.ETag)
	assert.False(t, first.NotModified)

	second, err := f.FetchConditional(context.Background(), server.URL, Conditional{ETag: first.ETag})
	require.NoError(t, err)
	assert.True(t, second.NotModified)
	assert.Empty(t, second.Content)
}

func TestFetchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestFetcher(config.NewDefaultFetcherConfig()).Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var httpErr *errorwrapper.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestFetchUnreachableHost(t *testing.T) {
	_, err := newTestFetcher(config.NewDefaultFetcherConfig()).Fetch(context.Background(), "http://127.0.0.1:1/spec.json")
	require.Error(t, err)

	var netErr *errorwrapper.NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response, no Content-Length header.
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	cfg := config.NewDefaultFetcherConfig()
	cfg.MaxContentSize = 1024
	_, err := newTestFetcher(cfg).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content too large")
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(config.NewDefaultFetcherConfig()).Fetch(ctx, server.URL)
	assert.Error(t, err)
}

func TestFingerprintStability(t *testing.T) {
	a := Fingerprint([]byte(`{"openapi": "3.0.0"}`))
	b := Fingerprint([]byte(`{"openapi": "3.0.0"}`))
	c := Fingerprint([]byte(`{"openapi": "3.1.0"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

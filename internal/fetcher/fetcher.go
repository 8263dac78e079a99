package fetcher

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"

	"specwatch/internal/config"
	"specwatch/internal/errorwrapper"

	"github.com/rs/zerolog"
)

// Fetcher retrieves specification documents from remote URLs with bounded
// time and size.
type Fetcher struct {
	httpClient *http.Client
	logger     zerolog.Logger
	cfg        config.FetcherConfig
}

// NewFetcher creates a new Fetcher. When client is nil one is built from the
// configuration.
func NewFetcher(client *http.Client, logger zerolog.Logger, cfg config.FetcherConfig) *Fetcher {
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
		client = &http.Client{
			Timeout:   cfg.Timeout(),
			Transport: transport,
		}
	}
	return &Fetcher{
		httpClient: client,
		logger:     logger.With().Str("component", "Fetcher").Logger(),
		cfg:        cfg,
	}
}

// FetchResult holds the outcome of a document fetch.
type FetchResult struct {
	Content        []byte
	ContentType    string
	ETag           string
	LastModified   string
	HTTPStatusCode int
	// NotModified is set when the server answered 304 to a conditional
	// request; Content is empty in that case.
	NotModified bool
}

// Conditional carries the validators of the previously fetched document.
// Empty fields are not sent.
type Conditional struct {
	ETag         string
	LastModified string
}

// Fetch retrieves the document at url. The request is bounded by the
// configured timeout and is cancelled when ctx is cancelled, so an in-flight
// fetch never blocks shutdown.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	return f.FetchConditional(ctx, url, Conditional{})
}

// FetchConditional retrieves the document at url, sending If-None-Match and
// If-Modified-Since when validators from the previous fetch are known. A 304
// answer yields a result with NotModified set and no error.
func (f *Fetcher) FetchConditional(ctx context.Context, url string, cond Conditional) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "creating request for "+url)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error().Err(err).Str("url", url).Msg("Failed to execute HTTP request")
		return nil, errorwrapper.NewNetworkError(url, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	result := &FetchResult{
		ETag:           resp.Header.Get("ETag"),
		LastModified:   resp.Header.Get("Last-Modified"),
		ContentType:    resp.Header.Get("Content-Type"),
		HTTPStatusCode: resp.StatusCode,
	}

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		f.logger.Debug().Str("url", url).Msg("Spec document unchanged per conditional request")
		return result, nil
	}

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn().Str("url", url).Int("status_code", resp.StatusCode).Msg("Received non-OK HTTP status")
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errorwrapper.NewHTTPErrorWithURL(resp.StatusCode, string(bodyBytes), url)
	}

	if resp.ContentLength > 0 && resp.ContentLength > int64(f.cfg.MaxContentSize) {
		return nil, errorwrapper.NewError("content too large: %d bytes (max: %d bytes)", resp.ContentLength, f.cfg.MaxContentSize)
	}

	// Read one byte past the limit so an oversized body without a
	// Content-Length header is still rejected.
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.cfg.MaxContentSize)+1))
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to read response body")
	}
	if len(bodyBytes) > f.cfg.MaxContentSize {
		return nil, errorwrapper.NewError("content too large: %d bytes (max: %d bytes)", len(bodyBytes), f.cfg.MaxContentSize)
	}

	result.Content = bodyBytes

	f.logger.Debug().Str("url", url).Str("content_type", result.ContentType).Int("size", len(result.Content)).Msg("Spec document fetched successfully")
	return result, nil
}

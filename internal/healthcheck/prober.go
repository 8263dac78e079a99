package healthcheck

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"specwatch/internal/config"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
)

// Prober probes the live endpoints declared by a source's last known-good
// spec. Probes are capped per cycle and run under a shared concurrency limit.
type Prober struct {
	httpClient *http.Client
	cfg        config.HealthCheckConfig
	logger     zerolog.Logger
	clock      func() time.Time
}

// NewProber creates a Prober from cfg.
func NewProber(cfg config.HealthCheckConfig, logger zerolog.Logger) *Prober {
	return &Prober{
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout()},
		cfg:        cfg,
		logger:     logger.With().Str("component", "HealthProber").Logger(),
		clock:      time.Now,
	}
}

// ProbeSpec probes up to MaxEndpoints of the spec's declared endpoints and
// returns one sample per probe. The spec's base URL resolves endpoint paths;
// a spec without one yields no samples.
func (p *Prober) ProbeSpec(ctx context.Context, source *models.MonitoredSource, spec *models.NormalizedSpec) []models.EndpointHealthSample {
	if spec == nil || spec.BaseURL == "" {
		p.logger.Warn().Str("source_id", source.ID).Msg("No base URL available, skipping health probes")
		return nil
	}

	keys := spec.EndpointKeys()
	if max := p.cfg.MaxEndpoints; max > 0 && len(keys) > max {
		keys = keys[:max]
	}

	samples := make([]models.EndpointHealthSample, len(keys))
	limit := p.cfg.MaxConcurrentProbes
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, endpoint models.EndpointSpec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			samples[i] = p.probeOne(ctx, source, spec.BaseURL, endpoint)
		}(i, spec.Endpoints[key])
	}
	wg.Wait()

	sort.Slice(samples, func(i, j int) bool { return samples[i].Endpoint < samples[j].Endpoint })
	return samples
}

func (p *Prober) probeOne(ctx context.Context, source *models.MonitoredSource, baseURL string, endpoint models.EndpointSpec) models.EndpointHealthSample {
	sample := models.EndpointHealthSample{
		SourceID:  source.ID,
		Endpoint:  endpoint.Key(),
		Method:    endpoint.Method,
		Path:      endpoint.Path,
		CheckedAt: p.clock().UTC(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout())
	defer cancel()

	req, err := p.buildRequest(probeCtx, baseURL, endpoint)
	if err != nil {
		sample.State = models.HealthStateUnhealthy
		sample.Error = err.Error()
		return sample
	}

	start := p.clock()
	resp, err := p.httpClient.Do(req)
	sample.ResponseTime = p.clock().Sub(start)
	if err != nil {
		// Transport failures leave the status code at zero.
		sample.State = models.HealthStateUnhealthy
		sample.Error = err.Error()
		p.logger.Warn().Str("source_id", source.ID).Str("endpoint", sample.Endpoint).Err(err).Msg("Endpoint probe failed")
		return sample
	}
	defer resp.Body.Close()

	sample.StatusCode = resp.StatusCode
	sample.State = models.ClassifyStatusCode(resp.StatusCode)
	p.logger.Debug().
		Str("endpoint", sample.Endpoint).
		Int("status_code", sample.StatusCode).
		Dur("response_time", sample.ResponseTime).
		Msg("Endpoint probed")
	return sample
}

// buildRequest dispatches on the declared method. Mutating methods carry an
// empty JSON body so servers that reject bodyless writes still answer;
// methods outside the usual set degrade to HEAD.
func (p *Prober) buildRequest(ctx context.Context, baseURL string, endpoint models.EndpointSpec) (*http.Request, error) {
	fullURL := strings.TrimRight(baseURL, "/") + endpoint.Path

	switch strings.ToUpper(endpoint.Method) {
	case http.MethodGet, http.MethodDelete:
		return http.NewRequestWithContext(ctx, strings.ToUpper(endpoint.Method), fullURL, nil)
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(endpoint.Method), fullURL, strings.NewReader("{}"))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	default:
		return http.NewRequestWithContext(ctx, http.MethodHead, fullURL, nil)
	}
}

package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"specwatch/internal/config"
	"specwatch/internal/differ"
	"specwatch/internal/fetcher"
	"specwatch/internal/healthcheck"
	"specwatch/internal/metrics"
	"specwatch/internal/models"
	"specwatch/internal/normalizer"

	"github.com/rs/zerolog"
)

// EventSink consumes detected change events. The alert dispatcher implements
// it in production.
type EventSink interface {
	Evaluate(ctx context.Context, event models.ChangeEvent) error
}

// CycleGate decides whether new polling cycles may start. The resource
// limiter implements it.
type CycleGate interface {
	AllowCycle() bool
}

// PollingScheduler drives the monitoring pipeline. Each tick polls every due
// source through a bounded worker pool; each cycle fetches the spec document,
// short-circuits on an unchanged fingerprint, normalizes, diffs against the
// latest stored version, appends a snapshot, and emits change events. Health
// probes run alongside each due poll against the last known-good spec, so
// both follow the source's polling cadence.
type PollingScheduler struct {
	sources     models.SourceStore
	versions    models.VersionStore
	healthStore models.HealthSampleStore
	fetcher     *fetcher.Fetcher
	normalizer  *normalizer.Normalizer
	differ      *differ.DiffEngine
	renderer    models.Renderer
	prober      *healthcheck.Prober
	sink        EventSink
	gate        CycleGate
	metrics     *metrics.Registry
	schedCfg    config.SchedulerConfig
	healthCfg   config.HealthCheckConfig
	logger      zerolog.Logger
	mutexes     *sourceMutexManager
	clock       func() time.Time
}

// SchedulerDeps bundles the scheduler's collaborators.
type SchedulerDeps struct {
	Sources     models.SourceStore
	Versions    models.VersionStore
	HealthStore models.HealthSampleStore
	Fetcher     *fetcher.Fetcher
	Normalizer  *normalizer.Normalizer
	Differ      *differ.DiffEngine
	Renderer    models.Renderer
	Prober      *healthcheck.Prober
	Sink        EventSink
	Gate        CycleGate
	Metrics     *metrics.Registry
}

// NewPollingScheduler creates a scheduler.
func NewPollingScheduler(deps SchedulerDeps, schedCfg config.SchedulerConfig, healthCfg config.HealthCheckConfig, logger zerolog.Logger) *PollingScheduler {
	return &PollingScheduler{
		sources:     deps.Sources,
		versions:    deps.Versions,
		healthStore: deps.HealthStore,
		fetcher:     deps.Fetcher,
		normalizer:  deps.Normalizer,
		differ:      deps.Differ,
		renderer:    deps.Renderer,
		prober:      deps.Prober,
		sink:        deps.Sink,
		gate:        deps.Gate,
		metrics:     deps.Metrics,
		schedCfg:    schedCfg,
		healthCfg:   healthCfg,
		logger:      logger.With().Str("component", "PollingScheduler").Logger(),
		mutexes:     newSourceMutexManager(),
		clock:       time.Now,
	}
}

// Tick runs one scheduler pass: every active source due at now is polled and,
// when health checking is enabled, gets its endpoints probed in the same
// cycle. Cycles across sources run concurrently up to the configured limit.
func (s *PollingScheduler) Tick(ctx context.Context) models.PollSummary {
	summary := models.PollSummary{}
	if s.gate != nil && !s.gate.AllowCycle() {
		s.logger.Warn().Msg("Tick skipped, resource limiter is throttling")
		return summary
	}

	active, err := s.sources.ListActive(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list active sources")
		return summary
	}

	now := s.clock().UTC()
	limit := s.schedCfg.MaxConcurrentCycles
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, src := range active {
		wg.Add(1)
		go func(src *models.MonitoredSource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var outcome models.PollOutcome
			if src.Due(now) {
				outcome = s.pollSource(ctx, src)
				// Probing still runs when the poll itself failed; a spec
				// server outage must not blind endpoint monitoring.
				if s.healthCfg.Enabled {
					s.checkHealth(ctx, src)
				}
			} else {
				outcome = models.PollOutcome{SourceID: src.ID, Status: models.PollStatusSkipped}
			}

			mu.Lock()
			summary.Add(outcome)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	s.logger.Info().
		Int("total", summary.Total).
		Int("success", summary.Success).
		Int("no_change", summary.NoChange).
		Int("errors", summary.Errors).
		Int("skipped", summary.Skipped).
		Msg("Scheduler tick completed")
	return summary
}

// TriggerPollNow polls one source immediately, bypassing its interval. Only
// active sources can be polled; a cycle already in flight is not doubled.
func (s *PollingScheduler) TriggerPollNow(ctx context.Context, tenantID, sourceID string) (models.PollOutcome, error) {
	src, err := s.sources.GetByID(ctx, tenantID, sourceID)
	if err != nil {
		return models.PollOutcome{}, err
	}
	if src.Status != models.SourceStatusActive {
		return models.PollOutcome{}, errors.New("source is not active")
	}
	return s.pollSource(ctx, src), nil
}

// pollSource runs one full cycle for src under its per-source lock.
func (s *PollingScheduler) pollSource(ctx context.Context, src *models.MonitoredSource) models.PollOutcome {
	if !s.mutexes.TryLock(src.ID) {
		s.logger.Debug().Str("source_id", src.ID).Msg("Cycle already in flight, skipping")
		return models.PollOutcome{SourceID: src.ID, Status: models.PollStatusSkipped}
	}
	defer s.mutexes.Unlock(src.ID)

	started := s.clock()
	outcome := s.runCycle(ctx, src)
	if s.metrics != nil {
		s.metrics.PollCycles.WithLabelValues(string(outcome.Status)).Inc()
		s.metrics.PollDuration.Observe(s.clock().Sub(started).Seconds())
	}
	return outcome
}

func (s *PollingScheduler) runCycle(ctx context.Context, src *models.MonitoredSource) models.PollOutcome {
	now := s.clock().UTC()
	cycleLogger := s.logger.With().Str("source_id", src.ID).Str("url", src.URL).Logger()

	result, err := s.fetcher.FetchConditional(ctx, src.URL, fetcher.Conditional{
		ETag:         src.ETag,
		LastModified: src.LastModified,
	})
	if err != nil {
		return s.recordFailure(ctx, src, now, err)
	}

	if result.NotModified {
		src.LastPollAt = now
		src.LastSuccessAt = now
		src.ConsecutiveFailures = 0
		src.LastError = ""
		if err := s.sources.UpdateAfterPoll(ctx, src); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to persist poll state")
		}
		cycleLogger.Debug().Msg("Server reported document unchanged")
		return models.PollOutcome{SourceID: src.ID, Status: models.PollStatusNoChange}
	}

	// Cache validators are adopted only once the content they stand for is
	// known good: either it matches the stored fingerprint or its snapshot
	// was appended. If normalization or the append fails, the stale
	// validators stay so the next cycle refetches the full document.
	fingerprint := fetcher.Fingerprint(result.Content)
	if fingerprint == src.Fingerprint && src.Fingerprint != "" {
		src.ETag = result.ETag
		src.LastModified = result.LastModified
		src.LastPollAt = now
		src.LastSuccessAt = now
		src.ConsecutiveFailures = 0
		src.LastError = ""
		if err := s.sources.UpdateAfterPoll(ctx, src); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to persist poll state")
		}
		cycleLogger.Debug().Msg("Fingerprint unchanged, skipping normalization")
		return models.PollOutcome{SourceID: src.ID, Status: models.PollStatusNoChange}
	}

	spec, err := s.normalizer.Normalize(src.URL, result.Content)
	if err != nil {
		return s.recordFailure(ctx, src, now, err)
	}

	previous, err := s.versions.GetLatest(ctx, src.TenantID, src.ID)
	if err != nil && !errors.Is(err, models.ErrVersionNotFound) {
		return s.recordFailure(ctx, src, now, err)
	}

	snapshot := &models.VersionSnapshot{
		SourceID:    src.ID,
		TenantID:    src.TenantID,
		Spec:        spec,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}
	if previous != nil {
		snapshot.Diff = s.differ.Compare(previous.Spec, spec)
	}

	if s.renderer != nil && snapshot.Diff != nil {
		// Summary rendering is best effort and never blocks the append.
		var prevSpec *models.NormalizedSpec
		if previous != nil {
			prevSpec = previous.Spec
		}
		if summary, err := s.renderer.Summarize(ctx, prevSpec, spec, snapshot.Diff); err == nil {
			snapshot.Summary = summary
		} else {
			cycleLogger.Warn().Err(err).Msg("Summary rendering failed")
		}
	}

	version, err := s.versions.Append(ctx, snapshot)
	if err != nil {
		return s.recordFailure(ctx, src, now, err)
	}

	src.Fingerprint = fingerprint
	src.ETag = result.ETag
	src.LastModified = result.LastModified
	src.LastPollAt = now
	src.LastSuccessAt = now
	src.ConsecutiveFailures = 0
	src.LastError = ""
	if err := s.sources.UpdateAfterPoll(ctx, src); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist poll state")
	}

	if s.metrics != nil {
		s.metrics.VersionsCreated.Inc()
	}
	s.emitVersionEvents(ctx, src, snapshot, now)

	if s.renderer != nil {
		if err := s.renderer.GenerateDocs(ctx, snapshot); err != nil {
			cycleLogger.Warn().Err(err).Int64("version", version).Msg("Documentation generation failed")
		}
	}

	cycleLogger.Info().
		Int64("version", version).
		Bool("breaking", snapshot.Diff != nil && snapshot.Diff.Breaking).
		Msg("New version recorded")
	return models.PollOutcome{
		SourceID:       src.ID,
		Status:         models.PollStatusSuccess,
		VersionCreated: version,
		Breaking:       snapshot.Diff != nil && snapshot.Diff.Breaking,
	}
}

// emitVersionEvents publishes new_version for every recorded version and
// breaking_change additionally when the delta has breaking changes. The very
// first version of a source has no delta and emits only new_version.
func (s *PollingScheduler) emitVersionEvents(ctx context.Context, src *models.MonitoredSource, snapshot *models.VersionSnapshot, now time.Time) {
	if s.sink == nil {
		return
	}
	s.publish(ctx, models.ChangeEvent{
		Kind:       models.EventNewVersion,
		TenantID:   src.TenantID,
		Source:     src,
		Snapshot:   snapshot,
		OccurredAt: now,
	})
	if snapshot.Diff != nil && snapshot.Diff.Breaking {
		if s.metrics != nil {
			s.metrics.BreakingChanges.Inc()
		}
		s.publish(ctx, models.ChangeEvent{
			Kind:       models.EventBreakingChange,
			TenantID:   src.TenantID,
			Source:     src,
			Snapshot:   snapshot,
			OccurredAt: now,
		})
	}
}

func (s *PollingScheduler) publish(ctx context.Context, event models.ChangeEvent) {
	if err := s.sink.Evaluate(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("event_kind", string(event.Kind)).Str("source_id", event.Source.ID).Msg("Event dispatch failed")
	}
}

// recordFailure bumps the consecutive failure counter and auto-pauses the
// source into failed state once the limit is reached. A later successful
// cycle resets the counter; reactivation of a failed source is manual.
func (s *PollingScheduler) recordFailure(ctx context.Context, src *models.MonitoredSource, now time.Time, cause error) models.PollOutcome {
	src.LastPollAt = now
	src.ConsecutiveFailures++
	src.LastError = cause.Error()

	if src.ConsecutiveFailures >= s.schedCfg.FailureLimit() {
		src.Status = models.SourceStatusFailed
		s.logger.Warn().
			Str("source_id", src.ID).
			Int("consecutive_failures", src.ConsecutiveFailures).
			Msg("Failure limit reached, pausing source")
	}

	if err := s.sources.UpdateAfterPoll(ctx, src); err != nil {
		s.logger.Error().Err(err).Str("source_id", src.ID).Msg("Failed to persist failure state")
	}

	s.logger.Error().Err(cause).Str("source_id", src.ID).Int("consecutive_failures", src.ConsecutiveFailures).Msg("Polling cycle failed")
	return models.PollOutcome{SourceID: src.ID, Status: models.PollStatusError, Error: cause.Error()}
}

// checkHealth probes the endpoints of the source's last known-good spec,
// appends the samples, and emits transition events.
func (s *PollingScheduler) checkHealth(ctx context.Context, src *models.MonitoredSource) {
	latest, err := s.versions.GetLatest(ctx, src.TenantID, src.ID)
	if err != nil {
		if !errors.Is(err, models.ErrVersionNotFound) {
			s.logger.Error().Err(err).Str("source_id", src.ID).Msg("Failed to load spec for health check")
		}
		return
	}

	previous, err := s.healthStore.LatestByEndpoint(ctx, src.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("source_id", src.ID).Msg("Failed to load health history")
		return
	}

	samples := s.prober.ProbeSpec(ctx, src, latest.Spec)
	if len(samples) == 0 {
		return
	}

	s.recordHealthMetrics(src, samples)
	if err := s.healthStore.Append(ctx, samples); err != nil {
		s.logger.Error().Err(err).Str("source_id", src.ID).Msg("Failed to append health samples")
	}

	for _, event := range healthcheck.DetectTransitions(src, previous, samples, s.clock().UTC()) {
		if s.sink != nil {
			s.publish(ctx, event)
		}
	}
}

func (s *PollingScheduler) recordHealthMetrics(src *models.MonitoredSource, samples []models.EndpointHealthSample) {
	if s.metrics == nil {
		return
	}
	for _, sample := range samples {
		s.metrics.EndpointChecks.WithLabelValues(src.ID, string(sample.State)).Inc()
		s.metrics.ProbeDuration.Observe(sample.ResponseTime.Seconds())
		switch sample.State {
		case models.HealthStateHealthy:
			s.metrics.EndpointHealth.WithLabelValues(src.ID, sample.Endpoint).Set(1)
		case models.HealthStateUnhealthy:
			s.metrics.EndpointHealth.WithLabelValues(src.ID, sample.Endpoint).Set(0)
		}
	}
}

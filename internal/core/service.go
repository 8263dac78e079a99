package core

import (
	"context"
	"net/url"
	"time"

	"specwatch/internal/differ"
	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"
	"specwatch/internal/monitor"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the operational facade over the monitoring pipeline. Every
// operation takes an explicit tenant id; no tenant state is ambient.
type Service struct {
	sources   models.SourceStore
	versions  models.VersionStore
	rules     models.AlertRuleStore
	records   models.AlertRecordStore
	scheduler *monitor.PollingScheduler
	differ    *differ.DiffEngine
	logger    zerolog.Logger
	clock     func() time.Time
}

// ServiceDeps bundles the facade's collaborators.
type ServiceDeps struct {
	Sources   models.SourceStore
	Versions  models.VersionStore
	Rules     models.AlertRuleStore
	Records   models.AlertRecordStore
	Scheduler *monitor.PollingScheduler
	Differ    *differ.DiffEngine
}

// NewService creates the facade.
func NewService(deps ServiceDeps, logger zerolog.Logger) *Service {
	return &Service{
		sources:   deps.Sources,
		versions:  deps.Versions,
		rules:     deps.Rules,
		records:   deps.Records,
		scheduler: deps.Scheduler,
		differ:    deps.Differ,
		logger:    logger.With().Str("component", "CoreService").Logger(),
		clock:     time.Now,
	}
}

// RegisterSourceInput carries the registration parameters.
type RegisterSourceInput struct {
	TenantID string
	URL      string
	Interval models.IntervalClass
}

// RegisterSource creates a monitored source in active state. The interval
// defaults to daily; the first poll happens on the next scheduler tick.
func (s *Service) RegisterSource(ctx context.Context, input RegisterSourceInput) (*models.MonitoredSource, error) {
	if input.TenantID == "" {
		return nil, errorwrapper.NewValidationError("tenant_id", input.TenantID, "tenant id is required")
	}
	parsed, err := url.Parse(input.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errorwrapper.NewValidationError("url", input.URL, "a valid http(s) URL is required")
	}

	interval := input.Interval
	switch interval {
	case models.IntervalHourly, models.IntervalDaily, models.IntervalWeekly:
	case "":
		interval = models.IntervalDaily
	default:
		return nil, errorwrapper.NewValidationError("interval", string(input.Interval), "interval must be hourly, daily or weekly")
	}

	src := &models.MonitoredSource{
		ID:        uuid.NewString(),
		TenantID:  input.TenantID,
		URL:       input.URL,
		Interval:  interval,
		Enabled:   true,
		Status:    models.SourceStatusActive,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.sources.Create(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

// GetSource resolves one source.
func (s *Service) GetSource(ctx context.Context, tenantID, sourceID string) (*models.MonitoredSource, error) {
	return s.sources.GetByID(ctx, tenantID, sourceID)
}

// PauseSource stops polling without losing history.
func (s *Service) PauseSource(ctx context.Context, tenantID, sourceID string) error {
	src, err := s.sources.GetByID(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	if src.Status != models.SourceStatusActive {
		return errorwrapper.NewError("source %s is %s, only active sources can be paused", sourceID, src.Status)
	}
	return s.sources.SetStatus(ctx, tenantID, sourceID, models.SourceStatusPaused)
}

// ResumeSource reactivates a paused or failed source. The failure counter is
// reset so auto-pause starts from a clean slate.
func (s *Service) ResumeSource(ctx context.Context, tenantID, sourceID string) error {
	src, err := s.sources.GetByID(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	switch src.Status {
	case models.SourceStatusPaused, models.SourceStatusFailed:
	default:
		return errorwrapper.NewError("source %s is %s, only paused or failed sources can be resumed", sourceID, src.Status)
	}

	src.Status = models.SourceStatusActive
	src.ConsecutiveFailures = 0
	src.LastError = ""
	if err := s.sources.UpdateAfterPoll(ctx, src); err != nil {
		return err
	}
	s.logger.Info().Str("source_id", sourceID).Msg("Source resumed")
	return nil
}

// DeleteSource retires a source. History and artifacts are retained; the
// source just stops existing for lookups and polling.
func (s *Service) DeleteSource(ctx context.Context, tenantID, sourceID string) error {
	if _, err := s.sources.GetByID(ctx, tenantID, sourceID); err != nil {
		return err
	}
	return s.sources.SetStatus(ctx, tenantID, sourceID, models.SourceStatusDeleted)
}

// TriggerPollNow polls a source immediately, outside its cadence.
func (s *Service) TriggerPollNow(ctx context.Context, tenantID, sourceID string) (models.PollOutcome, error) {
	return s.scheduler.TriggerPollNow(ctx, tenantID, sourceID)
}

// GetVersionHistory lists the recorded versions of a source, newest first.
func (s *Service) GetVersionHistory(ctx context.Context, tenantID, sourceID string) ([]models.VersionSummary, error) {
	if _, err := s.sources.GetByID(ctx, tenantID, sourceID); err != nil {
		return nil, err
	}
	return s.versions.ListSummaries(ctx, tenantID, sourceID)
}

// GetVersionDiff returns the stored delta that produced the given version.
// The first recorded version of a source has no predecessor and therefore no
// diff; asking for one fails with models.ErrDiffMissing only when a later
// version lost its diff, which indicates a damaged artifact.
func (s *Service) GetVersionDiff(ctx context.Context, tenantID, sourceID string, version int64) (*models.SpecDelta, error) {
	snapshot, err := s.versions.GetByVersion(ctx, tenantID, sourceID, version)
	if err != nil {
		return nil, err
	}
	if snapshot.Diff == nil {
		if version == 1 {
			return nil, errorwrapper.NewError("version 1 is the initial snapshot and has no diff")
		}
		return nil, models.ErrDiffMissing
	}
	return snapshot.Diff, nil
}

// CompareVersions computes a fresh structural delta between two arbitrary
// stored versions, oldest treated as the baseline.
func (s *Service) CompareVersions(ctx context.Context, tenantID, sourceID string, from, to int64) (*models.SpecDelta, error) {
	first, second, err := s.versions.CompareArbitrary(ctx, tenantID, sourceID, from, to)
	if err != nil {
		return nil, err
	}
	return s.differ.Compare(first.Spec, second.Spec), nil
}

// GetVersion returns one full snapshot.
func (s *Service) GetVersion(ctx context.Context, tenantID, sourceID string, version int64) (*models.VersionSnapshot, error) {
	return s.versions.GetByVersion(ctx, tenantID, sourceID, version)
}

// UpsertAlertRuleInput carries the rule parameters.
type UpsertAlertRuleInput struct {
	RuleID              string
	TenantID            string
	SourceID            string
	Channel             models.AlertChannel
	Destination         string
	OnNewVersion        bool
	OnBreakingChange    bool
	OnEndpointDown      bool
	OnEndpointRecovered bool
	Enabled             bool
}

// UpsertAlertRule creates or updates a rule. An empty RuleID creates a new
// rule.
func (s *Service) UpsertAlertRule(ctx context.Context, input UpsertAlertRuleInput) (*models.AlertRule, error) {
	if _, err := s.sources.GetByID(ctx, input.TenantID, input.SourceID); err != nil {
		return nil, err
	}
	if err := validateDestination(input.Channel, input.Destination); err != nil {
		return nil, err
	}

	rule := &models.AlertRule{
		ID:                  input.RuleID,
		TenantID:            input.TenantID,
		SourceID:            input.SourceID,
		Channel:             input.Channel,
		Destination:         input.Destination,
		OnNewVersion:        input.OnNewVersion,
		OnBreakingChange:    input.OnBreakingChange,
		OnEndpointDown:      input.OnEndpointDown,
		OnEndpointRecovered: input.OnEndpointRecovered,
		Enabled:             input.Enabled,
		CreatedAt:           s.clock().UTC(),
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	} else if existing, err := s.rules.GetByID(ctx, input.TenantID, rule.ID); err == nil {
		rule.CreatedAt = existing.CreatedAt
	}

	if err := s.rules.Upsert(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func validateDestination(channel models.AlertChannel, destination string) error {
	switch channel {
	case models.ChannelWebhook, models.ChannelChat:
		parsed, err := url.Parse(destination)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return errorwrapper.NewValidationError("destination", destination, "webhook destinations must be absolute URLs")
		}
	case models.ChannelEmail:
		if destination == "" {
			return errorwrapper.NewValidationError("destination", destination, "email destination is required")
		}
	default:
		return errorwrapper.NewValidationError("channel", string(channel), "channel must be email, webhook or chat")
	}
	return nil
}

// GetAlertHistory lists the delivery audit trail of a source, newest first.
func (s *Service) GetAlertHistory(ctx context.Context, tenantID, sourceID string) ([]*models.AlertRecord, error) {
	if _, err := s.sources.GetByID(ctx, tenantID, sourceID); err != nil {
		return nil, err
	}
	return s.records.ListBySource(ctx, tenantID, sourceID)
}

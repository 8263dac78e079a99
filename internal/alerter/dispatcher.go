package alerter

import (
	"context"
	"encoding/json"
	"time"

	"specwatch/internal/errorwrapper"
	"specwatch/internal/metrics"
	"specwatch/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher fans detected events out to matching alert rules. For every
// match it creates a pending audit record and its delivery task in one
// transaction; actual delivery happens asynchronously in the worker pool.
type Dispatcher struct {
	rules    models.AlertRuleStore
	enqueuer models.AlertEnqueuer
	metrics  *metrics.Registry
	logger   zerolog.Logger
	clock    func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(rules models.AlertRuleStore, enqueuer models.AlertEnqueuer, registry *metrics.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rules:    rules,
		enqueuer: enqueuer,
		metrics:  registry,
		logger:   logger.With().Str("component", "AlertDispatcher").Logger(),
		clock:    time.Now,
	}
}

// Evaluate enqueues one pending delivery per rule matching the event. A
// failing rule does not stop the rest; the first error is returned after all
// rules were tried.
func (d *Dispatcher) Evaluate(ctx context.Context, event models.ChangeEvent) error {
	matching, err := d.rules.ListMatching(ctx, event.TenantID, event.Source.ID, event.Kind)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to resolve alert rules")
	}
	if len(matching) == 0 {
		d.logger.Debug().Str("source_id", event.Source.ID).Str("event_kind", string(event.Kind)).Msg("No matching alert rules")
		return nil
	}

	payload, err := json.Marshal(BuildPayload(event))
	if err != nil {
		return errorwrapper.WrapError(err, "failed to encode alert payload")
	}

	var firstErr error
	for _, rule := range matching {
		record := &models.AlertRecord{
			ID:        uuid.NewString(),
			TenantID:  event.TenantID,
			RuleID:    rule.ID,
			SourceID:  event.Source.ID,
			EventKind: event.Kind,
			Payload:   payload,
			CreatedAt: d.clock().UTC(),
		}
		if err := d.enqueuer.EnqueuePending(ctx, record); err != nil {
			d.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to enqueue alert")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.AlertsEnqueued.WithLabelValues(string(event.Kind)).Inc()
		}
		d.logger.Info().
			Str("record_id", record.ID).
			Str("rule_id", rule.ID).
			Str("channel", string(rule.Channel)).
			Str("event_kind", string(event.Kind)).
			Msg("Alert enqueued")
	}
	return firstErr
}

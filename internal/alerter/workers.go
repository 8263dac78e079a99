package alerter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"specwatch/internal/config"
	"specwatch/internal/errorwrapper"
	"specwatch/internal/metrics"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
)

const idlePollInterval = time.Second

// WorkerPool drains the delivery queue. Each worker leases one task at a
// time, resolves its record and rule, and hands the payload to the channel's
// sender. Delivery is at-least-once: a worker crash surfaces the task again
// after the lease expires, and records are finalized idempotently.
type WorkerPool struct {
	queue   models.DeliveryQueue
	records models.AlertRecordStore
	rules   models.AlertRuleStore
	senders SenderRegistry
	cfg     config.AlertingConfig
	metrics *metrics.Registry
	logger  zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a delivery worker pool.
func NewWorkerPool(
	queue models.DeliveryQueue,
	records models.AlertRecordStore,
	rules models.AlertRuleStore,
	senders SenderRegistry,
	cfg config.AlertingConfig,
	registry *metrics.Registry,
	logger zerolog.Logger,
) *WorkerPool {
	return &WorkerPool{
		queue:   queue,
		records: records,
		rules:   rules,
		senders: senders,
		cfg:     cfg,
		metrics: registry,
		logger:  logger.With().Str("component", "DeliveryWorkers").Logger(),
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	count := p.cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info().Int("workers", count).Msg("Delivery workers started")
}

// Stop signals the workers and waits up to the configured grace period for
// in-flight deliveries to finish. Unfinished tasks stay leased and reappear
// after the visibility timeout.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Delivery workers drained")
	case <-time.After(p.cfg.ShutdownGrace()):
		p.logger.Warn().Msg("Shutdown grace elapsed with deliveries still in flight")
	}
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	workerLogger := p.logger.With().Int("worker", id).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		task, err := p.queue.Lease(ctx, p.cfg.VisibilityTimeout())
		if err != nil {
			if errors.Is(err, models.ErrRecordNotFound) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(idlePollInterval):
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			workerLogger.Error().Err(err).Msg("Failed to lease delivery task")
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePollInterval):
			}
			continue
		}

		p.updateQueueGauge(ctx)
		p.process(ctx, workerLogger, task)
	}
}

func (p *WorkerPool) process(ctx context.Context, logger zerolog.Logger, task *models.DeliveryTask) {
	deliveryCtx, cancel := context.WithTimeout(ctx, p.cfg.DeliveryTimeout())
	defer cancel()

	record, err := p.records.GetByID(deliveryCtx, task.RecordID)
	if err != nil {
		logger.Error().Err(err).Str("record_id", task.RecordID).Msg("Delivery task references missing record, dropping")
		_ = p.queue.Ack(ctx, task.ID)
		return
	}

	// Redelivered tasks for already-finalized records are acked untouched.
	if record.Status != models.AlertStatusPending {
		_ = p.queue.Ack(ctx, task.ID)
		return
	}

	rule, err := p.rules.GetByID(deliveryCtx, record.TenantID, record.RuleID)
	if err != nil {
		p.finalize(ctx, logger, task, record, "", "alert rule no longer exists")
		return
	}

	started := time.Now()
	err = p.deliver(deliveryCtx, rule, record)
	p.observeLatency(time.Since(started))
	if err == nil {
		if markErr := p.records.MarkSent(ctx, record.ID); markErr != nil {
			logger.Error().Err(markErr).Str("record_id", record.ID).Msg("Failed to mark record sent")
			return
		}
		_ = p.queue.Ack(ctx, task.ID)
		p.countDelivery(rule.Channel, "sent")
		logger.Info().Str("record_id", record.ID).Str("channel", string(rule.Channel)).Int("attempts", task.Attempts+1).Msg("Alert delivered")
		return
	}

	attempt := task.Attempts + 1
	if errorwrapper.IsPermanentDelivery(err) || attempt >= p.cfg.Attempts() {
		p.finalize(ctx, logger, task, record, string(rule.Channel), err.Error())
		return
	}

	delay := p.cfg.RetryBaseDelay() << (attempt - 1)
	if retryErr := p.queue.Retry(ctx, task.ID, delay); retryErr != nil {
		logger.Error().Err(retryErr).Int64("task_id", task.ID).Msg("Failed to schedule retry")
		return
	}
	p.countDelivery(rule.Channel, "retried")
	logger.Warn().
		Str("record_id", record.ID).
		Int("attempt", attempt).
		Dur("retry_in", delay).
		Err(err).
		Msg("Alert delivery failed, retrying")
}

func (p *WorkerPool) deliver(ctx context.Context, rule *models.AlertRule, record *models.AlertRecord) error {
	sender, ok := p.senders[rule.Channel]
	if !ok {
		return errorwrapper.NewPermanentDeliveryError(fmt.Sprintf("no sender configured for channel %s", rule.Channel), nil)
	}
	payload, err := ParsePayload(record.Payload)
	if err != nil {
		return errorwrapper.NewPermanentDeliveryError("stored payload is unreadable", err)
	}
	return sender.Deliver(ctx, rule.Destination, payload)
}

func (p *WorkerPool) finalize(ctx context.Context, logger zerolog.Logger, task *models.DeliveryTask, record *models.AlertRecord, channel, reason string) {
	if err := p.records.MarkFailed(ctx, record.ID, reason); err != nil {
		logger.Error().Err(err).Str("record_id", record.ID).Msg("Failed to mark record failed")
		return
	}
	_ = p.queue.Ack(ctx, task.ID)
	if channel != "" {
		p.countDelivery(models.AlertChannel(channel), "failed")
	}
	logger.Error().Str("record_id", record.ID).Str("reason", reason).Msg("Alert delivery failed permanently")
}

func (p *WorkerPool) observeLatency(elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.DeliveryLatency.Observe(elapsed.Seconds())
	}
}

func (p *WorkerPool) countDelivery(channel models.AlertChannel, result string) {
	if p.metrics != nil {
		p.metrics.AlertDeliveries.WithLabelValues(string(channel), result).Inc()
	}
}

func (p *WorkerPool) updateQueueGauge(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	if pending, err := p.queue.Pending(ctx); err == nil {
		p.metrics.DeliveryQueueSize.Set(float64(pending))
	}
}

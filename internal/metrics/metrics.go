package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"specwatch/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry holds the instruments of the monitoring pipeline.
type Registry struct {
	PollCycles        *prometheus.CounterVec
	PollDuration      prometheus.Histogram
	VersionsCreated   prometheus.Counter
	BreakingChanges   prometheus.Counter
	AlertsEnqueued    *prometheus.CounterVec
	AlertDeliveries   *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	DeliveryQueueSize prometheus.Gauge
	EndpointHealth    *prometheus.GaugeVec
	EndpointChecks    *prometheus.CounterVec
	ProbeDuration     prometheus.Histogram

	registry *prometheus.Registry
}

// NewRegistry creates the pipeline instruments on a private registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		PollCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "specwatch_poll_cycles_total",
			Help: "Polling cycles by outcome",
		}, []string{"status"}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "specwatch_poll_duration_seconds",
			Help:    "Duration of one polling cycle",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		VersionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "specwatch_versions_created_total",
			Help: "Version snapshots appended",
		}),
		BreakingChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "specwatch_breaking_changes_total",
			Help: "Versions whose delta contained breaking changes",
		}),
		AlertsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "specwatch_alerts_enqueued_total",
			Help: "Alert records enqueued by event kind",
		}, []string{"event_kind"}),
		AlertDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "specwatch_alert_deliveries_total",
			Help: "Alert delivery attempts by channel and result",
		}, []string{"channel", "result"}),
		DeliveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "specwatch_alert_delivery_duration_seconds",
			Help:    "Time spent delivering one alert to its channel",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		DeliveryQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "specwatch_delivery_queue_size",
			Help: "Unfinished tasks in the delivery queue",
		}),
		EndpointHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "specwatch_endpoint_health_status",
			Help: "Current endpoint health (1=healthy, 0=unhealthy)",
		}, []string{"source_id", "endpoint"}),
		EndpointChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "specwatch_endpoint_checks_total",
			Help: "Endpoint health probes by state",
		}, []string{"source_id", "state"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "specwatch_endpoint_probe_duration_seconds",
			Help:    "Endpoint probe response time",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		}),
		registry: reg,
	}
}

// Server exposes the registry over HTTP.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer builds the /metrics endpoint from cfg.
func NewServer(cfg config.MetricsConfig, registry *Registry, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.registry, promhttp.HandlerOpts{}))

	return &Server{
		srv:    &http.Server{Addr: cfg.ListenAddr, Handler: mux},
		logger: logger.With().Str("component", "MetricsServer").Logger(),
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

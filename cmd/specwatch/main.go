package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"specwatch/internal/alerter"
	"specwatch/internal/artifact"
	"specwatch/internal/config"
	"specwatch/internal/core"
	"specwatch/internal/datastore"
	"specwatch/internal/differ"
	"specwatch/internal/fetcher"
	"specwatch/internal/healthcheck"
	"specwatch/internal/healthstore"
	"specwatch/internal/logger"
	"specwatch/internal/metrics"
	"specwatch/internal/models"
	"specwatch/internal/monitor"
	"specwatch/internal/normalizer"
	"specwatch/internal/renderer"
	"specwatch/internal/rslimiter"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	fmt.Println("SpecWatch starting...")

	globalConfigFile := flag.String("globalconfig", "", "Path to the global YAML/JSON configuration file. If not set, searches default locations.")
	globalConfigFileAlias := flag.String("gc", "", "Alias for --globalconfig")
	registerURL := flag.String("register", "", "Register a source URL at startup and keep monitoring it.")
	registerTenant := flag.String("tenant", "default", "Tenant id used with --register.")
	flag.Parse()

	if *globalConfigFile == "" && *globalConfigFileAlias != "" {
		*globalConfigFile = *globalConfigFileAlias
	}

	log.Println("[INFO] Main: Attempting to load global configuration...")
	gCfg, err := config.LoadGlobalConfig(*globalConfigFile)
	if err != nil {
		log.Fatalf("[FATAL] Main: Could not load global config using path '%s': %v", *globalConfigFile, err)
	}

	zLogger, err := logger.New(gCfg.LogConfig)
	if err != nil {
		log.Fatalf("[FATAL] Main: Could not initialize logger: %v", err)
	}
	zLogger.Info().Msg("Logger initialized successfully.")

	if err := config.ValidateConfig(gCfg); err != nil {
		zLogger.Fatal().Err(err).Msg("Configuration validation failed")
	}

	app, err := buildApplication(gCfg, zLogger)
	if err != nil {
		zLogger.Fatal().Err(err).Msg("Failed to assemble application")
	}
	defer app.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		zLogger.Info().Str("signal", sig.String()).Msg("Received interrupt signal, initiating graceful shutdown...")
		cancel()
	}()

	if *registerURL != "" {
		src, regErr := app.service.RegisterSource(ctx, core.RegisterSourceInput{
			TenantID: *registerTenant,
			URL:      *registerURL,
		})
		if regErr != nil {
			zLogger.Fatal().Err(regErr).Str("url", *registerURL).Msg("Failed to register source from command line")
		}
		zLogger.Info().Str("source_id", src.ID).Str("url", src.URL).Msg("Source registered from command line")
	}

	app.start(gCfg, zLogger)
	<-ctx.Done()
	app.stop(zLogger)

	zLogger.Info().Msg("SpecWatch finished.")
}

// application holds the wired component graph and owns its lifecycle.
type application struct {
	db            *datastore.DB
	limiter       *rslimiter.ResourceLimiter
	scheduler     *monitor.PollingScheduler
	service       *core.Service
	workers       *alerter.WorkerPool
	metricsServer *metrics.Server
	cronRunner    *cron.Cron
}

func buildApplication(gCfg *config.GlobalConfig, zLogger zerolog.Logger) (*application, error) {
	db, err := datastore.NewDB(gCfg.StorageConfig.SQLiteDBPath, zLogger)
	if err != nil {
		return nil, err
	}

	sources := datastore.NewSQLiteSourceStore(db, zLogger)
	versions := datastore.NewSQLiteVersionStore(db, zLogger)
	rules := datastore.NewSQLiteAlertRuleStore(db, zLogger)
	records := datastore.NewSQLiteAlertRecordStore(db, zLogger)
	queue := datastore.NewSQLiteDeliveryQueue(db, zLogger)

	healthStore, err := healthstore.NewParquetHealthStore(gCfg.StorageConfig.ParquetBasePath, zLogger)
	if err != nil {
		db.Close()
		return nil, err
	}

	artifacts, err := artifact.NewFSStore(gCfg.StorageConfig.ArtifactBasePath, zLogger)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := metrics.NewRegistry()
	var metricsServer *metrics.Server
	if gCfg.MetricsConfig.Enabled {
		metricsServer = metrics.NewServer(gCfg.MetricsConfig, registry, zLogger)
	}

	senders := alerter.SenderRegistry{
		models.ChannelWebhook: alerter.NewWebhookSender(gCfg.AlertingConfig, zLogger),
		models.ChannelChat:    alerter.NewChatSender(gCfg.AlertingConfig, zLogger),
	}
	if gCfg.AlertingConfig.SendGridAPIKey != "" {
		emailSender, emailErr := alerter.NewEmailSender(gCfg.AlertingConfig, zLogger)
		if emailErr != nil {
			db.Close()
			return nil, emailErr
		}
		senders[models.ChannelEmail] = emailSender
	} else {
		zLogger.Info().Msg("SendGrid API key not configured, email channel disabled")
	}

	dispatcher := alerter.NewDispatcher(rules, records, registry, zLogger)
	workers := alerter.NewWorkerPool(queue, records, rules, senders, gCfg.AlertingConfig, registry, zLogger)
	limiter := rslimiter.NewResourceLimiter(gCfg.ResourceConfig, zLogger)

	fetchClient := &http.Client{Timeout: gCfg.FetcherConfig.Timeout()}
	engine := differ.NewDiffEngine(zLogger)
	scheduler := monitor.NewPollingScheduler(monitor.SchedulerDeps{
		Sources:     sources,
		Versions:    versions,
		HealthStore: healthStore,
		Fetcher:     fetcher.NewFetcher(fetchClient, zLogger, gCfg.FetcherConfig),
		Normalizer:  normalizer.NewNormalizer(zLogger),
		Differ:      engine,
		Renderer:    renderer.NewMarkdownRenderer(artifacts, zLogger),
		Prober:      healthcheck.NewProber(gCfg.HealthCheckConfig, zLogger),
		Sink:        dispatcher,
		Gate:        limiter,
		Metrics:     registry,
	}, gCfg.SchedulerConfig, gCfg.HealthCheckConfig, zLogger)

	service := core.NewService(core.ServiceDeps{
		Sources:   sources,
		Versions:  versions,
		Rules:     rules,
		Records:   records,
		Scheduler: scheduler,
		Differ:    engine,
	}, zLogger)

	return &application{
		db:            db,
		limiter:       limiter,
		scheduler:     scheduler,
		service:       service,
		workers:       workers,
		metricsServer: metricsServer,
		cronRunner:    cron.New(),
	}, nil
}

func (a *application) start(gCfg *config.GlobalConfig, zLogger zerolog.Logger) {
	a.limiter.Start()
	a.workers.Start()
	if a.metricsServer != nil {
		a.metricsServer.Start()
	}

	a.cronRunner.Schedule(cron.Every(gCfg.SchedulerConfig.TickInterval()), cron.FuncJob(func() {
		tickCtx, tickCancel := context.WithTimeout(context.Background(), gCfg.SchedulerConfig.TickInterval())
		defer tickCancel()
		summary := a.scheduler.Tick(tickCtx)
		if summary.Total > summary.Skipped {
			zLogger.Info().
				Int("total", summary.Total).
				Int("success", summary.Success).
				Int("no_change", summary.NoChange).
				Int("errors", summary.Errors).
				Int("skipped", summary.Skipped).
				Msg("Poll tick completed")
		}
	}))
	a.cronRunner.Start()
	zLogger.Info().Dur("tick_interval", gCfg.SchedulerConfig.TickInterval()).Msg("Polling scheduler started")
}

func (a *application) stop(zLogger zerolog.Logger) {
	cronCtx := a.cronRunner.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		zLogger.Warn().Msg("Timed out waiting for in-flight poll cycles")
	}

	a.workers.Stop()
	a.limiter.Stop()

	if a.metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			zLogger.Warn().Err(err).Msg("Metrics server shutdown error")
		}
	}
	zLogger.Info().Msg("All services stopped.")
}

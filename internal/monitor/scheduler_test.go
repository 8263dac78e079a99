package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"specwatch/internal/config"
	"specwatch/internal/datastore"
	"specwatch/internal/differ"
	"specwatch/internal/fetcher"
	"specwatch/internal/healthcheck"
	"specwatch/internal/healthstore"
	"specwatch/internal/models"
	"specwatch/internal/normalizer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specV1 = `{
  "openapi": "3.0.0",
  "info": {"title": "demo", "version": "1"},
  "servers": [{"url": "https://api.example.com"}],
  "paths": {
    "/users": {
      "get": {
        "responses": {"200": {"content": {"application/json": {"schema": {
          "type": "object",
          "required": ["id"],
          "properties": {"id": {"type": "string"}}
        }}}}}
      }
    }
  }
}`

const specV2 = `{
  "openapi": "3.0.0",
  "info": {"title": "demo", "version": "2"},
  "servers": [{"url": "https://api.example.com"}],
  "paths": {
    "/people": {
      "get": {
        "responses": {"200": {"content": {"application/json": {"schema": {
          "type": "object",
          "required": ["id"],
          "properties": {"id": {"type": "string"}}
        }}}}}
      }
    }
  }
}`

type capturingSink struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (c *capturingSink) Evaluate(_ context.Context, event models.ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingSink) kinds() []models.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []models.EventKind
	for _, e := range c.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type testHarness struct {
	scheduler *PollingScheduler
	sources   *datastore.SQLiteSourceStore
	versions  *datastore.SQLiteVersionStore
	sink      *capturingSink
}

func newHarness(t *testing.T, healthEnabled bool) *testHarness {
	t.Helper()
	db, err := datastore.NewDB(filepath.Join(t.TempDir(), "monitor_test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sources := datastore.NewSQLiteSourceStore(db, zerolog.Nop())
	versions := datastore.NewSQLiteVersionStore(db, zerolog.Nop())
	health, err := healthstore.NewParquetHealthStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	sink := &capturingSink{}

	healthCfg := config.NewDefaultHealthCheckConfig()
	healthCfg.Enabled = healthEnabled

	scheduler := NewPollingScheduler(SchedulerDeps{
		Sources:     sources,
		Versions:    versions,
		HealthStore: health,
		Fetcher:     fetcher.NewFetcher(nil, zerolog.Nop(), config.NewDefaultFetcherConfig()),
		Normalizer:  normalizer.NewNormalizer(zerolog.Nop()),
		Differ:      differ.NewDiffEngine(zerolog.Nop()),
		Prober:      healthcheck.NewProber(healthCfg, zerolog.Nop()),
		Sink:        sink,
	}, config.NewDefaultSchedulerConfig(), healthCfg, zerolog.Nop())

	return &testHarness{scheduler: scheduler, sources: sources, versions: versions, sink: sink}
}

func registerSource(t *testing.T, h *testHarness, url string) *models.MonitoredSource {
	t.Helper()
	src := &models.MonitoredSource{
		ID: "src-1", TenantID: "tenant-a", URL: url,
		Interval: models.IntervalHourly, Enabled: true,
		Status: models.SourceStatusActive, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.sources.Create(context.Background(), src))
	return src
}

func TestTickRecordsFirstVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(specV1))
	}))
	defer server.Close()

	h := newHarness(t, false)
	registerSource(t, h, server.URL)

	summary := h.scheduler.Tick(context.Background())
	assert.Equal(t, 1, summary.Success)
	require.Len(t, summary.VersionsCreated, 1)

	snapshot, err := h.versions.GetLatest(context.Background(), "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snapshot.Version)
	assert.Nil(t, snapshot.Diff)
	assert.Contains(t, snapshot.Spec.Endpoints, "GET /users")

	assert.Equal(t, []models.EventKind{models.EventNewVersion}, h.sink.kinds())
}

func TestTickSkipsUnchangedFingerprint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(specV1))
	}))
	defer server.Close()

	h := newHarness(t, false)
	src := registerSource(t, h, server.URL)
	ctx := context.Background()

	h.scheduler.Tick(ctx)

	// Force the source due again without changing the document.
	src, err := h.sources.GetByID(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	src.LastPollAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, h.sources.UpdateAfterPoll(ctx, src))

	summary := h.scheduler.Tick(ctx)
	assert.Equal(t, 1, summary.NoChange)
	assert.Empty(t, summary.VersionsCreated)

	summaries, err := h.versions.ListSummaries(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestTickDetectsBreakingChange(t *testing.T) {
	var body syncString
	body.set(specV1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.get()))
	}))
	defer server.Close()

	h := newHarness(t, false)
	registerSource(t, h, server.URL)
	ctx := context.Background()

	h.scheduler.Tick(ctx)
	body.set(specV2)

	outcome, err := h.scheduler.TriggerPollNow(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusSuccess, outcome.Status)
	assert.Equal(t, int64(2), outcome.VersionCreated)
	assert.True(t, outcome.Breaking)

	snapshot, err := h.versions.GetByVersion(ctx, "tenant-a", "src-1", 2)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Diff)
	assert.True(t, snapshot.Diff.Breaking)

	kinds := h.sink.kinds()
	assert.Contains(t, kinds, models.EventBreakingChange)
	assert.Contains(t, kinds, models.EventNewVersion)
}

func TestRepeatedFailuresPauseSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h := newHarness(t, false)
	registerSource(t, h, server.URL)
	ctx := context.Background()

	limit := config.NewDefaultSchedulerConfig().FailureLimit()
	for i := 0; i < limit; i++ {
		src, err := h.sources.GetByID(ctx, "tenant-a", "src-1")
		require.NoError(t, err)
		if src.Status != models.SourceStatusActive {
			break
		}
		_, err = h.scheduler.TriggerPollNow(ctx, "tenant-a", "src-1")
		require.NoError(t, err)
	}

	src, err := h.sources.GetByID(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusFailed, src.Status)
	assert.Equal(t, limit, src.ConsecutiveFailures)
	assert.NotEmpty(t, src.LastError)

	// Failed sources need manual reactivation before polling resumes.
	_, err = h.scheduler.TriggerPollNow(ctx, "tenant-a", "src-1")
	assert.Error(t, err)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	var failing syncString
	failing.set("yes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.get() == "yes" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(specV1))
	}))
	defer server.Close()

	h := newHarness(t, false)
	registerSource(t, h, server.URL)
	ctx := context.Background()

	_, err := h.scheduler.TriggerPollNow(ctx, "tenant-a", "src-1")
	require.NoError(t, err)

	src, err := h.sources.GetByID(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, 1, src.ConsecutiveFailures)

	failing.set("no")
	outcome, err := h.scheduler.TriggerPollNow(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusSuccess, outcome.Status)

	src, err = h.sources.GetByID(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Zero(t, src.ConsecutiveFailures)
	assert.Empty(t, src.LastError)
}

func TestTickSkipsSourcesNotDue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(specV1))
	}))
	defer server.Close()

	h := newHarness(t, false)
	registerSource(t, h, server.URL)
	ctx := context.Background()

	h.scheduler.Tick(ctx)
	summary := h.scheduler.Tick(ctx)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Success)
}

func TestNormalizationFailureKeepsStaleValidators(t *testing.T) {
	// A document that fetches fine but cannot be normalized must not leave
	// its ETag behind: a later 304 against it would masquerade as no_change
	// and reset the failure counter.
	var conditionalHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"broken-1"` {
			conditionalHits.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"broken-1"`)
		_, _ = w.Write([]byte(`{"note": "not an API description"}`))
	}))
	defer server.Close()

	h := newHarness(t, false)
	registerSource(t, h, server.URL)
	ctx := context.Background()

	limit := config.NewDefaultSchedulerConfig().FailureLimit()
	for i := 0; i < limit; i++ {
		outcome, err := h.scheduler.TriggerPollNow(ctx, "tenant-a", "src-1")
		require.NoError(t, err)
		assert.Equal(t, models.PollStatusError, outcome.Status)
	}

	src, err := h.sources.GetByID(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.Empty(t, src.ETag)
	assert.Zero(t, conditionalHits.Load())
	assert.Equal(t, models.SourceStatusFailed, src.Status)
	assert.Equal(t, limit, src.ConsecutiveFailures)
	assert.True(t, src.LastSuccessAt.IsZero())
}

func TestHealthChecksFollowPollingCadence(t *testing.T) {
	var (
		specBody syncString
		probes   atomic.Int32
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/spec.json" {
			_, _ = w.Write([]byte(specBody.get()))
			return
		}
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	specBody.set(fmt.Sprintf(`{
	  "openapi": "3.0.0",
	  "info": {"title": "demo", "version": "1"},
	  "servers": [{"url": %q}],
	  "paths": {"/users": {"get": {"responses": {"200": {"description": "ok"}}}}}
	}`, server.URL))

	h := newHarness(t, true)
	registerSource(t, h, server.URL+"/spec.json")
	ctx := context.Background()

	summary := h.scheduler.Tick(ctx)
	assert.Equal(t, 1, summary.Success)
	probed := probes.Load()
	assert.Greater(t, probed, int32(0))

	// The source is not due again, so the next tick must not probe either.
	summary = h.scheduler.Tick(ctx)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, probed, probes.Load())
}

// syncString is a tiny string holder safe for the test handlers above.
type syncString struct {
	mu sync.Mutex
	v  string
}

func (a *syncString) set(v string) { a.mu.Lock(); a.v = v; a.mu.Unlock() }
func (a *syncString) get() string  { a.mu.Lock(); defer a.mu.Unlock(); return a.v }

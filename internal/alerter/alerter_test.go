package alerter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"specwatch/internal/config"
	"specwatch/internal/datastore"
	"specwatch/internal/errorwrapper"
	"specwatch/internal/metrics"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlerterDB(t *testing.T) *datastore.DB {
	t.Helper()
	db, err := datastore.NewDB(filepath.Join(t.TempDir(), "alerter_test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func breakingEvent() models.ChangeEvent {
	return models.ChangeEvent{
		Kind:     models.EventBreakingChange,
		TenantID: "tenant-a",
		Source: &models.MonitoredSource{
			ID: "src-1", TenantID: "tenant-a", URL: "https://api.example.com/openapi.json",
		},
		Snapshot: &models.VersionSnapshot{
			SourceID: "src-1",
			Version:  4,
			Diff: &models.SpecDelta{
				Changes: []models.SpecChange{
					{Kind: models.ChangeEndpointRemoved, Endpoint: "GET /users", Breaking: true},
					{Kind: models.ChangeFieldAdded, Endpoint: "GET /orders", Path: "response.total"},
				},
				Breaking: true,
			},
			Summary: "2 change(s), 1 breaking",
		},
		OccurredAt: time.Now().UTC(),
	}
}

func TestBuildPayloadBreakingChange(t *testing.T) {
	payload := BuildPayload(breakingEvent())

	assert.Equal(t, models.EventBreakingChange, payload.Type)
	assert.Equal(t, "critical", payload.Severity)
	assert.Contains(t, payload.Subject, "Breaking Change Detected")
	assert.Contains(t, payload.Text, "version 4")
	// Only the breaking subset is carried for breaking-change alerts.
	require.Len(t, payload.Details.Changes, 1)
	assert.Equal(t, models.ChangeEndpointRemoved, payload.Details.Changes[0].Kind)
	assert.Contains(t, payload.HTMLBody, "GET /users")
}

func TestBuildPayloadEndpointDown(t *testing.T) {
	payload := BuildPayload(models.ChangeEvent{
		Kind:       models.EventEndpointDown,
		TenantID:   "tenant-a",
		Source:     &models.MonitoredSource{ID: "src-1", URL: "https://api.example.com/openapi.json"},
		Endpoint:   "GET /users",
		StatusCode: 503,
		OccurredAt: time.Now().UTC(),
	})

	assert.Equal(t, "critical", payload.Severity)
	assert.Contains(t, payload.Text, "returning 503")
	assert.Equal(t, 503, payload.Details.StatusCode)
}

func TestBuildPayloadUnreachableEndpoint(t *testing.T) {
	payload := BuildPayload(models.ChangeEvent{
		Kind:       models.EventEndpointDown,
		Source:     &models.MonitoredSource{ID: "src-1", URL: "https://api.example.com/openapi.json"},
		Endpoint:   "GET /users",
		Error:      "connection refused",
		OccurredAt: time.Now().UTC(),
	})

	assert.Contains(t, payload.Text, "unreachable")
	assert.Equal(t, "connection refused", payload.Details.Error)
}

func TestBuildPayloadEscapesHTMLBody(t *testing.T) {
	payload := BuildPayload(models.ChangeEvent{
		Kind:     models.EventEndpointDown,
		TenantID: "tenant-a",
		Source: &models.MonitoredSource{
			ID: "src-1", TenantID: "tenant-a",
			URL: `https://api.example.com/openapi.json?x="><script>alert(1)</script>`,
		},
		Endpoint:   "GET /users",
		Error:      `dial tcp: lookup <img src=x onerror=alert(1)> failed`,
		OccurredAt: time.Now().UTC(),
	})

	assert.NotContains(t, payload.HTMLBody, "<script>")
	assert.NotContains(t, payload.HTMLBody, "<img")
	assert.Contains(t, payload.HTMLBody, "&lt;script&gt;")
	assert.Contains(t, payload.HTMLBody, "&lt;img src=x onerror=alert(1)&gt;")
	// The structured details keep the raw values for webhook consumers.
	assert.Contains(t, payload.Details.Error, "<img")
}

func TestDispatcherEnqueuesPerMatchingRule(t *testing.T) {
	db := newAlerterDB(t)
	rules := datastore.NewSQLiteAlertRuleStore(db, zerolog.Nop())
	records := datastore.NewSQLiteAlertRecordStore(db, zerolog.Nop())
	queue := datastore.NewSQLiteDeliveryQueue(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, rules.Upsert(ctx, &models.AlertRule{
		ID: "rule-1", TenantID: "tenant-a", SourceID: "src-1",
		Channel: models.ChannelWebhook, Destination: "https://hooks.example.com/a",
		OnBreakingChange: true, Enabled: true, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, rules.Upsert(ctx, &models.AlertRule{
		ID: "rule-2", TenantID: "tenant-a", SourceID: "src-1",
		Channel: models.ChannelChat, Destination: "https://hooks.example.com/b",
		OnBreakingChange: true, Enabled: true, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, rules.Upsert(ctx, &models.AlertRule{
		ID: "rule-3", TenantID: "tenant-a", SourceID: "src-1",
		Channel: models.ChannelEmail, Destination: "ops@example.com",
		OnNewVersion: true, Enabled: true, CreatedAt: time.Now().UTC(),
	}))

	dispatcher := NewDispatcher(rules, records, nil, zerolog.Nop())
	require.NoError(t, dispatcher.Evaluate(ctx, breakingEvent()))

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	history, err := records.ListBySource(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, record := range history {
		assert.Equal(t, models.AlertStatusPending, record.Status)
		assert.Equal(t, models.EventBreakingChange, record.EventKind)
		var payload AlertPayload
		require.NoError(t, json.Unmarshal(record.Payload, &payload))
		assert.Equal(t, "critical", payload.Severity)
	}
}

func TestWebhookSenderClassifiesResponses(t *testing.T) {
	var status atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	sender := NewWebhookSender(config.NewDefaultAlertingConfig(), zerolog.Nop())
	payload := BuildPayload(breakingEvent())
	ctx := context.Background()

	status.Store(http.StatusOK)
	assert.NoError(t, sender.Deliver(ctx, server.URL, payload))

	status.Store(http.StatusBadRequest)
	err := sender.Deliver(ctx, server.URL, payload)
	require.Error(t, err)
	assert.True(t, errorwrapper.IsPermanentDelivery(err))

	status.Store(http.StatusBadGateway)
	err = sender.Deliver(ctx, server.URL, payload)
	require.Error(t, err)
	assert.False(t, errorwrapper.IsPermanentDelivery(err))
}

func TestChatSenderPostsText(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewChatSender(config.NewDefaultAlertingConfig(), zerolog.Nop())
	require.NoError(t, sender.Deliver(context.Background(), server.URL, BuildPayload(breakingEvent())))

	assert.Contains(t, got["text"], "Breaking Change Detected")
}

func TestWorkerPoolDeliversAndFinalizes(t *testing.T) {
	db := newAlerterDB(t)
	rules := datastore.NewSQLiteAlertRuleStore(db, zerolog.Nop())
	records := datastore.NewSQLiteAlertRecordStore(db, zerolog.Nop())
	queue := datastore.NewSQLiteDeliveryQueue(db, zerolog.Nop())
	ctx := context.Background()

	var delivered atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, rules.Upsert(ctx, &models.AlertRule{
		ID: "rule-1", TenantID: "tenant-a", SourceID: "src-1",
		Channel: models.ChannelWebhook, Destination: server.URL,
		OnBreakingChange: true, Enabled: true, CreatedAt: time.Now().UTC(),
	}))

	dispatcher := NewDispatcher(rules, records, nil, zerolog.Nop())
	require.NoError(t, dispatcher.Evaluate(ctx, breakingEvent()))

	cfg := config.NewDefaultAlertingConfig()
	cfg.WorkerCount = 1
	pool := NewWorkerPool(queue, records, rules,
		SenderRegistry{models.ChannelWebhook: NewWebhookSender(cfg, zerolog.Nop())},
		cfg, nil, zerolog.Nop())
	pool.Start()
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		history, err := records.ListBySource(ctx, "tenant-a", "src-1")
		if err != nil || len(history) != 1 {
			return false
		}
		return history[0].Status == models.AlertStatusSent
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load())

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWorkerPoolRetriesTransientFailuresUntilSent(t *testing.T) {
	db := newAlerterDB(t)
	rules := datastore.NewSQLiteAlertRuleStore(db, zerolog.Nop())
	records := datastore.NewSQLiteAlertRecordStore(db, zerolog.Nop())
	queue := datastore.NewSQLiteDeliveryQueue(db, zerolog.Nop())
	ctx := context.Background()

	// The webhook recovers on the fourth request, inside the attempt budget.
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, rules.Upsert(ctx, &models.AlertRule{
		ID: "rule-1", TenantID: "tenant-a", SourceID: "src-1",
		Channel: models.ChannelWebhook, Destination: server.URL,
		OnBreakingChange: true, Enabled: true, CreatedAt: time.Now().UTC(),
	}))

	dispatcher := NewDispatcher(rules, records, nil, zerolog.Nop())
	require.NoError(t, dispatcher.Evaluate(ctx, breakingEvent()))

	cfg := config.NewDefaultAlertingConfig()
	cfg.WorkerCount = 1
	cfg.RetryBaseDelaySeconds = 1
	pool := NewWorkerPool(queue, records, rules,
		SenderRegistry{models.ChannelWebhook: NewWebhookSender(cfg, zerolog.Nop())},
		cfg, metrics.NewRegistry(), zerolog.Nop())
	pool.Start()
	defer pool.Stop()

	// Backoff is 1s, 2s, 4s from the shrunk base delay, so the record should
	// land in sent well inside the window.
	assert.Eventually(t, func() bool {
		history, err := records.ListBySource(ctx, "tenant-a", "src-1")
		if err != nil || len(history) != 1 {
			return false
		}
		return history[0].Status == models.AlertStatusSent
	}, 20*time.Second, 100*time.Millisecond)
	assert.Equal(t, int32(4), requests.Load())

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWorkerPoolMarksPermanentFailures(t *testing.T) {
	db := newAlerterDB(t)
	rules := datastore.NewSQLiteAlertRuleStore(db, zerolog.Nop())
	records := datastore.NewSQLiteAlertRecordStore(db, zerolog.Nop())
	queue := datastore.NewSQLiteDeliveryQueue(db, zerolog.Nop())
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	require.NoError(t, rules.Upsert(ctx, &models.AlertRule{
		ID: "rule-1", TenantID: "tenant-a", SourceID: "src-1",
		Channel: models.ChannelWebhook, Destination: server.URL,
		OnBreakingChange: true, Enabled: true, CreatedAt: time.Now().UTC(),
	}))

	dispatcher := NewDispatcher(rules, records, nil, zerolog.Nop())
	require.NoError(t, dispatcher.Evaluate(ctx, breakingEvent()))

	cfg := config.NewDefaultAlertingConfig()
	cfg.WorkerCount = 1
	pool := NewWorkerPool(queue, records, rules,
		SenderRegistry{models.ChannelWebhook: NewWebhookSender(cfg, zerolog.Nop())},
		cfg, nil, zerolog.Nop())
	pool.Start()
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		history, err := records.ListBySource(ctx, "tenant-a", "src-1")
		if err != nil || len(history) != 1 {
			return false
		}
		return history[0].Status == models.AlertStatusFailed
	}, 5*time.Second, 50*time.Millisecond)

	history, err := records.ListBySource(ctx, "tenant-a", "src-1")
	require.NoError(t, err)
	assert.NotEmpty(t, history[0].Error)
}

package renderer

import (
	"context"
	"testing"
	"time"

	"specwatch/internal/artifact"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) (*MarkdownRenderer, *artifact.FSStore) {
	t.Helper()
	store, err := artifact.NewFSStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return NewMarkdownRenderer(store, zerolog.Nop()), store
}

func TestSummarizeEmptyDelta(t *testing.T) {
	r, _ := newTestRenderer(t)

	summary, err := r.Summarize(context.Background(), nil, nil, &models.SpecDelta{})
	require.NoError(t, err)
	assert.Equal(t, "No structural changes", summary)
}

func TestSummarizeCountsAndTruncates(t *testing.T) {
	r, _ := newTestRenderer(t)

	delta := &models.SpecDelta{
		Changes: []models.SpecChange{
			{Kind: models.ChangeEndpointRemoved, Endpoint: "GET /users", Breaking: true},
			{Kind: models.ChangeEndpointAdded, Endpoint: "GET /people"},
			{Kind: models.ChangeFieldAdded, Endpoint: "GET /orders", Path: "response.total"},
			{Kind: models.ChangeFieldAdded, Endpoint: "GET /orders", Path: "response.tax"},
		},
		Breaking: true,
	}

	summary, err := r.Summarize(context.Background(), nil, nil, delta)
	require.NoError(t, err)
	assert.Contains(t, summary, "4 change(s)")
	assert.Contains(t, summary, "1 breaking")
	assert.Contains(t, summary, "endpoint removed GET /users")
	assert.Contains(t, summary, "and 1 more")
}

func TestGenerateDocsWritesReference(t *testing.T) {
	r, store := newTestRenderer(t)
	ctx := context.Background()

	snapshot := &models.VersionSnapshot{
		SourceID: "src-1",
		Version:  2,
		Spec: &models.NormalizedSpec{
			SpecVersion: "3.0.0",
			BaseURL:     "https://api.example.com",
			Endpoints: map[string]models.EndpointSpec{
				"GET /users": {
					Path:   "/users",
					Method: "GET",
					Parameters: map[string]models.ParameterSpec{
						"limit": {In: "query", Type: "integer"},
					},
					Response: map[string]models.FieldSpec{
						"status": {Type: "string", Required: true, Enum: []string{"active", "inactive"}},
					},
				},
			},
		},
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, r.GenerateDocs(ctx, snapshot))

	data, err := store.Get(ctx, "src-1/v2/reference.md")
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "## GET /users")
	assert.Contains(t, body, "`limit` (query, integer)")
	assert.Contains(t, body, "one of: active, inactive")
}

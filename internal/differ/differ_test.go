package differ

import (
	"testing"

	"specwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *DiffEngine {
	return NewDiffEngine(zerolog.Nop())
}

func specWithEndpoints(endpoints map[string]models.EndpointSpec) *models.NormalizedSpec {
	return &models.NormalizedSpec{
		SpecVersion: "3.0.0",
		Endpoints:   endpoints,
	}
}

func TestCompareEndpointRemovedIsBreaking(t *testing.T) {
	previous := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users":  {Path: "/users", Method: "GET"},
		"GET /orders": {Path: "/orders", Method: "GET"},
	})
	current := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users": {Path: "/users", Method: "GET"},
	})

	delta := newTestEngine().Compare(previous, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, models.ChangeEndpointRemoved, delta.Changes[0].Kind)
	assert.Equal(t, "GET /orders", delta.Changes[0].Endpoint)
	assert.True(t, delta.Breaking)
	assert.False(t, delta.NeedsReview)
}

func TestCompareAdditiveOnlyIsNonBreaking(t *testing.T) {
	previous := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users": {
			Path:   "/users",
			Method: "GET",
			Response: map[string]models.FieldSpec{
				"id": {Type: "string", Required: true},
			},
		},
	})
	current := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users": {
			Path:   "/users",
			Method: "GET",
			Parameters: map[string]models.ParameterSpec{
				"limit": {In: "query", Type: "integer", Required: false},
			},
			Response: map[string]models.FieldSpec{
				"id":   {Type: "string", Required: true},
				"name": {Type: "string", Required: false},
			},
		},
		"POST /users": {Path: "/users", Method: "POST"},
	})

	delta := newTestEngine().Compare(previous, current)

	assert.False(t, delta.Breaking)
	assert.False(t, delta.NeedsReview)
	assert.Len(t, delta.Changes, 3)
	assert.Empty(t, delta.BreakingChanges())
}

func TestCompareOptionalParamBecomingRequiredIsBreaking(t *testing.T) {
	previous := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /search": {
			Path:   "/search",
			Method: "GET",
			Parameters: map[string]models.ParameterSpec{
				"q": {In: "query", Type: "string", Required: false},
			},
		},
	})
	current := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /search": {
			Path:   "/search",
			Method: "GET",
			Parameters: map[string]models.ParameterSpec{
				"q": {In: "query", Type: "string", Required: true},
			},
		},
	})

	delta := newTestEngine().Compare(previous, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, models.ChangeParamBecameRequired, delta.Changes[0].Kind)
	assert.True(t, delta.Breaking)
}

func TestCompareNewRequiredParamIsBreaking(t *testing.T) {
	previous := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /search": {Path: "/search", Method: "GET"},
	})
	current := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /search": {
			Path:   "/search",
			Method: "GET",
			Parameters: map[string]models.ParameterSpec{
				"tenant": {In: "header", Type: "string", Required: true},
			},
		},
	})

	delta := newTestEngine().Compare(previous, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, models.ChangeParamAdded, delta.Changes[0].Kind)
	assert.True(t, delta.Breaking)
}

func TestCompareTypeWidening(t *testing.T) {
	makeSpec := func(fieldType string) *models.NormalizedSpec {
		return specWithEndpoints(map[string]models.EndpointSpec{
			"GET /metrics": {
				Path:   "/metrics",
				Method: "GET",
				Response: map[string]models.FieldSpec{
					"value": {Type: fieldType, Required: true},
				},
			},
		})
	}

	t.Run("integer to number is non-breaking", func(t *testing.T) {
		delta := newTestEngine().Compare(makeSpec("integer"), makeSpec("number"))
		require.Len(t, delta.Changes, 1)
		assert.Equal(t, models.ChangeFieldTypeChanged, delta.Changes[0].Kind)
		assert.False(t, delta.Breaking)
		assert.False(t, delta.NeedsReview)
	})

	t.Run("number to integer is breaking", func(t *testing.T) {
		delta := newTestEngine().Compare(makeSpec("number"), makeSpec("integer"))
		require.Len(t, delta.Changes, 1)
		assert.True(t, delta.Breaking)
	})

	t.Run("string to integer is breaking", func(t *testing.T) {
		delta := newTestEngine().Compare(makeSpec("string"), makeSpec("integer"))
		assert.True(t, delta.Breaking)
		assert.False(t, delta.NeedsReview)
	})

	t.Run("unknown type pair flags review", func(t *testing.T) {
		delta := newTestEngine().Compare(makeSpec("string"), makeSpec("uuid"))
		require.Len(t, delta.Changes, 1)
		assert.False(t, delta.Breaking)
		assert.True(t, delta.NeedsReview)
	})
}

func TestCompareRequiredResponseFieldRemovedIsBreaking(t *testing.T) {
	previous := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users": {
			Path:   "/users",
			Method: "GET",
			Response: map[string]models.FieldSpec{
				"id":    {Type: "string", Required: true},
				"email": {Type: "string", Required: true},
				"bio":   {Type: "string", Required: false},
			},
		},
	})
	current := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users": {
			Path:   "/users",
			Method: "GET",
			Response: map[string]models.FieldSpec{
				"id": {Type: "string", Required: true},
			},
		},
	})

	delta := newTestEngine().Compare(previous, current)

	assert.True(t, delta.Breaking)
	breaking := delta.BreakingChanges()
	require.Len(t, breaking, 1)
	assert.Equal(t, "response.email", breaking[0].Path)
}

func TestCompareOptionalRequestFieldRemovedIsNonBreaking(t *testing.T) {
	previous := specWithEndpoints(map[string]models.EndpointSpec{
		"POST /users": {
			Path:   "/users",
			Method: "POST",
			Request: map[string]models.FieldSpec{
				"nickname": {Type: "string", Required: false},
			},
		},
	})
	current := specWithEndpoints(map[string]models.EndpointSpec{
		"POST /users": {Path: "/users", Method: "POST"},
	})

	delta := newTestEngine().Compare(previous, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, models.ChangeFieldRemoved, delta.Changes[0].Kind)
	assert.False(t, delta.Breaking)
}

func TestCompareEnumValueRemovedIsBreaking(t *testing.T) {
	makeSpec := func(values ...string) *models.NormalizedSpec {
		return specWithEndpoints(map[string]models.EndpointSpec{
			"GET /orders": {
				Path:   "/orders",
				Method: "GET",
				Response: map[string]models.FieldSpec{
					"status": {Type: "string", Required: true, Enum: values},
				},
			},
		})
	}

	delta := newTestEngine().Compare(
		makeSpec("open", "closed", "archived"),
		makeSpec("open", "closed", "returned"),
	)

	assert.True(t, delta.Breaking)
	var removed, added int
	for _, c := range delta.Changes {
		switch c.Kind {
		case models.ChangeEnumValueRemoved:
			removed++
			assert.Equal(t, "archived", c.From)
			assert.True(t, c.Breaking)
		case models.ChangeEnumValueAdded:
			added++
			assert.Equal(t, "returned", c.To)
			assert.False(t, c.Breaking)
		}
	}
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, added)
}

func TestCompareIdenticalSpecsYieldsEmptyDelta(t *testing.T) {
	spec := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users": {
			Path:   "/users",
			Method: "GET",
			Response: map[string]models.FieldSpec{
				"id": {Type: "string", Required: true},
			},
		},
	})

	delta := newTestEngine().Compare(spec, spec)

	assert.Empty(t, delta.Changes)
	assert.False(t, delta.Breaking)
	assert.Empty(t, delta.UnifiedDiff)
}

func TestRenderTextDiffMarksChangedLines(t *testing.T) {
	previous := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /users": {Path: "/users", Method: "GET"},
	})
	current := specWithEndpoints(map[string]models.EndpointSpec{
		"GET /people": {Path: "/people", Method: "GET"},
	})

	delta := newTestEngine().Compare(previous, current)

	assert.Contains(t, delta.UnifiedDiff, "+")
	assert.Contains(t, delta.UnifiedDiff, "-")
}

package differ

import (
	"sort"

	"specwatch/internal/models"

	"github.com/rs/zerolog"
)

// DiffEngine computes structural deltas between normalized snapshots and
// classifies each change as breaking or non-breaking.
type DiffEngine struct {
	logger   zerolog.Logger
	renderer *textRenderer
}

// NewDiffEngine creates a new DiffEngine.
func NewDiffEngine(logger zerolog.Logger) *DiffEngine {
	return &DiffEngine{
		logger:   logger.With().Str("component", "DiffEngine").Logger(),
		renderer: newTextRenderer(),
	}
}

// Compare computes the structural delta from previous to current. The delta
// is keyed by endpoint and field path and carries a per-change breaking flag;
// the overall Breaking flag is true iff any change is breaking. Changes the
// engine cannot confidently classify default to non-breaking and set
// NeedsReview for manual follow-up.
func (de *DiffEngine) Compare(previous, current *models.NormalizedSpec) *models.SpecDelta {
	delta := &models.SpecDelta{}

	de.compareEndpoints(previous, current, delta)
	de.compareComponents(previous, current, delta)

	for _, change := range delta.Changes {
		if change.Breaking {
			delta.Breaking = true
			break
		}
	}

	delta.UnifiedDiff = de.renderer.Render(previous, current)

	de.logger.Debug().
		Int("changes", len(delta.Changes)).
		Bool("breaking", delta.Breaking).
		Bool("needs_review", delta.NeedsReview).
		Msg("Structural diff computed")
	return delta
}

func (de *DiffEngine) compareEndpoints(previous, current *models.NormalizedSpec, delta *models.SpecDelta) {
	// Removed endpoints break existing clients; additions never do.
	for _, key := range previous.EndpointKeys() {
		if _, ok := current.Endpoints[key]; !ok {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeEndpointRemoved,
				Endpoint: key,
				Breaking: true,
			})
		}
	}
	for _, key := range current.EndpointKeys() {
		if _, ok := previous.Endpoints[key]; !ok {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeEndpointAdded,
				Endpoint: key,
				Breaking: false,
			})
		}
	}

	for _, key := range previous.EndpointKeys() {
		currentEndpoint, ok := current.Endpoints[key]
		if !ok {
			continue
		}
		previousEndpoint := previous.Endpoints[key]
		de.compareParameters(key, previousEndpoint.Parameters, currentEndpoint.Parameters, delta)
		de.compareFields(key, "request", previousEndpoint.Request, currentEndpoint.Request, delta)
		de.compareFields(key, "response", previousEndpoint.Response, currentEndpoint.Response, delta)
	}
}

func (de *DiffEngine) compareParameters(endpoint string, previous, current map[string]models.ParameterSpec, delta *models.SpecDelta) {
	for _, name := range sortedParamNames(previous) {
		prevParam := previous[name]
		currParam, ok := current[name]
		if !ok {
			// Removing a parameter the client may still send is tolerated.
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeParamRemoved,
				Endpoint: endpoint,
				Path:     "parameters." + name,
				Breaking: false,
			})
			continue
		}
		if !prevParam.Required && currParam.Required {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeParamBecameRequired,
				Endpoint: endpoint,
				Path:     "parameters." + name,
				Breaking: true,
			})
		} else if prevParam.Required && !currParam.Required {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeParamBecameOptional,
				Endpoint: endpoint,
				Path:     "parameters." + name,
				Breaking: false,
			})
		}
		if prevParam.Type != currParam.Type && prevParam.Type != "" && currParam.Type != "" {
			de.addTypeChange(endpoint, "parameters."+name, prevParam.Type, currParam.Type, delta)
		}
	}
	for _, name := range sortedParamNames(current) {
		currParam := current[name]
		if _, ok := previous[name]; ok {
			continue
		}
		// A new parameter only breaks clients when it is required.
		delta.Changes = append(delta.Changes, models.SpecChange{
			Kind:     models.ChangeParamAdded,
			Endpoint: endpoint,
			Path:     "parameters." + name,
			Breaking: currParam.Required,
		})
	}
}

// compareFields walks the request or response field map of one endpoint.
// Direction matters: a field added as required to a request breaks callers,
// while a required response field being removed breaks consumers.
func (de *DiffEngine) compareFields(endpoint, section string, previous, current map[string]models.FieldSpec, delta *models.SpecDelta) {
	isRequest := section == "request"

	for _, name := range sortedFieldNames(previous) {
		prevField := previous[name]
		fieldPath := section + "." + name
		currField, ok := current[name]
		if !ok {
			breaking := !isRequest && prevField.Required
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeFieldRemoved,
				Endpoint: endpoint,
				Path:     fieldPath,
				Breaking: breaking,
			})
			continue
		}

		if prevField.Type != currField.Type && prevField.Type != "" && currField.Type != "" {
			de.addTypeChange(endpoint, fieldPath, prevField.Type, currField.Type, delta)
		}

		if !prevField.Required && currField.Required {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeFieldBecameRequired,
				Endpoint: endpoint,
				Path:     fieldPath,
				Breaking: isRequest,
			})
		} else if prevField.Required && !currField.Required {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeFieldBecameOptional,
				Endpoint: endpoint,
				Path:     fieldPath,
				Breaking: false,
			})
		}

		de.compareEnums(endpoint, fieldPath, prevField.Enum, currField.Enum, delta)
	}

	for _, name := range sortedFieldNames(current) {
		currField := current[name]
		if _, ok := previous[name]; ok {
			continue
		}
		delta.Changes = append(delta.Changes, models.SpecChange{
			Kind:     models.ChangeFieldAdded,
			Endpoint: endpoint,
			Path:     section + "." + name,
			Breaking: isRequest && currField.Required,
		})
	}
}

// compareEnums flags removed enum values as breaking; additions widen the
// accepted set and are safe.
func (de *DiffEngine) compareEnums(endpoint, fieldPath string, previous, current []string, delta *models.SpecDelta) {
	if len(previous) == 0 {
		return
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, v := range current {
		currentSet[v] = struct{}{}
	}
	for _, v := range previous {
		if _, ok := currentSet[v]; !ok {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeEnumValueRemoved,
				Endpoint: endpoint,
				Path:     fieldPath,
				From:     v,
				Breaking: true,
			})
		}
	}
	previousSet := make(map[string]struct{}, len(previous))
	for _, v := range previous {
		previousSet[v] = struct{}{}
	}
	for _, v := range current {
		if _, ok := previousSet[v]; !ok {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeEnumValueAdded,
				Endpoint: endpoint,
				Path:     fieldPath,
				To:       v,
				Breaking: false,
			})
		}
	}
}

func (de *DiffEngine) addTypeChange(endpoint, fieldPath, from, to string, delta *models.SpecDelta) {
	breaking, confident := classifyTypeChange(from, to)
	if !confident {
		delta.NeedsReview = true
	}
	delta.Changes = append(delta.Changes, models.SpecChange{
		Kind:     models.ChangeFieldTypeChanged,
		Endpoint: endpoint,
		Path:     fieldPath,
		From:     from,
		To:       to,
		Breaking: breaking,
	})
}

func (de *DiffEngine) compareComponents(previous, current *models.NormalizedSpec, delta *models.SpecDelta) {
	for _, name := range sortedComponentNames(previous.Components) {
		if _, ok := current.Components[name]; !ok {
			// Component removal is only breaking if an endpoint still used
			// it, which surfaces as endpoint-level field changes above.
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeComponentRemoved,
				Path:     "components." + name,
				Breaking: false,
			})
		}
	}
	for _, name := range sortedComponentNames(current.Components) {
		if _, ok := previous.Components[name]; !ok {
			delta.Changes = append(delta.Changes, models.SpecChange{
				Kind:     models.ChangeComponentAdded,
				Path:     "components." + name,
				Breaking: false,
			})
		}
	}
}

func sortedParamNames(m map[string]models.ParameterSpec) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedFieldNames(m map[string]models.FieldSpec) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedComponentNames(m map[string]map[string]models.FieldSpec) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

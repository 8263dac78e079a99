package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FieldSpec is the contract-relevant description of a single request or
// response field: its declared type, whether it is required, and the set of
// accepted enum values (nil when the field is not an enum).
type FieldSpec struct {
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Enum     []string `json:"enum,omitempty"`
}

// ParameterSpec describes one declared operation parameter.
type ParameterSpec struct {
	In       string `json:"in"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// EndpointSpec is the canonical form of one path+method operation.
type EndpointSpec struct {
	Path       string                   `json:"path"`
	Method     string                   `json:"method"`
	Parameters map[string]ParameterSpec `json:"parameters,omitempty"`
	Request    map[string]FieldSpec     `json:"request,omitempty"`
	Response   map[string]FieldSpec     `json:"response,omitempty"`
}

// Key returns the endpoint identity used throughout the pipeline, e.g. "GET /users".
func (e EndpointSpec) Key() string {
	return fmt.Sprintf("%s %s", e.Method, e.Path)
}

// NormalizedSpec is the canonical in-memory structural form of an
// OpenAPI/Swagger document, independent of key ordering and formatting.
// Descriptions, examples, servers beyond the base URL, and security are
// discarded on purpose.
type NormalizedSpec struct {
	SpecVersion string                          `json:"spec_version"`
	BaseURL     string                          `json:"base_url"`
	Endpoints   map[string]EndpointSpec         `json:"endpoints"`
	Components  map[string]map[string]FieldSpec `json:"components,omitempty"`
}

// EndpointKeys returns the sorted endpoint identities of the spec.
func (ns *NormalizedSpec) EndpointKeys() []string {
	keys := make([]string, 0, len(ns.Endpoints))
	for k := range ns.Endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CanonicalJSON renders the spec as deterministic JSON. Used for persistence
// and for textual diff rendering; map keys are sorted by encoding/json.
func (ns *NormalizedSpec) CanonicalJSON() ([]byte, error) {
	return json.MarshalIndent(ns, "", "  ")
}

// ParseNormalizedSpec decodes a previously persisted canonical form.
func ParseNormalizedSpec(data []byte) (*NormalizedSpec, error) {
	var ns NormalizedSpec
	if err := json.Unmarshal(data, &ns); err != nil {
		return nil, err
	}
	if ns.Endpoints == nil {
		ns.Endpoints = make(map[string]EndpointSpec)
	}
	return &ns, nil
}

package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// httpMethods are the operation keys recognized inside a path item. Anything
// else ($ref, parameters, summary, ...) is not an operation.
var httpMethods = map[string]struct{}{
	"get": {}, "post": {}, "put": {}, "patch": {},
	"delete": {}, "head": {}, "options": {},
}

// Normalizer parses raw OpenAPI 3.x / Swagger 2.0 documents into the
// canonical structural form used by the diff engine. The output is
// deterministic: the same document always yields the same normalized spec,
// independent of key ordering and formatting. Descriptions, examples and
// security metadata are discarded on purpose.
type Normalizer struct {
	logger zerolog.Logger
}

// NewNormalizer creates a new Normalizer.
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.With().Str("component", "Normalizer").Logger(),
	}
}

// Normalize parses raw spec content fetched from sourceURL. A document that
// is neither valid YAML/JSON nor carries an openapi/swagger marker yields a
// ParseError; the scheduler treats that as a poll failure.
func (n *Normalizer) Normalize(sourceURL string, raw []byte) (*models.NormalizedSpec, error) {
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, errorwrapper.NewParseError(sourceURL, "document is not valid YAML or JSON", err)
	}

	specVersion := detectSpecVersion(doc)
	if specVersion == "" {
		return nil, errorwrapper.NewParseError(sourceURL, "document has no openapi or swagger version marker", nil)
	}

	components := extractComponents(doc, specVersion)

	spec := &models.NormalizedSpec{
		SpecVersion: specVersion,
		BaseURL:     extractBaseURL(doc, sourceURL),
		Endpoints:   make(map[string]models.EndpointSpec),
		Components:  components,
	}

	paths, _ := asMap(doc["paths"])
	if len(paths) == 0 {
		n.logger.Warn().Str("url", sourceURL).Msg("Spec has no paths, normalized form is empty")
		return spec, nil
	}

	resolver := newRefResolver(doc, specVersion)

	for _, path := range sortedKeys(paths) {
		pathItem, ok := asMap(paths[path])
		if !ok {
			n.logger.Warn().Str("path", path).Msg("Path item is not a mapping, skipping")
			continue
		}

		// Path-level parameters apply to every operation underneath.
		shared := extractParameters(pathItem["parameters"], resolver)

		for _, method := range sortedKeys(pathItem) {
			if _, isMethod := httpMethods[strings.ToLower(method)]; !isMethod {
				continue
			}
			operation, ok := asMap(pathItem[method])
			if !ok {
				continue
			}

			endpoint := n.normalizeOperation(path, strings.ToUpper(method), operation, shared, resolver, specVersion)
			spec.Endpoints[endpoint.Key()] = endpoint
		}
	}

	n.logger.Debug().Str("url", sourceURL).Int("endpoints", len(spec.Endpoints)).Msg("Spec normalized")
	return spec, nil
}

// normalizeOperation builds the canonical form of one path+method operation.
func (n *Normalizer) normalizeOperation(
	path, method string,
	operation map[string]interface{},
	shared map[string]models.ParameterSpec,
	resolver *refResolver,
	specVersion string,
) models.EndpointSpec {
	endpoint := models.EndpointSpec{
		Path:       path,
		Method:     method,
		Parameters: make(map[string]models.ParameterSpec),
	}

	for name, p := range shared {
		endpoint.Parameters[name] = p
	}
	for name, p := range extractParameters(operation["parameters"], resolver) {
		endpoint.Parameters[name] = p
	}

	if isSwagger2(specVersion) {
		endpoint.Request = extractSwaggerBodyFields(operation, resolver)
	} else {
		endpoint.Request = extractRequestFields(operation, resolver)
	}
	endpoint.Response = extractResponseFields(operation, resolver)

	if len(endpoint.Parameters) == 0 {
		endpoint.Parameters = nil
	}
	return endpoint
}

// parseDocument decodes raw bytes as JSON or YAML into a generic mapping.
func parseDocument(raw []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	if trimmed[0] == '{' {
		var doc map[string]interface{}
		if err := json.Unmarshal(trimmed, &doc); err == nil {
			return doc, nil
		}
		// Fall through: some YAML documents legitimately start with '{'.
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document decoded to nothing")
	}
	return doc, nil
}

func detectSpecVersion(doc map[string]interface{}) string {
	if v, ok := doc["openapi"].(string); ok && v != "" {
		return v
	}
	if v, ok := doc["swagger"].(string); ok && v != "" {
		return v
	}
	return ""
}

func isSwagger2(specVersion string) bool {
	return strings.HasPrefix(specVersion, "2")
}

// extractBaseURL derives the base URL for endpoint probing: OpenAPI 3.x
// servers, Swagger 2.0 host+basePath, or the origin of the spec URL itself.
func extractBaseURL(doc map[string]interface{}, sourceURL string) string {
	if servers, ok := doc["servers"].([]interface{}); ok && len(servers) > 0 {
		if server, ok := asMap(servers[0]); ok {
			if u, ok := server["url"].(string); ok && u != "" {
				return strings.TrimSuffix(u, "/")
			}
		}
	}

	if host, ok := doc["host"].(string); ok && host != "" {
		scheme := "https"
		if schemes, ok := doc["schemes"].([]interface{}); ok && len(schemes) > 0 {
			if s, ok := schemes[0].(string); ok && s != "" {
				scheme = s
			}
		}
		basePath, _ := doc["basePath"].(string)
		return scheme + "://" + host + strings.TrimSuffix(basePath, "/")
	}

	if parsed, err := url.Parse(sourceURL); err == nil && parsed.Host != "" {
		return parsed.Scheme + "://" + parsed.Host
	}
	return ""
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package normalizer

import (
	"fmt"
	"sort"
	"strings"

	"specwatch/internal/models"
)

// maxRefDepth bounds $ref resolution so cyclic schemas cannot recurse forever.
const maxRefDepth = 8

// refResolver resolves local $ref pointers against the document's reusable
// schema section (components/schemas for 3.x, definitions for 2.0).
type refResolver struct {
	doc         map[string]interface{}
	specVersion string
}

func newRefResolver(doc map[string]interface{}, specVersion string) *refResolver {
	return &refResolver{doc: doc, specVersion: specVersion}
}

// resolve follows a local JSON pointer like "#/components/schemas/User".
// External references are not followed.
func (r *refResolver) resolve(ref string) (map[string]interface{}, bool) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, false
	}
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	var current interface{} = r.doc
	for _, part := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current = m[part]
	}
	return asMap(current)
}

// deref returns the schema itself or, when it is a $ref, its target.
func (r *refResolver) deref(schema map[string]interface{}, depth int) (map[string]interface{}, bool) {
	ref, hasRef := schema["$ref"].(string)
	if !hasRef {
		return schema, true
	}
	if depth >= maxRefDepth {
		return nil, false
	}
	target, ok := r.resolve(ref)
	if !ok {
		return nil, false
	}
	return r.deref(target, depth+1)
}

// schemaFields flattens an object schema into the canonical field map:
// property name -> declared type, required flag, enum values. Non-object
// schemas (primitives, bare arrays) have no named fields.
func schemaFields(schemaValue interface{}, resolver *refResolver) map[string]models.FieldSpec {
	schema, ok := asMap(schemaValue)
	if !ok {
		return nil
	}
	schema, ok = resolver.deref(schema, 0)
	if !ok {
		return nil
	}

	properties, ok := asMap(schema["properties"])
	if !ok {
		return nil
	}

	requiredSet := make(map[string]struct{})
	if required, ok := schema["required"].([]interface{}); ok {
		for _, v := range required {
			if name, ok := v.(string); ok {
				requiredSet[name] = struct{}{}
			}
		}
	}

	fields := make(map[string]models.FieldSpec, len(properties))
	for name, propValue := range properties {
		prop, ok := asMap(propValue)
		if !ok {
			continue
		}
		if resolved, ok := resolver.deref(prop, 0); ok {
			prop = resolved
		}
		_, required := requiredSet[name]
		fields[name] = models.FieldSpec{
			Type:     schemaType(prop),
			Required: required,
			Enum:     enumValues(prop),
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// schemaType returns the declared type of a schema, defaulting to "object"
// when properties exist without an explicit type.
func schemaType(schema map[string]interface{}) string {
	if t, ok := schema["type"].(string); ok && t != "" {
		return t
	}
	if _, ok := asMap(schema["properties"]); ok {
		return "object"
	}
	return ""
}

// enumValues stringifies and sorts the accepted enum values of a schema.
func enumValues(schema map[string]interface{}) []string {
	raw, ok := schema["enum"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		values = append(values, fmt.Sprint(v))
	}
	sort.Strings(values)
	return values
}

// extractParameters normalizes a parameter list (path-level or operation-level).
// Body parameters are handled separately by the request-field extraction.
func extractParameters(v interface{}, resolver *refResolver) map[string]models.ParameterSpec {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}

	params := make(map[string]models.ParameterSpec)
	for _, item := range list {
		param, ok := asMap(item)
		if !ok {
			continue
		}
		if resolved, ok := resolver.deref(param, 0); ok {
			param = resolved
		}

		in, _ := param["in"].(string)
		if in == "body" {
			continue
		}
		name, _ := param["name"].(string)
		if name == "" {
			continue
		}

		required, _ := param["required"].(bool)
		paramType, _ := param["type"].(string) // Swagger 2.0 inline type
		if paramType == "" {
			if schema, ok := asMap(param["schema"]); ok {
				paramType = schemaType(schema)
			}
		}

		params[name] = models.ParameterSpec{
			In:       in,
			Type:     paramType,
			Required: required,
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// extractRequestFields extracts request body fields for OpenAPI 3.x:
// requestBody -> content -> application/json (or the first content type) -> schema.
func extractRequestFields(operation map[string]interface{}, resolver *refResolver) map[string]models.FieldSpec {
	requestBody, ok := asMap(operation["requestBody"])
	if !ok {
		return nil
	}
	if resolved, ok := resolver.deref(requestBody, 0); ok {
		requestBody = resolved
	}

	content, ok := asMap(requestBody["content"])
	if !ok {
		return nil
	}

	media := pickMediaType(content)
	if media == nil {
		return nil
	}
	return schemaFields(media["schema"], resolver)
}

// extractSwaggerBodyFields extracts request body fields for Swagger 2.0,
// where the body arrives as a parameter with in=body.
func extractSwaggerBodyFields(operation map[string]interface{}, resolver *refResolver) map[string]models.FieldSpec {
	list, ok := operation["parameters"].([]interface{})
	if !ok {
		return nil
	}
	for _, item := range list {
		param, ok := asMap(item)
		if !ok {
			continue
		}
		if resolved, ok := resolver.deref(param, 0); ok {
			param = resolved
		}
		if in, _ := param["in"].(string); in == "body" {
			return schemaFields(param["schema"], resolver)
		}
	}
	return nil
}

// extractResponseFields extracts success-response fields. Status preference:
// 200, then 201, then the lowest 2xx, then "default".
func extractResponseFields(operation map[string]interface{}, resolver *refResolver) map[string]models.FieldSpec {
	responses, ok := asMap(operation["responses"])
	if !ok {
		return nil
	}

	response, ok := asMap(responses[pickSuccessStatus(responses)])
	if !ok {
		return nil
	}
	if resolved, ok := resolver.deref(response, 0); ok {
		response = resolved
	}

	// OpenAPI 3.x nests the schema under content; Swagger 2.0 inlines it.
	if content, ok := asMap(response["content"]); ok {
		media := pickMediaType(content)
		if media == nil {
			return nil
		}
		return schemaFields(media["schema"], resolver)
	}
	return schemaFields(response["schema"], resolver)
}

func pickSuccessStatus(responses map[string]interface{}) string {
	for _, preferred := range []string{"200", "201"} {
		if _, ok := responses[preferred]; ok {
			return preferred
		}
	}
	var twoxx []string
	for status := range responses {
		if strings.HasPrefix(status, "2") {
			twoxx = append(twoxx, status)
		}
	}
	if len(twoxx) > 0 {
		sort.Strings(twoxx)
		return twoxx[0]
	}
	return "default"
}

// pickMediaType prefers application/json, falling back to the first declared
// content type in sorted order.
func pickMediaType(content map[string]interface{}) map[string]interface{} {
	if media, ok := asMap(content["application/json"]); ok {
		return media
	}
	for _, key := range sortedKeys(content) {
		if media, ok := asMap(content[key]); ok {
			return media
		}
	}
	return nil
}

// extractComponents normalizes the named reusable schema section.
func extractComponents(doc map[string]interface{}, specVersion string) map[string]map[string]models.FieldSpec {
	var schemas map[string]interface{}
	if isSwagger2(specVersion) {
		schemas, _ = asMap(doc["definitions"])
	} else if components, ok := asMap(doc["components"]); ok {
		schemas, _ = asMap(components["schemas"])
	}
	if len(schemas) == 0 {
		return nil
	}

	resolver := newRefResolver(doc, specVersion)
	out := make(map[string]map[string]models.FieldSpec, len(schemas))
	for name, schemaValue := range schemas {
		if fields := schemaFields(schemaValue, resolver); fields != nil {
			out[name] = fields
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package renderer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
)

// MarkdownRenderer summarizes deltas for alert payloads and version history,
// and renders a Markdown endpoint reference into the artifact store. Both
// operations are best effort collaborators of the polling cycle: callers log
// failures and move on.
type MarkdownRenderer struct {
	artifacts models.ArtifactStore
	logger    zerolog.Logger
}

// NewMarkdownRenderer creates a renderer writing docs into artifacts.
func NewMarkdownRenderer(artifacts models.ArtifactStore, logger zerolog.Logger) *MarkdownRenderer {
	return &MarkdownRenderer{
		artifacts: artifacts,
		logger:    logger.With().Str("component", "Renderer").Logger(),
	}
}

// Summarize produces a one-line human summary of the delta.
func (r *MarkdownRenderer) Summarize(_ context.Context, _, _ *models.NormalizedSpec, delta *models.SpecDelta) (string, error) {
	if delta == nil || len(delta.Changes) == 0 {
		return "No structural changes", nil
	}

	breaking := len(delta.BreakingChanges())
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d change(s)", len(delta.Changes))
	if breaking > 0 {
		fmt.Fprintf(&sb, ", %d breaking", breaking)
	}
	if delta.NeedsReview {
		sb.WriteString(", needs review")
	}

	const maxListed = 3
	for i, change := range delta.Changes {
		if i >= maxListed {
			fmt.Fprintf(&sb, "; and %d more", len(delta.Changes)-maxListed)
			break
		}
		sb.WriteString("; ")
		sb.WriteString(describeChange(change))
	}
	return sb.String(), nil
}

func describeChange(change models.SpecChange) string {
	subject := change.Endpoint
	if change.Path != "" {
		if subject != "" {
			subject += " "
		}
		subject += change.Path
	}
	desc := strings.ReplaceAll(string(change.Kind), "_", " ") + " " + subject
	if change.From != "" || change.To != "" {
		desc += fmt.Sprintf(" (%s -> %s)", change.From, change.To)
	}
	return strings.TrimSpace(desc)
}

// GenerateDocs renders a Markdown endpoint reference for the snapshot and
// stores it under <source>/v<version>/reference.md.
func (r *MarkdownRenderer) GenerateDocs(ctx context.Context, snapshot *models.VersionSnapshot) error {
	if snapshot.Spec == nil {
		return errorwrapper.WrapError(errorwrapper.ErrIncompleteArtifact, "snapshot has no normalized spec")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# API Reference\n\nVersion %d", snapshot.Version)
	if snapshot.Spec.BaseURL != "" {
		fmt.Fprintf(&sb, " | Base URL: %s", snapshot.Spec.BaseURL)
	}
	sb.WriteString("\n")

	for _, key := range snapshot.Spec.EndpointKeys() {
		endpoint := snapshot.Spec.Endpoints[key]
		fmt.Fprintf(&sb, "\n## %s\n", key)
		writeParamSection(&sb, endpoint.Parameters)
		writeFieldSection(&sb, "Request", endpoint.Request)
		writeFieldSection(&sb, "Response", endpoint.Response)
	}

	path := fmt.Sprintf("%s/v%d/reference.md", snapshot.SourceID, snapshot.Version)
	if err := r.artifacts.Put(ctx, path, []byte(sb.String())); err != nil {
		return errorwrapper.WrapError(err, "failed to store rendered docs")
	}
	r.logger.Info().Str("source_id", snapshot.SourceID).Int64("version", snapshot.Version).Str("path", path).Msg("Documentation rendered")
	return nil
}

func writeParamSection(sb *strings.Builder, params map[string]models.ParameterSpec) {
	if len(params) == 0 {
		return
	}
	sb.WriteString("\n### Parameters\n\n")
	for _, name := range sortedKeys(params) {
		p := params[name]
		fmt.Fprintf(sb, "- `%s` (%s, %s)%s\n", name, p.In, p.Type, requiredSuffix(p.Required))
	}
}

func writeFieldSection(sb *strings.Builder, title string, fields map[string]models.FieldSpec) {
	if len(fields) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n### %s\n\n", title)
	for _, name := range sortedKeys(fields) {
		f := fields[name]
		fmt.Fprintf(sb, "- `%s` (%s)%s", name, f.Type, requiredSuffix(f.Required))
		if len(f.Enum) > 0 {
			fmt.Fprintf(sb, " one of: %s", strings.Join(f.Enum, ", "))
		}
		sb.WriteString("\n")
	}
}

func requiredSuffix(required bool) string {
	if required {
		return " required"
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

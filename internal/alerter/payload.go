package alerter

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"specwatch/internal/models"
)

// AlertPayload is the channel-independent alert content. Webhook deliveries
// post it verbatim; chat uses Text and email uses Subject plus HTMLBody.
type AlertPayload struct {
	Type     models.EventKind `json:"type"`
	Severity string           `json:"severity"`
	Subject  string           `json:"subject"`
	Text     string           `json:"text"`
	Details  PayloadDetails   `json:"details"`
	HTMLBody string           `json:"body,omitempty"`
}

// PayloadDetails carries the structured facts behind the alert.
type PayloadDetails struct {
	APIURL      string              `json:"api_url"`
	Version     int64               `json:"version,omitempty"`
	ChangeCount int                 `json:"change_count,omitempty"`
	Changes     []models.SpecChange `json:"changes,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Endpoint    string              `json:"endpoint,omitempty"`
	StatusCode  int                 `json:"status_code,omitempty"`
	Error       string              `json:"error_message,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

const maxChangesInPayload = 10

// BuildPayload shapes the alert content for one event.
func BuildPayload(event models.ChangeEvent) AlertPayload {
	switch event.Kind {
	case models.EventBreakingChange:
		return buildVersionPayload(event, "critical",
			fmt.Sprintf("Breaking Change Detected: %s", event.Source.URL),
			fmt.Sprintf("Breaking changes detected in version %d", snapshotVersion(event)))
	case models.EventNewVersion:
		return buildVersionPayload(event, "info",
			fmt.Sprintf("New API Version: %s", event.Source.URL),
			fmt.Sprintf("Version %d recorded", snapshotVersion(event)))
	case models.EventEndpointDown:
		return buildEndpointPayload(event, "critical",
			fmt.Sprintf("Endpoint Down: %s", event.Endpoint),
			endpointDownText(event))
	case models.EventEndpointRecovered:
		return buildEndpointPayload(event, "info",
			fmt.Sprintf("Endpoint Recovered: %s", event.Endpoint),
			fmt.Sprintf("Endpoint %s is responding again (%d)", event.Endpoint, event.StatusCode))
	}
	return AlertPayload{Type: event.Kind, Severity: "info", Details: PayloadDetails{APIURL: event.Source.URL, Timestamp: event.OccurredAt}}
}

func endpointDownText(event models.ChangeEvent) string {
	if event.StatusCode > 0 {
		return fmt.Sprintf("Endpoint %s is returning %d", event.Endpoint, event.StatusCode)
	}
	return fmt.Sprintf("Endpoint %s is unreachable", event.Endpoint)
}

func snapshotVersion(event models.ChangeEvent) int64 {
	if event.Snapshot != nil {
		return event.Snapshot.Version
	}
	return 0
}

func buildVersionPayload(event models.ChangeEvent, severity, subject, text string) AlertPayload {
	details := PayloadDetails{
		APIURL:    event.Source.URL,
		Version:   snapshotVersion(event),
		Timestamp: event.OccurredAt,
	}
	if event.Snapshot != nil && event.Snapshot.Diff != nil {
		changes := event.Snapshot.Diff.Changes
		if event.Kind == models.EventBreakingChange {
			changes = event.Snapshot.Diff.BreakingChanges()
		}
		details.ChangeCount = len(changes)
		if len(changes) > maxChangesInPayload {
			changes = changes[:maxChangesInPayload]
		}
		details.Changes = changes
		details.Summary = event.Snapshot.Summary
	}

	return AlertPayload{
		Type:     event.Kind,
		Severity: severity,
		Subject:  subject,
		Text:     text,
		Details:  details,
		HTMLBody: formatVersionHTML(subject, details),
	}
}

func buildEndpointPayload(event models.ChangeEvent, severity, subject, text string) AlertPayload {
	details := PayloadDetails{
		APIURL:     event.Source.URL,
		Endpoint:   event.Endpoint,
		StatusCode: event.StatusCode,
		Error:      event.Error,
		Timestamp:  event.OccurredAt,
	}
	return AlertPayload{
		Type:     event.Kind,
		Severity: severity,
		Subject:  subject,
		Text:     text,
		Details:  details,
		HTMLBody: formatEndpointHTML(subject, text, details),
	}
}

// The HTML bodies interpolate strings that ultimately come from the monitored
// server (its URL, endpoint names, schema paths, error text), so every dynamic
// value is escaped before it lands in the markup.
func formatVersionHTML(subject string, details PayloadDetails) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><body><h2>%s</h2>", html.EscapeString(subject))
	fmt.Fprintf(&sb, "<p><strong>API:</strong> %s</p>", html.EscapeString(details.APIURL))
	fmt.Fprintf(&sb, "<p><strong>Version:</strong> %d</p>", details.Version)
	if details.Summary != "" {
		fmt.Fprintf(&sb, "<h3>Summary</h3><p>%s</p>", html.EscapeString(details.Summary))
	}
	if len(details.Changes) > 0 {
		sb.WriteString("<h3>Changes</h3><ul>")
		for _, change := range details.Changes {
			fmt.Fprintf(&sb, "<li>%s: %s %s</li>",
				html.EscapeString(string(change.Kind)),
				html.EscapeString(change.Endpoint),
				html.EscapeString(change.Path))
		}
		sb.WriteString("</ul>")
	}
	fmt.Fprintf(&sb, "<p><small>Detected at %s</small></p></body></html>", details.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	return sb.String()
}

func formatEndpointHTML(subject, text string, details PayloadDetails) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><body><h2>%s</h2>", html.EscapeString(subject))
	fmt.Fprintf(&sb, "<p><strong>API:</strong> %s</p>", html.EscapeString(details.APIURL))
	fmt.Fprintf(&sb, "<p><strong>Endpoint:</strong> %s</p>", html.EscapeString(details.Endpoint))
	if details.StatusCode > 0 {
		fmt.Fprintf(&sb, "<p><strong>Status Code:</strong> %d</p>", details.StatusCode)
	}
	if details.Error != "" {
		fmt.Fprintf(&sb, "<p><strong>Error:</strong> %s</p>", html.EscapeString(details.Error))
	}
	fmt.Fprintf(&sb, "<p>%s</p>", html.EscapeString(text))
	fmt.Fprintf(&sb, "<p><small>Detected at %s</small></p></body></html>", details.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	return sb.String()
}

// ParsePayload decodes a stored payload.
func ParsePayload(data []byte) (AlertPayload, error) {
	var payload AlertPayload
	err := json.Unmarshal(data, &payload)
	return payload, err
}

package healthcheck

import (
	"time"

	"specwatch/internal/models"
)

// DetectTransitions compares fresh samples against the last stored sample per
// endpoint and emits events only on state edges: healthy to unhealthy yields
// endpoint_down, unhealthy to healthy yields endpoint_recovered. Neutral
// samples never participate, and an endpoint first seen unhealthy counts as a
// down transition. A steady state, however long it lasts, emits nothing.
func DetectTransitions(source *models.MonitoredSource, previous map[string]models.EndpointHealthSample, fresh []models.EndpointHealthSample, now time.Time) []models.ChangeEvent {
	var events []models.ChangeEvent
	for _, sample := range fresh {
		if !sample.Alertable() {
			continue
		}

		prevState := models.HealthStateHealthy
		known := false
		if prev, ok := previous[sample.Endpoint]; ok && prev.Alertable() {
			prevState = prev.State
			known = true
		}

		switch {
		case sample.State == models.HealthStateUnhealthy && (prevState == models.HealthStateHealthy || !known):
			events = append(events, models.ChangeEvent{
				Kind:       models.EventEndpointDown,
				TenantID:   source.TenantID,
				Source:     source,
				Endpoint:   sample.Endpoint,
				StatusCode: sample.StatusCode,
				Error:      sample.Error,
				OccurredAt: now,
			})
		case sample.State == models.HealthStateHealthy && known && prevState == models.HealthStateUnhealthy:
			events = append(events, models.ChangeEvent{
				Kind:       models.EventEndpointRecovered,
				TenantID:   source.TenantID,
				Source:     source,
				Endpoint:   sample.Endpoint,
				StatusCode: sample.StatusCode,
				OccurredAt: now,
			})
		}
	}
	return events
}

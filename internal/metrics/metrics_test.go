package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExposesPipelineInstruments(t *testing.T) {
	reg := NewRegistry()

	reg.PollCycles.WithLabelValues("success").Inc()
	reg.VersionsCreated.Inc()
	reg.AlertDeliveries.WithLabelValues("webhook", "sent").Inc()
	reg.DeliveryLatency.Observe(0.25)
	reg.DeliveryQueueSize.Set(3)

	families, err := reg.registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["specwatch_poll_cycles_total"])
	assert.True(t, names["specwatch_versions_created_total"])
	assert.True(t, names["specwatch_alert_deliveries_total"])
	assert.True(t, names["specwatch_alert_delivery_duration_seconds"])
	assert.True(t, names["specwatch_delivery_queue_size"])
}

func TestDeliveryLatencyHistogramCountsObservations(t *testing.T) {
	reg := NewRegistry()
	reg.DeliveryLatency.Observe(0.03)
	reg.DeliveryLatency.Observe(1.7)

	families, err := reg.registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != "specwatch_alert_delivery_duration_seconds" {
			continue
		}
		require.Len(t, family.GetMetric(), 1)
		histogram := family.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(2), histogram.GetSampleCount())
		assert.InDelta(t, 1.73, histogram.GetSampleSum(), 0.001)
		return
	}
	t.Fatal("delivery latency histogram not registered")
}

package eventstream

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_InstrumentsAreUsable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TurnsTotal.WithLabelValues("g1", "FINISH").Inc()
	m.QueueDepth.WithLabelValues("g1").Set(3)
	m.ProviderLatency.WithLabelValues("local").Observe(0.5)
	m.ToolIterations.WithLabelValues("W1").Observe(2)
	m.SupervisorErrors.WithLabelValues("decode").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "groupchat_engine_turns_total")
	assert.Contains(t, names, "groupchat_eventstream_turn_queue_depth")
}

func TestNewMetrics_TurnsTotalCountsPerLabelSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.TurnsTotal.WithLabelValues("g1", "FINISH").Inc()
	m.TurnsTotal.WithLabelValues("g1", "FINISH").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "groupchat_engine_turns_total" {
			continue
		}
		require.Len(t, f.Metric, 1)
		assert.Equal(t, float64(2), f.Metric[0].GetCounter().GetValue())
	}
}

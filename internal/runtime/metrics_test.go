package runtime

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NoError(t, m.Register())

	m.FrameSent("push_record")
	m.FrameSent("push_record")
	m.FrameDropped("push_record")
	m.FrameSent("log")
	m.SendRetry()
	m.Reconnect()
	m.LogsDropped(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("push_record", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("push_record", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("log", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendRetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.logsDroppedTotal))
}

func TestMetricsRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Register())
	require.NoError(t, m.Register())
}

func TestMetricsRegisterToleratesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	require.NoError(t, first.Register())

	// A second harness in the same process lands on the same registry; the
	// duplicate descriptors must not fail construction.
	second := NewMetrics(reg)
	require.NoError(t, second.Register())
}

func TestMetricsNilRegistererFallsBackToDefault(t *testing.T) {
	m := NewMetrics(nil)
	assert.Equal(t, prometheus.Registerer(prometheus.DefaultRegisterer), m.registerer)
}

func TestMetricsServeRequiresPort(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	logger := &recordingHookLogger{}

	m.Serve(0, logger)
	m.Serve(-1, logger)
	assert.Empty(t, logger.infos, "no server should start without a port")

	m.Serve(59321, logger)
	require.Len(t, logger.infos, 1)
	assert.Equal(t, ":59321", logger.infos[0].fields["address"])
}

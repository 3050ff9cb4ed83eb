package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("verify").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("verify").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("verify", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("verify", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("verify")))
}

func TestAddInconsistencies(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddInconsistencies("SALE", 2)
	m.AddInconsistencies("SALE", 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inconsistencies.WithLabelValues("SALE")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AddInconsistencies("SALE", 1)
	assert.NoError(t, m.Track("verify").End(nil))
}

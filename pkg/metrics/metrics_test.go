package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRegistersOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RowsWritten.WithLabelValues("snappy").Add(10)
	c.RowGroups.Inc()
	c.DictionaryDecisions.WithLabelValues("dictionary").Inc()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.RowsWritten.WithLabelValues("snappy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RowGroups))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "parquetry_rows_written_total")
	assert.Contains(t, names, "parquetry_dictionary_decisions_total")

	// a second collector on another registry does not collide
	assert.NotPanics(t, func() { NewCollector(prometheus.NewRegistry()) })
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestThroughputTracker(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	tr := NewThroughputTracker(c, "csv")
	tr.Increment(500)
	time.Sleep(10 * time.Millisecond)

	rate := tr.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, testutil.ToFloat64(c.Throughput.WithLabelValues("csv")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("write")
	assert.Equal(t, "write", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Duration(0))
}

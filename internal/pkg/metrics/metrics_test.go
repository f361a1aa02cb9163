package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveLandmark(t *testing.T) {
	before := testutil.ToFloat64(LandmarkOperationsTotal.WithLabelValues("lock", "refused"))
	ObserveLandmark("lock", false)
	ObserveLandmark("lock", true)
	assert.Equal(t, before+1, testutil.ToFloat64(LandmarkOperationsTotal.WithLabelValues("lock", "refused")))
}

func TestRegistryGathers(t *testing.T) {
	LinkConnected.WithLabelValues("7").Set(1)

	families, err := Registry.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "agvfleet_link_connected")
	assert.Contains(t, names, "go_goroutines")
}

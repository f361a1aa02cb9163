package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicBuilder(t *testing.T) {
	b := NewTopicBuilder("/agvfleet/v1/")

	assert.Equal(t, "agvfleet/v1", b.Root())
	assert.Equal(t, "agvfleet/v1/agv/link-up/7", b.VehicleEvent("link-up", "7"))
	assert.Equal(t, "agvfleet/v1/agv/fault-raised/+", b.VehicleEventWildcard("fault-raised"))
	assert.Equal(t, "agvfleet/v1/agv/#", b.AllVehicleEvents())
	assert.Equal(t, "agvfleet/v1/fleet/status", b.FleetStatus())
}

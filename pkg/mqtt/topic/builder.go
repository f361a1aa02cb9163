package topic

import (
	"fmt"
	"strings"
)

// Topic segments shared by the fleet and anything that consumes its events.
// Changing these values breaks existing subscribers.
const (
	// SegmentAGV groups every per-vehicle topic.
	// Structure: {root}/agv/{event}/{vehicleID}
	SegmentAGV = "agv"

	// SuffixStatus carries the retained online/offline marker of the fleet daemon itself.
	// Structure: {root}/fleet/status
	SuffixStatus = "fleet/status"
)

// MQTT filter wildcards.
const (
	Wildcard      = "+"
	MultiWildcard = "#"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "agvfleet/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
// Leading and trailing slashes are trimmed.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.Trim(root, "/")}
}

// Root returns the namespace every topic starts with.
func (b *TopicBuilder) Root() string { return b.root }

// VehicleEvent returns the topic a vehicle event of the given kind is published on.
// Direction: Fleet -> Consumers
func (b *TopicBuilder) VehicleEvent(event, vehicleID string) string {
	return b.build(SegmentAGV+"/"+event, vehicleID)
}

// VehicleEventWildcard matches one event kind for every vehicle.
// Result: {root}/agv/{event}/+
func (b *TopicBuilder) VehicleEventWildcard(event string) string {
	return b.build(SegmentAGV+"/"+event, Wildcard)
}

// AllVehicleEvents matches every event of every vehicle.
// Result: {root}/agv/#
func (b *TopicBuilder) AllVehicleEvents() string {
	return fmt.Sprintf("%s/%s/%s", b.root, SegmentAGV, MultiWildcard)
}

// FleetStatus returns the topic of the daemon's retained presence marker.
func (b *TopicBuilder) FleetStatus() string {
	return b.root + "/" + SuffixStatus
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}

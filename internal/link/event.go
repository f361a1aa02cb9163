package link

import (
	"time"

	"github.com/autopeer-io/agvfleet/internal/agv"
)

type EventType uint8

const (
	// EventStateUpdated follows a heartbeat reply that changed at least one field.
	EventStateUpdated EventType = iota + 1
	EventLinkUp
	EventLinkBroken
	// EventFaultRaised reports a new non-zero fault, from the device or diagnosed locally.
	EventFaultRaised
)

func (t EventType) String() string {
	switch t {
	case EventStateUpdated:
		return "state-updated"
	case EventLinkUp:
		return "link-up"
	case EventLinkBroken:
		return "link-broken"
	case EventFaultRaised:
		return "fault-raised"
	}
	return "unknown"
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// FaultSource tells a device-reported fault from a locally diagnosed one.
type FaultSource uint8

const (
	FaultDevice FaultSource = iota + 1
	FaultSelf
)

func (s FaultSource) String() string {
	switch s {
	case FaultDevice:
		return "device"
	case FaultSelf:
		return "self"
	}
	return ""
}

func (s FaultSource) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event is delivered after the change it describes has been applied.
type Event struct {
	Type      EventType     `json:"type"`
	VehicleID uint16        `json:"vehicleId"`
	Time      time.Time     `json:"time"`
	Changed   agv.Field     `json:"changed,omitempty"`
	Fault     agv.ErrorCode `json:"fault,omitempty"`
	Source    FaultSource   `json:"source,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Snapshot  agv.Snapshot  `json:"snapshot"`
}

// Notifier receives link events. Notify is called synchronously from the link's worker and reader
// goroutines with no link lock held, so implementations must be safe for concurrent use.
type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

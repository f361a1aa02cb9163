package agv

import (
	"fmt"
	"strings"
)

// Mode is the control mode reported by the vehicle.
type Mode uint8

const (
	ModeHand Mode = 0
	ModeAuto Mode = 1
)

var modeNames = map[Mode]string{
	ModeHand: "hand",
	ModeAuto: "auto",
}

func (m Mode) String() string { return enumName(modeNames, m) }

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Status is the operating status reported by the vehicle.
type Status uint8

const (
	StatusWait             Status = 0
	StatusRun              Status = 1
	StatusStop             Status = 2
	StatusScream           Status = 3
	StatusFinding          Status = 4
	StatusObstacleSlowdown Status = 5
	StatusTrafficStop      Status = 6
	StatusSleep            Status = 7
	StatusCharging         Status = 8
	StatusRemoteScream     Status = 9
	StatusAllScream        Status = 10
	StatusSpeedUp          Status = 11
	StatusSpeedDown        Status = 12
	StatusPause            Status = 13
)

var statusNames = map[Status]string{
	StatusWait:             "wait",
	StatusRun:              "run",
	StatusStop:             "stop",
	StatusScream:           "scream",
	StatusFinding:          "finding",
	StatusObstacleSlowdown: "obstacle-slowdown",
	StatusTrafficStop:      "traffic-stop",
	StatusSleep:            "sleep",
	StatusCharging:         "charging",
	StatusRemoteScream:     "remote-scream",
	StatusAllScream:        "all-scream",
	StatusSpeedUp:          "speed-up",
	StatusSpeedDown:        "speed-down",
	StatusPause:            "pause",
}

func (s Status) String() string { return enumName(statusNames, s) }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Moving reports whether the vehicle is travelling along its track.
func (s Status) Moving() bool {
	switch s {
	case StatusRun, StatusFinding, StatusObstacleSlowdown, StatusSpeedUp, StatusSpeedDown, StatusTrafficStop:
		return true
	}
	return false
}

// EmergencyStopped reports whether any kind of e-stop is active.
func (s Status) EmergencyStopped() bool {
	return s == StatusScream || s == StatusAllScream || s == StatusRemoteScream
}

// ActionStatus is the progress of the vehicle's current action.
type ActionStatus uint8

const (
	ActionNone      ActionStatus = 0
	ActionExecuting ActionStatus = 1
	ActionFinished  ActionStatus = 2
)

var actionStatusNames = map[ActionStatus]string{
	ActionNone:      "none",
	ActionExecuting: "executing",
	ActionFinished:  "finished",
}

func (s ActionStatus) String() string { return enumName(actionStatusNames, s) }

func (s ActionStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrorCode is a vehicle fault. Negative codes are raised locally, positive ones by the device.
type ErrorCode int8

const (
	ErrorArm       ErrorCode = -4
	ErrorRoller    ErrorCode = -3
	ErrorLifter    ErrorCode = -2
	ErrorNet       ErrorCode = -1
	ErrorNone      ErrorCode = 0
	ErrorMiss      ErrorCode = 1
	ErrorObstacle  ErrorCode = 2
	ErrorCollision ErrorCode = 3
)

var errorCodeNames = map[ErrorCode]string{
	ErrorArm:       "arm",
	ErrorRoller:    "roller",
	ErrorLifter:    "lifter",
	ErrorNet:       "net",
	ErrorNone:      "none",
	ErrorMiss:      "miss",
	ErrorObstacle:  "obstacle",
	ErrorCollision: "collision",
}

var errorCodeDescriptions = map[ErrorCode]string{
	ErrorArm:       "arm action timed out",
	ErrorRoller:    "roller action timed out",
	ErrorLifter:    "lifter action timed out",
	ErrorNet:       "network link to the device is down",
	ErrorNone:      "no fault",
	ErrorMiss:      "track not found in time, vehicle stopped",
	ErrorObstacle:  "obstacle on the route, vehicle stopped",
	ErrorCollision: "collision detected, vehicle stopped",
}

func (e ErrorCode) String() string { return enumName(errorCodeNames, e) }

func (e ErrorCode) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// Description is a human readable explanation of the fault.
func (e ErrorCode) Description() string {
	if d, ok := errorCodeDescriptions[e]; ok {
		return d
	}
	return "unknown fault"
}

// SelfDiagnosed reports whether the code belongs to the locally raised range.
func (e ErrorCode) SelfDiagnosed() bool { return e < 0 }

// Capability is the vehicle model family. It selects the action-name table.
type Capability uint8

const (
	CapabilityTransfer    Capability = 1
	CapabilityLifting     Capability = 2
	CapabilityPull        Capability = 3
	CapabilitySubmersible Capability = 4
	CapabilityArm         Capability = 5
	CapabilityFork        Capability = 6
)

var capabilityNames = map[Capability]string{
	CapabilityTransfer:    "transfer",
	CapabilityLifting:     "lifting",
	CapabilityPull:        "pull",
	CapabilitySubmersible: "submersible",
	CapabilityArm:         "arm",
	CapabilityFork:        "fork",
}

func (c Capability) String() string { return enumName(capabilityNames, c) }

func (c Capability) Valid() bool {
	_, ok := capabilityNames[c]
	return ok
}

func (c Capability) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Capability) UnmarshalText(text []byte) error {
	v, err := ParseCapability(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCapability accepts the names produced by Capability.String.
func ParseCapability(s string) (Capability, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range capabilityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}

func enumName[K ~uint8 | ~int8](names map[K]string, k K) string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

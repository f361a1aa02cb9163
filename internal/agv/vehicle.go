// Package agv models one automated guided vehicle: its identity, the state it reports over the
// wire, the faults raised on its behalf and the rules that decide which commands it accepts.
package agv

import (
	"fmt"
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/agvfleet/internal/landmark"
)

// Field is a set of state fields changed by one update.
type Field uint16

const (
	FieldMode Field = 1 << iota
	FieldStatus
	FieldSpeed
	FieldBattery
	FieldCurrent
	FieldEnd
	FieldCargo
	FieldError
	FieldAction
)

func (f Field) Has(x Field) bool { return f&x != 0 }

// Vehicle is the live state of one vehicle. All methods are safe for concurrent use.
type Vehicle struct {
	identity Identity
	clock    clock.PassiveClock

	mu             sync.RWMutex
	mode           Mode
	status         Status
	prevStatus     Status
	speed          int8
	commandedSpeed int8
	battery        uint8
	cargo          uint8
	deviceError    ErrorCode
	selfError      ErrorCode
	action         uint8
	actionStatus   ActionStatus
	actionStart    time.Time
	current        landmark.ID
	previous       landmark.ID
	end            landmark.ID
	previousEnd    landmark.ID
}

type Option func(*Vehicle)

func WithClock(c clock.PassiveClock) Option {
	return func(v *Vehicle) { v.clock = c }
}

// New validates id and returns a vehicle in its power-on state: hand mode, waiting, no action.
func New(id Identity, opts ...Option) (*Vehicle, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	v := &Vehicle{
		identity: id,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Vehicle) Identity() Identity { return v.identity }

func (v *Vehicle) ID() uint16 { return v.identity.ID }

func (v *Vehicle) String() string {
	return fmt.Sprintf("%s(%d)", v.identity.Name, v.identity.ID)
}

func (v *Vehicle) UpdateMode(m Mode) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateMode(m)
}

func (v *Vehicle) updateMode(m Mode) bool {
	if v.mode == m {
		return false
	}
	v.mode = m
	return true
}

func (v *Vehicle) UpdateStatus(s Status) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateStatus(s)
}

func (v *Vehicle) updateStatus(s Status) bool {
	if v.status == s {
		return false
	}
	v.prevStatus = v.status
	v.status = s
	return true
}

func (v *Vehicle) UpdateSpeed(s int8) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateSpeed(s)
}

func (v *Vehicle) updateSpeed(s int8) bool {
	if v.speed == s {
		return false
	}
	v.speed = s
	return true
}

func (v *Vehicle) UpdateBattery(b uint8) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateBattery(b)
}

func (v *Vehicle) updateBattery(b uint8) bool {
	if v.battery == b {
		return false
	}
	v.battery = b
	return true
}

func (v *Vehicle) UpdateCargo(c uint8) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateCargo(c)
}

func (v *Vehicle) updateCargo(c uint8) bool {
	if v.cargo == c {
		return false
	}
	v.cargo = c
	return true
}

// UpdateError records the fault reported by the device.
func (v *Vehicle) UpdateError(e ErrorCode) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateError(e)
}

func (v *Vehicle) updateError(e ErrorCode) bool {
	if v.deviceError == e {
		return false
	}
	v.deviceError = e
	return true
}

// UpdateAction records the action code and its progress. Entering the executing state, or a new
// action code while executing, arms the action timer. Leaving the executing state clears it.
func (v *Vehicle) UpdateAction(code uint8, s ActionStatus) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateAction(code, s)
}

func (v *Vehicle) updateAction(code uint8, s ActionStatus) bool {
	if v.action == code && v.actionStatus == s {
		return false
	}
	switch {
	case s == ActionExecuting && (v.actionStatus != ActionExecuting || v.action != code):
		v.actionStart = v.clock.Now()
	case s != ActionExecuting:
		v.actionStart = time.Time{}
	}
	v.action = code
	v.actionStatus = s
	return true
}

// UpdateCurrent records the landmark the vehicle is at, keeping the one it left.
func (v *Vehicle) UpdateCurrent(id landmark.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateCurrent(id)
}

func (v *Vehicle) updateCurrent(id landmark.ID) bool {
	if v.current == id {
		return false
	}
	v.previous = v.current
	v.current = id
	return true
}

// UpdateEnd records the destination landmark, keeping the previous destination.
func (v *Vehicle) UpdateEnd(id landmark.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateEnd(id)
}

func (v *Vehicle) updateEnd(id landmark.ID) bool {
	if v.end == id {
		return false
	}
	v.previousEnd = v.end
	v.end = id
	return true
}

// ApplyHeartbeat applies every field of a heartbeat reply and returns the set that changed.
func (v *Vehicle) ApplyHeartbeat(hb Heartbeat) Field {
	v.mu.Lock()
	defer v.mu.Unlock()

	var changed Field
	set := func(f Field, ok bool) {
		if ok {
			changed |= f
		}
	}
	set(FieldMode, v.updateMode(hb.Mode))
	set(FieldStatus, v.updateStatus(hb.Status))
	set(FieldSpeed, v.updateSpeed(hb.Speed))
	set(FieldBattery, v.updateBattery(hb.Battery))
	set(FieldCurrent, v.updateCurrent(hb.Current))
	set(FieldEnd, v.updateEnd(hb.End))
	set(FieldCargo, v.updateCargo(hb.Cargo))
	set(FieldError, v.updateError(hb.Error))
	set(FieldAction, v.updateAction(hb.Action, hb.ActionStatus))
	return changed
}

// RaiseSelfError records a locally diagnosed fault. Only negative codes are accepted.
func (v *Vehicle) RaiseSelfError(e ErrorCode) bool {
	if !e.SelfDiagnosed() {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selfError == e {
		return false
	}
	v.selfError = e
	return true
}

// ClearSelfError clears the local fault if it is e.
func (v *Vehicle) ClearSelfError(e ErrorCode) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selfError != e || e == ErrorNone {
		return false
	}
	v.selfError = ErrorNone
	return true
}

// ForgetCommands drops the remembered commanded speed. It is called when the link goes down,
// since commands queued before that were never delivered.
func (v *Vehicle) ForgetCommands() {
	v.mu.Lock()
	v.commandedSpeed = 0
	v.mu.Unlock()
}

func (v *Vehicle) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

func (v *Vehicle) Current() landmark.ID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// ActionElapsed is how long the current action has been executing, zero when none is.
func (v *Vehicle) ActionElapsed() time.Duration {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.actionElapsed()
}

func (v *Vehicle) actionElapsed() time.Duration {
	if v.actionStatus != ActionExecuting || v.actionStart.IsZero() {
		return 0
	}
	return max(v.clock.Since(v.actionStart), 0)
}

// ActualSpeed converts the reported speed percentage to metres per minute.
func (v *Vehicle) ActualSpeed() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.actualSpeed()
}

func (v *Vehicle) actualSpeed() float64 {
	return math.Abs(float64(v.speed)) * v.identity.MaxSpeed / 100
}

// Heartbeat encodes the outbound heartbeat carrying the current state.
func (v *Vehicle) Heartbeat() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return EncodeHeartbeat(v.identity.ID, Heartbeat{
		Mode:         v.mode,
		Status:       v.status,
		Speed:        v.speed,
		Battery:      v.battery,
		Current:      v.current,
		End:          v.end,
		Cargo:        v.cargo,
		Error:        v.deviceError,
		Action:       v.action,
		ActionStatus: v.actionStatus,
	})
}

// Snapshot is a consistent copy of the vehicle state.
type Snapshot struct {
	Identity

	Connected       bool         `json:"connected"`
	Mode            Mode         `json:"mode"`
	Status          Status       `json:"status"`
	PreviousStatus  Status       `json:"previousStatus"`
	Speed           int8         `json:"speed"`
	ActualSpeed     float64      `json:"actualSpeed"`
	Battery         uint8        `json:"battery"`
	Cargo           uint8        `json:"cargo"`
	Error           ErrorCode    `json:"error"`
	SelfError       ErrorCode    `json:"selfError"`
	Action          uint8        `json:"action"`
	ActionName      string       `json:"actionName"`
	ActionStatus    ActionStatus `json:"actionStatus"`
	ActionElapsedMS int64        `json:"actionElapsedMs"`
	Current         landmark.ID  `json:"current"`
	Previous        landmark.ID  `json:"previous"`
	End             landmark.ID  `json:"end"`
	PreviousEnd     landmark.ID  `json:"previousEnd"`
}

// Fault is the fault that should be shown for the vehicle: the local one wins.
func (s Snapshot) Fault() ErrorCode {
	if s.SelfError != ErrorNone {
		return s.SelfError
	}
	return s.Error
}

func (v *Vehicle) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Snapshot{
		Identity:        v.identity,
		Mode:            v.mode,
		Status:          v.status,
		PreviousStatus:  v.prevStatus,
		Speed:           v.speed,
		ActualSpeed:     v.actualSpeed(),
		Battery:         v.battery,
		Cargo:           v.cargo,
		Error:           v.deviceError,
		SelfError:       v.selfError,
		Action:          v.action,
		ActionName:      ActionName(v.identity.Capability, v.action),
		ActionStatus:    v.actionStatus,
		ActionElapsedMS: v.actionElapsed().Milliseconds(),
		Current:         v.current,
		Previous:        v.previous,
		End:             v.end,
		PreviousEnd:     v.previousEnd,
	}
}

package agv

import (
	"fmt"

	"github.com/autopeer-io/agvfleet/internal/landmark"
)

// Kind selects the command family.
type Kind uint8

const (
	KindMove Kind = iota + 1
	KindAction
	KindStopAction
	KindTrafficPass
	KindSpeed
	KindStatusControl
)

// Command is a request to send one payload to the vehicle. Build it with the constructors below.
type Command struct {
	Kind   Kind
	Target landmark.ID
	Code   uint8
	Speed  int
	Status StatusCommand
}

func Move(target landmark.ID) Command { return Command{Kind: KindMove, Target: target} }

func Action(code uint8) Command { return Command{Kind: KindAction, Code: code} }

func StopAction() Command { return Command{Kind: KindStopAction} }

func TrafficPass() Command { return Command{Kind: KindTrafficPass} }

func SetSpeed(percent int) Command { return Command{Kind: KindSpeed, Speed: percent} }

func StatusControl(c StatusCommand) Command {
	return Command{Kind: KindStatusControl, Status: c}
}

func Wakeup() Command       { return StatusControl(CmdWakeup) }
func Reset() Command        { return StatusControl(CmdReset) }
func Restart() Command      { return StatusControl(CmdRestart) }
func Scream() Command       { return StatusControl(CmdScream) }
func Sleep() Command        { return StatusControl(CmdSleep) }
func Pause() Command        { return StatusControl(CmdPause) }
func Continue() Command     { return StatusControl(CmdContinue) }
func RemoteScream() Command { return StatusControl(CmdRemoteScream) }
func Shutdown() Command     { return StatusControl(CmdShutdown) }

func (c Command) String() string {
	switch c.Kind {
	case KindMove:
		return fmt.Sprintf("move(%d)", c.Target)
	case KindAction:
		return fmt.Sprintf("action(%d)", c.Code)
	case KindStopAction:
		return "stop-action"
	case KindTrafficPass:
		return "traffic-pass"
	case KindSpeed:
		return fmt.Sprintf("speed(%d)", c.Speed)
	case KindStatusControl:
		return c.Status.String()
	}
	return "unknown"
}

// Admit checks c against the current state and, when it is accepted, returns the payload to send.
// A rejected command has no side effect. connected is the transport state at the time of the call.
func (v *Vehicle) Admit(c Command, connected bool) ([]byte, Result) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !connected {
		return nil, NetError
	}
	if v.mode != ModeAuto {
		return nil, StatusError
	}

	id := v.identity.ID
	switch c.Kind {
	case KindMove:
		if v.status != StatusWait {
			return nil, StatusError
		}
		if !c.Target.Valid() {
			return nil, ParamError
		}
		return EncodeMove(id, v.current, c.Target), Success

	case KindAction:
		if v.status != StatusWait {
			return nil, StatusError
		}
		if c.Code == ActionIdle {
			return nil, ParamError
		}
		if c.Code == v.action && v.actionStatus == ActionFinished {
			return nil, ActionError
		}
		return EncodeAction(id, v.current, c.Code), Success

	case KindStopAction:
		if v.action == ActionIdle || v.actionStatus == ActionFinished {
			return nil, ActionError
		}
		return EncodeAction(id, v.current, ActionIdle), Success

	case KindTrafficPass:
		if v.status != StatusTrafficStop {
			return nil, StatusError
		}
		return EncodeTrafficPass(id, v.current), Success

	case KindSpeed:
		if c.Speed < -100 || c.Speed > 100 {
			return nil, ParamError
		}
		s := int8(c.Speed)
		if flips(v.commandedSpeed, s) {
			return nil, ParamError
		}
		v.commandedSpeed = s
		return EncodeSpeed(id, v.current, s), Success

	case KindStatusControl:
		if !v.statusControlAllowed(c.Status) {
			return nil, StatusError
		}
		return EncodeStatusControl(id, c.Status), Success
	}
	return nil, ParamError
}

// flips reports a direct change between forward and reverse.
func flips(from, to int8) bool {
	return (from > 0 && to < 0) || (from < 0 && to > 0)
}

func (v *Vehicle) statusControlAllowed(c StatusCommand) bool {
	switch c {
	case CmdWakeup:
		return v.status == StatusSleep
	case CmdReset:
		return v.status == StatusAllScream || v.status == StatusRemoteScream
	case CmdRestart:
		return v.pristine()
	case CmdScream, CmdRemoteScream:
		return !v.status.EmergencyStopped()
	case CmdSleep:
		return v.status == StatusWait
	case CmdPause:
		return v.status.Moving() || v.actionStatus == ActionExecuting
	case CmdContinue:
		return v.status == StatusPause
	case CmdShutdown:
		switch v.status {
		case StatusWait, StatusStop, StatusSleep, StatusCharging:
			return true
		}
	}
	return false
}

// pristine reports whether every live attribute is at its idle value.
func (v *Vehicle) pristine() bool {
	return v.status == StatusWait &&
		v.speed == 0 &&
		v.cargo == 0 &&
		v.deviceError == ErrorNone &&
		v.action == ActionIdle &&
		v.actionStatus == ActionNone
}

package agv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/autopeer-io/agvfleet/internal/landmark"
)

// FuncCode is the second field of every payload.
type FuncCode uint8

const (
	FuncHeartbeat     FuncCode = 0x1F
	FuncMove          FuncCode = 0x2F
	FuncAction        FuncCode = 0x3F
	FuncTraffic       FuncCode = 0x4F
	FuncStatusControl FuncCode = 0x5F
	FuncSpeed         FuncCode = 0x6F
)

func (f FuncCode) String() string {
	switch f {
	case FuncHeartbeat:
		return "heartbeat"
	case FuncMove:
		return "move"
	case FuncAction:
		return "action"
	case FuncTraffic:
		return "traffic"
	case FuncStatusControl:
		return "status-control"
	case FuncSpeed:
		return "speed"
	}
	return fmt.Sprintf("func(0x%02X)", uint8(f))
}

// StatusCommand is the argument of a status-control payload.
type StatusCommand uint8

const (
	CmdWakeup       StatusCommand = 0
	CmdReset        StatusCommand = 1
	CmdRestart      StatusCommand = 2
	CmdScream       StatusCommand = 3
	CmdSleep        StatusCommand = 4
	CmdPause        StatusCommand = 5
	CmdContinue     StatusCommand = 6
	CmdRemoteScream StatusCommand = 7
	CmdShutdown     StatusCommand = 0xFF
)

var statusCommandNames = map[StatusCommand]string{
	CmdWakeup:       "wakeup",
	CmdReset:        "reset",
	CmdRestart:      "restart",
	CmdScream:       "scream",
	CmdSleep:        "sleep",
	CmdPause:        "pause",
	CmdContinue:     "continue",
	CmdRemoteScream: "remote-scream",
	CmdShutdown:     "shutdown",
}

func (c StatusCommand) String() string { return enumName(statusCommandNames, c) }

// ParseStatusCommand accepts the names produced by StatusCommand.String.
func ParseStatusCommand(s string) (StatusCommand, bool) {
	for c, name := range statusCommandNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

const (
	headerSize = 3

	// HeartbeatSize is the length of a heartbeat payload in either direction.
	HeartbeatSize = headerSize + 12

	trafficPassArg byte = 0x01
)

var (
	ErrShortPayload = errors.New("payload too short")
	ErrFuncMismatch = errors.New("unexpected function code")
)

// Heartbeat is the full vehicle report exchanged every send cycle.
type Heartbeat struct {
	Mode         Mode
	Status       Status
	Speed        int8
	Battery      uint8
	Current      landmark.ID
	End          landmark.ID
	Cargo        uint8
	Error        ErrorCode
	Action       uint8
	ActionStatus ActionStatus
}

// ParseHeader returns the device id and function code of a payload.
func ParseHeader(p []byte) (uint16, FuncCode, error) {
	if len(p) < headerSize {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(p))
	}
	return binary.BigEndian.Uint16(p), FuncCode(p[2]), nil
}

func header(id uint16, fn FuncCode, argLen int) []byte {
	p := make([]byte, headerSize, headerSize+argLen)
	binary.BigEndian.PutUint16(p, id)
	p[2] = byte(fn)
	return p
}

// EncodeHeartbeat lays out a heartbeat payload. Self-diagnosed error codes are sent as zero.
func EncodeHeartbeat(id uint16, hb Heartbeat) []byte {
	p := header(id, FuncHeartbeat, HeartbeatSize-headerSize)
	errCode := hb.Error
	if errCode.SelfDiagnosed() {
		errCode = ErrorNone
	}
	p = append(p, byte(hb.Mode), byte(hb.Status), byte(hb.Speed), hb.Battery)
	p = binary.BigEndian.AppendUint16(p, uint16(hb.Current))
	p = binary.BigEndian.AppendUint16(p, uint16(hb.End))
	return append(p, hb.Cargo, byte(errCode), hb.Action, byte(hb.ActionStatus))
}

// DecodeHeartbeat reads a heartbeat payload using the same offsets EncodeHeartbeat writes.
func DecodeHeartbeat(p []byte) (uint16, Heartbeat, error) {
	id, fn, err := ParseHeader(p)
	if err != nil {
		return 0, Heartbeat{}, err
	}
	if fn != FuncHeartbeat {
		return 0, Heartbeat{}, fmt.Errorf("%w: %s", ErrFuncMismatch, fn)
	}
	if len(p) < HeartbeatSize {
		return 0, Heartbeat{}, fmt.Errorf("%w: heartbeat needs %d bytes, got %d", ErrShortPayload, HeartbeatSize, len(p))
	}
	a := p[headerSize:]
	return id, Heartbeat{
		Mode:         Mode(a[0]),
		Status:       Status(a[1]),
		Speed:        int8(a[2]),
		Battery:      a[3],
		Current:      landmark.ID(binary.BigEndian.Uint16(a[4:6])),
		End:          landmark.ID(binary.BigEndian.Uint16(a[6:8])),
		Cargo:        a[8],
		Error:        ErrorCode(int8(a[9])),
		Action:       a[10],
		ActionStatus: ActionStatus(a[11]),
	}, nil
}

// EncodeMove: id | func | current(2) | target(2).
func EncodeMove(id uint16, current, target landmark.ID) []byte {
	p := header(id, FuncMove, 4)
	p = binary.BigEndian.AppendUint16(p, uint16(current))
	return binary.BigEndian.AppendUint16(p, uint16(target))
}

// EncodeTrafficPass: id | func | current(2) | 0x01.
func EncodeTrafficPass(id uint16, current landmark.ID) []byte {
	p := header(id, FuncTraffic, 3)
	p = binary.BigEndian.AppendUint16(p, uint16(current))
	return append(p, trafficPassArg)
}

// EncodeSpeed: id | func | current(2) | speed(signed).
func EncodeSpeed(id uint16, current landmark.ID, speed int8) []byte {
	p := header(id, FuncSpeed, 3)
	p = binary.BigEndian.AppendUint16(p, uint16(current))
	return append(p, byte(speed))
}

// EncodeAction: id | func | current(2) | code. Code zero stops the running action.
func EncodeAction(id uint16, current landmark.ID, code uint8) []byte {
	p := header(id, FuncAction, 3)
	p = binary.BigEndian.AppendUint16(p, uint16(current))
	return append(p, code)
}

// EncodeStatusControl: id | func | command.
func EncodeStatusControl(id uint16, cmd StatusCommand) []byte {
	return append(header(id, FuncStatusControl, 1), byte(cmd))
}

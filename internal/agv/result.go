package agv

import "errors"

// Result is the outcome of a command admission.
type Result uint8

const (
	Success Result = iota
	StatusError
	NetError
	ActionError
	ParamError
)

var (
	ErrStatus = errors.New("vehicle status does not allow the command")
	ErrNet    = errors.New("vehicle is not connected")
	ErrAction = errors.New("vehicle action state does not allow the command")
	ErrParam  = errors.New("invalid command parameter")
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case StatusError:
		return "status-error"
	case NetError:
		return "net-error"
	case ActionError:
		return "action-error"
	case ParamError:
		return "param-error"
	}
	return "unknown"
}

func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Err maps the result to a sentinel error, nil for Success.
func (r Result) Err() error {
	switch r {
	case Success:
		return nil
	case StatusError:
		return ErrStatus
	case NetError:
		return ErrNet
	case ActionError:
		return ErrAction
	}
	return ErrParam
}

package agv

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/autopeer-io/agvfleet/internal/landmark"
	"github.com/autopeer-io/agvfleet/internal/protocol"
)

var ErrInvalidIdentity = errors.New("invalid vehicle identity")

// Identity is the immutable description of one vehicle.
type Identity struct {
	ID         uint16           `json:"id"`
	Name       string           `json:"name"`
	Capability Capability       `json:"capability"`
	Protocol   protocol.Variant `json:"-"`
	// MaxSpeed is the speed at 100% in metres per minute.
	MaxSpeed float64 `json:"maxSpeed"`
	// MaxWeight is the rated load in kilograms.
	MaxWeight float64 `json:"maxWeight,omitempty"`
	Brand     string  `json:"brand,omitempty"`
	Model     string  `json:"model,omitempty"`
}

// Validate reports the first problem that makes the identity unusable.
func (i Identity) Validate() error {
	switch {
	case i.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidIdentity)
	case !i.Capability.Valid():
		return fmt.Errorf("%w: capability %s", ErrInvalidIdentity, i.Capability)
	case i.MaxSpeed <= 0:
		return fmt.Errorf("%w: max speed must be positive, got %v", ErrInvalidIdentity, i.MaxSpeed)
	case i.MaxWeight < 0:
		return fmt.Errorf("%w: negative max weight", ErrInvalidIdentity)
	}
	return nil
}

// Token is the owner token the vehicle uses in the landmark registry.
func (i Identity) Token() landmark.Token {
	return landmark.Token("agv-" + strconv.FormatUint(uint64(i.ID), 10))
}

package protocol

import (
	"fmt"
	"strings"
)

// Variant tags the wire protocol a vehicle speaks.
type Variant uint8

const (
	VariantPLC   Variant = 0
	VariantSTM32 Variant = 1
)

func (v Variant) String() string {
	switch v {
	case VariantPLC:
		return "plc"
	case VariantSTM32:
		return "stm32"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant accepts the names produced by Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stm32", "":
		return VariantSTM32, nil
	case "plc":
		return VariantPLC, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
	}
}

// Codec frames and deframes payloads for one wire variant.
type Codec interface {
	// DecodeStream extracts every complete, valid frame from buf and returns the
	// bytes that must be kept for the next call. Malformed frames are dropped.
	DecodeStream(buf []byte) (frames [][]byte, rest []byte)

	// EncodeFrame wraps payload into a complete frame.
	EncodeFrame(payload []byte) ([]byte, error)

	Variant() Variant
}

// RejectFunc observes frames dropped by a Codec. It must not block.
type RejectFunc func(err error)

// Factory builds a codec for a variant. reject may be nil.
type Factory func(reject RejectFunc) Codec

var factories = map[Variant]Factory{}

// Register installs the factory for a variant. It is called from the init
// function of each variant package.
func Register(v Variant, f Factory) {
	factories[v] = f
}

// New returns a codec for v.
func New(v Variant, reject RejectFunc) (Codec, error) {
	f, ok := factories[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVariant, v)
	}
	return f(reject), nil
}

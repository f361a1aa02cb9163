package protocol

import "errors"

var (
	ErrUnsupportedVariant = errors.New("protocol: unsupported variant")
	ErrLengthMismatch     = errors.New("protocol: length field mismatch")
	ErrCRCMismatch        = errors.New("protocol: crc mismatch")
	ErrShortFrame         = errors.New("protocol: frame shorter than header and trailer")
	ErrBadEscape          = errors.New("protocol: invalid escape sequence")
	ErrPayloadTooLarge    = errors.New("protocol: payload too large")
)

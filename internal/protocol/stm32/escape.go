package stm32

import (
	"github.com/autopeer-io/agvfleet/internal/protocol"
)

// Escape replaces every reserved byte with its two-byte escape sequence so that
// Head and Tail never appear inside a frame body.
func Escape(src []byte) []byte {
	dst := make([]byte, 0, len(src)+len(src)/8+2)
	for _, b := range src {
		switch b {
		case Escape0:
			dst = append(dst, Escape0, escEscape)
		case Head:
			dst = append(dst, Escape0, escHead)
		case Tail:
			dst = append(dst, Escape0, escTail)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// Unescape reverses Escape. A dangling escape byte or an unknown escape code is an error.
func Unescape(src []byte) ([]byte, error) {
	dst := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		b := src[i]
		if b != Escape0 {
			dst = append(dst, b)
			continue
		}
		i++
		if i == len(src) {
			return nil, protocol.ErrBadEscape
		}
		switch src[i] {
		case escEscape:
			dst = append(dst, Escape0)
		case escHead:
			dst = append(dst, Head)
		case escTail:
			dst = append(dst, Tail)
		default:
			return nil, protocol.ErrBadEscape
		}
	}
	return dst, nil
}

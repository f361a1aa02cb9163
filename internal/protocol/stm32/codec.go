// Package stm32 implements the byte-stuffed frame format spoken by STM32 vehicle controllers:
//
//	HEAD(0xBA) | escaped( LEN(2B BE) | payload | CRC16(2B BE) ) | TAIL(0xBE)
//
// LEN counts HEAD, LEN, payload, CRC and TAIL before escaping. The CRC covers LEN and payload.
package stm32

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/autopeer-io/agvfleet/internal/protocol"
)

const (
	Head    byte = 0xBA
	Tail    byte = 0xBE
	Escape0 byte = 0xB0

	escEscape byte = 0x00
	escTail   byte = 0x01
	escHead   byte = 0x02
)

const (
	lenSize = 2
	crcSize = 2

	// overhead is HEAD + LEN + CRC + TAIL.
	overhead = 1 + lenSize + crcSize + 1

	// MaxPayload is the largest payload the 16-bit length field can describe.
	MaxPayload = 0xFFFF - overhead

	// maxEscaped bounds how many bytes may follow a HEAD before a TAIL must have appeared.
	maxEscaped = 2 + 2*(lenSize+MaxPayload+crcSize)
)

func init() {
	protocol.Register(protocol.VariantSTM32, func(reject protocol.RejectFunc) protocol.Codec {
		return &Codec{OnReject: reject}
	})
}

// Codec is the STM32 framing. The zero value is ready to use.
type Codec struct {
	// OnReject, when set, is told about every frame dropped by DecodeStream.
	OnReject protocol.RejectFunc
}

var _ protocol.Codec = (*Codec)(nil)

func (c *Codec) Variant() protocol.Variant { return protocol.VariantSTM32 }

// EncodeFrame builds LEN|payload|CRC, escapes it and wraps it in literal HEAD/TAIL.
func (c *Codec) EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", protocol.ErrPayloadTooLarge, len(payload))
	}
	body := make([]byte, lenSize+len(payload)+crcSize)
	binary.BigEndian.PutUint16(body[:lenSize], uint16(len(payload)+overhead))
	copy(body[lenSize:], payload)
	crcAt := lenSize + len(payload)
	binary.BigEndian.PutUint16(body[crcAt:], Checksum(body[:crcAt]))

	escaped := Escape(body)
	out := make([]byte, 0, len(escaped)+2)
	out = append(out, Head)
	out = append(out, escaped...)
	return append(out, Tail), nil
}

// DecodeStream scans buf for HEAD..TAIL spans and returns the payload of every span whose
// length field and checksum verify. Bytes before a HEAD are discarded; an unterminated frame
// is returned as rest so the caller can append the next read to it.
func (c *Codec) DecodeStream(buf []byte) ([][]byte, []byte) {
	var frames [][]byte
	for {
		h := bytes.IndexByte(buf, Head)
		if h < 0 {
			return frames, nil
		}
		buf = buf[h:]

		t := bytes.IndexByte(buf[1:], Tail)
		if t < 0 {
			if len(buf) > maxEscaped {
				// No TAIL can legitimately be this far away; resync on the next HEAD.
				c.reject(protocol.ErrLengthMismatch)
				buf = buf[1:]
				continue
			}
			return frames, bytes.Clone(buf)
		}
		t++

		inner := buf[1:t]
		if k := bytes.LastIndexByte(inner, Head); k >= 0 {
			// A HEAD inside the span means the earlier frame lost its TAIL.
			c.reject(protocol.ErrShortFrame)
			buf = buf[1+k:]
			continue
		}
		buf = buf[t+1:]

		payload, err := open(inner)
		if err != nil {
			c.reject(err)
			continue
		}
		frames = append(frames, payload)
	}
}

func (c *Codec) reject(err error) {
	if c.OnReject != nil {
		c.OnReject(err)
	}
}

// open unescapes a frame interior and verifies its length field and checksum.
func open(inner []byte) ([]byte, error) {
	body, err := Unescape(inner)
	if err != nil {
		return nil, err
	}
	if len(body) < lenSize+crcSize {
		return nil, protocol.ErrShortFrame
	}
	declared := int(binary.BigEndian.Uint16(body[:lenSize]))
	if declared != len(body)+2 {
		return nil, fmt.Errorf("%w: declared %d, got %d", protocol.ErrLengthMismatch, declared, len(body)+2)
	}
	crcAt := len(body) - crcSize
	if got, want := binary.BigEndian.Uint16(body[crcAt:]), Checksum(body[:crcAt]); got != want {
		return nil, fmt.Errorf("%w: frame 0x%04X, computed 0x%04X", protocol.ErrCRCMismatch, got, want)
	}
	return bytes.Clone(body[lenSize:crcAt]), nil
}

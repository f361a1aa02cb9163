// Package protocol defines the framing contract shared by every vehicle wire variant.
//
// A Codec turns a raw, possibly fragmented byte stream into checksum-verified payload
// frames and wraps outbound payloads into framed byte sequences. Payload layout
// (device id, function code, arguments) is owned by package agv.
package protocol

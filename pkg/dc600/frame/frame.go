// Package frame implements the wire-level delimiter/escape/checksum layer
// (§4.1): the Frame Codec that sits directly on top of the TCP stream,
// generalizing the teacher's internal/splitter stream-delimiting approach
// from GT06's fixed-byte start/stop markers to JT/T 808's byte-stuffed,
// multi-mode sentinel scheme.
package frame

import (
	"fmt"

	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
)

// Mode identifies which sentinel/escape byte pair delimits a frame. A
// single TCP stream is expected to use one mode consistently, but the
// decoder detects it per frame since nothing upstream pins it down.
type Mode int

const (
	ModePrimary Mode = iota // 0x7E sentinel, 0x7D escape
	ModeAlt1                // 0xE7 sentinel, 0xE6 escape
	ModeAlt2                // 0x3E sentinel, 0x3D escape
)

func (m Mode) sentinel() byte {
	switch m {
	case ModeAlt1:
		return 0xE7
	case ModeAlt2:
		return 0x3E
	default:
		return 0x7E
	}
}

func (m Mode) escape() byte {
	switch m {
	case ModeAlt1:
		return 0xE6
	case ModeAlt2:
		return 0x3D
	default:
		return 0x7D
	}
}

func (m Mode) String() string {
	switch m {
	case ModeAlt1:
		return "alt1(0xE7/0xE6)"
	case ModeAlt2:
		return "alt2(0x3E/0x3D)"
	default:
		return "primary(0x7E/0x7D)"
	}
}

var allModes = [...]Mode{ModePrimary, ModeAlt1, ModeAlt2}

// modeForSentinel returns the Mode whose sentinel byte is s, if any.
func modeForSentinel(s byte) (Mode, bool) {
	for _, m := range allModes {
		if m.sentinel() == s {
			return m, true
		}
	}
	return 0, false
}

// Split scans data for complete, sentinel-delimited frames. It returns the
// raw (still escaped, still including sentinels) bytes of each complete
// frame found, plus any trailing residue to be prepended to the next read.
// This mirrors splitter.SplitPackets's incremental-stream contract but
// delimits on a detected sentinel pair rather than a fixed start marker.
func Split(data []byte) (frames [][]byte, residue []byte) {
	offset := 0
	for offset < len(data) {
		mode, ok := modeForSentinel(data[offset])
		if !ok {
			offset++
			continue
		}
		sentinel := mode.sentinel()
		end := -1
		for i := offset + 1; i < len(data); i++ {
			if data[i] == sentinel {
				end = i
				break
			}
		}
		if end == -1 {
			return frames, data[offset:]
		}
		frames = append(frames, data[offset:end+1])
		offset = end + 1
	}
	return frames, nil
}

// Decode unescapes and checksum-verifies a single raw frame (as produced
// by Split — sentinels included at both ends) and returns the header+body
// bytes with sentinels, escape bytes and checksum stripped out.
func Decode(raw []byte) ([]byte, error) {
	if len(raw) < 2 {
		return nil, dc600err.NewFrameError("truncated frame", dc600err.ErrTruncatedFrame)
	}
	mode, ok := modeForSentinel(raw[0])
	if !ok || raw[len(raw)-1] != raw[0] {
		return nil, dc600err.NewFrameError("sentinel mismatch", dc600err.ErrSentinelMismatch)
	}
	escapeByte := mode.escape()
	inner := raw[1 : len(raw)-1]

	unescaped := make([]byte, 0, len(inner))
	for i := 0; i < len(inner); i++ {
		b := inner[i]
		if b != escapeByte {
			unescaped = append(unescaped, b)
			continue
		}
		if i+1 >= len(inner) {
			return nil, dc600err.NewFrameError("malformed escape sequence", dc600err.ErrMalformedEscape)
		}
		i++
		switch inner[i] {
		case 0x01:
			unescaped = append(unescaped, escapeByte)
		case 0x02:
			unescaped = append(unescaped, mode.sentinel())
		default:
			return nil, dc600err.NewFrameError("malformed escape sequence", dc600err.ErrMalformedEscape)
		}
	}

	if len(unescaped) < 1 {
		return nil, dc600err.NewFrameError("truncated frame", dc600err.ErrTruncatedFrame)
	}
	body, checksum := unescaped[:len(unescaped)-1], unescaped[len(unescaped)-1]
	if xorChecksum(body) != checksum {
		return nil, dc600err.NewFrameError("checksum mismatch", dc600err.ErrChecksumMismatch)
	}
	return body, nil
}

// Encode frames body (header+payload, no sentinels) under mode: appends
// the XOR checksum, byte-stuffs the result, and wraps it in the mode's
// sentinel byte at both ends.
func Encode(body []byte, mode Mode) []byte {
	checksum := xorChecksum(body)
	sentinel, escapeByte := mode.sentinel(), mode.escape()

	out := make([]byte, 0, len(body)+3)
	out = append(out, sentinel)
	for _, b := range body {
		out = appendEscaped(out, b, sentinel, escapeByte)
	}
	out = appendEscaped(out, checksum, sentinel, escapeByte)
	out = append(out, sentinel)
	return out
}

func appendEscaped(out []byte, b, sentinel, escapeByte byte) []byte {
	switch b {
	case escapeByte:
		return append(out, escapeByte, 0x01)
	case sentinel:
		return append(out, escapeByte, 0x02)
	default:
		return append(out, b)
	}
}

func xorChecksum(data []byte) byte {
	var c byte
	for _, b := range data {
		c ^= b
	}
	return c
}

// DetectMode reports which Mode a raw (still-framed) frame uses, purely
// from its opening sentinel byte. Useful for logging/metrics labeling.
func DetectMode(raw []byte) (Mode, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty frame")
	}
	mode, ok := modeForSentinel(raw[0])
	if !ok {
		return 0, dc600err.NewFrameError("sentinel mismatch", dc600err.ErrSentinelMismatch)
	}
	return mode, nil
}

// Package header implements the §4.2 Message Header Codec: the common
// 12-16 byte envelope every JT/T 808 message carries, generalizing the
// teacher's flat GT06 protocol-number-plus-serial header to the richer
// JT/T 808 attributes word (body length, encryption, sub-packaging).
package header

import (
	"fmt"

	"github.com/fleetwave/dc600core/internal/wire"
	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
)

// Header is the decoded form of a message's header fields. TotalPackages
// and PackageNo are zero when SubPackaged is false — callers MUST check
// SubPackaged before trusting either, never infer sub-packaging from
// those fields being non-zero.
type Header struct {
	MessageID     protocol.MessageID
	BodyLength    int
	Encrypted     bool
	SubPackaged   bool
	DeviceID      string // 12-digit decimal, decoded from 6 BCD bytes
	Sequence      uint16
	TotalPackages uint16 // valid only when SubPackaged
	PackageNo     uint16 // valid only when SubPackaged, 1-based
}

// minHeaderLen is the header size with no sub-packaging fields present:
// MessageID(2) + Attributes(2) + DeviceID(6) + Sequence(2).
const minHeaderLen = 12

// Decode parses a header from the front of a decoded (unescaped,
// checksum-stripped) frame body and returns the header plus the
// remaining bytes, which are the message body.
func Decode(data []byte) (Header, []byte, error) {
	if len(data) < minHeaderLen {
		return Header{}, nil, &dc600err.HeaderError{
			Reason: "frame shorter than minimum header length",
			Err:    dc600err.ErrImplausibleLength,
		}
	}

	msgID := protocol.MessageID(wire.ReadUint16BE(data[0:2]))
	attrs := wire.ReadUint16BE(data[2:4])

	deviceID, err := wire.DecodeDeviceID(data[4:10])
	if err != nil {
		return Header{}, nil, &dc600err.HeaderError{
			MessageID: uint16(msgID),
			Reason:    "malformed BCD device id",
			Err:       fmt.Errorf("%w: %v", dc600err.ErrBadDeviceID, err),
		}
	}

	h := Header{
		MessageID:   msgID,
		BodyLength:  int(attrs & protocol.AttrBodyLengthMask),
		Encrypted:   attrs&protocol.AttrEncryptionMask != 0,
		SubPackaged: attrs&protocol.AttrSubPackagedBit != 0,
		DeviceID:    deviceID,
		Sequence:    wire.ReadUint16BE(data[10:12]),
	}

	rest := data[minHeaderLen:]
	if h.SubPackaged {
		if len(rest) < 4 {
			return Header{}, nil, &dc600err.HeaderError{
				MessageID: uint16(msgID),
				Reason:    "sub-packaged header truncated before totalPackages/packageNo",
				Err:       dc600err.ErrImplausibleLength,
			}
		}
		h.TotalPackages = wire.ReadUint16BE(rest[0:2])
		h.PackageNo = wire.ReadUint16BE(rest[2:4])
		rest = rest[4:]
	}

	if h.BodyLength > len(rest) {
		return Header{}, nil, &dc600err.HeaderError{
			MessageID: uint16(msgID),
			Reason:    fmt.Sprintf("declared body length %d exceeds remaining %d bytes", h.BodyLength, len(rest)),
			Err:       dc600err.ErrImplausibleLength,
		}
	}

	return h, rest[:h.BodyLength], nil
}

// Encode serializes h and appends body, producing the header+body bytes
// that the frame codec then checksums and escapes.
func Encode(h Header, body []byte) []byte {
	attrs := uint16(len(body)) & protocol.AttrBodyLengthMask
	if h.Encrypted {
		attrs |= protocol.AttrEncryptionMask
	}
	if h.SubPackaged {
		attrs |= protocol.AttrSubPackagedBit
	}

	out := make([]byte, 0, minHeaderLen+4+len(body))
	out = wire.WriteUint16BE(out, uint16(h.MessageID))
	out = wire.WriteUint16BE(out, attrs)
	devIDBytes, err := wire.EncodeDeviceID(h.DeviceID)
	if err != nil {
		devIDBytes = make([]byte, 6)
	}
	out = append(out, devIDBytes...)
	out = wire.WriteUint16BE(out, h.Sequence)
	if h.SubPackaged {
		out = wire.WriteUint16BE(out, h.TotalPackages)
		out = wire.WriteUint16BE(out, h.PackageNo)
	}
	out = append(out, body...)
	return out
}

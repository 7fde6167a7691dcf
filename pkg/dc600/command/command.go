// Package command implements the §4.7 Command Builder / Orchestrator:
// the outbound message bodies the platform emits (0x8100, 0x8001, 0x8103,
// 0x8801, 0x9208), generalizing the teacher's encoder package from a
// flat, mostly-ack-only outbound vocabulary to JT/T 808's richer
// provisioning and media-retrieval command set.
package command

import (
	"fmt"
	"time"

	"github.com/fleetwave/dc600core/internal/wire"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
)

// RegistrationResponse builds a 0x8100 body. On success (result 0) token
// is the manufacturer-assigned auth token; it is ignored otherwise.
func RegistrationResponse(echoedSequence uint16, result protocol.GeneralAckResult, token string) []byte {
	out := make([]byte, 0, 3+len(token))
	out = wire.WriteUint16BE(out, echoedSequence)
	out = append(out, byte(result))
	if result == protocol.AckSuccess {
		out = append(out, []byte(token)...)
	}
	return out
}

// GeneralAck builds an 0x8001 body acknowledging originalMessageID/
// echoedSequence with result.
func GeneralAck(echoedSequence uint16, originalMessageID protocol.MessageID, result protocol.GeneralAckResult) []byte {
	out := make([]byte, 0, 5)
	out = wire.WriteUint16BE(out, echoedSequence)
	out = wire.WriteUint16BE(out, uint16(originalMessageID))
	out = append(out, byte(result))
	return out
}

// TerminalParam is one (paramId, value) pair of a 0x8103 body.
type TerminalParam struct {
	ID    uint32
	Value []byte
}

// ADASDSMProvisioningParams are the four fixed parameters the core sends
// to enable ADAS/DSM reporting against the ITS server profile (§4.7
// table). The device persists these per profile; resending on every
// authentication is idempotent and required.
func ADASDSMProvisioningParams() []TerminalParam {
	return []TerminalParam{
		{ID: 0x0076, Value: []byte{0xFF}}, // enable all ADAS alarm types
		{ID: 0x0077, Value: []byte{0xFF}}, // enable all DSM alarm types
		{ID: 0x007E, Value: []byte{0x01}}, // upload 0x64 TLV in 0x0200
		{ID: 0x007F, Value: []byte{0x01}}, // upload 0x65 TLV in 0x0200
	}
}

// SetTerminalParameters builds an 0x8103 body from params.
func SetTerminalParameters(params []TerminalParam) []byte {
	out := make([]byte, 0, 1+len(params)*6)
	out = append(out, byte(len(params)))
	for _, p := range params {
		out = wire.WriteUint32BE(out, p.ID)
		out = append(out, byte(len(p.Value)))
		out = append(out, p.Value...)
	}
	return out
}

// ImageCaptureCommand builds an 0x8801 body requesting an immediate
// single-shot capture on channel 1 at default quality (§4.7 table).
func ImageCaptureCommand() []byte {
	return []byte{
		1,          // channel
		0,          // captureCmd: immediate
		0,          // timing
		0x00, 0x00, // interval
		1,    // saveFlag
		1,    // resolution
		1,    // quality
		0x55, // brightness
		0x55, // contrast
		0x55, // saturation
		0x55, // chroma
	}
}

// AlarmFlag is the 16-byte per-alarm identifier embedded in a 0x9208
// request, letting the device correlate the request to its local files.
type AlarmFlag struct {
	DeviceID  string // 7-byte BCD, wider than the header's 6-byte device id
	Timestamp time.Time
	AlarmID   byte
	AlarmType byte
}

// Encode serializes the AlarmFlag to its 16-byte wire form: device id (7B
// BCD) + timestamp (6B BCD) + alarm id (1B) + type (1B) + reserved (1B).
func (f AlarmFlag) Encode() ([]byte, error) {
	devBytes, err := wire.EncodeBCDFixed(f.DeviceID, 7)
	if err != nil {
		return nil, fmt.Errorf("alarm flag device id: %w", err)
	}
	out := make([]byte, 0, 16)
	out = append(out, devBytes...)
	out = append(out, wire.EncodeBCDDateTime(f.Timestamp)...)
	out = append(out, f.AlarmID, f.AlarmType, 0x00)
	return out, nil
}

// AlarmAttachmentUploadRequest builds an 0x9208 body directing the device
// to upload media for the given alarm over the JT/T 1078 media channel at
// (serverIP, tcpPort). tcpPort MUST be the media-channel listener's port,
// never the main JT/T 808 port (§4.7: a historically confusing mixup).
func AlarmAttachmentUploadRequest(serverIP string, tcpPort uint16, flag AlarmFlag, alarmNumber string) ([]byte, error) {
	if len(serverIP) > 255 {
		return nil, fmt.Errorf("server ip too long: %d bytes", len(serverIP))
	}
	flagBytes, err := flag.Encode()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+len(serverIP)+1+4+16+32+16)
	out = append(out, byte(len(serverIP)))
	out = append(out, []byte(serverIP)...)
	out = append(out, 0x00) // NUL terminator, required by device firmware
	out = wire.WriteUint16BE(out, tcpPort)
	out = wire.WriteUint16BE(out, 0) // udp port, unused
	out = append(out, flagBytes...)
	out = append(out, fixedWidthASCII(alarmNumber, 32)...)
	out = append(out, make([]byte, 16)...) // reserved
	return out, nil
}

// BuildAlarmNumber formats the 32-byte alarm number ASCII string per
// §4.7's example: ALM-{device}-{alarmId}-{epochMs}.
func BuildAlarmNumber(deviceID string, alarmID uint32, epochMs int64) string {
	return fmt.Sprintf("ALM-%s-%d-%d", deviceID, alarmID, epochMs)
}

func fixedWidthASCII(s string, width int) []byte {
	out := make([]byte, width)
	copy(out, s)
	return out
}

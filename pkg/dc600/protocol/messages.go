// Package protocol holds the wire-level constants for the JT/T 808-2013
// base protocol plus the T/JSATL12-2017 (ADAS/DSM) and JT/T 1078-2016
// extensions the DC600 dashcam family speaks: message ids, header
// attribute bits, alarm bit positions and the ADAS/DSM TLV vocabulary. It
// mirrors the teacher's pkg/jimi/protocol package: a leaf package of named
// constants and small value types, plus the two small ADAS/DSM alarm-type
// classification functions.
package protocol

// MessageID identifies the semantic meaning of a message body, the
// JT/T 808 analogue of the teacher's AlarmType/ProtocolNumber bytes.
type MessageID uint16

// Inbound (device -> platform) message ids the core decodes.
const (
	MsgTerminalGeneralResponse MessageID = 0x0001 // confirms a prior platform command
	MsgTerminalHeartbeat       MessageID = 0x0002
	MsgTerminalRegister        MessageID = 0x0100
	MsgTerminalAuth            MessageID = 0x0102
	MsgLocationReport          MessageID = 0x0200
	MsgLocationBatch           MessageID = 0x0704
	MsgMultimediaEvent         MessageID = 0x0800
	MsgMultimediaDataUpload    MessageID = 0x0801
	MsgImageCaptureResponse    MessageID = 0x0805
	MsgAttachmentFileList      MessageID = 0x1210 // JT/T 1078 media channel
)

// Outbound (platform -> device) message ids the core emits.
const (
	MsgPlatformGeneralAck        MessageID = 0x8001
	MsgRegistrationResponse      MessageID = 0x8100
	MsgSetTerminalParameters     MessageID = 0x8103
	MsgImageCaptureCommand       MessageID = 0x8801
	MsgAlarmAttachmentUploadReq  MessageID = 0x9208
)

// String renders a human-readable message name; every id without a
// constant here renders as "Unknown".
func (m MessageID) String() string {
	switch m {
	case MsgTerminalGeneralResponse:
		return "TerminalGeneralResponse"
	case MsgTerminalHeartbeat:
		return "TerminalHeartbeat"
	case MsgTerminalRegister:
		return "TerminalRegister"
	case MsgTerminalAuth:
		return "TerminalAuth"
	case MsgLocationReport:
		return "LocationReport"
	case MsgLocationBatch:
		return "LocationBatch"
	case MsgMultimediaEvent:
		return "MultimediaEvent"
	case MsgMultimediaDataUpload:
		return "MultimediaDataUpload"
	case MsgImageCaptureResponse:
		return "ImageCaptureResponse"
	case MsgAttachmentFileList:
		return "AttachmentFileList"
	case MsgPlatformGeneralAck:
		return "PlatformGeneralAck"
	case MsgRegistrationResponse:
		return "RegistrationResponse"
	case MsgSetTerminalParameters:
		return "SetTerminalParameters"
	case MsgImageCaptureCommand:
		return "ImageCaptureCommand"
	case MsgAlarmAttachmentUploadReq:
		return "AlarmAttachmentUploadRequest"
	default:
		return "Unknown"
	}
}

// Header attribute bits (the 2-byte "Attributes" field of every message
// header). Bits 0-9 carry the body length; everything above that is flags.
const (
	AttrBodyLengthMask  = 0x03FF
	AttrEncryptionShift = 10
	AttrEncryptionMask  = 0x0007 << AttrEncryptionShift
	AttrSubPackagedBit  = 1 << 13
)

// GeneralAckResult is the one-byte result code carried by 0x8001.
type GeneralAckResult byte

const (
	AckSuccess           GeneralAckResult = 0
	AckFailure           GeneralAckResult = 1
	AckMessageError      GeneralAckResult = 2
	AckNotSupported      GeneralAckResult = 3
	AckAlarmAckedNoAlarm GeneralAckResult = 4
)

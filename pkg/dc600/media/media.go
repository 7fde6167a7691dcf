// Package media implements the §4.6 Multimedia Reassembly + Correlation
// layer: the 0x0801 sub-package accumulator, the event-media correlation
// table with its TTL sweep, and the JT/T 1078 0x1210 attachment-file-list
// parser. It generalizes the teacher's single-shot packet parsers to a
// stateful, multi-packet accumulation problem the GT06 protocol never has.
package media

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/fleetwave/dc600core/internal/wire"
	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

const embeddedLocationLen = 28

// correlationTTL is the window an EventMediaCorrelation stays alive
// waiting for its media, per §4.6.
const correlationTTL = time.Hour

// sweepProbability is the chance, on every new sub-package, that a
// housekeeping sweep of expired correlations runs (§4.6: "≈10%").
const sweepProbability = 0.10

// BuildCorrelationKey derives the composite key a correlation entry is
// filed and looked up under: device id plus alarm id. Kept as an exported
// helper so the location/dispatch layers stay in lock-step with this
// package on the key format.
func BuildCorrelationKey(deviceID string, alarmID uint32) string {
	return fmt.Sprintf("%s:%d", deviceID, alarmID)
}

// NewCorrelation starts an EventMediaCorrelation for an alarm that just
// fired, with a TTL starting now.
func NewCorrelation(deviceID string, alarmID uint32, alarmType byte, family string, now time.Time) *record.EventMediaCorrelation {
	return &record.EventMediaCorrelation{
		DeviceID:   deviceID,
		AlarmID:    alarmID,
		AlarmType:  alarmType,
		Family:     family,
		OccurredAt: now,
		ExpiresAt:  now.Add(correlationTTL),
	}
}

// ShouldSweep reports whether a housekeeping sweep should run for this
// arriving packet, using the §4.6 ~10% probabilistic trigger.
func ShouldSweep() bool {
	return rand.Float64() < sweepProbability
}

// DataUploadPacket is one decoded 0x0801 sub-packet, combining the
// header-codec's totalPackages/packageNo with the 0x0801 body fields.
type DataUploadPacket struct {
	MultimediaID  uint32
	Kind          record.MediaKind
	FormatCode    byte
	EventCode     byte
	ChannelID     byte
	Payload       []byte
	TotalPackages uint16
	PackageNo     uint16
}

const fixedBodyLen = embeddedLocationLen + 8

// DecodeDataUploadBody parses a 0x0801 body. The embedded 28-byte location
// block is returned only when isFirstPacket is true — it is only present,
// and only meaningful, on packageNo==1 (§4.6 step 1).
func DecodeDataUploadBody(body []byte, isFirstPacket bool) (DataUploadPacket, []byte, error) {
	if len(body) < fixedBodyLen {
		return DataUploadPacket{}, nil, &dc600err.DecodeError{
			Reason: "0x0801 body shorter than its fixed prefix",
		}
	}
	p := DataUploadPacket{
		MultimediaID: wire.ReadUint32BE(body[0:4]),
		FormatCode:   body[5],
		EventCode:    body[6],
		ChannelID:    body[7],
	}
	switch body[4] {
	case 0:
		p.Kind = record.MediaImage
	case 1:
		p.Kind = record.MediaAudio
	case 2:
		p.Kind = record.MediaVideo
	default:
		p.Kind = record.MediaOther
	}

	var embeddedLocation []byte
	if isFirstPacket {
		embeddedLocation = body[8:fixedBodyLen]
	}
	p.Payload = body[fixedBodyLen:]
	return p, embeddedLocation, nil
}

// Accept folds a sub-packet into the device's in-progress assemblies,
// implementing the §4.6 assembly algorithm and the §7 ReassemblyError
// rule: a new first packet for an id with an incomplete prior assembly
// discards the old one and restarts.
//
// get and put are a lookup/store pair over the owning session's pending
// assemblies, kept as plain functions here so this package stays free of
// any dependency on the session package.
func Accept(
	deviceID string,
	pkt DataUploadPacket,
	embeddedLocation []byte,
	get func(uint32) *record.MultimediaFile,
	put func(*record.MultimediaFile),
) (*record.MultimediaFile, error) {
	if pkt.TotalPackages == 0 || pkt.PackageNo == 0 || pkt.PackageNo > pkt.TotalPackages {
		return nil, &dc600err.ReassemblyError{
			DeviceID:     deviceID,
			MultimediaID: pkt.MultimediaID,
			Reason:       fmt.Sprintf("packageNo %d out of range for totalPackages %d", pkt.PackageNo, pkt.TotalPackages),
		}
	}

	f := get(pkt.MultimediaID)
	// §7 ReassemblyError: a new first packet discards a prior incomplete
	// assembly and restarts. A first packet for a brand-new id is the
	// common case of the same condition.
	if pkt.PackageNo == 1 && (f == nil || !f.Complete()) {
		f = &record.MultimediaFile{
			DeviceID:      deviceID,
			MultimediaID:  pkt.MultimediaID,
			Kind:          pkt.Kind,
			FormatCode:    pkt.FormatCode,
			TotalPackages: pkt.TotalPackages,
			PackagesSeen:  make(map[uint16]struct{}),
		}
		put(f)
	}
	if f == nil {
		return nil, &dc600err.ReassemblyError{
			DeviceID:     deviceID,
			MultimediaID: pkt.MultimediaID,
			Reason:       "packet arrived for an unknown assembly before its first packet",
		}
	}

	if _, seen := f.PackagesSeen[pkt.PackageNo]; seen {
		return f, nil // duplicate packet, tolerated idempotently (§3.3 invariant)
	}

	f.PackagesSeen[pkt.PackageNo] = struct{}{}
	f.Buffer = append(f.Buffer, pkt.Payload...)

	_ = embeddedLocation // caller decodes this itself via the location package before calling Accept

	return f, nil
}

// attributeKeyForKind returns the Position attribute key a completed
// file's external-store path is recorded under (§4.6 step 3).
func attributeKeyForKind(kind record.MediaKind) string {
	switch kind {
	case record.MediaImage:
		return "imagePath"
	case record.MediaAudio:
		return "audioPath"
	case record.MediaVideo:
		return "videoPath"
	default:
		return "mediaPath"
	}
}

// AttributeKeyForKind is the exported form of attributeKeyForKind for
// callers outside this package (the dispatcher, when stamping a Position).
func AttributeKeyForKind(kind record.MediaKind) string {
	return attributeKeyForKind(kind)
}

// AttachmentFile is one entry of a JT/T 1078 0x1210 file list.
type AttachmentFile struct {
	Name      string
	SizeBytes uint32
	Kind      record.MediaKind
	ChannelID byte
	EventCode byte
}

// AttachmentFileList is the decoded form of a 0x1210 message.
type AttachmentFileList struct {
	TerminalID  string // 7-byte BCD terminal id, wider than the 6-byte header device id
	AlarmFlag   [16]byte
	AlarmNumber string // 32-byte ASCII, trimmed of trailing NULs
	Files       []AttachmentFile
}

const attachmentFixedLen = 7 + 16 + 32 + 16 + 1

// DecodeAttachmentFileList parses a 0x1210 body (§4.6).
func DecodeAttachmentFileList(body []byte) (AttachmentFileList, error) {
	if len(body) < attachmentFixedLen {
		return AttachmentFileList{}, &dc600err.DecodeError{
			Reason: "0x1210 body shorter than its fixed prefix",
		}
	}

	terminalID, err := wire.DecodeBCD(body[0:7])
	if err != nil {
		return AttachmentFileList{}, &dc600err.DecodeError{Reason: "malformed terminal id", Err: err}
	}

	list := AttachmentFileList{TerminalID: terminalID}
	copy(list.AlarmFlag[:], body[7:23])
	list.AlarmNumber = trimASCIIZero(body[23:55])

	fileCount := int(body[71])
	offset := attachmentFixedLen

	for i := 0; i < fileCount; i++ {
		if offset+1 > len(body) {
			return list, &dc600err.DecodeError{Offset: offset, Reason: "truncated file entry"}
		}
		nameLen := int(body[offset])
		offset++
		if offset+nameLen+7 > len(body) {
			return list, &dc600err.DecodeError{Offset: offset, Reason: "truncated file entry body"}
		}
		name := string(body[offset : offset+nameLen])
		offset += nameLen

		size := wire.ReadUint32BE(body[offset : offset+4])
		offset += 4
		kindByte := body[offset]
		offset++
		channel := body[offset]
		offset++
		event := body[offset]
		offset++

		var kind record.MediaKind
		switch kindByte {
		case 0:
			kind = record.MediaImage
		case 1:
			kind = record.MediaAudio
		case 2:
			kind = record.MediaVideo
		default:
			kind = record.MediaOther
		}

		list.Files = append(list.Files, AttachmentFile{
			Name:      name,
			SizeBytes: size,
			Kind:      kind,
			ChannelID: channel,
			EventCode: event,
		})
	}

	return list, nil
}

func trimASCIIZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Package location implements the §4.5 Location + Alarm Decoder: the
// 28-byte fixed header, the additional-information TLV walker, the alarm
// bitmap, and the ADAS/DSM TLV extensions, generalizing the teacher's
// internal/parser/location.go fixed-offset GPS parsing to JT/T 808's
// richer status bitmap and TLV tail.
package location

import (
	"time"

	"github.com/fleetwave/dc600core/internal/wire"
	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

// Status bitmap bits (0x0200 offset 4, §4.5). JT/T 808 defines many more;
// these are the ones the core's Position model surfaces directly.
const (
	statusACC          = 1 << 0
	statusPositioned   = 1 << 1
	statusLatSouth     = 1 << 2
	statusLonWest      = 1 << 3
)

const fixedHeaderLen = 28

// AdasDsmEvent is the decoded form of a 0x64/0x65 TLV payload, surfaced
// alongside the Position so callers can inspect kinematics/channel
// metadata without re-parsing the TLV.
type AdasDsmEvent struct {
	AlarmID  uint32
	Status   byte
	AlarmType byte
	Level    byte
	Extra    []byte // kinematics/channel/media metadata, §6, opaque here
}

// DecodeResult carries a Position plus the signals the rest of the
// dispatcher needs to decide whether to issue 0x8801/0x9208: whether a
// real alarm fired, and the alarm id, type and family to file it under.
type DecodeResult struct {
	Position       *record.Position
	TriggersMedia  bool
	CorrelationKey string // not filled in by Decode; the dispatcher derives the key with media.BuildCorrelationKey
	AlarmID        uint32
	AlarmType      byte
	Family         string // "adas", "dsm", or "mm" for the 0x70 fallback path; only meaningful when TriggersMedia
	MediaIDHint    uint32 // populated by the 0x70 fallback path
}

// Decode parses a single 0x0200 body (or one entry of a 0x0704 batch) into
// a Position, evaluating the alarm bitmap and any ADAS/DSM/multimedia-
// marker TLV entries.
func Decode(deviceID string, body []byte, loc *time.Location) (DecodeResult, error) {
	if len(body) < fixedHeaderLen {
		return DecodeResult{}, &dc600err.DecodeError{
			Offset: 0,
			Reason: "body shorter than the 28-byte fixed header",
		}
	}

	alarmBitmap := wire.ReadUint32BE(body[0:4])
	statusBitmap := wire.ReadUint32BE(body[4:8])
	rawLat := wire.ReadInt32BE(body[8:12])
	rawLon := wire.ReadInt32BE(body[12:16])
	altitude := int16(wire.ReadUint16BE(body[16:18]))
	speedTenths := wire.ReadUint16BE(body[18:20])
	heading := wire.ReadUint16BE(body[20:22])

	ts, err := wire.DecodeBCDDateTime(body[22:28], loc)
	if err != nil {
		return DecodeResult{}, &dc600err.DecodeError{Offset: 22, Reason: "malformed timestamp", Err: err}
	}

	lat := float64(rawLat) / 1e6
	if statusBitmap&statusLatSouth != 0 {
		lat = -lat
	}
	lon := float64(rawLon) / 1e6
	if statusBitmap&statusLonWest != 0 {
		lon = -lon
	}

	pos := record.NewPosition(deviceID)
	pos.Time = ts
	pos.Latitude = lat
	pos.Longitude = lon
	pos.Altitude = altitude
	pos.SpeedKMH = float64(speedTenths) / 10.0
	pos.HeadingDeg = heading % 360
	pos.ValidFix = statusBitmap&statusPositioned != 0
	pos.Attributes["acc"] = statusBitmap&statusACC != 0

	for bit, tag := range protocol.AlarmBitNames {
		if wire.IsBitSet(alarmBitmap, bit) {
			pos.Alarms.AddTag(tag)
		}
	}

	result := DecodeResult{Position: pos}

	walkAdditionalInfo(body[fixedHeaderLen:], pos, &result)

	return result, nil
}

// walkAdditionalInfo decodes the TLV tail of a 0x0200 body. Unknown field
// ids are skipped using their declared length, never aborting the walk
// (§4.5: "unknown IDs are skipped using Length").
func walkAdditionalInfo(tail []byte, pos *record.Position, result *DecodeResult) {
	offset := 0
	for offset+2 <= len(tail) {
		fieldID := protocol.AdditionalInfoID(tail[offset])
		length := int(tail[offset+1])
		offset += 2
		if offset+length > len(tail) {
			break // truncated TLV entry, nothing more to safely read
		}
		value := tail[offset : offset+length]
		offset += length

		switch fieldID {
		case protocol.InfoOdometer:
			if len(value) >= 4 {
				pos.Attributes["odometerKm"] = float64(wire.ReadUint32BE(value)) / 10.0
			}
		case protocol.InfoFuel:
			if len(value) >= 2 {
				pos.Attributes["fuel"] = wire.ReadUint16BE(value)
			}
		case protocol.InfoRSSI:
			if len(value) >= 1 {
				pos.Attributes["rssi"] = value[0]
			}
		case protocol.InfoSatelliteCount:
			if len(value) >= 1 {
				pos.Attributes["satelliteCount"] = value[0]
			}
		case protocol.InfoADASAlarm:
			decodeADASDSM(value, "adas", pos, result)
		case protocol.InfoDSMAlarm:
			decodeADASDSM(value, "dsm", pos, result)
		case protocol.InfoMultimediaMark:
			decodeMultimediaMarker(value, pos, result)
		default:
			// unrecognized field, already skipped via length above
		}
	}
}

func decodeADASDSM(value []byte, family string, pos *record.Position, result *DecodeResult) {
	if len(value) < 7 {
		return
	}
	ev := AdasDsmEvent{
		AlarmID:   wire.ReadUint32BE(value[0:4]),
		Status:    value[4],
		AlarmType: value[5],
		Level:     value[6],
	}
	if len(value) > 7 {
		ev.Extra = value[7:]
	}
	pos.Attributes[family+"Status"] = ev.Status
	pos.Attributes[family+"Level"] = ev.Level

	category := protocol.ClassifyAlarmType(ev.AlarmType)
	switch category {
	case protocol.CategoryMonitoring:
		pos.Attributes[family+"MonitoringType"] = ev.AlarmType
	case protocol.CategoryInformational:
		pos.Attributes["event"] = eventName(family, ev.AlarmType)
	case protocol.CategoryRealAlarm, protocol.CategoryVendorSpecific:
		tag, humanName := namedAlarm(family, ev.AlarmType)
		pos.Alarms.AddTag(tag)
		pos.Attributes[family+"AlarmName"] = humanName
		pos.Attributes[family+"AlarmType"] = ev.AlarmType
	}

	if protocol.TriggersAttachmentRequest(category, ev.AlarmID) {
		result.TriggersMedia = true
		result.AlarmID = ev.AlarmID
		result.AlarmType = ev.AlarmType
		result.Family = family
	}
}

func namedAlarm(family string, alarmType byte) (tag, humanName string) {
	table := protocol.ADASAlarmNames
	if family == "dsm" {
		table = protocol.DSMAlarmNames
	}
	if entry, ok := table[alarmType]; ok {
		return entry[0], entry[1]
	}
	return "general", family + "Vendor"
}

func eventName(family string, alarmType byte) string {
	return family
}

// decodeMultimediaMarker implements the §4.5 0x70 fallback: when the
// device only reports a media id (older firmware or unprovisioned), the
// media id becomes the correlation alarm id. Alarm id (media id) 0 never
// triggers a 0x9208 request.
func decodeMultimediaMarker(value []byte, pos *record.Position, result *DecodeResult) {
	if len(value) < 4 {
		return
	}
	mediaID := wire.ReadUint32BE(value[0:4])
	pos.Attributes["multimediaMarkerID"] = mediaID
	result.MediaIDHint = mediaID
	if protocol.TriggersAttachmentRequest(protocol.CategoryRealAlarm, mediaID) {
		result.TriggersMedia = true
		result.AlarmID = mediaID
		result.AlarmType = 0
		result.Family = "mm"
	}
}

// DecodeBatch implements the §4.5 0x0704 batch upload: a u16 count, a u8
// type, then count entries of (u16 length, that many bytes of a standard
// 0x0200 body). Each entry is decoded independently and stamped with its
// index/count in the batch (§12 supplement).
func DecodeBatch(deviceID string, body []byte, loc *time.Location) ([]DecodeResult, error) {
	if len(body) < 3 {
		return nil, &dc600err.DecodeError{Reason: "batch body shorter than its 3-byte header"}
	}
	count := int(wire.ReadUint16BE(body[0:2]))
	// body[2] is the batch type byte; the core treats every entry uniformly
	// regardless of type, per §4.5.
	offset := 3

	results := make([]DecodeResult, 0, count)
	for i := 0; i < count; i++ {
		if offset+2 > len(body) {
			return results, &dc600err.DecodeError{Offset: offset, Reason: "truncated batch entry length"}
		}
		entryLen := int(wire.ReadUint16BE(body[offset : offset+2]))
		offset += 2
		if offset+entryLen > len(body) {
			return results, &dc600err.DecodeError{Offset: offset, Reason: "truncated batch entry body"}
		}
		entry := body[offset : offset+entryLen]
		offset += entryLen

		res, err := Decode(deviceID, entry, loc)
		if err != nil {
			continue // one bad entry does not abort the rest of the batch
		}
		res.Position.Attributes["batchIndex"] = i
		res.Position.Attributes["batchCount"] = count
		results = append(results, res)
	}
	return results, nil
}

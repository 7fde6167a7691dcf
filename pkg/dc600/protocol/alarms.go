package protocol

// AlarmBitNames maps each bit position of the 0x0200 32-bit alarm bitmap
// (§4.5) to its additive AlarmSet tag. Several bits intentionally map to
// the same tag name (e.g. bits 1, 13 and 18 all mean "overspeed" under
// different trigger conditions) — that duplication is in the standard,
// not a bug, and the tag set collapses them naturally since AlarmSet
// de-duplicates.
var AlarmBitNames = map[uint]string{
	0:  "sos",
	1:  "overspeed",
	2:  "fault",
	3:  "general",
	4:  "gpsModuleFault",
	5:  "gpsAntennaDisconnected",
	6:  "gpsAntennaShort",
	7:  "mainPowerUnderVoltage",
	8:  "mainPowerOff",
	9:  "lcdFault",
	10: "ttsFault",
	11: "cameraFault",
	12: "icCardFault",
	13: "overspeed",
	14: "fatigueDriving",
	18: "overspeed",
	19: "idle",
	20: "geofenceEnter",
	21: "geofenceExit",
	22: "general",
	23: "general",
	24: "vssFault",
	25: "oilAbnormal",
	26: "vehicleStolen",
	27: "illegalIgnition",
	28: "illegalDisplacement",
	29: "collision",
	30: "rollover",
	31: "illegalDoorOpen",
}

// ADASAlarmNames maps the ADAS (TLV 0x64) alarm TYPE byte, for types in
// the "real alarm" range 0x01-0x0F, to (tag, human name).
var ADASAlarmNames = map[byte][2]string{
	0x01: {"accident", "forwardCollision"},
	0x02: {"laneChange", "laneDeparture"},
	0x03: {"general", "vehicleTooClose"},
	0x04: {"accident", "pedestrianCollision"},
	0x05: {"laneChange", "frequentLaneChange"},
	0x06: {"overspeed", "roadSignViolation"},
	0x07: {"general", "obstacleDetection"},
}

// DSMAlarmNames maps the DSM (TLV 0x65) alarm TYPE byte, for types in the
// "real alarm" range, to (tag, human name).
var DSMAlarmNames = map[byte][2]string{
	0x01: {"fatigueDriving", "fatigueDriving"},
	0x02: {"phoneCall", "phoneCall"},
	0x03: {"general", "smoking"},
	0x04: {"general", "distractedDriving"},
	0x05: {"general", "driverAbnormal"},
}

// AlarmTypeCategory classifies an ADAS/DSM TLV alarm TYPE byte per §4.5's
// critical invariant: only real alarms (0x01-0x0F) and vendor-specific
// types ever trigger the 0x8801/0x9208 pair.
type AlarmTypeCategory int

const (
	CategoryMonitoring AlarmTypeCategory = iota
	CategoryRealAlarm
	CategoryInformational
	CategoryVendorSpecific
)

// ClassifyAlarmType implements the §4.5 type-classification table.
func ClassifyAlarmType(t byte) AlarmTypeCategory {
	switch {
	case t == 0x00:
		return CategoryMonitoring
	case t >= 0x01 && t <= 0x0F:
		return CategoryRealAlarm
	case t >= 0x10 && t <= 0x1F:
		return CategoryInformational
	default:
		return CategoryVendorSpecific
	}
}

// TriggersAttachmentRequest reports whether a decoded alarm of this
// category and alarm id must fire the 0x8801/0x9208 pair (§4.5, §5
// invariant 5, §8 properties 3-4). Alarm id 0 never triggers, regardless
// of category (§4.5 0x70-fallback rule, §9 open question 1).
func TriggersAttachmentRequest(category AlarmTypeCategory, alarmID uint32) bool {
	if alarmID == 0 {
		return false
	}
	return category == CategoryRealAlarm || category == CategoryVendorSpecific
}

// AdditionalInfoID is the 1-byte Field ID of a location-report TLV entry.
type AdditionalInfoID byte

const (
	InfoOdometer       AdditionalInfoID = 0x01
	InfoFuel           AdditionalInfoID = 0x02
	InfoRSSI           AdditionalInfoID = 0x30
	InfoSatelliteCount AdditionalInfoID = 0x31
	InfoADASAlarm      AdditionalInfoID = 0x64
	InfoDSMAlarm       AdditionalInfoID = 0x65
	InfoMultimediaMark AdditionalInfoID = 0x70
)

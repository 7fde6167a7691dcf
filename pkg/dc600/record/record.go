// Package record defines the §3 data model: the Position, AlarmSet,
// MultimediaFile and EventMediaCorrelation types that flow out of the
// core toward the embedding tracking platform. These are plain value
// types, the DC600 analogue of the teacher's pkg/jimi/packet types, kept
// free of any decoding logic so sinks can consume them without importing
// the wire-format packages.
package record

import "time"

// MediaKind classifies an accumulated multimedia file.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaImage
	MediaAudio
	MediaVideo
	MediaText
	MediaOther
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaText:
		return "text"
	case MediaOther:
		return "other"
	default:
		return "unknown"
	}
}

// AlarmSet is the additive, de-duplicated collection of alarm tags a
// Position carries. It never retains duplicates: AddTag is idempotent.
type AlarmSet struct {
	tags map[string]struct{}
}

// NewAlarmSet returns an empty AlarmSet ready to use.
func NewAlarmSet() *AlarmSet {
	return &AlarmSet{tags: make(map[string]struct{})}
}

// AddTag adds tag to the set. A no-op if tag is already present.
func (s *AlarmSet) AddTag(tag string) {
	if s.tags == nil {
		s.tags = make(map[string]struct{})
	}
	s.tags[tag] = struct{}{}
}

// Has reports whether tag is present.
func (s *AlarmSet) Has(tag string) bool {
	_, ok := s.tags[tag]
	return ok
}

// Tags returns the set's tags in no particular order.
func (s *AlarmSet) Tags() []string {
	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	return out
}

// Len reports how many distinct tags are present.
func (s *AlarmSet) Len() int {
	return len(s.tags)
}

// Position is one decoded location report (§3), whether it arrived as a
// standalone 0x0200 or as one entry of a 0x0704 batch.
type Position struct {
	DeviceID    string
	Time        time.Time
	Latitude    float64 // signed, 10^-6 degree precision
	Longitude   float64
	Altitude    int16 // metres
	SpeedKMH    float64
	HeadingDeg  uint16
	ValidFix    bool
	Alarms      *AlarmSet
	Attributes  map[string]any // odometer, rssi, satelliteCount, media paths, correlation keys, batchIndex/batchCount, ...
	OriginalSeq uint16
}

// NewPosition returns a Position with initialized Alarms/Attributes.
func NewPosition(deviceID string) *Position {
	return &Position{
		DeviceID:   deviceID,
		Alarms:     NewAlarmSet(),
		Attributes: make(map[string]any),
	}
}

// MultimediaFile is a partially or fully accumulated sub-packaged upload
// (§3.3). Once complete, the file is removed from its session's pending
// assemblies and its Buffer is handed to the MediaStore.
type MultimediaFile struct {
	DeviceID        string
	MultimediaID    uint32
	Kind            MediaKind
	FormatCode      byte
	TotalPackages   uint16
	PackagesSeen    map[uint16]struct{}
	Buffer          []byte
	FirstPacketLoc  *Position // location block embedded in the first sub-packet, if any
	CorrelationKey  string    // originating alarm correlation key, if any
}

// Complete reports whether every packet 1..TotalPackages has been seen.
func (f *MultimediaFile) Complete() bool {
	if f.TotalPackages == 0 {
		return false
	}
	return len(f.PackagesSeen) == int(f.TotalPackages)
}

// AttachmentFileRef names one file a device announced via the JT/T 1078
// file list, before it has actually arrived over the sub-packaged upload
// channel.
type AttachmentFileRef struct {
	Name      string
	SizeBytes uint32
	Kind      MediaKind
}

// EventMediaCorrelation links a previously emitted alarm event to media
// that arrives later out-of-band. Per §7 (cyclic/implicit graphs), it
// never retains a pointer to the original Position — only the identifying
// keys — so the external store performs the join.
type EventMediaCorrelation struct {
	DeviceID    string
	AlarmID     uint32
	AlarmType   byte
	Family      string // "adas", "dsm", or "mm" for the 0x70 fallback path
	AlarmNumber string // the 32-byte ASCII alarm number stamped on the 0x9208 request
	OccurredAt  time.Time
	ExpiresAt   time.Time

	MediaIDs           []uint32            // multimedia ids enumerated by a later 0x0805, once known
	ExpectedFiles      []AttachmentFileRef // announced by a later 0x1210, once known
	ReceivedMediaPaths []string            // external-store paths of files the 0x0801 path has actually completed
}

// Expired reports whether the correlation entry has outlived its TTL as
// of now.
func (c *EventMediaCorrelation) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

package location

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fleetwave/dc600core/internal/wire"
)

func fixedHeaderBytes(alarmBitmap, statusBitmap uint32, lat, lon int32, altitude, speedTenths, heading uint16, when time.Time) []byte {
	var b []byte
	b = wire.WriteUint32BE(b, alarmBitmap)
	b = wire.WriteUint32BE(b, statusBitmap)
	b = wire.WriteUint32BE(b, uint32(lat))
	b = wire.WriteUint32BE(b, uint32(lon))
	b = wire.WriteUint16BE(b, altitude)
	b = wire.WriteUint16BE(b, speedTenths)
	b = wire.WriteUint16BE(b, heading)
	b = append(b, wire.EncodeBCDDateTime(when)...)
	return b
}

func TestDecodeFixedHeader(t *testing.T) {
	when := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)
	body := fixedHeaderBytes(0, statusPositioned|statusACC, 31_230_000, 121_470_000, 50, 600, 90, when)

	res, err := Decode("496076898991", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	pos := res.Position
	if pos.Latitude != 31.23 {
		t.Errorf("latitude: got %v, want 31.23", pos.Latitude)
	}
	if pos.Longitude != 121.47 {
		t.Errorf("longitude: got %v, want 121.47", pos.Longitude)
	}
	if pos.SpeedKMH != 60.0 {
		t.Errorf("speed: got %v, want 60.0", pos.SpeedKMH)
	}
	if !pos.ValidFix {
		t.Errorf("expected ValidFix true")
	}
	if !pos.Time.Equal(when) {
		t.Errorf("time: got %v, want %v", pos.Time, when)
	}
}

func TestDecodeHemisphereSigns(t *testing.T) {
	when := time.Now().UTC()
	body := fixedHeaderBytes(0, statusLatSouth|statusLonWest, 31_230_000, 121_470_000, 0, 0, 0, when)
	res, err := Decode("1", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.Position.Latitude != -31.23 {
		t.Errorf("expected negative latitude for south hemisphere, got %v", res.Position.Latitude)
	}
	if res.Position.Longitude != -121.47 {
		t.Errorf("expected negative longitude for west hemisphere, got %v", res.Position.Longitude)
	}
}

func TestDecodeAlarmBitmap(t *testing.T) {
	when := time.Now().UTC()
	body := fixedHeaderBytes(1<<0|1<<29, 0, 0, 0, 0, 0, 0, when)
	res, err := Decode("1", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !res.Position.Alarms.Has("sos") {
		t.Errorf("expected sos tag")
	}
	if !res.Position.Alarms.Has("collision") {
		t.Errorf("expected collision tag")
	}
}

func TestDecodeADASRealAlarmTriggersMedia(t *testing.T) {
	when := time.Now().UTC()
	header := fixedHeaderBytes(0, 0, 0, 0, 0, 0, 0, when)

	var tlv []byte
	tlvValue := make([]byte, 0, 8)
	tlvValue = wire.WriteUint32BE(tlvValue, 42) // alarm id
	tlvValue = append(tlvValue, 0x00)           // status
	tlvValue = append(tlvValue, 0x01)           // type: forwardCollision
	tlvValue = append(tlvValue, 0x02)           // level
	tlv = append(tlv, 0x64, byte(len(tlvValue)))
	tlv = append(tlv, tlvValue...)

	body := append(header, tlv...)

	res, err := Decode("1", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !res.TriggersMedia {
		t.Fatalf("expected a real ADAS alarm to trigger media capture")
	}
	if res.AlarmID != 42 {
		t.Errorf("alarm id: got %d, want 42", res.AlarmID)
	}
	if !res.Position.Alarms.Has("accident") {
		t.Errorf("expected accident tag")
	}
	if res.Position.Attributes["adasAlarmName"] != "forwardCollision" {
		t.Errorf("expected adasAlarmName=forwardCollision, got %v", res.Position.Attributes["adasAlarmName"])
	}
}

func TestDecodeADASMonitoringNeverTriggersMedia(t *testing.T) {
	when := time.Now().UTC()
	header := fixedHeaderBytes(0, 0, 0, 0, 0, 0, 0, when)

	tlvValue := make([]byte, 0, 8)
	tlvValue = wire.WriteUint32BE(tlvValue, 7)
	tlvValue = append(tlvValue, 0x00, 0x00, 0x00) // type 0x00 = monitoring
	tlv := append([]byte{0x64, byte(len(tlvValue))}, tlvValue...)

	body := append(header, tlv...)
	res, err := Decode("1", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.TriggersMedia {
		t.Errorf("monitoring-type ADAS event must never trigger media capture")
	}
	if res.Position.Alarms.Len() != 0 {
		t.Errorf("monitoring-type ADAS event must not add an alarm tag")
	}
}

func TestDecodeMultimediaMarkerZeroIDNeverTriggers(t *testing.T) {
	when := time.Now().UTC()
	header := fixedHeaderBytes(0, 0, 0, 0, 0, 0, 0, when)
	value := wire.WriteUint32BE(nil, 0)
	tlv := append([]byte{0x70, byte(len(value))}, value...)
	body := append(header, tlv...)

	res, err := Decode("1", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.TriggersMedia {
		t.Errorf("media id 0 must never trigger a 0x9208 request")
	}
}

func TestDecodeUnknownTLVFieldIsSkipped(t *testing.T) {
	when := time.Now().UTC()
	header := fixedHeaderBytes(0, 0, 0, 0, 0, 0, 0, when)
	unknown := []byte{0xAB, 0x02, 0x01, 0x02} // unknown field id 0xAB, length 2
	known := []byte{0x02, 0x02, 0x00, 0x64}   // fuel = 100
	body := append(append(header, unknown...), known...)

	res, err := Decode("1", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.Position.Attributes["fuel"] != uint16(100) {
		t.Errorf("expected fuel field to be decoded past the unknown field, got %v", res.Position.Attributes["fuel"])
	}
}

func TestDecodeUnknownTLVFieldAttributes(t *testing.T) {
	when := time.Now().UTC()
	header := fixedHeaderBytes(0, 0, 0, 0, 0, 0, 0, when)
	unknown := []byte{0xAB, 0x02, 0x01, 0x02}
	known := []byte{0x02, 0x02, 0x00, 0x64} // fuel = 100
	body := append(append(header, unknown...), known...)

	res, err := Decode("1", body, time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := map[string]any{"acc": false, "fuel": uint16(100)}
	if diff := cmp.Diff(want, res.Position.Attributes); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeBodyTooShort(t *testing.T) {
	_, err := Decode("1", []byte{0x00, 0x01}, time.UTC)
	if err == nil {
		t.Fatalf("expected an error for a too-short body")
	}
}

func TestDecodeBatch(t *testing.T) {
	when := time.Now().UTC()
	entry1 := fixedHeaderBytes(0, 0, 0, 0, 0, 0, 0, when)
	entry2 := fixedHeaderBytes(1, 0, 0, 0, 0, 0, 0, when)

	var batch []byte
	batch = wire.WriteUint16BE(batch, 2) // count
	batch = append(batch, 0x01)          // type
	batch = wire.WriteUint16BE(batch, uint16(len(entry1)))
	batch = append(batch, entry1...)
	batch = wire.WriteUint16BE(batch, uint16(len(entry2)))
	batch = append(batch, entry2...)

	results, err := DecodeBatch("1", batch, time.UTC)
	if err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(results))
	}
	if results[0].Position.Attributes["batchIndex"] != 0 || results[0].Position.Attributes["batchCount"] != 2 {
		t.Errorf("expected batchIndex/batchCount to be stamped on entry 0")
	}
	if !results[1].Position.Alarms.Has("sos") {
		t.Errorf("expected entry 1 to carry its own alarm bitmap")
	}
}

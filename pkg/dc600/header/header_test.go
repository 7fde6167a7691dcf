package header

import (
	"testing"

	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
)

func TestEncodeDecodeRoundTripPlain(t *testing.T) {
	h := Header{
		MessageID: protocol.MsgLocationReport,
		DeviceID:  "496076898991",
		Sequence:  42,
	}
	body := []byte{0x01, 0x02, 0x03, 0x04}

	encoded := Encode(h, body)
	got, gotBody, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.MessageID != h.MessageID || got.DeviceID != h.DeviceID || got.Sequence != h.Sequence {
		t.Errorf("header mismatch: got %+v, want %+v", got, h)
	}
	if got.SubPackaged {
		t.Errorf("expected SubPackaged=false")
	}
	if string(gotBody) != string(body) {
		t.Errorf("body mismatch: got %v, want %v", gotBody, body)
	}
}

func TestEncodeDecodeRoundTripSubPackaged(t *testing.T) {
	h := Header{
		MessageID:     protocol.MsgMultimediaDataUpload,
		DeviceID:      "496076898991",
		Sequence:      7,
		SubPackaged:   true,
		TotalPackages: 5,
		PackageNo:     3,
	}
	body := []byte{0xAA, 0xBB}

	encoded := Encode(h, body)
	got, gotBody, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.SubPackaged {
		t.Fatalf("expected SubPackaged=true")
	}
	if got.TotalPackages != 5 || got.PackageNo != 3 {
		t.Errorf("sub-package fields mismatch: got totalPackages=%d packageNo=%d", got.TotalPackages, got.PackageNo)
	}
	if string(gotBody) != string(body) {
		t.Errorf("body mismatch: got %v, want %v", gotBody, body)
	}
}

func TestDecodeTooShort(t *testing.T) {
	_, _, err := Decode([]byte{0x00, 0x01, 0x02})
	if !dc600err.IsHeaderError(err) {
		t.Fatalf("expected a HeaderError, got %v", err)
	}
}

func TestDecodeBadDeviceID(t *testing.T) {
	data := []byte{
		0x02, 0x00, // message id
		0x00, 0x00, // attributes (length 0)
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // invalid BCD device id
		0x00, 0x01, // sequence
	}
	_, _, err := Decode(data)
	if !dc600err.IsHeaderError(err) {
		t.Fatalf("expected a HeaderError, got %v", err)
	}
}

func TestDecodeImplausibleBodyLength(t *testing.T) {
	data := []byte{
		0x02, 0x00, // message id
		0x00, 0x05, // attributes: body length 5, nothing sub-packaged
		0x49, 0x60, 0x76, 0x89, 0x89, 0x91, // device id BCD
		0x00, 0x01, // sequence
		0x01, // only 1 byte of body, not 5
	}
	_, _, err := Decode(data)
	if !dc600err.IsHeaderError(err) {
		t.Fatalf("expected a HeaderError, got %v", err)
	}
}

func TestDecodeSubPackagedTruncated(t *testing.T) {
	data := []byte{
		0x08, 0x01, // message id 0x0801
		0x20, 0x00, // attributes: sub-packaged bit set, body length 0
		0x49, 0x60, 0x76, 0x89, 0x89, 0x91, // device id BCD
		0x00, 0x01, // sequence
		0x00, 0x02, // totalPackages only, missing packageNo
	}
	_, _, err := Decode(data)
	if !dc600err.IsHeaderError(err) {
		t.Fatalf("expected a HeaderError, got %v", err)
	}
}

func TestDecodeUsesPacketCountsNotBufferBytes(t *testing.T) {
	// Regression guard for the historical bug described in §4.2: totalPackages
	// and packageNo are packet counts, never byte counts, and must be read
	// from their own fixed fields regardless of body length.
	h := Header{
		MessageID:     protocol.MsgMultimediaDataUpload,
		DeviceID:      "123456789012",
		Sequence:      1,
		SubPackaged:   true,
		TotalPackages: 3,
		PackageNo:     3,
	}
	body := make([]byte, 900) // deliberately large, larger than packet count fields
	encoded := Encode(h, body)
	got, gotBody, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.TotalPackages != 3 || got.PackageNo != 3 {
		t.Errorf("packet counts corrupted: got totalPackages=%d packageNo=%d", got.TotalPackages, got.PackageNo)
	}
	if len(gotBody) != 900 {
		t.Errorf("body length mismatch: got %d, want 900", len(gotBody))
	}
}

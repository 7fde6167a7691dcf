package frame

import (
	"bytes"
	"testing"

	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		mode Mode
	}{
		{"plain body primary", []byte{0x01, 0x02, 0x03, 0x04}, ModePrimary},
		{"body containing sentinel primary", []byte{0x00, 0x7E, 0x01}, ModePrimary},
		{"body containing escape primary", []byte{0x7D, 0x7D, 0x7E}, ModePrimary},
		{"empty body primary", []byte{}, ModePrimary},
		{"plain body alt1", []byte{0x10, 0x20}, ModeAlt1},
		{"body containing sentinel alt1", []byte{0xE7, 0xE6}, ModeAlt1},
		{"plain body alt2", []byte{0x55, 0x66, 0x77}, ModeAlt2},
		{"body containing sentinel alt2", []byte{0x3E, 0x3D}, ModeAlt2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framed := Encode(tt.body, tt.mode)
			decoded, err := Decode(framed)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !bytes.Equal(decoded, tt.body) {
				t.Errorf("round-trip mismatch: got %v, want %v", decoded, tt.body)
			}
		})
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	framed := Encode([]byte{0x01, 0x02, 0x03}, ModePrimary)
	framed[2] ^= 0xFF // corrupt a body byte, checksum no longer matches

	_, err := Decode(framed)
	if !dc600err.IsFrameError(err) {
		t.Fatalf("expected a FrameError, got %v", err)
	}
}

func TestDecodeSentinelMismatch(t *testing.T) {
	_, err := Decode([]byte{0x7E, 0x01, 0x02, 0xE7})
	if !dc600err.IsFrameError(err) {
		t.Fatalf("expected a FrameError, got %v", err)
	}
}

func TestDecodeMalformedEscape(t *testing.T) {
	// 0x7D followed by a byte that is neither 0x01 nor 0x02
	_, err := Decode([]byte{0x7E, 0x7D, 0x03, 0x00, 0x7E})
	if !dc600err.IsFrameError(err) {
		t.Fatalf("expected a FrameError, got %v", err)
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	_, err := Decode([]byte{0x7E})
	if !dc600err.IsFrameError(err) {
		t.Fatalf("expected a FrameError, got %v", err)
	}
}

func TestSplitMultipleFramesAndResidue(t *testing.T) {
	f1 := Encode([]byte{0x01, 0x02}, ModePrimary)
	f2 := Encode([]byte{0x03, 0x04}, ModePrimary)
	partial := f1[:len(f1)-1] // drop the closing sentinel

	stream := append(append(append([]byte{}, f1...), f2...), partial...)

	frames, residue := Split(stream)
	if len(frames) != 2 {
		t.Fatalf("expected 2 complete frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], f1) {
		t.Errorf("frame 0 mismatch")
	}
	if !bytes.Equal(frames[1], f2) {
		t.Errorf("frame 1 mismatch")
	}
	if !bytes.Equal(residue, partial) {
		t.Errorf("residue mismatch: got %v, want %v", residue, partial)
	}
}

func TestSplitSkipsGarbageBeforeSentinel(t *testing.T) {
	f1 := Encode([]byte{0xAA}, ModePrimary)
	stream := append([]byte{0x00, 0x11, 0x22}, f1...)

	frames, residue := Split(stream)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], f1) {
		t.Errorf("frame mismatch: got %v, want %v", frames[0], f1)
	}
	if residue != nil {
		t.Errorf("expected no residue, got %v", residue)
	}
}

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
	}{
		{"primary", ModePrimary},
		{"alt1", ModeAlt1},
		{"alt2", ModeAlt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framed := Encode([]byte{0x01}, tt.mode)
			got, err := DetectMode(framed)
			if err != nil {
				t.Fatalf("DetectMode error: %v", err)
			}
			if got != tt.mode {
				t.Errorf("got %v, want %v", got, tt.mode)
			}
		})
	}
}

func BenchmarkDecode(b *testing.B) {
	framed := Encode([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, ModePrimary)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(framed)
	}
}

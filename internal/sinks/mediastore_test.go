package sinks

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

func TestGzipFileMediaStoreWriteRoundTrip(t *testing.T) {
	store, err := NewGzipFileMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewGzipFileMediaStore failed: %v", err)
	}

	payload := []byte("a jpeg-shaped blob, not that it matters here")
	path, err := store.Write(context.Background(), "013012345678", payload, record.MediaImage, 0)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(store.baseDir, "013012345678") {
		t.Errorf("expected file under the device's subdirectory, got %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open written file: %v", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip reader: %v", err)
	}
	defer gr.Close()

	got, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("failed to decompress: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("round trip mismatch: got %q, want %q", got, payload)
	}
}

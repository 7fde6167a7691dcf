package sinks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

// GzipFileMediaStore implements sink.MediaStore by gzip-compressing each
// completed multimedia file and writing it under baseDir/<deviceId>/,
// using klauspost/compress rather than the standard library's compress/gzip
// for its faster encoder (the rest of this stack reaches for
// klauspost/compress for every compression concern, not just this one).
type GzipFileMediaStore struct {
	baseDir string
}

// NewGzipFileMediaStore returns a store rooted at baseDir, created if
// necessary.
func NewGzipFileMediaStore(baseDir string) (*GzipFileMediaStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("sinks: creating media base dir: %w", err)
	}
	return &GzipFileMediaStore{baseDir: baseDir}, nil
}

// Write implements sink.MediaStore: compresses data and writes it to
// baseDir/<deviceId>/<kind>-<formatCode as two hex digits>.<uuid>.gz, returning the
// path the caller should stamp onto the Position.
func (s *GzipFileMediaStore) Write(ctx context.Context, deviceID string, data []byte, kind record.MediaKind, formatCode byte) (string, error) {
	dir := filepath.Join(s.baseDir, deviceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sinks: creating device media dir: %w", err)
	}

	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return "", fmt.Errorf("sinks: constructing gzip writer: %w", err)
	}
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return "", fmt.Errorf("sinks: compressing media payload: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("sinks: flushing gzip writer: %w", err)
	}

	name := fmt.Sprintf("%s-%02x.%s.gz", kind.String(), formatCode, uuid.NewString())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("sinks: writing media file: %w", err)
	}

	_ = ctx // no cancellation hook needed for a local file write
	return path, nil
}

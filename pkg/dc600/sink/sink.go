// Package sink defines the §6 abstract external interfaces the core
// depends on but never implements: position/event persistence, media
// storage, device directory lookups, and the outbound byte channel. The
// core is deliberately ignorant of what sits behind them — internal/sinks
// provides concrete, library-backed implementations.
package sink

import (
	"context"

	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

// PositionSink accepts decoded Position records for persistence. Per §5,
// this is one of the few operations allowed to block or yield.
type PositionSink interface {
	Accept(ctx context.Context, pos *record.Position) error
}

// MediaStore persists the bytes of a completed multimedia upload and
// returns a reference (path, object key, URL — opaque to the core) the
// Position is stamped with.
type MediaStore interface {
	Write(ctx context.Context, deviceID string, data []byte, kind record.MediaKind, formatCode byte) (string, error)
}

// AlarmForwarder fans a Position carrying one or more alarm tags out to
// whatever downstream consumer the embedding platform wires up (a message
// bus, a paging system). Positions with no alarm tags are never passed to
// it.
type AlarmForwarder interface {
	Forward(ctx context.Context, pos *record.Position) error
}

// DeviceDirectory resolves a device id to whatever session context the
// embedding platform wants attached (fleet, tenant, dashboard links…).
// Nothing in this module calls it or implements it.
type DeviceDirectory interface {
	Resolve(ctx context.Context, deviceID string) (any, error)
}

// OutboundChannel sends a fully framed byte buffer back to a device
// connection. Nothing in this module calls it or implements it: the
// engine returns outbound frames from ProcessStream and the listener
// writes them to its own net.Conn.
type OutboundChannel interface {
	Send(ctx context.Context, frame []byte) error
}

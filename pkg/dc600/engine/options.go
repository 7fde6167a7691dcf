package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/pkg/dc600/dispatch"
)

// Options configures an Engine, following the teacher's functional-options
// shape (pkg/jimi/options.go) rather than a constructor with a long
// parameter list.
type Options struct {
	Logger      *zap.Logger
	Sinks       dispatch.Sinks
	Dispatcher  *dispatch.Dispatcher
	IdleTimeout time.Duration
}

// Option configures an Engine at construction time.
type Option func(*Options)

// DefaultOptions returns an Engine's defaults: a no-op logger, no sinks
// wired, the stock dispatcher from NewDefaultDispatcher, and a 30 minute
// idle timeout.
func DefaultOptions() Options {
	return Options{
		Logger:      zap.NewNop(),
		Dispatcher:  NewDefaultDispatcher(),
		IdleTimeout: 30 * time.Minute,
	}
}

// WithLogger sets the zap logger handlers and the engine log through.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithSinks wires the external collaborators (PositionSink, MediaStore)
// handlers call into.
func WithSinks(sinks dispatch.Sinks) Option {
	return func(o *Options) {
		o.Sinks = sinks
	}
}

// WithDispatcher overrides the default message-id -> Handler table,
// useful for tests that only register a subset of handlers.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(o *Options) {
		if d != nil {
			o.Dispatcher = d
		}
	}
}

// WithIdleTimeout overrides how long a DeviceSession may sit idle before
// the registry's reaper evicts it.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.IdleTimeout = d
		}
	}
}

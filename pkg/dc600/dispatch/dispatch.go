// Package dispatch implements the §4.4 Message Dispatcher: a message-id
// keyed handler table that runs the right decoder for each inbound
// message, auto-emits the appropriate acknowledgement, and propagates any
// Position records produced to the external sink. It generalizes the
// teacher's registry-with-sync.RWMutex parser pattern (internal/parser)
// from GT06's flat protocol-number space to JT/T 808's richer message
// vocabulary and ack semantics.
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/pkg/dc600/command"
	"github.com/fleetwave/dc600core/pkg/dc600/config"
	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
	"github.com/fleetwave/dc600core/pkg/dc600/header"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
	"github.com/fleetwave/dc600core/pkg/dc600/record"
	"github.com/fleetwave/dc600core/pkg/dc600/session"
	"github.com/fleetwave/dc600core/pkg/dc600/sink"
)

// OutboundMessage is one header+body pair the engine still needs to
// sequence, encode and frame.
type OutboundMessage struct {
	MessageID protocol.MessageID
	Body      []byte
}

// Envelope carries everything a Handler needs for one inbound message.
type Envelope struct {
	Header  header.Header
	Body    []byte
	Session *session.DeviceSession
	Config  config.Config
	Sinks   Sinks
	Logger  *zap.Logger
}

// Sinks bundles the external collaborators a handler may call into. Any
// field may be nil in tests that don't exercise that path.
type Sinks struct {
	Positions sink.PositionSink
	Media     sink.MediaStore
	Alarms    sink.AlarmForwarder
}

// HandlerResult is what a Handler hands back to the dispatcher.
type HandlerResult struct {
	Positions   []*record.Position
	Outbound    []OutboundMessage
	SuppressAck bool // true when the handler already emitted its own response (e.g. 0x8100)
}

// Handler decodes one message and decides what happens next.
type Handler func(ctx context.Context, env *Envelope) (HandlerResult, error)

// Dispatcher is the message-id -> Handler table. Safe for concurrent use;
// registration is expected at startup, lookups happen on every frame.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[protocol.MessageID]Handler
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[protocol.MessageID]Handler)}
}

// Register adds or replaces the handler for id.
func (d *Dispatcher) Register(id protocol.MessageID, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = h
}

// Has reports whether a handler is registered for id.
func (d *Dispatcher) Has(id protocol.MessageID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[id]
	return ok
}

// Dispatch runs the handler registered for env.Header.MessageID (§4.4
// steps 1-3): invokes the handler, auto-emits the generic ack unless
// suppressed, and returns the full outbound message list plus any
// Positions produced.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) (HandlerResult, error) {
	d.mu.RLock()
	h, ok := d.handlers[env.Header.MessageID]
	d.mu.RUnlock()

	if !ok {
		return HandlerResult{}, &dc600err.HeaderError{
			MessageID: uint16(env.Header.MessageID),
			Reason:    "no handler registered for message",
			Err:       dc600err.ErrUnknownMessageID,
		}
	}

	result, err := h(ctx, env)
	if err != nil {
		return result, err
	}

	if !result.SuppressAck {
		ackResult := protocol.AckSuccess
		ackBody := command.GeneralAck(env.Header.Sequence, env.Header.MessageID, ackResult)
		result.Outbound = append(result.Outbound, OutboundMessage{
			MessageID: protocol.MsgPlatformGeneralAck,
			Body:      ackBody,
		})
	}

	return result, nil
}

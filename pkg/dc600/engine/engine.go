// Package engine ties the frame, header, session, location, media and
// dispatch layers into the single stateful entry point a TCP listener
// drives, the DC600 analogue of the teacher's pkg/jimi.Decoder: one type
// wrapping a registry plus functional options, exposing a DecodeStream-
// shaped method that a connection loop calls on every read.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/pkg/dc600/command"
	"github.com/fleetwave/dc600core/pkg/dc600/config"
	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
	"github.com/fleetwave/dc600core/pkg/dc600/dispatch"
	"github.com/fleetwave/dc600core/pkg/dc600/frame"
	"github.com/fleetwave/dc600core/pkg/dc600/header"
	"github.com/fleetwave/dc600core/pkg/dc600/metrics"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
	"github.com/fleetwave/dc600core/pkg/dc600/session"
)

// Engine is the main entry point for driving the DC600 protocol core over
// a byte stream. One Engine is shared across every connection; per-device
// state lives in its session.Registry, not in the Engine itself, so a
// device that reconnects on a new TCP socket resumes the same session.
type Engine struct {
	opts     Options
	cfg      config.Config
	registry *session.Registry
}

// New constructs an Engine from cfg plus any functional options. The
// session registry's idle reaper is started immediately and runs until
// Close is called.
func New(cfg config.Config, opts ...Option) *Engine {
	options := DefaultOptions()
	if cfg.IdleTimeout > 0 {
		options.IdleTimeout = cfg.IdleTimeout
	}
	for _, opt := range opts {
		opt(&options)
	}

	e := &Engine{
		opts:     options,
		cfg:      cfg,
		registry: session.NewRegistry(options.IdleTimeout),
	}
	e.registry.RunIdleReaper(options.IdleTimeout/2+time.Second, nil)
	return e
}

// Close stops the registry's background idle reaper.
func (e *Engine) Close() {
	e.registry.StopReaper()
}

// ActiveSessions returns how many DeviceSessions are currently live, for
// callers that want to sample it directly rather than scrape metrics.
func (e *Engine) ActiveSessions() int {
	return e.registry.Count()
}

// ProcessStream splits data into complete frames, decodes and dispatches
// each one, and returns every outbound frame the dispatch produced plus
// whatever trailing residue should be prepended to the connection's next
// read. It never returns an error for a single malformed frame — those are
// logged, counted and dropped per §7 — only for conditions that make
// continuing pointless (none currently exist, but the signature mirrors
// the teacher's DecodeStream so callers don't need to special-case it).
func (e *Engine) ProcessStream(ctx context.Context, data []byte) (outbound [][]byte, residue []byte, err error) {
	rawFrames, residue := frame.Split(data)

	for _, raw := range rawFrames {
		mode, modeErr := frame.DetectMode(raw)
		if modeErr != nil {
			metrics.FramesDroppedTotal.WithLabelValues("sentinel_mismatch").Inc()
			continue
		}

		body, decErr := frame.Decode(raw)
		if decErr != nil {
			metrics.FramesDroppedTotal.WithLabelValues(dropReason(decErr)).Inc()
			e.opts.Logger.Debug("frame dropped", zap.Error(decErr))
			continue
		}
		metrics.FramesDecodedTotal.WithLabelValues(mode.String()).Inc()

		frames := e.processFrame(ctx, mode, body)
		outbound = append(outbound, frames...)
	}

	metrics.ActiveSessions.Set(float64(e.registry.Count()))
	return outbound, residue, nil
}

func (e *Engine) processFrame(ctx context.Context, mode frame.Mode, body []byte) [][]byte {
	h, msgBody, err := header.Decode(body)
	if err != nil {
		e.opts.Logger.Warn("header decode failed, dropping frame", zap.Error(err))
		return nil
	}

	sess := e.registry.GetOrCreate(h.DeviceID)
	sess.Touch()
	sess.AcceptSequence(h.Sequence)

	if sess.Status == session.Unregistered && !isUnauthenticatedMessage(h.MessageID) {
		sessErr := &dc600err.SessionError{DeviceID: h.DeviceID, Reason: "message from unregistered device"}
		e.opts.Logger.Warn("dropping message from unregistered device",
			zap.String("deviceId", h.DeviceID),
			zap.String("messageId", h.MessageID.String()),
			zap.Error(sessErr),
		)
		return nil
	}

	env := &dispatch.Envelope{
		Header:  h,
		Body:    msgBody,
		Session: sess,
		Config:  e.cfg,
		Sinks:   e.opts.Sinks,
		Logger:  e.opts.Logger,
	}

	result, dispatchErr := e.opts.Dispatcher.Dispatch(ctx, env)
	metrics.MessagesDispatchedTotal.WithLabelValues(h.MessageID.String()).Inc()
	if dispatchErr != nil {
		e.opts.Logger.Warn("dispatch failed",
			zap.String("deviceId", h.DeviceID),
			zap.String("messageId", h.MessageID.String()),
			zap.Error(dispatchErr),
		)
		var upstreamErr *dc600err.UpstreamError
		if !dc600err.IsHeaderError(dispatchErr) && !errors.As(dispatchErr, &upstreamErr) {
			return nil
		}
		nackHeader := header.Header{
			MessageID: protocol.MsgPlatformGeneralAck,
			DeviceID:  h.DeviceID,
			Sequence:  sess.NextOutboundSequence(),
		}
		nackBody := command.GeneralAck(h.Sequence, h.MessageID, protocol.AckFailure)
		return [][]byte{frame.Encode(header.Encode(nackHeader, nackBody), mode)}
	}

	metrics.ActiveSubPackageAssemblies.Set(float64(sess.MediaAssemblyCount()))
	metrics.CorrelationTableSize.Set(float64(sess.CorrelationCount()))

	frames := make([][]byte, 0, len(result.Outbound))
	for _, out := range result.Outbound {
		outHeader := header.Header{
			MessageID: out.MessageID,
			DeviceID:  h.DeviceID,
			Sequence:  sess.NextOutboundSequence(),
		}
		encoded := header.Encode(outHeader, out.Body)
		frames = append(frames, frame.Encode(encoded, mode))
	}
	return frames
}

// isUnauthenticatedMessage reports whether id is allowed through before the
// device's session reaches Registered. Registration and auth obviously are;
// so is the JT/T 1078 attachment pair, since a device dials the media
// channel on its own TCP connection purely on the strength of the 0x9208
// request it already received on the main channel, without repeating
// 0x0100/0x0102 there.
func isUnauthenticatedMessage(id protocol.MessageID) bool {
	switch id {
	case protocol.MsgTerminalRegister, protocol.MsgTerminalAuth,
		protocol.MsgAttachmentFileList, protocol.MsgMultimediaDataUpload:
		return true
	default:
		return false
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, dc600err.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, dc600err.ErrMalformedEscape):
		return "malformed_escape"
	case errors.Is(err, dc600err.ErrTruncatedFrame):
		return "truncated"
	case errors.Is(err, dc600err.ErrSentinelMismatch):
		return "sentinel_mismatch"
	default:
		return "unknown"
	}
}


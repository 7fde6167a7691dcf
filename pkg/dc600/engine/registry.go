package engine

import (
	"github.com/fleetwave/dc600core/pkg/dc600/dispatch"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
)

// NewDefaultDispatcher builds the dispatcher wired with every handler this
// core ships, keyed by the message id each one decodes. Tests and
// alternative deployments that only need a subset can build their own
// dispatch.Dispatcher and pass it via WithDispatcher instead.
func NewDefaultDispatcher() *dispatch.Dispatcher {
	d := dispatch.NewDispatcher()

	d.Register(protocol.MsgTerminalGeneralResponse, dispatch.HandleTerminalGeneralResponse)
	d.Register(protocol.MsgTerminalHeartbeat, dispatch.HandleHeartbeat)
	d.Register(protocol.MsgTerminalRegister, dispatch.HandleRegistration)
	d.Register(protocol.MsgTerminalAuth, dispatch.HandleAuthentication)
	d.Register(protocol.MsgLocationReport, dispatch.HandleLocationReport)
	d.Register(protocol.MsgLocationBatch, dispatch.HandleLocationBatch)
	d.Register(protocol.MsgMultimediaEvent, dispatch.HandleMultimediaEvent)
	d.Register(protocol.MsgMultimediaDataUpload, dispatch.HandleMultimediaDataUpload)
	d.Register(protocol.MsgImageCaptureResponse, dispatch.HandleImageCaptureResponse)
	d.Register(protocol.MsgAttachmentFileList, dispatch.HandleAttachmentFileList)

	return d
}

// NewMediaChannelDispatcher builds the narrower dispatcher the media-channel
// listener (cmd/dc600-media-server) runs: just the JT/T 1078 attachment
// file list announcement and the sub-packaged multimedia upload itself,
// since a device dials this port purely to deliver alarm evidence, never
// to register, authenticate or report location.
func NewMediaChannelDispatcher() *dispatch.Dispatcher {
	d := dispatch.NewDispatcher()

	d.Register(protocol.MsgAttachmentFileList, dispatch.HandleAttachmentFileList)
	d.Register(protocol.MsgMultimediaDataUpload, dispatch.HandleMultimediaDataUpload)

	return d
}

package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/internal/wire"
	"github.com/fleetwave/dc600core/pkg/dc600/command"
	"github.com/fleetwave/dc600core/pkg/dc600/dc600err"
	"github.com/fleetwave/dc600core/pkg/dc600/location"
	"github.com/fleetwave/dc600core/pkg/dc600/media"
	"github.com/fleetwave/dc600core/pkg/dc600/metrics"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
	"github.com/fleetwave/dc600core/pkg/dc600/record"
	"github.com/fleetwave/dc600core/pkg/dc600/session"
)

// RegistrationBody is the decoded 0x0100 terminal registration body,
// threading model/variant into the DeviceSession per the §12 supplement.
type RegistrationBody struct {
	ProvinceID     uint16
	CityID         uint16
	ManufacturerID string
	TerminalModel  string
	TerminalID     string
	PlateColor     byte
	PlateNumber    string
}

const (
	manufacturerIDLen = 5
	terminalModelLen  = 20
	terminalIDLen     = 7
)

func decodeRegistrationBody(body []byte) (RegistrationBody, error) {
	const fixedLen = 2 + 2 + manufacturerIDLen + terminalModelLen + terminalIDLen + 1
	if len(body) < fixedLen {
		return RegistrationBody{}, fmt.Errorf("registration body shorter than %d bytes", fixedLen)
	}
	offset := 0
	provinceID := wire.ReadUint16BE(body[offset : offset+2])
	offset += 2
	cityID := wire.ReadUint16BE(body[offset : offset+2])
	offset += 2
	manufacturer := trimTrailingNUL(body[offset : offset+manufacturerIDLen])
	offset += manufacturerIDLen
	model := trimTrailingNUL(body[offset : offset+terminalModelLen])
	offset += terminalModelLen
	terminalID := trimTrailingNUL(body[offset : offset+terminalIDLen])
	offset += terminalIDLen
	plateColor := body[offset]
	offset++
	plateNumber := string(body[offset:])

	return RegistrationBody{
		ProvinceID:     provinceID,
		CityID:         cityID,
		ManufacturerID: manufacturer,
		TerminalModel:  model,
		TerminalID:     terminalID,
		PlateColor:     plateColor,
		PlateNumber:    plateNumber,
	}, nil
}

func trimTrailingNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// RegistrationToken mints the auth token issued on successful
// registration. In production this would be looked up or generated by
// the embedding platform; the core synthesizes a deterministic one from
// the device id and sequence since token issuance policy is out of scope
// (§1 non-goals: the platform owns device registry semantics).
func RegistrationToken(deviceID string, seq uint16) string {
	return fmt.Sprintf("tok-%s-%d", deviceID, seq)
}

// HandleRegistration implements 0x0100: decodes the body, records
// model/variant on the session, transitions Unregistered -> Registered,
// and replies with 0x8100 (never the generic ack) followed immediately by
// 0x8103 (§4.7 scenario S1: provisioning is not deferred until
// authentication, since a device may stay registered across reconnects
// without ever repeating 0x0102).
func HandleRegistration(ctx context.Context, env *Envelope) (HandlerResult, error) {
	reg, err := decodeRegistrationBody(env.Body)
	if err != nil {
		return HandlerResult{}, &dc600err.HeaderError{
			MessageID: uint16(protocol.MsgTerminalRegister),
			Reason:    "malformed registration body",
			Err:       err,
		}
	}

	env.Session.SetStatus(session.Registered)
	env.Session.Model = reg.TerminalModel
	env.Session.Variant = reg.ManufacturerID

	token := RegistrationToken(env.Session.DeviceID, env.Header.Sequence)
	body := command.RegistrationResponse(env.Header.Sequence, protocol.AckSuccess, token)

	provisionBody := command.SetTerminalParameters(command.ADASDSMProvisioningParams())

	return HandlerResult{
		SuppressAck: true,
		Outbound: []OutboundMessage{
			{MessageID: protocol.MsgRegistrationResponse, Body: body},
			{MessageID: protocol.MsgSetTerminalParameters, Body: provisionBody},
		},
	}, nil
}

// HandleAuthentication implements 0x0102: transitions Registered ->
// Authenticated and, per §4.7, immediately provisions ADAS/DSM reporting
// via 0x8103 (safe to resend every time, idempotent on the device).
func HandleAuthentication(ctx context.Context, env *Envelope) (HandlerResult, error) {
	env.Session.SetStatus(session.Authenticated)

	params := command.ADASDSMProvisioningParams()
	provisionBody := command.SetTerminalParameters(params)

	return HandlerResult{
		Outbound: []OutboundMessage{
			{MessageID: protocol.MsgSetTerminalParameters, Body: provisionBody},
		},
	}, nil
}

// HandleHeartbeat implements 0x0002: touches the session and otherwise
// relies on the dispatcher's auto-ack.
func HandleHeartbeat(ctx context.Context, env *Envelope) (HandlerResult, error) {
	env.Session.Touch()
	return HandlerResult{}, nil
}

// HandleTerminalGeneralResponse implements 0x0001 (§12 supplement): fully
// decodes the device's ack of a prior platform command and, when it
// negatively acknowledges 0x8103, logs and continues in degraded mode
// rather than treating it as an error (§4.7 failure handling). A positive
// ack of 0x8103 flips DeviceSession.Provisioned so later logic can tell a
// freshly registered device apart from one that has confirmed ADAS/DSM
// reporting is actually enabled.
func HandleTerminalGeneralResponse(ctx context.Context, env *Envelope) (HandlerResult, error) {
	if len(env.Body) < 5 {
		return HandlerResult{}, &dc600err.DecodeError{Reason: "0x0001 body shorter than 5 bytes"}
	}
	echoedSeq := wire.ReadUint16BE(env.Body[0:2])
	echoedMsgID := protocol.MessageID(wire.ReadUint16BE(env.Body[2:4]))
	result := env.Body[4]

	if echoedMsgID == protocol.MsgSetTerminalParameters && result == 0 {
		env.Session.Provisioned = true
	}

	if env.Logger != nil {
		logger := env.Logger.With(
			zap.String("deviceId", env.Session.DeviceID),
			zap.Uint16("echoedSeq", echoedSeq),
			zap.String("echoedMessageId", echoedMsgID.String()),
			zap.Uint8("result", result),
		)
		if echoedMsgID == protocol.MsgSetTerminalParameters && result != 0 {
			logger.Warn("device rejected ADAS/DSM provisioning, continuing in degraded 0x70-fallback mode")
		} else {
			logger.Debug("terminal general response")
		}
	}

	return HandlerResult{SuppressAck: true}, nil
}

// HandleLocationReport implements 0x0200: decodes the Position/alarm
// data, persists the Position, and when a real alarm fires, dispatches
// 0x8801 and 0x9208 in parallel (§4.7) plus opens an EventMediaCorrelation.
func HandleLocationReport(ctx context.Context, env *Envelope) (HandlerResult, error) {
	res, err := location.Decode(env.Session.DeviceID, env.Body, env.Config.Timezone)
	if err != nil {
		return HandlerResult{}, err
	}

	outbound := triggerAttachmentFlow(env, res)

	if err := persistPosition(ctx, env, res.Position); err != nil {
		return HandlerResult{}, &dc600err.UpstreamError{Operation: "position sink", Err: err}
	}

	return HandlerResult{
		Positions: []*record.Position{res.Position},
		Outbound:  outbound,
	}, nil
}

// HandleLocationBatch implements 0x0704.
func HandleLocationBatch(ctx context.Context, env *Envelope) (HandlerResult, error) {
	results, err := location.DecodeBatch(env.Session.DeviceID, env.Body, env.Config.Timezone)
	if err != nil && len(results) == 0 {
		return HandlerResult{}, err
	}

	positions := make([]*record.Position, 0, len(results))
	var outbound []OutboundMessage
	for _, res := range results {
		outbound = append(outbound, triggerAttachmentFlow(env, res)...)
		if perr := persistPosition(ctx, env, res.Position); perr != nil {
			return HandlerResult{}, &dc600err.UpstreamError{Operation: "position sink", Err: perr}
		}
		positions = append(positions, res.Position)
	}

	return HandlerResult{Positions: positions, Outbound: outbound}, nil
}

func triggerAttachmentFlow(env *Envelope, res location.DecodeResult) []OutboundMessage {
	if !res.TriggersMedia {
		return nil
	}

	now := time.Now()
	alarmNumber := command.BuildAlarmNumber(env.Session.DeviceID, res.AlarmID, now.UnixMilli())

	key := media.BuildCorrelationKey(env.Session.DeviceID, res.AlarmID)
	corr := media.NewCorrelation(env.Session.DeviceID, res.AlarmID, res.AlarmType, res.Family, now)
	corr.AlarmNumber = alarmNumber
	env.Session.PutCorrelation(key, corr)
	res.Position.Attributes["eventCorrelationKey"] = key

	flag := command.AlarmFlag{
		DeviceID:  env.Session.DeviceID,
		Timestamp: res.Position.Time,
		AlarmID:   byte(res.AlarmID),
		AlarmType: res.AlarmType,
	}

	attachmentBody, err := command.AlarmAttachmentUploadRequest(env.Config.AttachmentIP, uint16(env.Config.AttachmentPort), flag, alarmNumber)
	if err != nil {
		if env.Logger != nil {
			env.Logger.Warn("failed to build 0x9208 body", zap.Error(err))
		}
		return nil
	}

	metrics.AlarmAttachmentRequestsTotal.WithLabelValues(fmt.Sprintf("0x%02X", res.AlarmType)).Inc()

	return []OutboundMessage{
		{MessageID: protocol.MsgImageCaptureCommand, Body: command.ImageCaptureCommand()},
		{MessageID: protocol.MsgAlarmAttachmentUploadReq, Body: attachmentBody},
	}
}

func persistPosition(ctx context.Context, env *Envelope, pos *record.Position) error {
	pos.OriginalSeq = env.Header.Sequence
	if env.Sinks.Positions != nil {
		if err := env.Sinks.Positions.Accept(ctx, pos); err != nil {
			return err
		}
	}

	if env.Sinks.Alarms != nil && pos.Alarms != nil && pos.Alarms.Len() > 0 {
		if err := env.Sinks.Alarms.Forward(ctx, pos); err != nil && env.Logger != nil {
			env.Logger.Warn("alarm forward failed", zap.String("deviceId", pos.DeviceID), zap.Error(err))
		}
	}

	return nil
}

// HandleMultimediaEvent implements 0x0800, the precursor announcement
// before sub-packaged 0x0801 uploads arrive. The core has nothing useful
// to do with it beyond acking and logging; the correlation is built from
// the alarm, not this message.
func HandleMultimediaEvent(ctx context.Context, env *Envelope) (HandlerResult, error) {
	return HandlerResult{}, nil
}

// HandleImageCaptureResponse implements 0x0805: enumerates the media ids
// a capture produced and records them against the session's open
// correlation entry, so the later 0x0801 completions resolving against the
// same entry add to a MediaIDs list that already knows what to expect.
func HandleImageCaptureResponse(ctx context.Context, env *Envelope) (HandlerResult, error) {
	if len(env.Body) < 1 {
		return HandlerResult{}, &dc600err.DecodeError{Reason: "0x0805 body empty"}
	}
	count := int(env.Body[0])
	offset := 1
	mediaIDs := make([]uint32, 0, count)
	for i := 0; i < count && offset+4 <= len(env.Body); i++ {
		mediaIDs = append(mediaIDs, wire.ReadUint32BE(env.Body[offset:offset+4]))
		offset += 4
	}

	if c, ok := env.Session.OnlyOpenCorrelation(); ok {
		c.MediaIDs = append(c.MediaIDs, mediaIDs...)
	}

	if env.Logger != nil {
		env.Logger.Debug("image capture response", zap.String("deviceId", env.Session.DeviceID), zap.Int("mediaCount", len(mediaIDs)))
	}

	return HandlerResult{}, nil
}

// HandleMultimediaDataUpload implements 0x0801: folds the sub-packet into
// the session's in-progress assembly and, on completion, writes the file
// to the MediaStore and resolves any waiting EventMediaCorrelation
// (§4.6 steps 1-4).
func HandleMultimediaDataUpload(ctx context.Context, env *Envelope) (HandlerResult, error) {
	if !env.Header.SubPackaged {
		return HandlerResult{}, &dc600err.HeaderError{
			MessageID: uint16(protocol.MsgMultimediaDataUpload),
			Reason:    "0x0801 received without the sub-packaged header bit set",
		}
	}
	if env.Session.MediaAssemblyCount() >= env.Config.Caps.MaxSubPackageAssembliesPerSession {
		if existing := env.Session.MediaAssembly(wire.ReadUint32BE(env.Body[0:4])); existing == nil {
			return HandlerResult{}, &dc600err.ReassemblyError{
				DeviceID: env.Session.DeviceID,
				Reason:   "max concurrent sub-package assemblies per session exceeded",
			}
		}
	}

	isFirst := env.Header.PackageNo == 1
	pkt, embeddedLoc, err := media.DecodeDataUploadBody(env.Body, isFirst)
	if err != nil {
		return HandlerResult{}, err
	}
	pkt.TotalPackages = env.Header.TotalPackages
	pkt.PackageNo = env.Header.PackageNo

	f, err := media.Accept(env.Session.DeviceID, pkt, embeddedLoc, env.Session.MediaAssembly, env.Session.StartMediaAssembly)
	if err != nil {
		return HandlerResult{}, err
	}

	if isFirst && len(embeddedLoc) > 0 {
		if locRes, lerr := location.Decode(env.Session.DeviceID, embeddedLoc, env.Config.Timezone); lerr == nil {
			f.FirstPacketLoc = locRes.Position
		}
	}

	if media.ShouldSweep() {
		env.Session.SweepCorrelations(time.Now())
	}

	if !f.Complete() {
		return HandlerResult{}, nil
	}

	env.Session.FinishMediaAssembly(f.MultimediaID)

	pos := f.FirstPacketLoc
	if pos == nil {
		pos = record.NewPosition(env.Session.DeviceID)
	}

	var mediaPath string
	if env.Sinks.Media != nil {
		path, werr := env.Sinks.Media.Write(ctx, env.Session.DeviceID, f.Buffer, f.Kind, f.FormatCode)
		if werr != nil {
			return HandlerResult{}, &dc600err.UpstreamError{Operation: "media store write", Err: werr}
		}
		pos.Attributes[media.AttributeKeyForKind(f.Kind)] = path
		mediaPath = path
	}

	resolveCorrelation(env, f, pos, mediaPath)

	if err := persistPosition(ctx, env, pos); err != nil {
		return HandlerResult{}, &dc600err.UpstreamError{Operation: "position sink", Err: err}
	}

	return HandlerResult{Positions: []*record.Position{pos}}, nil
}

// resolveCorrelation looks for an EventMediaCorrelation this completed
// file might belong to. §4.6 step 4 has no field in the 0x0801 body itself
// linking a multimedia id back to the alarm that requested it, so this
// falls back to the device's only open correlation when there is exactly
// one (the common case of a single alarm in flight per device). mediaPath
// is the external-store path the file was just written to, empty when no
// MediaStore sink is configured.
func resolveCorrelation(env *Envelope, f *record.MultimediaFile, pos *record.Position, mediaPath string) {
	c, ok := env.Session.OnlyOpenCorrelation()
	if !ok {
		return
	}
	c.MediaIDs = append(c.MediaIDs, f.MultimediaID)
	if mediaPath != "" {
		c.ReceivedMediaPaths = append(c.ReceivedMediaPaths, mediaPath)
	}
	pos.Attributes["eventAlarmId"] = c.AlarmID
	pos.Attributes["eventAlarmType"] = formatAlarmType(c.Family, c.AlarmType)
	pos.Attributes["event"] = "alarmMultimediaComplete"
}

// formatAlarmType renders an alarm's family and numeric type the way the
// embedding platform's event log expects ("ADAS_01"), rather than a bare
// byte it would have to cross-reference against whichever of the ADAS/DSM
// tables happened to fire.
func formatAlarmType(family string, alarmType byte) string {
	return fmt.Sprintf("%s_%02d", strings.ToUpper(family), alarmType)
}

// HandleAttachmentFileList implements the JT/T 1078 0x1210 message on the
// media channel (§4.6): parses the file list and records the expected
// files against the correlation entry identified by the alarm number, the
// same alarm number stamped on the 0x9208 request that solicited this
// upload in the first place.
func HandleAttachmentFileList(ctx context.Context, env *Envelope) (HandlerResult, error) {
	list, err := media.DecodeAttachmentFileList(env.Body)
	if err != nil {
		return HandlerResult{}, err
	}

	c, found := env.Session.CorrelationByAlarmNumber(list.AlarmNumber)
	if found {
		refs := make([]record.AttachmentFileRef, 0, len(list.Files))
		for _, f := range list.Files {
			refs = append(refs, record.AttachmentFileRef{Name: f.Name, SizeBytes: f.SizeBytes, Kind: f.Kind})
		}
		c.ExpectedFiles = refs
	}

	if env.Logger != nil {
		logger := env.Logger.With(
			zap.String("deviceId", env.Session.DeviceID),
			zap.String("alarmNumber", list.AlarmNumber),
			zap.Int("fileCount", len(list.Files)),
		)
		if found {
			logger.Info("attachment file list received")
		} else {
			logger.Warn("attachment file list with no matching correlation")
		}
	}

	return HandlerResult{}, nil
}

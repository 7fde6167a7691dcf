package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwave/dc600core/pkg/dc600/config"
	"github.com/fleetwave/dc600core/pkg/dc600/frame"
	"github.com/fleetwave/dc600core/pkg/dc600/header"
	"github.com/fleetwave/dc600core/pkg/dc600/protocol"
)

func testConfig() config.Config {
	return config.Config{
		DC600Port:      5999,
		JT1078Port:     60001,
		AttachmentIP:   "203.0.113.10",
		AttachmentPort: 60001,
		Caps:           config.DefaultResourceCaps(),
	}
}

func buildFrame(t *testing.T, msgID protocol.MessageID, deviceID string, seq uint16, body []byte) []byte {
	t.Helper()
	h := header.Header{MessageID: msgID, DeviceID: deviceID, Sequence: seq}
	return frame.Encode(header.Encode(h, body), frame.ModePrimary)
}

func TestProcessStreamHeartbeatRoundTrip(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	regBody := make([]byte, 2+2+5+20+7+1)
	_, _, err := e.ProcessStream(context.Background(), buildFrame(t, protocol.MsgTerminalRegister, "013012345678", 1, regBody))
	require.NoError(t, err)

	raw := buildFrame(t, protocol.MsgTerminalHeartbeat, "013012345678", 2, nil)

	outbound, residue, err := e.ProcessStream(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, residue)
	require.Len(t, outbound, 1)

	body, err := frame.Decode(outbound[0])
	require.NoError(t, err)
	outHeader, ackBody, err := header.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgPlatformGeneralAck, outHeader.MessageID)
	assert.GreaterOrEqual(t, len(ackBody), 5)
}

func TestProcessStreamRejectsUnregisteredLocationReport(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	raw := buildFrame(t, protocol.MsgLocationReport, "013012345679", 1, make([]byte, 28))

	outbound, _, err := e.ProcessStream(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, outbound, "expected a location report from an unregistered device to be dropped silently")
}

func TestProcessStreamRegistrationThenHeartbeatAccepted(t *testing.T) {
	e := New(testConfig())
	defer e.Close()

	regBody := make([]byte, 2+2+5+20+7+1)
	regBody[len(regBody)-1] = 1 // plate color
	raw := buildFrame(t, protocol.MsgTerminalRegister, "013012345680", 1, regBody)

	outbound, _, err := e.ProcessStream(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, outbound, 2, "expected both the 0x8100 registration response and the 0x8103 ADAS/DSM provisioning message")

	body, err := frame.Decode(outbound[0])
	require.NoError(t, err)
	outHeader, _, err := header.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgRegistrationResponse, outHeader.MessageID)

	provisionBody, err := frame.Decode(outbound[1])
	require.NoError(t, err)
	provisionHeader, _, err := header.Decode(provisionBody)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgSetTerminalParameters, provisionHeader.MessageID)

	heartbeat := buildFrame(t, protocol.MsgTerminalHeartbeat, "013012345680", 2, nil)
	outbound, _, err = e.ProcessStream(context.Background(), heartbeat)
	require.NoError(t, err)
	assert.Len(t, outbound, 1, "expected heartbeat ack now that the device is registered")
}

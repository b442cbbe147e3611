package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestParseRelayMessage(t *testing.T) {
	msg, err := ParseRelayMessage([]byte(`{"type":"NewAnswer","payload":{"id":"r1","clientId":"c1","answer":"v=0"}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageNewAnswer, msg.Type)
	assert.Equal(t, PeerID("c1"), msg.P().ClientID)
	assert.Equal(t, "v=0", msg.P().Answer)

	_, err = ParseRelayMessage([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, errMissingType)

	_, err = ParseRelayMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestPayloadNeverNil(t *testing.T) {
	msg, err := ParseRelayMessage([]byte(`{"type":"CreateChannel"}`))
	require.NoError(t, err)
	assert.Equal(t, Payload{}, msg.P())
}

func TestCandidateWireShape(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	c := ICECandidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}

	b, err := RelayMessage{Type: MessageIceCandidate, Payload: &Payload{ID: "r1", ICECandidates: []ICECandidate{c}}}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"IceCandidate","payload":{"id":"r1","iceCandidates":[{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}]}}`, string(b))

	init := c.ToPion()
	assert.Equal(t, c, CandidateFromPion(init))
}

func TestDecodeRosterRejectsOtherTypes(t *testing.T) {
	b, err := EncodeRoster("r1", nil)
	require.NoError(t, err)
	r, err := DecodeRoster(b)
	require.NoError(t, err)
	assert.Empty(t, r.Peers)

	other, err := msgpack.Marshal(Roster{Type: "chat", Room: "r1"})
	require.NoError(t, err)
	_, err = DecodeRoster(other)
	assert.Error(t, err)
}

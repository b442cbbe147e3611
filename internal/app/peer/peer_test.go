package peer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/core/enginetest"
	"github.com/dkeye/voicehost/internal/core/mocks"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	mu        sync.Mutex
	offers    []webrtc.SessionDescription
	states    []State
	cands     []webrtc.ICECandidateInit
	channels  []string
	destroyed int
	final     State
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOffer: func(_ domain.PeerID, o webrtc.SessionDescription) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.offers = append(r.offers, o)
		},
		OnCandidate: func(_ domain.PeerID, c webrtc.ICECandidateInit) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.cands = append(r.cands, c)
		},
		OnDataChannel: func(_ domain.PeerID, dc core.DataChannel) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.channels = append(r.channels, dc.Label())
		},
		OnState: func(_ domain.PeerID, s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnDestroy: func(_ domain.PeerID, s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.destroyed++
			r.final = s
		},
	}
}

func cand(n int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 1 10.0.0.1 %d typ host", n, 5000+n)}
}

func TestLocalNegotiatesOnceOnStart(t *testing.T) {
	eng := enginetest.New("p1")
	rec := &recorder{}
	p := New(context.Background(), "p1", RoleLocal, eng, nil, rec.handlers())

	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	eng.EmitNegotiationNeeded()

	assert.Equal(t, 1, eng.OffersMade())
	require.Len(t, rec.offers, 1)
	assert.Equal(t, webrtc.SDPTypeOffer, rec.offers[0].Type)
	assert.Equal(t, StateOfferSent, p.State())
	assert.Equal(t, []State{StateNegotiating, StateOfferSent}, rec.states)
	require.NotNil(t, eng.LocalDescription())
}

func TestRemoteDoesNotOfferOnStart(t *testing.T) {
	eng := enginetest.New("p1")
	rec := &recorder{}
	p := New(context.Background(), "p1", RoleRemote, eng, nil, rec.handlers())

	require.NoError(t, p.Start())
	eng.EmitNegotiationNeeded()

	assert.Zero(t, eng.OffersMade())
	assert.Empty(t, rec.offers)
	assert.Equal(t, StateNew, p.State())
}

func TestLocalAnswerConnectsAndAttachesAudio(t *testing.T) {
	ctrl := gomock.NewController(t)
	media := mocks.NewMockMediaSource(ctrl)
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "mic")
	require.NoError(t, err)
	media.EXPECT().Acquire(gomock.Any()).Return(track, core.Stream{ID: "mic"}, nil).Times(1)

	eng := enginetest.New("p1")
	rec := &recorder{}
	p := New(context.Background(), "p1", RoleLocal, eng, media, rec.handlers())
	require.NoError(t, p.Start())

	require.NoError(t, p.ApplyRemoteAnswer("answer-sdp"))
	assert.Equal(t, StateConnected, p.State())
	require.Len(t, eng.Tracks(), 1)
	assert.Equal(t, "mic", eng.Tracks()[0].Stream.ID)

	err = p.ApplyRemoteAnswer("again")
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestLocalContinuesWithoutMicrophone(t *testing.T) {
	ctrl := gomock.NewController(t)
	media := mocks.NewMockMediaSource(ctrl)
	media.EXPECT().Acquire(gomock.Any()).Return(nil, core.Stream{}, core.ErrMediaAcquisition)

	eng := enginetest.New("p1")
	p := New(context.Background(), "p1", RoleLocal, eng, media, Handlers{})
	require.NoError(t, p.Start())
	require.NoError(t, p.ApplyRemoteAnswer("answer-sdp"))

	assert.Equal(t, StateConnected, p.State())
	assert.Empty(t, eng.Tracks())
}

func TestApplyAnswerBeforeOfferFails(t *testing.T) {
	eng := enginetest.New("p1")
	p := New(context.Background(), "p1", RoleLocal, eng, nil, Handlers{})
	err := p.ApplyRemoteAnswer("answer-sdp")
	assert.ErrorIs(t, err, core.ErrInvalidState)

	var opErr *core.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, domain.PeerID("p1"), opErr.Peer)
}

func TestRemoteAnswersOffer(t *testing.T) {
	ctrl := gomock.NewController(t)
	media := mocks.NewMockMediaSource(ctrl)
	media.EXPECT().Acquire(gomock.Any()).Return(nil, core.Stream{}, core.ErrMediaAcquisition)

	eng := enginetest.New("me")
	rec := &recorder{}
	p := New(context.Background(), "me", RoleRemote, eng, media, rec.handlers())
	require.NoError(t, p.Start())

	answer, err := p.ApplyRemoteOffer("offer-sdp")
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, "offer-sdp", eng.RemoteDescription().SDP)
	assert.Equal(t, StateConnected, p.State())

	_, err = p.ApplyRemoteOffer("second")
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestLocalCannotApplyOffer(t *testing.T) {
	p := New(context.Background(), "p1", RoleLocal, enginetest.New("p1"), nil, Handlers{})
	_, err := p.ApplyRemoteOffer("offer")
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	eng := enginetest.New("p1")
	eng.ManualConnect = true
	p := New(context.Background(), "p1", RoleLocal, eng, nil, Handlers{})
	require.NoError(t, p.Start())

	require.NoError(t, p.AddICECandidate(cand(1)))
	require.NoError(t, p.AddICECandidate(cand(2)))
	assert.Empty(t, eng.Candidates())

	require.NoError(t, p.ApplyRemoteAnswer("answer-sdp"))
	assert.Equal(t, []webrtc.ICECandidateInit{cand(1), cand(2)}, eng.Candidates())

	require.NoError(t, p.AddICECandidate(cand(3)))
	assert.Len(t, eng.Candidates(), 3)
}

func TestLocalCandidatesForwarded(t *testing.T) {
	eng := enginetest.New("p1")
	rec := &recorder{}
	p := New(context.Background(), "p1", RoleRemote, eng, nil, rec.handlers())
	require.NoError(t, p.Start())

	eng.EmitCandidate(cand(7))
	assert.Equal(t, []webrtc.ICECandidateInit{cand(7)}, rec.cands)
}

func TestDuplicateDataChannel(t *testing.T) {
	eng := enginetest.New("p1")
	p := New(context.Background(), "p1", RoleLocal, eng, nil, Handlers{})

	dc, err := p.CreateDataChannel(domain.RosterLabel)
	require.NoError(t, err)
	assert.Equal(t, domain.RosterLabel, dc.Label())

	_, err = p.CreateDataChannel(domain.RosterLabel)
	assert.ErrorIs(t, err, core.ErrDuplicateChannel)
	assert.Len(t, eng.Channels(), 1)

	got, ok := p.DataChannel(domain.RosterLabel)
	require.True(t, ok)
	assert.Same(t, dc, got)
}

func TestInboundDataChannelByRole(t *testing.T) {
	local := enginetest.New("l")
	lrec := &recorder{}
	lp := New(context.Background(), "l", RoleLocal, local, nil, lrec.handlers())
	require.NoError(t, lp.Start())
	rejected := enginetest.NewDataChannel("roster")
	local.EmitDataChannel(rejected)
	assert.True(t, rejected.IsClosed())
	assert.Empty(t, lrec.channels)

	remote := enginetest.New("r")
	rrec := &recorder{}
	rp := New(context.Background(), "r", RoleRemote, remote, nil, rrec.handlers())
	require.NoError(t, rp.Start())
	accepted := enginetest.NewDataChannel("roster")
	remote.EmitDataChannel(accepted)
	assert.False(t, accepted.IsClosed())
	assert.Equal(t, []string{"roster"}, rrec.channels)
	_, ok := rp.DataChannel("roster")
	assert.True(t, ok)
}

func TestFailureDestroysOnce(t *testing.T) {
	eng := enginetest.New("p1")
	rec := &recorder{}
	p := New(context.Background(), "p1", RoleLocal, eng, nil, rec.handlers())
	require.NoError(t, p.Start())
	require.NoError(t, p.ApplyRemoteAnswer("answer-sdp"))

	eng.EmitState(webrtc.PeerConnectionStateFailed)
	eng.EmitState(webrtc.PeerConnectionStateDisconnected)
	p.Close()

	assert.True(t, eng.Closed())
	assert.Equal(t, 1, rec.destroyed)
	assert.Equal(t, StateDisconnected, rec.final)
	assert.Equal(t, StateDisconnected, p.State())

	assert.ErrorIs(t, p.AddICECandidate(cand(1)), core.ErrClosed)
	_, err := p.CreateDataChannel("x")
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestCloseReportsClosed(t *testing.T) {
	eng := enginetest.New("p1")
	rec := &recorder{}
	p := New(context.Background(), "p1", RoleRemote, eng, nil, rec.handlers())
	require.NoError(t, p.Start())

	p.Close()
	assert.Equal(t, StateClosed, p.State())
	assert.Equal(t, 1, rec.destroyed)
	assert.Equal(t, StateClosed, rec.final)
}

func TestStateNeverMovesBackward(t *testing.T) {
	eng := enginetest.New("p1")
	p := New(context.Background(), "p1", RoleLocal, eng, nil, Handlers{})
	require.NoError(t, p.Start())
	require.NoError(t, p.ApplyRemoteAnswer("answer-sdp"))
	require.Equal(t, StateConnected, p.State())

	assert.False(t, p.advance(StateOfferSent))
	assert.False(t, p.advance(StateNegotiating))
	assert.Equal(t, StateConnected, p.State())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "offer_sent", StateOfferSent.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "remote", RoleRemote.String())
	assert.True(t, StateClosed.Terminal())
	assert.False(t, StateConnected.Terminal())
}

package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handlers are the owner's hooks into a Peer. Any of them may be nil.
type Handlers struct {
	// OnOffer receives the offer a Local-role Peer produced.
	OnOffer       func(id domain.PeerID, offer webrtc.SessionDescription)
	OnCandidate   func(id domain.PeerID, c webrtc.ICECandidateInit)
	OnTrack       func(id domain.PeerID, s core.Stream)
	OnDataChannel func(id domain.PeerID, dc core.DataChannel)
	OnState       func(id domain.PeerID, s State)
	// OnDestroy fires once, when the connection reaches a terminal state.
	OnDestroy func(id domain.PeerID, s State)
}

// Peer owns one engine and drives its negotiation for a single role.
type Peer struct {
	id     domain.PeerID
	role   Role
	engine core.Engine
	media  core.MediaSource
	h      Handlers
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	started       bool
	autoNegotiate bool
	remoteSet     bool
	pending       []webrtc.ICECandidateInit
	channels      map[string]core.DataChannel

	destroyOnce sync.Once
}

// New wraps engine. media may be nil, in which case no local track is ever
// attached. Call Start to wire engine events.
func New(ctx context.Context, id domain.PeerID, role Role, engine core.Engine, media core.MediaSource, h Handlers) *Peer {
	ctx, cancel := context.WithCancel(ctx)
	return &Peer{
		id:            id,
		role:          role,
		engine:        engine,
		media:         media,
		h:             h,
		logger:        log.With().Str("module", "peer").Str("peer", string(id)).Str("role", role.String()).Logger(),
		ctx:           ctx,
		cancel:        cancel,
		state:         StateNew,
		autoNegotiate: role == RoleLocal,
		channels:      make(map[string]core.DataChannel),
	}
}

func (p *Peer) ID() domain.PeerID { return p.id }
func (p *Peer) Role() Role        { return p.role }

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start subscribes to engine events. A Local-role Peer then negotiates once.
func (p *Peer) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	p.engine.OnICECandidate(p.handleICECandidate)
	p.engine.OnTrack(p.handleTrack)
	p.engine.OnDataChannel(p.handleDataChannel)
	p.engine.OnConnectionStateChange(p.handleConnectionState)
	p.engine.OnNegotiationNeeded(func() {
		if err := p.negotiate(); err != nil {
			p.logger.Error().Err(err).Msg("negotiation failed")
		}
	})

	if p.role == RoleLocal {
		return p.negotiate()
	}
	return nil
}

// AddICECandidate applies a remote candidate, or queues it until the remote
// description is set.
func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if p.state.Terminal() {
		p.mu.Unlock()
		return core.NewOpError("add ice candidate", p.id, core.ErrClosed)
	}
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		n := len(p.pending)
		p.mu.Unlock()
		p.logger.Debug().Int("queued", n).Msg("candidate queued until remote description")
		return nil
	}
	p.mu.Unlock()

	if err := p.engine.AddICECandidate(c); err != nil {
		return core.NewOpError("add ice candidate", p.id, err)
	}
	return nil
}

// markRemoteSet flushes queued candidates in arrival order.
func (p *Peer) markRemoteSet() {
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.engine.AddICECandidate(c); err != nil {
			p.logger.Warn().Err(err).Msg("queued candidate rejected")
		}
	}
}

func (p *Peer) CreateDataChannel(label string) (core.DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return nil, core.NewOpError("create data channel", p.id, core.ErrClosed)
	}
	if _, ok := p.channels[label]; ok {
		return nil, core.NewOpError("create data channel "+label, p.id, core.ErrDuplicateChannel)
	}
	dc, err := p.engine.CreateDataChannel(label)
	if err != nil {
		return nil, core.NewOpError("create data channel "+label, p.id, err)
	}
	p.channels[label] = dc
	return dc, nil
}

func (p *Peer) DataChannel(label string) (core.DataChannel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dc, ok := p.channels[label]
	return dc, ok
}

func (p *Peer) AddTrack(track webrtc.TrackLocal, stream core.Stream) error {
	if p.State().Terminal() {
		return core.NewOpError("add track", p.id, core.ErrClosed)
	}
	if err := p.engine.AddTrack(track, stream); err != nil {
		return core.NewOpError("add track", p.id, err)
	}
	return nil
}

// Close tears the connection down and notifies the owner.
func (p *Peer) Close() {
	if err := p.engine.Close(); err != nil {
		p.logger.Error().Err(err).Msg("engine close")
	}
	p.advance(StateClosed)
	p.destroy()
}

// advance moves the state forward and reports whether it changed.
func (p *Peer) advance(to State) bool {
	p.mu.Lock()
	from := p.state
	if from.Terminal() || to.rank() <= from.rank() {
		p.mu.Unlock()
		return false
	}
	p.state = to
	if to == StateConnected {
		p.autoNegotiate = false
	}
	p.mu.Unlock()

	p.notify(from, to)
	return true
}

// claim moves from exactly one state to the next under the lock.
func (p *Peer) claim(from, to State) bool {
	p.mu.Lock()
	if p.state != from {
		p.mu.Unlock()
		return false
	}
	p.state = to
	p.mu.Unlock()

	p.notify(from, to)
	return true
}

func (p *Peer) notify(from, to State) {
	p.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	if p.h.OnState != nil {
		p.h.OnState(p.id, to)
	}
}

func (p *Peer) destroy() {
	p.destroyOnce.Do(func() {
		p.cancel()
		s := p.State()
		p.logger.Info().Str("state", s.String()).Msg("peer destroyed")
		if p.h.OnDestroy != nil {
			p.h.OnDestroy(p.id, s)
		}
	})
}

func (p *Peer) handleConnectionState(s webrtc.PeerConnectionState) {
	p.logger.Info().Str("peer_connection_state", s.String()).Msg("engine state")
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if p.advance(StateConnected) {
			p.onConnected()
		}
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		p.advance(StateDisconnected)
		if err := p.engine.Close(); err != nil {
			p.logger.Error().Err(err).Msg("engine close")
		}
		p.destroy()
	case webrtc.PeerConnectionStateClosed:
		p.advance(StateClosed)
		p.destroy()
	}
}

func (p *Peer) handleICECandidate(c webrtc.ICECandidateInit) {
	if p.h.OnCandidate != nil {
		p.h.OnCandidate(p.id, c)
	}
}

func (p *Peer) handleTrack(s core.Stream) {
	p.logger.Info().Str("stream_id", s.ID).Int("tracks", len(s.Tracks)).Msg("inbound stream")
	if p.h.OnTrack != nil {
		p.h.OnTrack(p.id, s)
	}
}

// handleDataChannel accepts far-side channels for the Remote role only; the
// Local role is always the offering side.
func (p *Peer) handleDataChannel(dc core.DataChannel) {
	if p.role != RoleRemote {
		p.logger.Warn().Str("label", dc.Label()).Msg("rejecting inbound data channel")
		_ = dc.Close()
		return
	}
	p.mu.Lock()
	if _, ok := p.channels[dc.Label()]; ok {
		p.mu.Unlock()
		p.logger.Warn().Str("label", dc.Label()).Msg("duplicate inbound data channel")
		_ = dc.Close()
		return
	}
	p.channels[dc.Label()] = dc
	p.mu.Unlock()

	if p.h.OnDataChannel != nil {
		p.h.OnDataChannel(p.id, dc)
	}
}

// attachLocalAudio is best-effort: without a capture device the Peer keeps
// negotiating receive-only.
func (p *Peer) attachLocalAudio() {
	if p.media == nil {
		return
	}
	track, stream, err := p.media.Acquire(p.ctx)
	if err != nil {
		ev := p.logger.Warn().Err(err)
		if !errors.Is(err, core.ErrMediaAcquisition) {
			ev = p.logger.Error().Err(err)
		}
		ev.Msg("continuing without local audio")
		return
	}
	if err := p.engine.AddTrack(track, stream); err != nil {
		p.logger.Warn().Err(err).Msg("attach local audio")
		return
	}
	p.logger.Info().Str("stream_id", stream.ID).Msg("local audio attached")
}

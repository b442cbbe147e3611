package orch

import (
	"context"
	"sync"

	"github.com/dkeye/voicehost/internal/app/peer"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Participant joins a host's room and drives the single Remote-role Peer.
// Its id is the room id taken from the share link; the relay server routes
// by it.
type Participant struct {
	t        Transport
	engines  core.EngineFactory
	media    core.MediaSource
	notifier core.FatalNotifier
	id       domain.RoomID
	ctx      context.Context
	logger   zerolog.Logger

	mu      sync.RWMutex
	hostID  domain.PeerID
	peer    *peer.Peer
	roster  []domain.PeerID
	sub     core.SubscriptionID
	closing bool
}

// NewParticipant starts routing relay messages from t. media and notifier
// may be nil.
func NewParticipant(ctx context.Context, t Transport, id domain.RoomID, engines core.EngineFactory, media core.MediaSource, notifier core.FatalNotifier) *Participant {
	p := &Participant{
		t:        t,
		engines:  engines,
		media:    media,
		notifier: notifier,
		id:       id,
		ctx:      ctx,
		logger:   log.With().Str("module", "orch.participant").Str("room", string(id)).Logger(),
	}
	p.sub = t.Subscribe(core.EventMessageReceived, p.onMessage)
	return p
}

// Register announces this participant to the relay server, waiting for the
// transport to open if needed. Every call sends one NewClient.
func (p *Participant) Register() error {
	if p.t.IsOpen() {
		return p.sendRegister()
	}
	p.logger.Debug().Msg("transport not open, registration deferred")

	var (
		once  sync.Once
		subMu sync.Mutex
		id    core.SubscriptionID
	)
	fire := func() {
		once.Do(func() {
			subMu.Lock()
			p.t.Unsubscribe(core.EventOpened, id)
			subMu.Unlock()
			if err := p.sendRegister(); err != nil {
				p.logger.Error().Err(err).Msg("deferred registration failed")
			}
		})
	}
	subMu.Lock()
	id = p.t.Subscribe(core.EventOpened, func(core.Event) { fire() })
	subMu.Unlock()

	// The transport may have opened between the check and the subscription.
	if p.t.IsOpen() {
		fire()
	}
	return nil
}

func (p *Participant) sendRegister() error {
	return p.t.Send(domain.RelayMessage{
		Type:    domain.MessageNewClient,
		Payload: &domain.Payload{ID: string(p.id)},
	})
}

func (p *Participant) SendICECandidate(c webrtc.ICECandidateInit) error {
	return p.t.Send(domain.RelayMessage{
		Type: domain.MessageIceCandidate,
		Payload: &domain.Payload{
			ID:            string(p.id),
			ICECandidates: []domain.ICECandidate{domain.CandidateFromPion(c)},
		},
	})
}

func (p *Participant) sendAnswer(sdp string) error {
	return p.t.Send(domain.RelayMessage{
		Type:    domain.MessageNewAnswer,
		Payload: &domain.Payload{ID: string(p.id), ClientID: p.HostID(), Answer: sdp},
	})
}

func (p *Participant) HostID() domain.PeerID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hostID
}

func (p *Participant) Peer() *peer.Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.peer
}

// Roster returns the last member list the host published.
func (p *Participant) Roster() []domain.PeerID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.PeerID(nil), p.roster...)
}

// Close leaves the room without raising a reconnect notification.
func (p *Participant) Close() {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.closing = true
	pr := p.peer
	p.mu.Unlock()

	p.t.Unsubscribe(core.EventMessageReceived, p.sub)
	if pr != nil {
		pr.Close()
	}
	p.logger.Info().Msg("participant closed")
}

func (p *Participant) onMessage(ev core.Event) {
	if ev.Message == nil {
		return
	}
	msg := *ev.Message
	pl := msg.P()
	switch msg.Type {
	case domain.MessageClientAdded:
		p.onClientAdded(pl.ClientID)
	case domain.MessageNewOffer:
		pr := p.Peer()
		if pr == nil {
			p.logger.Debug().Msg("offer before ClientAdded dropped")
			return
		}
		answer, err := pr.ApplyRemoteOffer(pl.Offer)
		if err != nil {
			p.logger.Error().Err(err).Msg("apply offer")
			return
		}
		if err := p.sendAnswer(answer.SDP); err != nil {
			p.logger.Error().Err(err).Msg("send answer")
		}
	case domain.MessageIceCandidate:
		pr := p.Peer()
		if pr == nil {
			p.logger.Debug().Int("candidates", len(pl.ICECandidates)).Msg("candidates before ClientAdded dropped")
			return
		}
		for _, c := range pl.ICECandidates {
			if err := pr.AddICECandidate(c.ToPion()); err != nil {
				p.logger.Warn().Err(err).Msg("add candidate")
			}
		}
	default:
		p.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring message")
	}
}

func (p *Participant) onClientAdded(hostID domain.PeerID) {
	if hostID == "" {
		p.logger.Warn().Msg("ClientAdded without clientId")
		return
	}
	p.mu.Lock()
	if p.peer != nil || p.closing {
		p.mu.Unlock()
		p.logger.Debug().Str("host", string(hostID)).Msg("ClientAdded ignored")
		return
	}
	self := domain.PeerID(p.id)
	engine, err := p.engines.NewEngine(self)
	if err != nil {
		p.mu.Unlock()
		p.logger.Error().Err(err).Msg("create engine")
		return
	}
	p.hostID = hostID
	pr := peer.New(p.ctx, self, peer.RoleRemote, engine, p.media, peer.Handlers{
		OnCandidate: func(_ domain.PeerID, c webrtc.ICECandidateInit) {
			if err := p.SendICECandidate(c); err != nil {
				p.logger.Error().Err(err).Msg("send candidate")
			}
		},
		OnDataChannel: p.onDataChannel,
		OnDestroy:     p.onDestroy,
	})
	p.peer = pr
	p.mu.Unlock()

	p.logger.Info().Str("host", string(hostID)).Msg("host accepted us")
	if err := pr.Start(); err != nil {
		p.logger.Error().Err(err).Msg("start peer")
	}
	p.t.Dispatch(core.EventNewPeer, core.Event{Room: p.id, Peer: hostID})
}

func (p *Participant) onDataChannel(_ domain.PeerID, dc core.DataChannel) {
	if dc.Label() != domain.RosterLabel {
		p.logger.Debug().Str("label", dc.Label()).Msg("unknown data channel")
		return
	}
	dc.OnMessage(func(data []byte) {
		r, err := domain.DecodeRoster(data)
		if err != nil {
			p.logger.Warn().Err(err).Msg("bad roster message")
			return
		}
		p.mu.Lock()
		p.roster = r.Peers
		p.mu.Unlock()
		p.t.Dispatch(core.EventRosterUpdated, core.Event{Room: r.Room, Peers: r.Peers})
	})
}

// onDestroy raises the reconnect notification unless Close caused it.
func (p *Participant) onDestroy(id domain.PeerID, s peer.State) {
	p.mu.Lock()
	if p.peer != nil && p.peer.ID() == id {
		p.peer = nil
	}
	closing := p.closing
	p.mu.Unlock()

	if closing {
		return
	}
	reason := "connection to host " + s.String()
	p.logger.Warn().Str("state", s.String()).Msg("lost connection to host")
	if p.notifier != nil {
		p.notifier.NotifyFatal(reason)
	}
	p.t.Dispatch(core.EventReconnect, core.Event{Room: p.id, Peer: p.HostID(), Reason: reason})
}

package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/voicehost/internal/app"
	"github.com/dkeye/voicehost/internal/app/peer"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Host owns a room: one Local-role Peer per joined participant and the
// audio fan-out between them.
type Host struct {
	t        Transport
	engines  core.EngineFactory
	media    core.MediaSource
	Registry *app.Registry
	ctx      context.Context
	logger   zerolog.Logger

	mu      sync.RWMutex
	room    domain.RoomID
	streams map[domain.PeerID][]core.Stream
	sub     core.SubscriptionID
	closed  bool
}

// NewHost starts routing relay messages from t. media may be nil.
func NewHost(ctx context.Context, t Transport, engines core.EngineFactory, media core.MediaSource) *Host {
	h := &Host{
		t:        t,
		engines:  engines,
		media:    media,
		Registry: app.NewRegistry(),
		ctx:      ctx,
		logger:   log.With().Str("module", "orch.host").Logger(),
		streams:  make(map[domain.PeerID][]core.Stream),
	}
	h.sub = t.Subscribe(core.EventMessageReceived, h.onMessage)
	return h
}

func (h *Host) RoomID() domain.RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.room
}

func (h *Host) Peers() []domain.PeerID { return h.Registry.IDs() }

// Room snapshots the room id and its current members.
func (h *Host) Room() domain.Room {
	return domain.Room{ID: h.RoomID(), Peers: h.Peers()}
}

func (h *Host) PeerInfos() []app.PeerInfo { return h.Registry.Snapshot() }

// CreateRoom asks the relay server for a new room id.
func (h *Host) CreateRoom() error {
	return h.t.Send(domain.RelayMessage{Type: domain.MessageCreateChannel})
}

// SendOffer is a no-op until the room id is known.
func (h *Host) SendOffer(id domain.PeerID, sdp string) error {
	room := h.RoomID()
	if room == "" {
		h.logger.Debug().Str("peer", string(id)).Msg("no room yet, offer not sent")
		return nil
	}
	return h.t.Send(domain.RelayMessage{
		Type:    domain.MessageNewOffer,
		Payload: &domain.Payload{ID: string(room), ClientID: id, Offer: sdp},
	})
}

// SendICECandidate is a no-op until the room id is known.
func (h *Host) SendICECandidate(id domain.PeerID, c webrtc.ICECandidateInit) error {
	room := h.RoomID()
	if room == "" {
		h.logger.Debug().Str("peer", string(id)).Msg("no room yet, candidate not sent")
		return nil
	}
	return h.t.Send(domain.RelayMessage{
		Type: domain.MessageIceCandidate,
		Payload: &domain.Payload{
			ID:            string(room),
			ClientID:      id,
			ICECandidates: []domain.ICECandidate{domain.CandidateFromPion(c)},
		},
	})
}

// Close stops routing and closes every peer.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.t.Unsubscribe(core.EventMessageReceived, h.sub)
	for _, p := range h.Registry.All() {
		p.Close()
	}
	h.logger.Info().Str("room", string(h.RoomID())).Msg("host closed")
}

func (h *Host) onMessage(ev core.Event) {
	if ev.Message == nil {
		return
	}
	msg := *ev.Message
	p := msg.P()
	switch msg.Type {
	case domain.MessageChannelCreated:
		h.onChannelCreated(domain.RoomID(p.ID))
	case domain.MessageClientAdded:
		h.addPeer(p.ClientID)
	case domain.MessageNewAnswer:
		pr, err := h.lookup(p.ClientID)
		if err != nil {
			h.logger.Debug().Err(err).Msg("answer dropped")
			return
		}
		if err := pr.ApplyRemoteAnswer(p.Answer); err != nil {
			h.logger.Error().Err(err).Msg("apply answer")
		}
	case domain.MessageIceCandidate:
		pr, err := h.lookup(p.ClientID)
		if err != nil {
			h.logger.Debug().Err(err).Msg("candidates dropped")
			return
		}
		for _, c := range p.ICECandidates {
			if err := pr.AddICECandidate(c.ToPion()); err != nil {
				h.logger.Warn().Err(err).Msg("add candidate")
			}
		}
	default:
		h.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring message")
	}
}

func (h *Host) onChannelCreated(room domain.RoomID) {
	h.mu.Lock()
	if h.room != "" {
		current := h.room
		h.mu.Unlock()
		h.logger.Warn().Str("room", string(current)).Str("ignored", string(room)).Msg("room already assigned")
		return
	}
	h.room = room
	h.mu.Unlock()

	h.logger.Info().Str("room", string(room)).Msg("room created")
	h.t.Dispatch(core.EventChannelCreated, core.Event{Room: room})
}

func (h *Host) lookup(id domain.PeerID) (*peer.Peer, error) {
	p, ok := h.Registry.Get(id)
	if !ok {
		return nil, core.NewOpError("route", id, core.ErrUnknownPeer)
	}
	return p, nil
}

func (h *Host) addPeer(id domain.PeerID) {
	logger := h.logger.With().Str("peer", string(id)).Logger()
	if id == "" {
		logger.Warn().Msg("ClientAdded without clientId")
		return
	}
	if _, ok := h.Registry.Get(id); ok {
		logger.Debug().Msg("duplicate ClientAdded ignored")
		return
	}
	engine, err := h.engines.NewEngine(id)
	if err != nil {
		logger.Error().Err(err).Msg("create engine")
		return
	}

	p := peer.New(h.ctx, id, peer.RoleLocal, engine, h.media, peer.Handlers{
		OnOffer: func(id domain.PeerID, offer webrtc.SessionDescription) {
			if err := h.SendOffer(id, offer.SDP); err != nil {
				h.logger.Error().Err(err).Str("peer", string(id)).Msg("send offer")
			}
		},
		OnCandidate: func(id domain.PeerID, c webrtc.ICECandidateInit) {
			if err := h.SendICECandidate(id, c); err != nil {
				h.logger.Error().Err(err).Str("peer", string(id)).Msg("send candidate")
			}
		},
		OnTrack:   h.relayStream,
		OnDestroy: h.onDestroy,
	})
	existing, ok := h.register(p)
	if !ok {
		_ = engine.Close()
		return
	}

	if err := h.openRoster(p); err != nil && !errors.Is(err, core.ErrDuplicateChannel) {
		logger.Warn().Err(err).Msg("roster channel unavailable")
	}
	h.attachExisting(p, existing)

	h.t.Dispatch(core.EventNewPeer, core.Event{Room: h.RoomID(), Peer: id})
	if err := p.Start(); err != nil {
		logger.Error().Err(err).Msg("negotiation failed, dropping peer")
		p.Close()
		return
	}
	h.broadcastRoster()
}

// onDestroy runs once per peer, from whichever goroutine saw the terminal
// state.
func (h *Host) onDestroy(id domain.PeerID, s peer.State) {
	if !h.Registry.Remove(id) {
		return
	}
	h.forgetStreams(id)
	h.logger.Info().Str("peer", string(id)).Str("state", s.String()).Msg("peer left")
	h.t.Dispatch(core.EventPeerDisconnected, core.Event{Room: h.RoomID(), Peer: id, Reason: s.String()})
	h.broadcastRoster()
}

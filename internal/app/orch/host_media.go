package orch

import (
	"github.com/dkeye/voicehost/internal/app/peer"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
)

type sourcedStream struct {
	src domain.PeerID
	s   core.Stream
}

// relayStream attaches every track of an inbound stream to every other peer.
// Recording the stream and picking the targets happen under h.mu, so a peer
// joining at the same time gets it exactly once, from here or from register.
func (h *Host) relayStream(src domain.PeerID, s core.Stream) {
	h.mu.Lock()
	if _, ok := h.Registry.Get(src); !ok {
		h.mu.Unlock()
		h.logger.Debug().Str("peer", string(src)).Msg("stream from departed peer ignored")
		return
	}
	h.streams[src] = append(h.streams[src], s)
	targets := h.Registry.Others(src)
	h.mu.Unlock()

	for _, dst := range targets {
		h.attach(dst, src, s)
	}
}

// register adds p to the registry and returns the streams already flowing in
// the room, which p must carry.
func (h *Host) register(p *peer.Peer) ([]sourcedStream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.Registry.Add(p) {
		return nil, false
	}
	var existing []sourcedStream
	for src, streams := range h.streams {
		if src == p.ID() {
			continue
		}
		for _, s := range streams {
			existing = append(existing, sourcedStream{src: src, s: s})
		}
	}
	return existing, true
}

// attachExisting gives a joining peer the streams from register. It runs
// before the peer negotiates, so the tracks ride its offer.
func (h *Host) attachExisting(dst *peer.Peer, existing []sourcedStream) {
	for _, e := range existing {
		h.attach(dst, e.src, e.s)
	}
}

func (h *Host) attach(dst *peer.Peer, src domain.PeerID, s core.Stream) {
	for _, track := range s.Tracks {
		if err := dst.AddTrack(track, s); err != nil {
			h.logger.Warn().
				Err(err).
				Str("src", string(src)).
				Str("dst", string(dst.ID())).
				Str("stream_id", s.ID).
				Msg("relay attach failed")
			continue
		}
		h.logger.Debug().
			Str("src", string(src)).
			Str("dst", string(dst.ID())).
			Str("track", track.ID()).
			Msg("track relayed")
	}
}

func (h *Host) forgetStreams(id domain.PeerID) {
	h.mu.Lock()
	delete(h.streams, id)
	h.mu.Unlock()
}

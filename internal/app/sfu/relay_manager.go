package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/voicehost/internal/domain"
	"github.com/rs/zerolog/log"
)

// RelayManager tracks the relays of every inbound track, grouped by the peer
// that sent them.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.PeerID]map[string]*Relay
	muted  map[domain.PeerID]bool
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.PeerID]map[string]*Relay),
		muted:  make(map[domain.PeerID]bool),
	}
}

// StartRelay creates a Relay for the inbound track of src and starts its loop.
// A relay already running for the same track is replaced.
func (m *RelayManager) StartRelay(ctx context.Context, src domain.PeerID, trackID string, track RTPReader) *Relay {
	logger := log.With().
		Str("module", "relay").
		Str("peer", string(src)).
		Str("track", trackID).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(trackID, track, cancel)

	m.mu.Lock()
	byTrack, ok := m.relays[src]
	if !ok {
		byTrack = make(map[string]*Relay)
		m.relays[src] = byTrack
	}
	if old, ok := byTrack[trackID]; ok {
		logger.Info().Msg("replacing existing relay for track")
		old.markAllDelete()
		old.cancel()
	}
	byTrack[trackID] = relay
	if m.muted[src] {
		relay.muted = true
	}
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
	return relay
}

// AddSubscriber feeds the relay of src/trackID into sink.
func (m *RelayManager) AddSubscriber(src domain.PeerID, trackID, sinkID string, sink RTPWriter) bool {
	relay, ok := m.relay(src, trackID)
	if !ok {
		return false
	}
	relay.AddOutTrack(sinkID, NewOutTrack(sink))
	return true
}

// SetMuted stops or resumes forwarding from src. It reports whether src has
// any relay.
func (m *RelayManager) SetMuted(src domain.PeerID, muted bool) bool {
	m.mu.Lock()
	if muted {
		m.muted[src] = true
	} else {
		delete(m.muted, src)
	}
	relays := make([]*Relay, 0, len(m.relays[src]))
	for _, r := range m.relays[src] {
		relays = append(relays, r)
	}
	m.mu.Unlock()

	for _, r := range relays {
		r.setMuted(muted)
	}
	log.Info().Str("module", "relay").Str("peer", string(src)).Bool("muted", muted).Int("relays", len(relays)).Msg("mute changed")
	return len(relays) > 0
}

func (m *RelayManager) Muted(src domain.PeerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muted[src]
}

// StopPeer stops every relay of src and forgets it.
func (m *RelayManager) StopPeer(src domain.PeerID) {
	m.mu.Lock()
	byTrack, ok := m.relays[src]
	delete(m.relays, src)
	delete(m.muted, src)
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, r := range byTrack {
		r.markAllDelete()
		r.cancel()
	}
	log.Info().Str("module", "relay").Str("peer", string(src)).Int("relays", len(byTrack)).Msg("relays stopped")
}

// HasRelay reports whether any inbound track of src is being forwarded.
func (m *RelayManager) HasRelay(src domain.PeerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays[src]) > 0
}

func (m *RelayManager) relay(src domain.PeerID, trackID string) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[src][trackID]
	return r, ok
}

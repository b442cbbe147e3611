package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/voicehost/internal/app/peer"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/rs/zerolog/log"
)

type peerEntry struct {
	Peer     *peer.Peer
	JoinedAt time.Time
}

// PeerInfo is a point-in-time view of one registered peer.
type PeerInfo struct {
	ID       domain.PeerID `json:"id"`
	Role     string        `json:"role"`
	State    string        `json:"state"`
	JoinedAt time.Time     `json:"joined_at"`
}

// Registry maps peer ids to live peers. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*peerEntry
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[domain.PeerID]*peerEntry),
		now:   time.Now,
	}
}

// Add registers p unless its id is already taken.
func (r *Registry) Add(p *peer.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p.ID()]; ok {
		return false
	}
	r.peers[p.ID()] = &peerEntry{Peer: p, JoinedAt: r.now()}
	log.Info().Str("module", "app.registry").Str("peer", string(p.ID())).Int("size", len(r.peers)).Msg("peer added")
	return true
}

func (r *Registry) Get(id domain.PeerID) (*peer.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.peers[id]; ok {
		return e.Peer, true
	}
	return nil, false
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Int("size", len(r.peers)).Msg("peer removed")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []domain.PeerID {
	r.mu.RLock()
	out := make([]domain.PeerID, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Others returns every peer except id, sorted by id.
func (r *Registry) Others(id domain.PeerID) []*peer.Peer {
	r.mu.RLock()
	out := make([]*peer.Peer, 0, len(r.peers))
	for pid, e := range r.peers {
		if pid != id {
			out = append(out, e.Peer)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// All returns every peer sorted by id.
func (r *Registry) All() []*peer.Peer {
	return r.Others("")
}

func (r *Registry) Snapshot() []PeerInfo {
	r.mu.RLock()
	out := make([]PeerInfo, 0, len(r.peers))
	for id, e := range r.peers {
		out = append(out, PeerInfo{
			ID:       id,
			Role:     e.Peer.Role().String(),
			State:    e.Peer.State().String(),
			JoinedAt: e.JoinedAt,
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

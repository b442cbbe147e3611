package orch

import (
	"github.com/dkeye/voicehost/internal/app/peer"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
)

// openRoster creates the roster channel on p. The current roster is pushed
// as soon as the channel opens.
func (h *Host) openRoster(p *peer.Peer) error {
	dc, err := p.CreateDataChannel(domain.RosterLabel)
	if err != nil {
		return err
	}
	dc.OnOpen(func() {
		h.sendRoster(p.ID(), dc, h.Peers())
	})
	return nil
}

func (h *Host) broadcastRoster() {
	ids := h.Peers()
	for _, p := range h.Registry.All() {
		dc, ok := p.DataChannel(domain.RosterLabel)
		if !ok {
			continue
		}
		h.sendRoster(p.ID(), dc, ids)
	}
}

// sendRoster skips channels that are not open yet; they receive the roster
// from their OnOpen hook.
func (h *Host) sendRoster(id domain.PeerID, dc core.DataChannel, ids []domain.PeerID) {
	data, err := domain.EncodeRoster(h.RoomID(), ids)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode roster")
		return
	}
	if err := dc.Send(data); err != nil {
		h.logger.Debug().Err(err).Str("peer", string(id)).Msg("roster not delivered")
	}
}

package peer

import (
	"github.com/dkeye/voicehost/internal/core"
	"github.com/pion/webrtc/v4"
)

// negotiate produces and publishes the offer. It runs at most once per Peer;
// renegotiation after connect is not supported.
func (p *Peer) negotiate() error {
	p.mu.Lock()
	auto := p.autoNegotiate
	p.mu.Unlock()
	if p.role != RoleLocal || !auto || !p.claim(StateNew, StateNegotiating) {
		return nil
	}

	offer, err := p.engine.CreateOffer()
	if err != nil {
		return core.NewOpError("create offer", p.id, err)
	}
	if err := p.engine.SetLocalDescription(offer); err != nil {
		return core.NewOpError("set local description", p.id, err)
	}
	p.advance(StateOfferSent)

	if p.h.OnOffer != nil {
		p.h.OnOffer(p.id, offer)
	}
	return nil
}

// ApplyRemoteAnswer completes a Local-role negotiation.
func (p *Peer) ApplyRemoteAnswer(sdp string) error {
	p.mu.Lock()
	switch {
	case p.role != RoleLocal:
		p.mu.Unlock()
		return core.NewOpError("apply answer", p.id, core.ErrInvalidState)
	case p.state.Terminal():
		p.mu.Unlock()
		return core.NewOpError("apply answer", p.id, core.ErrClosed)
	case p.state != StateOfferSent || p.remoteSet:
		s := p.state
		p.mu.Unlock()
		return core.NewOpError("apply answer in "+s.String(), p.id, core.ErrInvalidState)
	}
	p.mu.Unlock()

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := p.engine.SetRemoteDescription(answer); err != nil {
		return core.NewOpError("set remote description", p.id, err)
	}
	p.markRemoteSet()
	return nil
}

func (p *Peer) onConnected() {
	if p.role == RoleLocal {
		p.attachLocalAudio()
	}
}

package peer

import (
	"github.com/dkeye/voicehost/internal/core"
	"github.com/pion/webrtc/v4"
)

// ApplyRemoteOffer applies the host's offer and returns the answer to send
// back. Local audio, if any, is attached before answering so it rides the
// offered audio m-line.
func (p *Peer) ApplyRemoteOffer(sdp string) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	switch {
	case p.role != RoleRemote:
		p.mu.Unlock()
		return webrtc.SessionDescription{}, core.NewOpError("apply offer", p.id, core.ErrInvalidState)
	case p.state.Terminal():
		p.mu.Unlock()
		return webrtc.SessionDescription{}, core.NewOpError("apply offer", p.id, core.ErrClosed)
	}
	p.mu.Unlock()
	if !p.claim(StateNew, StateOfferReceived) {
		return webrtc.SessionDescription{}, core.NewOpError("apply offer in "+p.State().String(), p.id, core.ErrInvalidState)
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.engine.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, core.NewOpError("set remote description", p.id, err)
	}
	p.markRemoteSet()
	p.attachLocalAudio()

	answer, err := p.engine.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, core.NewOpError("create answer", p.id, err)
	}
	if err := p.engine.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, core.NewOpError("set local description", p.id, err)
	}
	p.advance(StateAnswerSent)
	return answer, nil
}

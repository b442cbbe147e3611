package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	MessageCreateChannel  MessageType = "CreateChannel"
	MessageChannelCreated MessageType = "ChannelCreated"
	MessageNewClient      MessageType = "NewClient"
	MessageClientAdded    MessageType = "ClientAdded"
	MessageNewOffer       MessageType = "NewOffer"
	MessageNewAnswer      MessageType = "NewAnswer"
	MessageIceCandidate   MessageType = "IceCandidate"
)

var errMissingType = errors.New("message has no type")

// Payload carries every field any relay message may use. Which fields are
// meaningful depends on the message type.
type Payload struct {
	ID            string         `json:"id,omitempty"`
	ClientID      PeerID         `json:"clientId,omitempty"`
	Offer         string         `json:"offer,omitempty"`
	Answer        string         `json:"answer,omitempty"`
	ICECandidates []ICECandidate `json:"iceCandidates,omitempty"`
}

// RelayMessage is the JSON envelope exchanged with the relay server.
type RelayMessage struct {
	Type    MessageType `json:"type"`
	Payload *Payload    `json:"payload,omitempty"`
}

// P returns the payload, never nil.
func (m RelayMessage) P() Payload {
	if m.Payload == nil {
		return Payload{}
	}
	return *m.Payload
}

func ParseRelayMessage(data []byte) (RelayMessage, error) {
	var msg RelayMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return RelayMessage{}, err
	}
	if msg.Type == "" {
		return RelayMessage{}, errMissingType
	}
	return msg, nil
}

func (m RelayMessage) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Type, err)
	}
	return b, nil
}

// ICECandidate is the wire shape of RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) ICECandidate {
	return ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c ICECandidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

package core

import (
	"context"

	"github.com/dkeye/voicehost/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Stream groups the tracks a far side published together.
type Stream struct {
	ID     string
	Tracks []webrtc.TrackLocal
}

// Engine is the peer-connection engine one Peer drives. Implementations must
// not hold internal locks while invoking the registered callbacks.
type Engine interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	CreateDataChannel(label string) (DataChannel, error)
	// AddTrack attaches outbound media published as part of stream.
	AddTrack(track webrtc.TrackLocal, stream Stream) error
	Close() error

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(Stream))
	OnDataChannel(func(DataChannel))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnNegotiationNeeded(func())
}

// EngineFactory builds one fresh engine per peer id. Engines are never reused.
type EngineFactory interface {
	NewEngine(id domain.PeerID) (Engine, error)
}

type DataChannel interface {
	Label() string
	Send(data []byte) error
	OnOpen(func())
	OnMessage(func(data []byte))
	Close() error
}

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/dkeye/voicehost/internal/core FatalNotifier,MediaSource

// MediaSource acquires the local capture track. Failure is reported as
// ErrMediaAcquisition.
type MediaSource interface {
	Acquire(ctx context.Context) (webrtc.TrackLocal, Stream, error)
}

// FatalNotifier is told about failures the core cannot recover from. The
// concrete host decides whether to reconnect, alert or exit.
type FatalNotifier interface {
	NotifyFatal(reason string)
}

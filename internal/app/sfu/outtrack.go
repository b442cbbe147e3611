package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// RTPWriter receives forwarded packets. *webrtc.TrackLocalStaticRTP satisfies it.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

func (s TrackState) String() string {
	switch s {
	case TrackStateOk:
		return "ok"
	case TrackStateMuted:
		return "muted"
	case TrackStateDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// OutTrack is one sink fed by a Relay.
type OutTrack struct {
	Sink  RTPWriter
	state atomic.Int32
}

func NewOutTrack(sink RTPWriter) *OutTrack {
	return &OutTrack{Sink: sink}
}

func (ot *OutTrack) State() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

// MarkDelete is final; a deleted OutTrack never comes back.
func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

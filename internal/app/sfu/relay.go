package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// RTPReader is the inbound side of a Relay. *webrtc.TrackRemote satisfies it.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Relay copies packets from one inbound track to any number of sinks.
type Relay struct {
	Src     RTPReader
	TrackID string

	mu        sync.RWMutex
	outTracks map[string]*OutTrack
	muted     bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(trackID string, src RTPReader, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		TrackID:   trackID,
		outTracks: make(map[string]*OutTrack),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// loop runs until ctx ends or the source fails. ReadRTP blocks, so a
// cancelled relay exits on the next packet or when the track is closed.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	forwarded := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info().Int("forwarded", forwarded).Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Int("forwarded", forwarded).Msg("relay source ended")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
		forwarded++
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[string]*OutTrack, len(r.outTracks))
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	var dirty []string
	for sink, ot := range snapshot {
		switch ot.State() {
		case TrackStateDelete:
			dirty = append(dirty, sink)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Sink.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("sink", sink).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, sink)
			}
		}
	}

	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sink := range dirty {
		delete(r.outTracks, sink)
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

// AddOutTrack attaches ot under the sink name, replacing any previous one.
// A relay that is muted starts new sinks muted too.
func (r *Relay) AddOutTrack(sink string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.outTracks[sink]; ok && old != ot {
		old.MarkDelete()
	}
	if r.muted {
		ot.MarkMuted()
	}
	r.outTracks[sink] = ot
}

func (r *Relay) setMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
	for _, ot := range r.outTracks {
		if muted {
			ot.MarkMuted()
		} else {
			ot.MarkOk()
		}
	}
}

// Done is closed once the loop has returned.
func (r *Relay) Done() <-chan struct{} { return r.done }

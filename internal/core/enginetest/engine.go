// Package enginetest provides an in-memory core.Engine for tests. A pair of
// engines behaves like a loopback connection: each reports Connected once it
// holds both a local and a remote description.
package enginetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrNoRemoteDescription = errors.New("remote description not set")

type AddedTrack struct {
	Track  webrtc.TrackLocal
	Stream core.Stream
}

type Engine struct {
	ID domain.PeerID
	// ManualConnect disables the automatic Connected report.
	ManualConnect bool

	mu          sync.Mutex
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	tracks      []AddedTrack
	channels    []*DataChannel
	closed      bool
	connected   bool
	offersMade  int
	answersMade int

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.Stream)
	onDC    func(core.DataChannel)
	onState func(webrtc.PeerConnectionState)
	onNeg   func()
}

func New(id domain.PeerID) *Engine { return &Engine{ID: id} }

func (e *Engine) CreateOffer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return webrtc.SessionDescription{}, errors.New("engine closed")
	}
	e.offersMade++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-from-%s", e.ID)}, nil
}

func (e *Engine) CreateAnswer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remote == nil {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}
	e.answersMade++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-from-%s", e.ID)}, nil
}

func (e *Engine) SetLocalDescription(d webrtc.SessionDescription) error {
	e.mu.Lock()
	e.local = &d
	e.mu.Unlock()
	e.maybeConnect()
	return nil
}

func (e *Engine) SetRemoteDescription(d webrtc.SessionDescription) error {
	e.mu.Lock()
	e.remote = &d
	e.mu.Unlock()
	e.maybeConnect()
	return nil
}

func (e *Engine) maybeConnect() {
	e.mu.Lock()
	ready := !e.ManualConnect && !e.connected && !e.closed && e.local != nil && e.remote != nil
	if ready {
		e.connected = true
	}
	e.mu.Unlock()
	if ready {
		e.EmitState(webrtc.PeerConnectionStateConnected)
	}
}

func (e *Engine) AddICECandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remote == nil {
		return ErrNoRemoteDescription
	}
	e.candidates = append(e.candidates, c)
	return nil
}

func (e *Engine) CreateDataChannel(label string) (core.DataChannel, error) {
	dc := NewDataChannel(label)
	e.mu.Lock()
	e.channels = append(e.channels, dc)
	e.mu.Unlock()
	return dc, nil
}

func (e *Engine) AddTrack(track webrtc.TrackLocal, stream core.Stream) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine closed")
	}
	e.tracks = append(e.tracks, AddedTrack{Track: track, Stream: stream})
	return nil
}

// Close marks the engine closed and reports the Closed state, as pion does.
func (e *Engine) Close() error {
	e.mu.Lock()
	already := e.closed
	e.closed = true
	e.mu.Unlock()
	if !already {
		e.EmitState(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

func (e *Engine) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	e.onICE = f
	e.mu.Unlock()
}

func (e *Engine) OnTrack(f func(core.Stream)) {
	e.mu.Lock()
	e.onTrack = f
	e.mu.Unlock()
}

func (e *Engine) OnDataChannel(f func(core.DataChannel)) {
	e.mu.Lock()
	e.onDC = f
	e.mu.Unlock()
}

func (e *Engine) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	e.mu.Lock()
	e.onState = f
	e.mu.Unlock()
}

func (e *Engine) OnNegotiationNeeded(f func()) {
	e.mu.Lock()
	e.onNeg = f
	e.mu.Unlock()
}

func (e *Engine) EmitState(s webrtc.PeerConnectionState) {
	e.mu.Lock()
	f := e.onState
	e.mu.Unlock()
	if f != nil {
		f(s)
	}
}

func (e *Engine) EmitTrack(s core.Stream) {
	e.mu.Lock()
	f := e.onTrack
	e.mu.Unlock()
	if f != nil {
		f(s)
	}
}

func (e *Engine) EmitCandidate(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	f := e.onICE
	e.mu.Unlock()
	if f != nil {
		f(c)
	}
}

func (e *Engine) EmitDataChannel(dc core.DataChannel) {
	e.mu.Lock()
	f := e.onDC
	e.mu.Unlock()
	if f != nil {
		f(dc)
	}
}

func (e *Engine) EmitNegotiationNeeded() {
	e.mu.Lock()
	f := e.onNeg
	e.mu.Unlock()
	if f != nil {
		f()
	}
}

func (e *Engine) LocalDescription() *webrtc.SessionDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

func (e *Engine) RemoteDescription() *webrtc.SessionDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote
}

func (e *Engine) Candidates() []webrtc.ICECandidateInit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), e.candidates...)
}

func (e *Engine) Tracks() []AddedTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]AddedTrack(nil), e.tracks...)
}

func (e *Engine) Channels() []*DataChannel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*DataChannel(nil), e.channels...)
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) OffersMade() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offersMade
}

// Factory hands out fresh engines and remembers them by peer id.
type Factory struct {
	ManualConnect bool

	mu      sync.Mutex
	engines map[domain.PeerID][]*Engine
}

func NewFactory() *Factory {
	return &Factory{engines: make(map[domain.PeerID][]*Engine)}
}

func (f *Factory) NewEngine(id domain.PeerID) (core.Engine, error) {
	e := New(id)
	e.ManualConnect = f.ManualConnect
	f.mu.Lock()
	f.engines[id] = append(f.engines[id], e)
	f.mu.Unlock()
	return e, nil
}

// Engine returns the most recent engine created for id.
func (f *Factory) Engine(id domain.PeerID) *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.engines[id]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (f *Factory) Count(id domain.PeerID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines[id])
}

type DataChannel struct {
	label string

	mu        sync.Mutex
	sent      [][]byte
	open      bool
	closed    bool
	onOpen    func()
	onMessage func([]byte)
}

func NewDataChannel(label string) *DataChannel { return &DataChannel{label: label} }

func (d *DataChannel) Label() string { return d.label }

func (d *DataChannel) Send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open || d.closed {
		return errors.New("data channel not open")
	}
	d.sent = append(d.sent, append([]byte(nil), data...))
	return nil
}

func (d *DataChannel) OnOpen(f func()) {
	d.mu.Lock()
	d.onOpen = f
	d.mu.Unlock()
}

func (d *DataChannel) OnMessage(f func([]byte)) {
	d.mu.Lock()
	d.onMessage = f
	d.mu.Unlock()
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Open marks the channel open and fires the OnOpen handler.
func (d *DataChannel) Open() {
	d.mu.Lock()
	d.open = true
	f := d.onOpen
	d.mu.Unlock()
	if f != nil {
		f()
	}
}

// Deliver simulates an inbound message from the far side.
func (d *DataChannel) Deliver(data []byte) {
	d.mu.Lock()
	f := d.onMessage
	d.mu.Unlock()
	if f != nil {
		f(data)
	}
}

func (d *DataChannel) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.sent...)
}

func (d *DataChannel) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

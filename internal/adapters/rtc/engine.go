package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/voicehost/internal/app/sfu"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultAudioSlots is how many outbound audio sections an offer reserves.
const DefaultAudioSlots = 4

// ErrNoAudioSlot is returned for a track attached after the offer was made
// once every reserved audio section is taken.
var ErrNoAudioSlot = fmt.Errorf("%w: no free audio slot", core.ErrInvalidState)

type Options struct {
	ICEServers      []webrtc.ICEServer
	PortMin         uint16
	PortMax         uint16
	IncludeLoopback bool
	// AudioSlots bounds the tracks an offering engine can send. Zero means
	// DefaultAudioSlots.
	AudioSlots    int
	LoggerFactory logging.LoggerFactory
}

// Factory builds pion-backed engines sharing one API and one relay manager.
type Factory struct {
	api    *webrtc.API
	cfg    webrtc.Configuration
	relays *sfu.RelayManager
	slots  int
	ctx    context.Context
}

func NewFactory(ctx context.Context, opts Options) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if opts.LoggerFactory != nil {
		se.LoggerFactory = opts.LoggerFactory
	} else {
		se.LoggerFactory = NewLoggerFactory(log.Logger)
	}
	if opts.PortMin > 0 && opts.PortMax > 0 {
		if err := se.SetEphemeralUDPPortRange(opts.PortMin, opts.PortMax); err != nil {
			return nil, fmt.Errorf("set port range: %w", err)
		}
	}
	se.SetIncludeLoopbackCandidate(opts.IncludeLoopback)
	if opts.AudioSlots <= 0 {
		opts.AudioSlots = DefaultAudioSlots
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		cfg:    webrtc.Configuration{ICEServers: opts.ICEServers},
		relays: sfu.NewRelayManager(),
		slots:  opts.AudioSlots,
		ctx:    ctx,
	}, nil
}

// Relays exposes the forwarders of every engine this factory built.
func (f *Factory) Relays() *sfu.RelayManager { return f.relays }

func (f *Factory) NewEngine(id domain.PeerID) (core.Engine, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, core.NewOpError("new peer connection", id, err)
	}
	ctx, cancel := context.WithCancel(f.ctx)
	return &Engine{
		pc:     pc,
		id:     id,
		relays: f.relays,
		slots:  f.slots,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("module", "webrtc").Str("peer", string(id)).Logger(),
	}, nil
}

// Engine adapts one *webrtc.PeerConnection to core.Engine.
type Engine struct {
	pc     *webrtc.PeerConnection
	id     domain.PeerID
	relays *sfu.RelayManager
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu       sync.Mutex
	slots    int
	reserved bool
	free     []*webrtc.RTPSender
}

// CreateOffer reserves the audio slots before the first offer so the offer
// always carries audio sections.
func (e *Engine) CreateOffer() (webrtc.SessionDescription, error) {
	if err := e.reserveSlots(); err != nil {
		return webrtc.SessionDescription{}, core.NewOpError("reserve audio slots", e.id, err)
	}
	return e.pc.CreateOffer(nil)
}

// reserveSlots adds sendrecv audio transceivers holding placeholder tracks.
// A track attached later takes a slot over with ReplaceTrack, which needs no
// renegotiation.
func (e *Engine) reserveSlots() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reserved {
		return nil
	}
	for i := 0; i < e.slots; i++ {
		tr, err := e.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			return err
		}
		e.free = append(e.free, tr.Sender())
		go drainRTCP(tr.Sender())
	}
	e.reserved = true
	return nil
}

func (e *Engine) CreateAnswer() (webrtc.SessionDescription, error) {
	return e.pc.CreateAnswer(nil)
}

func (e *Engine) SetLocalDescription(d webrtc.SessionDescription) error {
	return e.pc.SetLocalDescription(d)
}

func (e *Engine) SetRemoteDescription(d webrtc.SessionDescription) error {
	return e.pc.SetRemoteDescription(d)
}

func (e *Engine) AddICECandidate(c webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(c)
}

func (e *Engine) CreateDataChannel(label string) (core.DataChannel, error) {
	dc, err := e.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return &dataChannel{dc: dc}, nil
}

// AddTrack attaches track. Once the offer exists, audio goes into a reserved
// slot; before that, the track gets its own transceiver and rides the offer.
func (e *Engine) AddTrack(track webrtc.TrackLocal, stream core.Stream) error {
	e.mu.Lock()
	reserved := e.reserved
	var slot *webrtc.RTPSender
	if reserved && track.Kind() == webrtc.RTPCodecTypeAudio && len(e.free) > 0 {
		slot, e.free = e.free[0], e.free[1:]
	}
	e.mu.Unlock()

	if slot != nil {
		if err := slot.ReplaceTrack(track); err != nil {
			return core.NewOpError("replace track", e.id, err)
		}
		e.logger.Info().Str("track", track.ID()).Str("stream_id", stream.ID).Msg("track placed in reserved slot")
		return nil
	}
	if reserved {
		return core.NewOpError("add track", e.id, ErrNoAudioSlot)
	}

	sender, err := e.pc.AddTrack(track)
	if err != nil {
		return err
	}
	e.logger.Info().Str("track", track.ID()).Str("stream_id", stream.ID).Msg("track added")
	go drainRTCP(sender)
	return nil
}

// Close stops this engine's forwarders and closes the connection.
func (e *Engine) Close() error {
	e.cancel()
	e.relays.StopPeer(e.id)
	if err := e.pc.Close(); err != nil {
		return core.NewOpError("close", e.id, err)
	}
	e.logger.Info().Msg("closed")
	return nil
}

func (e *Engine) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			f(c.ToJSON())
		}
	})
}

// OnTrack turns every inbound track into a local track fed by a relay, so
// the host can attach it to other connections.
func (e *Engine) OnTrack(f func(core.Stream)) {
	e.pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		e.logger.Info().
			Str("kind", remote.Kind().String()).
			Str("track_id", remote.ID()).
			Str("stream_id", remote.StreamID()).
			Msg("OnTrack received")

		local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), remote.StreamID())
		if err != nil {
			e.logger.Error().Err(err).Msg("create relay track")
			return
		}
		e.relays.StartRelay(e.ctx, e.id, remote.ID(), remote)
		e.relays.AddSubscriber(e.id, remote.ID(), "local", local)
		go drainReceiverRTCP(receiver)

		f(core.Stream{ID: remote.StreamID(), Tracks: []webrtc.TrackLocal{local}})
	})
}

func (e *Engine) OnDataChannel(f func(core.DataChannel)) {
	e.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		f(&dataChannel{dc: dc})
	})
}

func (e *Engine) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	e.pc.OnConnectionStateChange(f)
}

func (e *Engine) OnNegotiationNeeded(f func()) {
	e.pc.OnNegotiationNeeded(f)
}

// Interceptors only see RTCP that is read.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainReceiverRTCP(receiver *webrtc.RTPReceiver) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := receiver.Read(buf); err != nil {
			return
		}
	}
}

type dataChannel struct {
	dc *webrtc.DataChannel
}

func (d *dataChannel) Label() string          { return d.dc.Label() }
func (d *dataChannel) Send(data []byte) error { return d.dc.Send(data) }
func (d *dataChannel) OnOpen(f func())        { d.dc.OnOpen(f) }
func (d *dataChannel) Close() error           { return d.dc.Close() }

func (d *dataChannel) OnMessage(f func([]byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) { f(msg.Data) })
}

package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const oggPageDuration = 20 * time.Millisecond

// NoCapture is the media source of a process without a capture device.
type NoCapture struct{}

func (NoCapture) Acquire(context.Context) (webrtc.TrackLocal, core.Stream, error) {
	return nil, core.Stream{}, fmt.Errorf("%w: no capture device configured", core.ErrMediaAcquisition)
}

// OggSource plays an Ogg/Opus file in a loop as the local microphone. All
// callers share one track; streaming starts on the first Acquire and stops
// with ctx.
type OggSource struct {
	path string
	ctx  context.Context

	mu     sync.Mutex
	track  *webrtc.TrackLocalStaticSample
	stream core.Stream
}

func NewOggSource(ctx context.Context, path string) *OggSource {
	return &OggSource{path: path, ctx: ctx}
}

func (s *OggSource) Acquire(ctx context.Context) (webrtc.TrackLocal, core.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Stream{}, fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track != nil {
		return s.track, s.stream, nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, core.Stream{}, fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
	}
	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		_ = file.Close()
		return nil, core.Stream{}, fmt.Errorf("%w: %s: %v", core.ErrMediaAcquisition, s.path, err)
	}

	streamID := "voicehost-" + uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+uuid.NewString(),
		streamID,
	)
	if err != nil {
		_ = file.Close()
		return nil, core.Stream{}, fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
	}
	s.track = track
	s.stream = core.Stream{ID: streamID, Tracks: []webrtc.TrackLocal{track}}

	go s.play(file, ogg, track)
	return s.track, s.stream, nil
}

func (s *OggSource) play(file *os.File, ogg *oggreader.OggReader, track *webrtc.TrackLocalStaticSample) {
	logger := log.With().Str("module", "capture").Str("file", s.path).Logger()
	defer file.Close()

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-s.ctx.Done():
			logger.Info().Msg("capture stopped")
			return
		case <-ticker.C:
		}

		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				logger.Error().Err(err).Msg("rewind")
				return
			}
			if ogg, _, err = oggreader.NewWith(file); err != nil {
				logger.Error().Err(err).Msg("reopen ogg")
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			logger.Error().Err(err).Msg("read ogg page")
			return
		}

		samples := header.GranulePosition - lastGranule
		if header.GranulePosition < lastGranule {
			samples = 0
		}
		lastGranule = header.GranulePosition
		duration := time.Duration(samples) * time.Second / 48000

		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			logger.Debug().Err(err).Msg("write sample")
		}
	}
}

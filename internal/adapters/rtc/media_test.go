package rtc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOgg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mic.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestNoCapture(t *testing.T) {
	_, _, err := NoCapture{}.Acquire(context.Background())
	assert.ErrorIs(t, err, core.ErrMediaAcquisition)
}

func TestOggSourceMissingFile(t *testing.T) {
	src := NewOggSource(context.Background(), filepath.Join(t.TempDir(), "absent.ogg"))
	_, _, err := src.Acquire(context.Background())
	assert.ErrorIs(t, err, core.ErrMediaAcquisition)
}

func TestOggSourceSharesTrack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := NewOggSource(ctx, writeOgg(t))

	track, stream, err := src.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, track.Kind())
	require.Len(t, stream.Tracks, 1)
	assert.Equal(t, stream.ID, track.StreamID())

	again, _, err := src.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, track, again)
}

func TestOggSourceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewOggSource(context.Background(), writeOgg(t)).Acquire(ctx)
	assert.ErrorIs(t, err, core.ErrMediaAcquisition)
}

package sfu

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanReader struct{ ch chan *rtp.Packet }

func newChanReader() *chanReader { return &chanReader{ch: make(chan *rtp.Packet)} }

func (c *chanReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-c.ch
	if !ok {
		return nil, nil, io.EOF
	}
	return p, nil, nil
}

type sink struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (s *sink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.seqs = append(s.seqs, p.SequenceNumber)
	return nil
}

func (s *sink) got() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.seqs...)
}

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq}}
}

func TestRelayForwardsToAllSinks(t *testing.T) {
	m := NewRelayManager()
	src := newChanReader()
	relay := m.StartRelay(context.Background(), "alice", "audio", src)

	a, b := &sink{}, &sink{}
	require.True(t, m.AddSubscriber("alice", "audio", "a", a))
	require.True(t, m.AddSubscriber("alice", "audio", "b", b))
	assert.False(t, m.AddSubscriber("alice", "video", "a", a))

	src.ch <- pkt(1)
	src.ch <- pkt(2)
	close(src.ch)

	select {
	case <-relay.Done():
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Equal(t, []uint16{1, 2}, a.got())
	assert.Equal(t, []uint16{1, 2}, b.got())
}

func TestRelayDropsFailingSink(t *testing.T) {
	relay := NewRelay("audio", newChanReader(), func() {})
	bad := &sink{err: errors.New("gone")}
	good := &sink{}
	relay.AddOutTrack("bad", NewOutTrack(bad))
	relay.AddOutTrack("good", NewOutTrack(good))

	logger := testLogger()
	relay.forward(pkt(1), logger)
	relay.forward(pkt(2), logger)

	relay.mu.RLock()
	_, kept := relay.outTracks["good"]
	assert.Len(t, relay.outTracks, 1)
	relay.mu.RUnlock()
	assert.True(t, kept)
	assert.Equal(t, []uint16{1, 2}, good.got())
}

func TestMuteSkipsSinks(t *testing.T) {
	m := NewRelayManager()
	src := newChanReader()
	relay := m.StartRelay(context.Background(), "alice", "audio", src)
	defer close(src.ch)
	out := &sink{}
	m.AddSubscriber("alice", "audio", "x", out)
	logger := testLogger()

	assert.True(t, m.SetMuted("alice", true))
	assert.True(t, m.Muted("alice"))
	relay.forward(pkt(1), logger)

	late := &sink{}
	m.AddSubscriber("alice", "audio", "late", late)
	relay.forward(pkt(2), logger)

	assert.True(t, m.SetMuted("alice", false))
	relay.forward(pkt(3), logger)

	assert.Equal(t, []uint16{3}, out.got())
	assert.Equal(t, []uint16{3}, late.got())
	assert.False(t, m.SetMuted("nobody", true))
}

func TestMuteCarriesToNewRelay(t *testing.T) {
	m := NewRelayManager()
	m.SetMuted("bob", true)
	src := newChanReader()
	defer close(src.ch)
	relay := m.StartRelay(context.Background(), "bob", "audio", src)
	out := &sink{}
	m.AddSubscriber("bob", "audio", "x", out)

	relay.forward(pkt(1), testLogger())
	assert.Empty(t, out.got())
}

func TestStopPeer(t *testing.T) {
	m := NewRelayManager()
	src := newChanReader()
	relay := m.StartRelay(context.Background(), "alice", "audio", src)
	out := &sink{}
	m.AddSubscriber("alice", "audio", "x", out)
	require.True(t, m.HasRelay("alice"))

	m.StopPeer("alice")
	assert.False(t, m.HasRelay("alice"))

	close(src.ch)
	<-relay.Done()
	assert.Empty(t, out.got())
}

func TestAddOutTrackReplacesSink(t *testing.T) {
	relay := NewRelay("audio", newChanReader(), func() {})
	first := NewOutTrack(&sink{})
	relay.AddOutTrack("local", first)
	second := &sink{}
	relay.AddOutTrack("local", NewOutTrack(second))

	relay.forward(pkt(4), testLogger())
	assert.Equal(t, TrackStateDelete, first.State())
	assert.Equal(t, []uint16{4}, second.got())
}

func TestOutTrackDeleteIsFinal(t *testing.T) {
	ot := NewOutTrack(&sink{})
	ot.MarkMuted()
	assert.Equal(t, TrackStateMuted, ot.State())
	ot.MarkDelete()
	ot.MarkOk()
	ot.MarkMuted()
	assert.Equal(t, TrackStateDelete, ot.State())
	assert.Equal(t, "delete", ot.State().String())
}

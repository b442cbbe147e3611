package orch

import (
	"sync"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
)

type fakeTransport struct {
	*core.Observers

	mu   sync.Mutex
	open bool
	sent []domain.RelayMessage
}

func newFakeTransport(open bool) *fakeTransport {
	return &fakeTransport{Observers: core.NewObservers(), open: open}
}

func (f *fakeTransport) Send(msg domain.RelayMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return core.ErrTransport
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) setOpen() {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.Dispatch(core.EventOpened, core.Event{})
}

func (f *fakeTransport) deliver(t domain.MessageType, p *domain.Payload) {
	msg := domain.RelayMessage{Type: t, Payload: p}
	f.Dispatch(core.EventMessageReceived, core.Event{Message: &msg})
}

func (f *fakeTransport) sentOfType(t domain.MessageType) []domain.RelayMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RelayMessage
	for _, m := range f.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// events collects dispatched events of one kind.
type events struct {
	mu  sync.Mutex
	got []core.Event
}

func collect(t Transport, kind core.EventKind) *events {
	e := &events{}
	t.Subscribe(kind, func(ev core.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.got = append(e.got, ev)
	})
	return e
}

func (e *events) all() []core.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.Event(nil), e.got...)
}

package core

import (
	"sync"

	"github.com/dkeye/voicehost/internal/domain"
)

type EventKind int

const (
	EventOpened EventKind = iota
	EventClosed
	EventError
	EventMessageReceived
	EventChannelCreated
	EventNewPeer
	EventPeerDisconnected
	EventRosterUpdated
	EventReconnect
)

var eventNames = map[EventKind]string{
	EventOpened:           "opened",
	EventClosed:           "closed",
	EventError:            "error",
	EventMessageReceived:  "message_received",
	EventChannelCreated:   "channel_created",
	EventNewPeer:          "new_peer",
	EventPeerDisconnected: "peer_disconnected",
	EventRosterUpdated:    "roster_updated",
	EventReconnect:        "reconnect",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event is what subscribers receive. Only the fields relevant to the kind
// are set.
type Event struct {
	Message *domain.RelayMessage
	Room    domain.RoomID
	Peer    domain.PeerID
	Peers   []domain.PeerID
	Err     error
	Reason  string
}

type Handler func(Event)

type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn Handler
}

// Observers is an event-kind keyed registry of handlers. Dispatch is
// synchronous and runs handlers in registration order.
type Observers struct {
	mu       sync.Mutex
	next     SubscriptionID
	handlers map[EventKind][]subscription
}

func NewObservers() *Observers {
	return &Observers{handlers: make(map[EventKind][]subscription)}
}

func (o *Observers) Subscribe(kind EventKind, h Handler) SubscriptionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	o.handlers[kind] = append(o.handlers[kind], subscription{id: o.next, fn: h})
	return o.next
}

// Unsubscribe removes exactly the registration identified by id.
func (o *Observers) Unsubscribe(kind EventKind, id SubscriptionID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	subs := o.handlers[kind]
	for i, s := range subs {
		if s.id == id {
			o.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// Dispatch calls the handlers registered for kind. Handlers may subscribe or
// unsubscribe while running; changes apply to the next dispatch.
func (o *Observers) Dispatch(kind EventKind, ev Event) {
	o.mu.Lock()
	subs := make([]subscription, len(o.handlers[kind]))
	copy(subs, o.handlers[kind])
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

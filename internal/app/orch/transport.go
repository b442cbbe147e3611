package orch

import (
	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
)

// Transport is the relay connection an orchestrator drives. Inbound relay
// messages arrive as EventMessageReceived; orchestrators raise their own
// domain events through Dispatch on the same registry.
type Transport interface {
	Send(msg domain.RelayMessage) error
	IsOpen() bool
	Subscribe(kind core.EventKind, h core.Handler) core.SubscriptionID
	Unsubscribe(kind core.EventKind, id core.SubscriptionID) bool
	Dispatch(kind core.EventKind, ev core.Event)
}

package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Dialer func(ctx context.Context, addr string) (Conn, error)

func WebsocketDialer(ctx context.Context, addr string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Options struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	ReadLimit  int64
	SendBuffer int
	Dial       Dialer
}

func DefaultOptions() Options {
	return Options{
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		ReadLimit:  64 * 1024,
		SendBuffer: 32,
		Dial:       WebsocketDialer,
	}
}

// pingPeriod must stay below PongWait.
func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

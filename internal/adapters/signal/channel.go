package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrBackpressure = fmt.Errorf("%w: send buffer full", core.ErrTransport)

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateOpen
	stateClosed
)

// Channel is one relay-server connection exposed as an event source. Inbound
// frames are parsed and dispatched from the read pump, one at a time, in
// arrival order.
type Channel struct {
	*core.Observers

	opts   Options
	logger zerolog.Logger

	mu    sync.RWMutex
	state connState
	conn  Conn
	send  chan []byte
	done  chan struct{}

	wg conc.WaitGroup
}

func NewChannel(opts Options) *Channel {
	def := DefaultOptions()
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.Dial == nil {
		opts.Dial = def.Dial
	}
	return &Channel{
		Observers: core.NewObservers(),
		opts:      opts,
		logger:    log.With().Str("module", "signal").Logger(),
		done:      make(chan struct{}),
	}
}

// Connect dials addr in the background. Completion is reported as
// EventOpened, failure as EventError followed by EventClosed.
func (c *Channel) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return core.NewOpError("connect", "", fmt.Errorf("%w: already used", core.ErrTransport))
	}
	c.state = stateConnecting
	c.mu.Unlock()

	c.logger.Info().Str("addr", addr).Msg("connecting")
	c.wg.Go(func() { c.run(ctx, addr) })
	return nil
}

func (c *Channel) run(ctx context.Context, addr string) {
	conn, err := c.opts.Dial(ctx, addr)
	if err != nil {
		c.logger.Error().Err(err).Str("addr", addr).Msg("dial failed")
		c.Dispatch(core.EventError, core.Event{Err: core.NewOpError("connect", "", fmt.Errorf("%w: %v", core.ErrTransport, err))})
		c.shutdown()
		return
	}

	c.mu.Lock()
	if c.state != stateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.send = make(chan []byte, c.opts.SendBuffer)
	c.state = stateOpen
	send := c.send
	c.mu.Unlock()

	conn.SetReadLimit(c.opts.ReadLimit)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	c.wg.Go(func() { c.writePump(conn, send) })
	c.wg.Go(func() {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("ctx done, closing")
			c.Close()
		case <-c.done:
		}
	})

	c.logger.Info().Str("addr", addr).Msg("connected")
	c.Dispatch(core.EventOpened, core.Event{})
	c.readPump(conn)
}

// Send queues msg for the write pump. It never blocks: a closed transport or
// a full queue is reported as ErrTransport.
func (c *Channel) Send(msg domain.RelayMessage) error {
	op := "send " + string(msg.Type)
	data, err := msg.Marshal()
	if err != nil {
		return core.NewOpError(op, "", fmt.Errorf("%w: %v", core.ErrTransport, err))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != stateOpen {
		return core.NewOpError(op, "", fmt.Errorf("%w: not open", core.ErrTransport))
	}
	select {
	case c.send <- data:
	default:
		return core.NewOpError(op, "", ErrBackpressure)
	}
	c.logger.Debug().Str("type", string(msg.Type)).Msg("queued")
	return nil
}

func (c *Channel) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateOpen
}

// Deliver parses one inbound frame and dispatches it. Malformed frames are
// dropped.
func (c *Channel) Deliver(data []byte) {
	msg, err := domain.ParseRelayMessage(data)
	if err != nil {
		c.logger.Warn().
			Err(fmt.Errorf("%w: %v", core.ErrMalformedMessage, err)).
			Int("bytes", len(data)).
			Msg("dropping frame")
		return
	}
	c.logger.Debug().Str("type", string(msg.Type)).Msg("received")
	c.Dispatch(core.EventMessageReceived, core.Event{Message: &msg})
}

// Close sends a close frame, stops both pumps and raises EventClosed once.
func (c *Channel) Close() {
	c.shutdown()
}

// Wait blocks until every goroutine the channel started has returned.
func (c *Channel) Wait() {
	c.wg.Wait()
}

func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) shutdown() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	if c.send != nil {
		close(c.send)
	}
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	// The write pump closes conn after the close frame; force it if that
	// write stalls.
	if conn != nil {
		time.AfterFunc(c.opts.WriteWait, func() { _ = conn.Close() })
	}

	c.logger.Info().Msg("closed")
	c.Dispatch(core.EventClosed, core.Event{})
}

func (c *Channel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateClosed
}

var errUnexpectedClose = errors.New("relay connection lost")

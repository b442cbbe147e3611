package signal

import (
	"fmt"
	"time"

	"github.com/dkeye/voicehost/internal/core"
	"github.com/gorilla/websocket"
)

func (c *Channel) readPump(conn Conn) {
	defer func() {
		c.logger.Info().Msg("readPump closing")
		c.shutdown()
	}()

	if err := conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		c.logger.Error().Err(err).Msg("readPump set deadline")
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Err(err).Msg("relay closed the connection")
				return
			}
			c.logger.Error().Err(err).Msg("readPump read error")
			c.Dispatch(core.EventError, core.Event{Err: fmt.Errorf("%w: %w: %v", core.ErrTransport, errUnexpectedClose, err)})
			return
		}
		c.Deliver(data)
	}
}

// writePump owns every write on conn. It exits when send is closed, after
// sending a close frame, or on the first write error.
func (c *Channel) writePump(conn Conn, send <-chan []byte) {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("writePump ping error")
				return
			}
		}
	}
}

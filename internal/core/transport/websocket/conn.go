package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

// conn wraps one websocket. Writes go through a queue drained by writeLoop so a slow
// peer never blocks the simulation goroutine.
type conn struct {
	ws     *websocket.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	logger log.Log
}

func newConn(ws *websocket.Conn, logger log.Log) *conn {
	c := &conn{
		ws:     ws,
		out:    make(chan []byte, sendQueue),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writeLoop()
	return c
}

func (c *conn) Send(ch transport.Channel, payload []byte) error {
	frame := transport.EncodeDatagram(ch, payload)
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return transport.ErrClosed
	default:
		if ch == transport.Unreliable {
			return nil
		}
		// A peer that cannot keep up with reliable traffic is dropped.
		c.closeWith(websocket.ClosePolicyViolation, "send queue overflow")
		return transport.ErrBackpressure
	}
}

func (c *conn) Close() error {
	c.closeWith(websocket.CloseNormalClosure, "closing")
	return nil
}

func (c *conn) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func (c *conn) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case frame := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug("write failed", log.Error(err))
				c.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop delivers frames until the socket fails or is closed.
func (c *conn) readLoop(deliver func(transport.Channel, []byte)) {
	defer c.closeWith(websocket.CloseNormalClosure, "")
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", log.Error(errors.Wrap(err, "websocket read")))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		if kind != websocket.BinaryMessage {
			continue
		}
		ch, payload, err := transport.DecodeDatagram(data)
		if err != nil {
			c.logger.Debug("bad frame", log.Error(err))
			continue
		}
		deliver(ch, payload)
	}
}

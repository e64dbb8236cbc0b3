package websocket

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

// ClientConn is the participant side of a websocket session.
type ClientConn struct {
	*conn
	incoming chan transport.Packet
}

var _ transport.Conn = (*ClientConn)(nil)

// Dial connects to a host at url (ws://host:port/ws).
func Dial(ctx context.Context, url string, logger log.Log) (*ClientConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	logger = log.OrNop(logger).With(log.String("component", "transport.websocket"), log.String("remote", url))
	c := &ClientConn{
		conn:     newConn(ws, logger),
		incoming: make(chan transport.Packet, transport.DefaultInboxSize),
	}
	go func() {
		defer close(c.incoming)
		c.readLoop(func(ch transport.Channel, payload []byte) {
			pkt := transport.Packet{Channel: ch, Payload: payload}
			if ch == transport.Unreliable {
				select {
				case c.incoming <- pkt:
				default:
				}
				return
			}
			select {
			case c.incoming <- pkt:
			case <-c.done:
			}
		})
	}()
	return c, nil
}

// Incoming is closed once the connection ends.
func (c *ClientConn) Incoming() <-chan transport.Packet { return c.incoming }
func (c *ClientConn) Done() <-chan struct{}             { return c.done }

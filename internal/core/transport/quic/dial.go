package quic

import (
	"context"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

// ClientConn is the participant side of a QUIC session.
type ClientConn struct {
	*conn
	incoming chan transport.Packet
}

var _ transport.Conn = (*ClientConn)(nil)

// Dial connects to addr, opens the control stream and announces it with an empty frame
// so the host can accept it.
func Dial(ctx context.Context, addr string, logger log.Log) (*ClientConn, error) {
	qc, err := quic.DialAddr(ctx, addr, ClientTLSConfig(), quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(closeNormal, "failed to open stream")
		return nil, errors.Wrap(err, "open control stream")
	}
	if err := transport.WriteFrame(stream, transport.Reliable, nil); err != nil {
		_ = qc.CloseWithError(closeNormal, "handshake failed")
		return nil, err
	}

	logger = log.OrNop(logger).With(log.String("component", "transport.quic"), log.String("remote", addr))
	c := &ClientConn{
		conn:     newConn(qc, stream, logger),
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

func (c *ClientConn) Incoming() <-chan transport.Packet { return c.incoming }
func (c *ClientConn) Done() <-chan struct{}             { return c.done }

package quic

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

const (
	writeTimeout = 5 * time.Second
	// closeNormal and closeFull are application error codes sent on CloseWithError.
	closeNormal quic.ApplicationErrorCode = 0
	closeFull   quic.ApplicationErrorCode = 1
)

// conn carries reliable frames on one bidirectional stream and unreliable frames as
// datagrams. Frames too large for a datagram go over the stream instead.
type conn struct {
	qc      *quic.Conn
	stream  *quic.Stream
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
	logger  log.Log
}

func newConn(qc *quic.Conn, stream *quic.Stream, logger log.Log) *conn {
	return &conn{qc: qc, stream: stream, done: make(chan struct{}), logger: logger}
}

func (c *conn) Send(ch transport.Channel, payload []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	if ch == transport.Unreliable {
		err := c.qc.SendDatagram(transport.EncodeDatagram(ch, payload))
		if err == nil {
			return nil
		}
		c.logger.Debug("datagram fell back to stream", log.Error(err))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := transport.WriteFrame(c.stream, ch, payload); err != nil {
		c.closeWith(closeNormal, "write failed")
		return errors.Wrap(err, "quic send")
	}
	return nil
}

func (c *conn) Close() error {
	c.closeWith(closeNormal, "closing")
	return nil
}

func (c *conn) closeWith(code quic.ApplicationErrorCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.qc.CloseWithError(code, reason)
	})
}

// readLoop delivers stream frames and datagrams until either side of the connection
// fails. Empty reliable frames are handshakes and are not delivered.
func (c *conn) readLoop(deliver func(transport.Channel, []byte)) {
	defer c.closeWith(closeNormal, "")
	g, ctx := errgroup.WithContext(c.qc.Context())
	g.Go(func() error {
		for {
			ch, payload, err := transport.ReadFrame(c.stream)
			if err != nil {
				return err
			}
			if ch == transport.Reliable && len(payload) == 0 {
				continue
			}
			deliver(ch, payload)
		}
	})
	g.Go(func() error {
		for {
			data, err := c.qc.ReceiveDatagram(ctx)
			if err != nil {
				return err
			}
			ch, payload, err := transport.DecodeDatagram(data)
			if err != nil {
				c.logger.Debug("bad datagram", log.Error(err))
				continue
			}
			deliver(ch, payload)
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("connection ended", log.Error(err))
	}
}

func quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

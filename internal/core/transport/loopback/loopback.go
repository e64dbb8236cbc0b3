// Package loopback is an in-process transport. Offline sessions run on it with no
// remote peers; tests use Dial to attach simulated participants.
package loopback

import (
	"sync"

	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

var _ transport.Host = (*Hub)(nil)

type Hub struct {
	networked bool
	peers     *transport.Peers
	inbox     *transport.Inbox
	ids       transport.IDAllocator
	closeOnce sync.Once
}

// New creates a hub. A hub that is not networked refuses Dial.
func New(networked bool, capacity int) *Hub {
	return &Hub{
		networked: networked,
		peers:     transport.NewPeers(capacity),
		inbox:     transport.NewInbox(transport.DefaultInboxSize),
	}
}

func (h *Hub) Events() <-chan transport.Event { return h.inbox.Events() }
func (h *Hub) Networked() bool                { return h.networked }
func (h *Hub) RemoteCount() int               { return h.peers.Len() }

func (h *Hub) Send(to models.ParticipantID, ch transport.Channel, payload []byte) error {
	return h.peers.Send(to, ch, payload)
}

func (h *Hub) Broadcast(ch transport.Channel, payload []byte) error {
	return h.peers.Broadcast(ch, payload)
}

// Dial attaches a new participant and returns its end of the pipe.
func (h *Hub) Dial() (*Conn, error) {
	select {
	case <-h.inbox.Done():
		return nil, transport.ErrClosed
	default:
	}
	if !h.networked {
		return nil, transport.ErrClosed
	}
	c := &Conn{
		hub:      h,
		id:       h.ids.Next(),
		incoming: make(chan transport.Packet, transport.DefaultInboxSize),
		done:     make(chan struct{}),
	}
	if err := h.peers.Add(c.id, (*hostSide)(c)); err != nil {
		return nil, err
	}
	h.inbox.Push(transport.Event{Kind: transport.Connected, Participant: c.id})
	return c, nil
}

func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.peers.CloseAll()
		h.inbox.Close()
	})
	return nil
}

// Conn is the participant end of a loopback pipe.
type Conn struct {
	hub      *Hub
	id       models.ParticipantID
	mu       sync.Mutex
	incoming chan transport.Packet
	done     chan struct{}
	closed   bool
}

var _ transport.Conn = (*Conn)(nil)

func (c *Conn) ID() models.ParticipantID          { return c.id }
func (c *Conn) Incoming() <-chan transport.Packet { return c.incoming }
func (c *Conn) Done() <-chan struct{}             { return c.done }

func (c *Conn) Send(ch transport.Channel, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	ev := transport.Event{
		Kind:        transport.Received,
		Participant: c.id,
		Channel:     ch,
		Payload:     append([]byte(nil), payload...),
	}
	if !c.hub.inbox.Push(ev) && ch == transport.Reliable {
		return transport.ErrClosed
	}
	return nil
}

// Close detaches the participant and reports the disconnect to the hub.
func (c *Conn) Close() error {
	if !c.shutdown() {
		return nil
	}
	if c.hub.peers.Remove(c.id) {
		c.hub.inbox.Push(transport.Event{Kind: transport.Disconnected, Participant: c.id})
	}
	return nil
}

func (c *Conn) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.done)
	return true
}

// hostSide is the view of a Conn held in the hub's peer table.
type hostSide Conn

func (p *hostSide) Send(ch transport.Channel, payload []byte) error {
	c := (*Conn)(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	pkt := transport.Packet{Channel: ch, Payload: append([]byte(nil), payload...)}
	select {
	case c.incoming <- pkt:
		return nil
	default:
		if ch == transport.Unreliable {
			return nil
		}
		return transport.ErrBackpressure
	}
}

// Close is called by the hub when it shuts down.
func (p *hostSide) Close() error {
	(*Conn)(p).shutdown()
	return nil
}

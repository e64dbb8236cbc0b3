package transport

import (
	"errors"
	"sync/atomic"

	"github.com/zeusync/zombiebox/internal/core/models"
)

var (
	ErrClosed             = errors.New("transport: closed")
	ErrUnknownParticipant = errors.New("transport: unknown participant")
	ErrFull               = errors.New("transport: session is full")
	ErrBackpressure       = errors.New("transport: send queue full")
	ErrFrameTooLarge      = errors.New("transport: frame too large")
)

// Channel selects delivery guarantees.
type Channel uint8

const (
	// Reliable is ordered and lossless: control, spawn, state transitions, fire requests.
	Reliable Channel = iota
	// Unreliable may drop or reorder: periodic transforms and intents.
	Unreliable
)

func (c Channel) String() string {
	if c == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// ChannelFor maps a reliability flag to a channel.
func ChannelFor(reliable bool) Channel {
	if reliable {
		return Reliable
	}
	return Unreliable
}

// EventKind tells what happened on a Host.
type EventKind uint8

const (
	Connected EventKind = iota + 1
	Disconnected
	Received
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Received:
		return "received"
	default:
		return "unknown"
	}
}

// Event is emitted by a Host for every connect, disconnect and inbound frame.
type Event struct {
	Kind        EventKind
	Participant models.ParticipantID
	Channel     Channel
	Payload     []byte
}

// Host is the server side of the transport boundary.
type Host interface {
	// Events delivers connection lifecycle and inbound frames in arrival order per
	// participant.
	Events() <-chan Event
	Send(to models.ParticipantID, ch Channel, payload []byte) error
	Broadcast(ch Channel, payload []byte) error
	// Networked reports whether remote participants can join.
	Networked() bool
	RemoteCount() int
	Close() error
}

// Packet is a frame received by a client.
type Packet struct {
	Channel Channel
	Payload []byte
}

// Conn is the client side of the transport boundary.
type Conn interface {
	Send(ch Channel, payload []byte) error
	Incoming() <-chan Packet
	// Done is closed once the connection is gone.
	Done() <-chan struct{}
	Close() error
}

// IDAllocator hands out participant ids for remote participants. The first id is 2;
// 1 is the server.
type IDAllocator struct {
	last atomic.Int64
}

func (a *IDAllocator) Next() models.ParticipantID {
	a.last.CompareAndSwap(0, int64(models.ServerID))
	return models.ParticipantID(a.last.Add(1))
}

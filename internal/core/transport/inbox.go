package transport

import "sync"

// DefaultInboxSize is the event buffer used by the bundled hosts.
const DefaultInboxSize = 1024

// Inbox buffers Host events for the simulation goroutine. Unreliable frames are
// dropped when the buffer is full; everything else waits for room.
type Inbox struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{ch: make(chan Event, size), done: make(chan struct{})}
}

func (in *Inbox) Events() <-chan Event { return in.ch }

// Push enqueues ev and reports whether it was accepted.
func (in *Inbox) Push(ev Event) bool {
	if ev.Kind == Received && ev.Channel == Unreliable {
		select {
		case in.ch <- ev:
			return true
		case <-in.done:
			return false
		default:
			return false
		}
	}
	select {
	case in.ch <- ev:
		return true
	case <-in.done:
		return false
	}
}

// Close unblocks pending pushes. The event channel itself stays open.
func (in *Inbox) Close() {
	in.once.Do(func() { close(in.done) })
}

// Done is closed by Close.
func (in *Inbox) Done() <-chan struct{} { return in.done }

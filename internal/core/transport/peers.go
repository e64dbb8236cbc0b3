package transport

import (
	"sort"
	"sync"

	"github.com/zeusync/zombiebox/internal/core/models"
)

// Peer is one connected remote participant as seen by a Host.
type Peer interface {
	Send(ch Channel, payload []byte) error
	Close() error
}

// Peers is the participant table shared by Host implementations.
type Peers struct {
	mu       sync.RWMutex
	peers    map[models.ParticipantID]Peer
	capacity int
}

// NewPeers creates a table admitting at most capacity peers. Zero means unbounded.
func NewPeers(capacity int) *Peers {
	return &Peers{peers: make(map[models.ParticipantID]Peer), capacity: capacity}
}

// Add registers p under id. It fails with ErrFull when the table is at capacity.
func (ps *Peers) Add(id models.ParticipantID, p Peer) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.capacity > 0 && len(ps.peers) >= ps.capacity {
		return ErrFull
	}
	ps.peers[id] = p
	return nil
}

// Remove deletes id and reports whether it was present.
func (ps *Peers) Remove(id models.ParticipantID) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.peers[id]; !ok {
		return false
	}
	delete(ps.peers, id)
	return true
}

func (ps *Peers) Get(id models.ParticipantID) (Peer, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.peers[id]
	return p, ok
}

func (ps *Peers) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

// Full reports whether another peer would be rejected.
func (ps *Peers) Full() bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.capacity > 0 && len(ps.peers) >= ps.capacity
}

// Send delivers payload to id.
func (ps *Peers) Send(id models.ParticipantID, ch Channel, payload []byte) error {
	p, ok := ps.Get(id)
	if !ok {
		return ErrUnknownParticipant
	}
	return p.Send(ch, payload)
}

// Broadcast sends payload to every peer in id order. Failures on individual peers do
// not stop delivery to the rest; the first error is returned.
func (ps *Peers) Broadcast(ch Channel, payload []byte) error {
	var first error
	for _, id := range ps.IDs() {
		if err := ps.Send(id, ch, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// IDs returns the connected participant ids in ascending order.
func (ps *Peers) IDs() []models.ParticipantID {
	ps.mu.RLock()
	ids := make([]models.ParticipantID, 0, len(ps.peers))
	for id := range ps.peers {
		ids = append(ids, id)
	}
	ps.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAll closes and forgets every peer.
func (ps *Peers) CloseAll() {
	ps.mu.Lock()
	peers := ps.peers
	ps.peers = make(map[models.ParticipantID]Peer)
	ps.mu.Unlock()
	for _, p := range peers {
		_ = p.Close()
	}
}

package protocol

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/models"
)

// DeltaTracker remembers a hash of every entity state sent so far and filters out
// entities that did not change.
type DeltaTracker struct {
	hashes map[models.EntityName]uint64
	buf    [8]byte
}

func NewDeltaTracker() *DeltaTracker {
	return &DeltaTracker{hashes: make(map[models.EntityName]uint64)}
}

// Changed returns the states whose content differs from the last call. Entities absent
// from states are forgotten.
func (d *DeltaTracker) Changed(states []entity.State) []entity.State {
	seen := make(map[models.EntityName]struct{}, len(states))
	var out []entity.State
	for _, s := range states {
		seen[s.Name] = struct{}{}
		h := d.hash(s)
		if prev, ok := d.hashes[s.Name]; ok && prev == h {
			continue
		}
		d.hashes[s.Name] = h
		out = append(out, s)
	}
	for name := range d.hashes {
		if _, ok := seen[name]; !ok {
			delete(d.hashes, name)
		}
	}
	return out
}

// Reset forgets every hash so the next call returns everything.
func (d *DeltaTracker) Reset() {
	clear(d.hashes)
}

func (d *DeltaTracker) hash(s entity.State) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(string(s.Name))
	d.writeFloat(h, s.Position.X)
	d.writeFloat(h, s.Position.Y)
	d.writeFloat(h, s.Velocity.X)
	d.writeFloat(h, s.Velocity.Y)
	d.writeFloat(h, s.Rotation)
	d.writeUint(h, uint64(s.Health))
	d.writeUint(h, uint64(s.Weapon))
	d.writeUint(h, uint64(s.Kills))
	if s.Dead {
		d.writeUint(h, 1)
	}
	return h.Sum64()
}

func (d *DeltaTracker) writeFloat(h *xxhash.Digest, v float64) {
	d.writeUint(h, math.Float64bits(v))
}

func (d *DeltaTracker) writeUint(h *xxhash.Digest, v uint64) {
	binary.LittleEndian.PutUint64(d.buf[:], v)
	_, _ = h.Write(d.buf[:])
}

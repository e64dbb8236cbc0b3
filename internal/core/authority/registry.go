package authority

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
)

var (
	ErrNotServer  = errors.New("authority: only the server may assign writers")
	ErrUnassigned = errors.New("authority: facet has no writer")
)

// Key addresses one independently-authored facet of an entity.
type Key struct {
	Entity models.EntityName
	Facet  models.Facet
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Entity, k.Facet)
}

// Assignment is a single writer decision as issued by the server and replayed on clients.
type Assignment struct {
	Entity models.EntityName    `json:"entity" msgpack:"e"`
	Facet  models.Facet         `json:"facet" msgpack:"f"`
	Writer models.ParticipantID `json:"writer" msgpack:"w"`
}

func (a Assignment) Key() Key { return Key{Entity: a.Entity, Facet: a.Facet} }

// Registry records which participant writes each facet. There is at most one writer
// per key; assigning again replaces the previous writer.
type Registry struct {
	mu      sync.RWMutex
	local   models.ParticipantID
	writers map[Key]models.ParticipantID
	logger  log.Log
}

// NewRegistry creates a registry for the participant running this process.
func NewRegistry(local models.ParticipantID, logger log.Log) *Registry {
	return &Registry{
		local:   local,
		writers: make(map[Key]models.ParticipantID),
		logger:  log.OrNop(logger).With(log.String("component", "authority")),
	}
}

// Local returns the participant this registry runs on.
func (r *Registry) Local() models.ParticipantID { return r.local }

// Assign makes writer the sole writer of key. Only the server may call it.
func (r *Registry) Assign(caller models.ParticipantID, key Key, writer models.ParticipantID) error {
	if !caller.IsServer() || !r.local.IsServer() {
		r.logger.Debug("Rejected authority assignment",
			log.Participant(int64(caller)),
			log.String("key", key.String()))
		return ErrNotServer
	}

	r.mu.Lock()
	r.writers[key] = writer
	r.mu.Unlock()
	return nil
}

// AssignPolicy applies the fixed facet policy for an entity of the given kind: physics is
// written by the server, a player's intent by its owning client.
func (r *Registry) AssignPolicy(caller models.ParticipantID, entity models.EntityName, kind models.Kind, owner models.ParticipantID) ([]Assignment, error) {
	out := []Assignment{{Entity: entity, Facet: models.FacetPhysics, Writer: models.ServerID}}
	if kind == models.KindPlayer {
		out = append(out, Assignment{Entity: entity, Facet: models.FacetIntent, Writer: owner})
	}
	for _, a := range out {
		if err := r.Assign(caller, a.Key(), a.Writer); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Writer returns the writer of key.
func (r *Registry) Writer(key Key) (models.ParticipantID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.writers[key]
	if !ok {
		return 0, ErrUnassigned
	}
	return w, nil
}

// Require returns the writer of key and panics when there is none. A facet being read
// without an assigned writer is a configuration error.
func (r *Registry) Require(key Key) models.ParticipantID {
	w, err := r.Writer(key)
	if err != nil {
		panic(fmt.Errorf("%w: %s", err, key))
	}
	return w
}

// IsWriter reports whether p writes key.
func (r *Registry) IsWriter(key Key, p models.ParticipantID) bool {
	w, err := r.Writer(key)
	return err == nil && w == p
}

// IsLocalWriter reports whether this process writes key.
func (r *Registry) IsLocalWriter(key Key) bool {
	return r.IsWriter(key, r.local)
}

// Accept decides whether state for key received from a remote participant may overwrite
// the local copy. Writers never accept remote overwrites, observers accept only the writer.
func (r *Registry) Accept(key Key, from models.ParticipantID) bool {
	w, err := r.Writer(key)
	if err != nil {
		return false
	}
	if w == r.local {
		return false
	}
	if w != from {
		r.logger.Debug("Dropped state from non-writer",
			log.Participant(int64(from)),
			log.String("key", key.String()))
		return false
	}
	return true
}

// Revoke removes every facet of entity.
func (r *Registry) Revoke(entity models.EntityName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.writers {
		if k.Entity == entity {
			delete(r.writers, k)
		}
	}
}

// RevokeParticipant drops every facet written by p and returns the affected keys.
func (r *Registry) RevokeParticipant(p models.ParticipantID) []Key {
	r.mu.Lock()
	var keys []Key
	for k, w := range r.writers {
		if w == p {
			keys = append(keys, k)
			delete(r.writers, k)
		}
	}
	r.mu.Unlock()

	sortKeys(keys)
	return keys
}

// Mirror applies server-issued assignments in issue order. Clients use it instead of
// Assign.
func (r *Registry) Mirror(assignments []Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assignments {
		r.writers[a.Key()] = a.Writer
	}
}

// Entity returns the assignments of one entity ordered by facet.
func (r *Registry) Entity(entity models.EntityName) []Assignment {
	r.mu.RLock()
	var out []Assignment
	for k, w := range r.writers {
		if k.Entity == entity {
			out = append(out, Assignment{Entity: k.Entity, Facet: k.Facet, Writer: w})
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Facet < out[j].Facet })
	return out
}

// Snapshot returns all assignments ordered by entity then facet.
func (r *Registry) Snapshot() []Assignment {
	r.mu.RLock()
	out := make([]Assignment, 0, len(r.writers))
	for k, w := range r.writers {
		out = append(out, Assignment{Entity: k.Entity, Facet: k.Facet, Writer: w})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Facet < out[j].Facet
	})
	return out
}

// Len returns the number of assigned facets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.writers)
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Entity != keys[j].Entity {
			return keys[i].Entity < keys[j].Entity
		}
		return keys[i].Facet < keys[j].Facet
	})
}

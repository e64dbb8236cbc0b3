package server

import (
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/models"
)

// Pilot drives the host's own player. Offline sessions need one: participant 1 is the
// only player and nobody else authors its intent.
type Pilot interface {
	Decide(self entity.State, entities []entity.State) input.Intent
}

// localPilot feeds pilot decisions into the game as the host's intent facet and turns
// pistol presses into fire requests, the same round trip a remote client makes.
type localPilot struct {
	pilot Pilot
	edges input.Snapshot
}

func (s *Server) drivePilot() {
	lp := s.local
	if lp == nil {
		return
	}
	snap := s.game.Snapshot()
	self, ok := snap.Entity(entity.PlayerName(s.game.Registry().Local()))
	if !ok || self.Dead {
		return
	}
	intent := lp.pilot.Decide(self, snap.Entities)
	if !s.game.SetLocalIntent(intent) {
		return
	}
	lp.edges.Set(intent)
	lp.edges.Advance()
	if lp.edges.Pressed(input.ActionShoot) && self.Weapon == models.WeaponPistol {
		s.game.Fire(self.Owner, self.Weapon)
	}
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipantID(t *testing.T) {
	assert.True(t, ServerID.IsServer())
	assert.False(t, ParticipantID(2).IsServer())
	assert.Equal(t, "7", ParticipantID(7).String())
}

func TestWeaponSlotNextToggles(t *testing.T) {
	assert.Equal(t, WeaponMachineGun, WeaponPistol.Next())
	assert.Equal(t, WeaponPistol, WeaponMachineGun.Next())
}

func TestVec2Normalized(t *testing.T) {
	assert.Equal(t, Vec2{}, Vec2{}.Normalized())
	n := Vec2{X: 3, Y: 4}.Normalized()
	assert.InDelta(t, 0.6, n.X, 1e-9)
	assert.InDelta(t, 0.8, n.Y, 1e-9)
	assert.InDelta(t, 5.0, Vec2{}.Distance(Vec2{X: 3, Y: 4}), 1e-9)
}

func TestRectClamp(t *testing.T) {
	r := Rect{Width: 100, Height: 50}
	assert.Equal(t, Vec2{X: 100, Y: 0}, r.Clamp(Vec2{X: 120, Y: -3}))
	assert.True(t, r.Contains(Vec2{X: 10, Y: 10}))
	assert.False(t, r.Contains(Vec2{X: 10, Y: 51}))
}

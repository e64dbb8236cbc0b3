package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zombiebox/internal/core/authority"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/session"
)

func TestChannelSelection(t *testing.T) {
	assert.False(t, KindState.Reliable())
	assert.False(t, KindIntent.Reliable())
	assert.True(t, KindSpawn.Reliable())
	assert.True(t, KindFire.Reliable())
}

func TestSpawnTravelsAsJSON(t *testing.T) {
	msg := &Spawn{
		Entity: entity.State{Name: "2", Kind: models.KindPlayer, Owner: 2, Health: 3},
		Authority: []authority.Assignment{
			{Entity: "2", Facet: models.FacetPhysics, Writer: models.ServerID},
			{Entity: "2", Facet: models.FacetIntent, Writer: 2},
		},
	}
	data, err := Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"t":2`)

	got, err := Unmarshal(true, data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestIntentTravelsAsMsgpack(t *testing.T) {
	msg := &IntentUpdate{Entity: "3", Seq: 9, Intent: input.Intent{Move: models.Vec2{X: 1}, Shooting: true}}
	data, err := Marshal(msg)
	require.NoError(t, err)

	_, err = Unmarshal(true, data)
	assert.Error(t, err, "msgpack frame is not JSON")

	got, err := Unmarshal(false, data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestSessionStateDecodes(t *testing.T) {
	data, err := Marshal(&SessionState{State: session.GameOver})
	require.NoError(t, err)
	got, err := Unmarshal(true, data)
	require.NoError(t, err)
	assert.Equal(t, session.GameOver, got.(*SessionState).State)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Unmarshal(true, nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Unmarshal(true, []byte(`{"t":99,"d":{}}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Unmarshal(true, []byte(`not json`))
	assert.Error(t, err)
}

func TestDeltaTrackerSendsOnlyChanges(t *testing.T) {
	d := NewDeltaTracker()
	a := entity.State{Name: "Enemy_a", Position: models.Vec2{X: 1}}
	b := entity.State{Name: "Enemy_b", Position: models.Vec2{X: 2}}

	assert.Len(t, d.Changed([]entity.State{a, b}), 2)
	assert.Empty(t, d.Changed([]entity.State{a, b}))

	b.Position.X = 3
	changed := d.Changed([]entity.State{a, b})
	require.Len(t, changed, 1)
	assert.Equal(t, models.EntityName("Enemy_b"), changed[0].Name)

	// a disappears and comes back: it is sent again
	d.Changed([]entity.State{b})
	assert.Len(t, d.Changed([]entity.State{a, b}), 1)

	d.Reset()
	assert.Len(t, d.Changed([]entity.State{a, b}), 2)
}

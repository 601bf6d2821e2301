package timer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualFireOnlyWhenArmed(t *testing.T) {
	m := NewManual()
	fired := 0
	tm, err := m.NewOneShot(time.Second, func() { fired++ })
	require.NoError(t, err)

	mt := m.Last()
	require.NotNil(t, mt)
	assert.False(t, mt.Fire(), "dormant timer must not fire")

	require.NoError(t, tm.Arm(3*time.Second))
	assert.True(t, mt.Armed())
	assert.Equal(t, 3*time.Second, mt.Period())

	assert.True(t, mt.Fire())
	assert.False(t, mt.Armed())
	assert.False(t, mt.Fire(), "one-shot timer fires once per arming")
	assert.Equal(t, 1, fired)
}

func TestManualArmError(t *testing.T) {
	m := NewManual()
	tm, err := m.NewOneShot(time.Second, func() {})
	require.NoError(t, err)

	boom := errors.New("queue full")
	m.Last().SetArmError(boom)
	require.ErrorIs(t, tm.Arm(0), boom)
	require.ErrorIs(t, tm.ChangePeriod(time.Second), boom)
	assert.False(t, m.Last().Armed())
	assert.Equal(t, 0, m.Last().ArmCount())
}

func TestManualNewError(t *testing.T) {
	m := NewManual()
	m.NewError = errors.New("no timer slots")

	_, err := m.NewOneShot(time.Second, func() {})
	require.Error(t, err)
	assert.Nil(t, m.Last())
}

func TestManualCancelAndDestroy(t *testing.T) {
	m := NewManual()
	tm, err := m.NewOneShot(time.Second, func() {})
	require.NoError(t, err)

	require.NoError(t, tm.Arm(0))
	require.NoError(t, tm.Cancel())
	assert.False(t, m.Last().Armed())
	assert.Equal(t, 1, m.Last().CancelCount())

	require.NoError(t, tm.Destroy())
	assert.True(t, m.Last().Destroyed())
	assert.ErrorIs(t, tm.Arm(0), ErrDestroyed)
}

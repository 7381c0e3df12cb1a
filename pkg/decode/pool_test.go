package decode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/encode"
	"github.com/rawbytedev/fractus/pkg/errs"
)

func TestPoolReleaseInvalidatesGraph(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	def := monsterDef(t)
	p := NewPool(2)

	m, err := p.Acquire(buffer.FromBytes(buf), def, Options{})
	require.NoError(t, err)
	require.Equal(t, GreedyMutable, m.Strategy())

	weapons, err := Field[*Vector](m, "Weapons")
	require.NoError(t, err)
	w, err := weapons.At(0)
	require.NoError(t, err)
	sword := w.(*Table)

	require.NoError(t, p.Release(m))
	require.Equal(t, 1, p.Idle(def))
	require.ErrorIs(t, p.Release(m), errs.ErrDoubleRelease)

	_, err = m.Get("Name")
	require.ErrorIs(t, err, errs.ErrUseAfterRelease)
	_, err = sword.Get("Name")
	require.ErrorIs(t, err, errs.ErrUseAfterRelease)
	_, err = weapons.At(1)
	require.ErrorIs(t, err, errs.ErrUseAfterRelease)
	require.ErrorIs(t, m.Set("Speed", 1), errs.ErrUseAfterRelease)

	again, err := p.Acquire(buffer.FromBytes(buf), def, Options{})
	require.NoError(t, err)
	require.NotSame(t, m, again, "each acquisition gets a fresh handle")
	require.Zero(t, p.Idle(def))
	require.Zero(t, weapons.Len())

	require.ErrorIs(t, p.Release(m), errs.ErrDoubleRelease, "a stale handle cannot release the new owner")
	_, err = m.Get("Name")
	require.ErrorIs(t, err, errs.ErrUseAfterRelease)

	name, err := Field[string](again, "Name")
	require.NoError(t, err)
	require.Equal(t, "orc", name)
	_, err = sword.Get("Name")
	require.ErrorIs(t, err, errs.ErrUseAfterRelease, "children of an older generation stay dead")

	fresh, err := Field[*Vector](again, "Weapons")
	require.NoError(t, err)
	require.Equal(t, 2, fresh.Len())
	require.NoError(t, p.Release(again))
	require.Zero(t, fresh.Len())
}

func TestPoolLimit(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	def := monsterDef(t)
	p := NewPool(1)

	a, err := p.Acquire(buffer.FromBytes(buf), def, Options{})
	require.NoError(t, err)
	b, err := p.Acquire(buffer.FromBytes(buf), def, Options{})
	require.NoError(t, err)
	require.NotSame(t, a, b)

	require.NoError(t, p.Release(a))
	require.NoError(t, p.Release(b))
	require.Equal(t, 1, p.Idle(def))
}

func TestPoolRejectsForeignTables(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	m, err := Parse(buffer.FromBytes(buf), monsterDef(t), GreedyMutable, Options{})
	require.NoError(t, err)
	require.ErrorIs(t, NewPool(1).Release(m), errs.ErrUnsupported)
}

func TestPoolAcquireInvalidBuffer(t *testing.T) {
	def := monsterDef(t)
	p := NewPool(1)
	_, err := p.Acquire(buffer.FromBytes([]byte{0xFF, 0, 0, 0}), def, Options{})
	require.Error(t, err)

	buf := write(t, sampleMonster(), encode.Options{})
	m, err := p.Acquire(buffer.FromBytes(buf), def, Options{})
	require.NoError(t, err)
	name, err := Field[string](m, "Name")
	require.NoError(t, err)
	require.Equal(t, "orc", name)
}

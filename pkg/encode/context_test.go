package encode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/errs"
)

func TestAllocateSpaceAlignsAndZeroes(t *testing.T) {
	dirty := make([]byte, 64)
	for i := range dirty {
		dirty[i] = 0xAA
	}
	ctx := NewContext(nil)
	ctx.Reset(buffer.Array(dirty))

	off, err := ctx.AllocateSpace(1, 1)
	require.NoError(t, err)
	require.Equal(t, 0, off)

	off, err = ctx.AllocateSpace(8, 8)
	require.NoError(t, err)
	require.Equal(t, 8, off)
	require.Equal(t, 16, ctx.Offset())
	require.Equal(t, make([]byte, 15), dirty[1:16], "padding and payload are zeroed")
	require.Equal(t, byte(0xAA), dirty[16])
}

func TestAllocateVectorAlignment(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Reset(buffer.NewGrowable(0))
	_, err := ctx.AllocateSpace(2, 1)
	require.NoError(t, err)

	off, err := ctx.AllocateVector(8, 3, 8)
	require.NoError(t, err)
	require.Equal(t, 0, off%4)
	require.Equal(t, 0, (off+4)%8)
	require.Equal(t, off+4+24, ctx.Offset())

	n, err := buffer.Get[uint32](ctx.View(), off)
	require.NoError(t, err)
	require.Equal(t, uint32(3), n)

	off, err = ctx.AllocateVector(1, 5, 1)
	require.NoError(t, err)
	require.Equal(t, 0, off%4)
}

func TestGiveBack(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Reset(buffer.NewGrowable(16))
	_, err := ctx.AllocateSpace(10, 1)
	require.NoError(t, err)
	ctx.GiveBack(4)
	require.Equal(t, 6, ctx.Offset())
	ctx.GiveBack(0)
	require.Equal(t, 6, ctx.Offset())
	off, err := ctx.AllocateSpace(2, 2)
	require.NoError(t, err)
	require.Equal(t, 6, off)
}

func TestGrowthPreservesContent(t *testing.T) {
	g := buffer.NewGrowable(0)
	ctx := NewContext(nil)
	ctx.Reset(g)
	off, err := ctx.AllocateSpace(4, 4)
	require.NoError(t, err)
	require.NoError(t, buffer.Put(ctx.View(), off, uint32(0xCAFEBABE)))

	_, err = ctx.AllocateSpace(1000, 8)
	require.NoError(t, err)
	require.GreaterOrEqual(t, g.Len(), 1008)
	x, err := buffer.Get[uint32](ctx.View(), off)
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFEBABE), x)
}

func TestFixedStorageCapacity(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Reset(buffer.Array(make([]byte, 8)))
	_, err := ctx.AllocateSpace(8, 1)
	require.NoError(t, err)
	_, err = ctx.AllocateSpace(1, 1)
	require.ErrorIs(t, err, errs.ErrCapacity)

	ctx.Reset(buffer.Minimal(buffer.Array(make([]byte, 4))))
	_, err = ctx.AllocateSpace(5, 1)
	require.ErrorIs(t, err, errs.ErrCapacity)
}

package fractus

import (
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/stretchr/testify/require"
)

// fbMonster mirrors this schema:
//
//	struct Vec3 { x:float; y:float; z:float; }
//	table Monster {
//	  pos:Vec3; mana:short = 150; hp:short = 100; name:string;
//	  friendly:bool (deprecated); inventory:[ubyte]; speeds:[short];
//	  friend:Monster; hungry:bool;
//	}
type fbMonster struct {
	Pos       Vec3       `fbs:"0"`
	Mana      int16      `fbs:"1,default=150"`
	HP        int16      `fbs:"2,default=100"`
	Name      string     `fbs:"3"`
	Friendly  bool       `fbs:"4,deprecated"`
	Inventory []uint8    `fbs:"5"`
	Speeds    []int16    `fbs:"6"`
	Friend    *fbMonster `fbs:"7"`
	Hungry    bool       `fbs:"8"`
}

func slot(tab *flatbuffers.Table, index int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(tab.Offset(flatbuffers.VOffsetT(4 + 2*index)))
}

func TestOfficialRuntimeReadsOurBuffers(t *testing.T) {
	data, err := Marshal(&fbMonster{
		Pos:       Vec3{1, 2, 3},
		Mana:      150,
		HP:        300,
		Name:      "orc",
		Inventory: []uint8{7, 8, 9},
		Speeds:    []int16{-1, 2, 300},
		Friend:    &fbMonster{Name: "rat", HP: 100},
		Hungry:    true,
	}, WithFileIdentifier("MONS"))
	require.NoError(t, err)
	require.Equal(t, "MONS", string(data[4:8]))

	tab := &flatbuffers.Table{Bytes: data, Pos: flatbuffers.GetUOffsetT(data)}

	o := slot(tab, 0)
	require.NotZero(t, o)
	require.Equal(t, float32(1), tab.GetFloat32(tab.Pos+o))
	require.Equal(t, float32(2), tab.GetFloat32(tab.Pos+o+4))
	require.Equal(t, float32(3), tab.GetFloat32(tab.Pos+o+8))

	require.Zero(t, slot(tab, 1), "mana equals its default")

	o = slot(tab, 2)
	require.NotZero(t, o)
	require.Equal(t, int16(300), tab.GetInt16(tab.Pos+o))

	o = slot(tab, 3)
	require.NotZero(t, o)
	require.Equal(t, "orc", tab.String(tab.Pos+o))

	require.Zero(t, slot(tab, 4))

	o = slot(tab, 5)
	require.NotZero(t, o)
	require.Equal(t, 3, tab.VectorLen(o))
	start := tab.Vector(o)
	require.Equal(t, []byte{7, 8, 9}, tab.Bytes[start:start+3])

	o = slot(tab, 6)
	require.NotZero(t, o)
	require.Equal(t, 3, tab.VectorLen(o))
	start = tab.Vector(o)
	for i, want := range []int16{-1, 2, 300} {
		require.Equal(t, want, tab.GetInt16(start+flatbuffers.UOffsetT(2*i)))
	}

	o = slot(tab, 7)
	require.NotZero(t, o)
	friend := &flatbuffers.Table{Bytes: data, Pos: tab.Indirect(tab.Pos + o)}
	o = slot(friend, 3)
	require.NotZero(t, o)
	require.Equal(t, "rat", friend.String(friend.Pos+o))
	require.Zero(t, slot(friend, 2), "hp equals its default")

	o = slot(tab, 8)
	require.NotZero(t, o)
	require.True(t, tab.GetBool(tab.Pos+o))
}

func officialMonster() []byte {
	b := flatbuffers.NewBuilder(0)

	friendName := b.CreateString("rat")
	b.StartObject(9)
	b.PrependUOffsetTSlot(3, friendName, 0)
	friend := b.EndObject()

	name := b.CreateString("orc")
	inv := b.CreateByteVector([]byte{1, 2, 3})
	b.StartVector(2, 2, 2)
	b.PrependInt16(20)
	b.PrependInt16(10)
	speeds := b.EndVector(2)

	b.StartObject(9)
	b.PrependUOffsetTSlot(7, friend, 0)
	b.PrependUOffsetTSlot(6, speeds, 0)
	b.PrependUOffsetTSlot(5, inv, 0)
	b.PrependUOffsetTSlot(3, name, 0)
	b.PrependInt16Slot(2, 300, 100)
	b.PrependInt16Slot(1, 150, 150)
	b.PrependBoolSlot(8, true, false)
	b.Prep(4, 12)
	b.PrependFloat32(3)
	b.PrependFloat32(2)
	b.PrependFloat32(1)
	b.PrependStructSlot(0, b.Offset(), 0)
	monster := b.EndObject()
	b.FinishWithFileIdentifier(monster, []byte("MONS"))
	return b.FinishedBytes()
}

func TestWeReadOfficialBuffers(t *testing.T) {
	data := officialMonster()
	require.True(t, HasIdentifier(data, "MONS"))
	require.NoError(t, Validate[fbMonster](data, WithFileIdentifier("MONS")))

	want := &fbMonster{
		Pos:       Vec3{1, 2, 3},
		Mana:      150,
		HP:        300,
		Name:      "orc",
		Inventory: []uint8{1, 2, 3},
		Speeds:    []int16{10, 20},
		Friend:    &fbMonster{Name: "rat", Mana: 150, HP: 100},
		Hungry:    true,
	}
	var got fbMonster
	require.NoError(t, Unmarshal(data, &got))
	require.Equal(t, want, &got)

	for _, s := range []Strategy{Lazy, Progressive, Greedy, GreedyMutable} {
		tb, err := Parse[fbMonster](data, s, WithFileIdentifier("MONS"))
		require.NoError(t, err)
		speeds, err := tb.Get("Speeds")
		require.NoError(t, err)
		second, err := speeds.(*Vector).At(1)
		require.NoError(t, err)
		require.Equal(t, int16(20), second)
	}
}

// Re-encoding an official buffer and reading it with the official runtime
// closes the loop.
func TestOfficialRoundTrip(t *testing.T) {
	tb, err := Parse[fbMonster](officialMonster(), Greedy)
	require.NoError(t, err)
	data, err := Marshal(tb)
	require.NoError(t, err)

	tab := &flatbuffers.Table{Bytes: data, Pos: flatbuffers.GetUOffsetT(data)}
	o := slot(tab, 3)
	require.NotZero(t, o)
	require.Equal(t, "orc", tab.String(tab.Pos+o))
	o = slot(tab, 6)
	require.NotZero(t, o)
	require.Equal(t, 2, tab.VectorLen(o))
}

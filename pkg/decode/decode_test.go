package decode

import (
	"math"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rawbytedev/fractus/pkg/buffer"
	"github.com/rawbytedev/fractus/pkg/encode"
	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

type vec3 struct {
	X, Y, Z float32
}

type weapon struct {
	Name   string `fbs:"0,key"`
	Damage int16  `fbs:"1"`
}

type shape interface{ area() float64 }

type circle struct{ R float32 }

func (c circle) area() float64 { return math.Pi * float64(c.R) * float64(c.R) }

type square struct{ Side int32 }

func (s *square) area() float64 { return float64(s.Side) * float64(s.Side) }

type monster struct {
	Pos       vec3      `fbs:"0,writethrough"`
	Mana      int16     `fbs:"1,default=150"`
	HP        int16     `fbs:"2,default=100,writethrough"`
	Name      string    `fbs:"3,required"`
	Inventory []uint8   `fbs:"4"`
	Weapons   []*weapon `fbs:"5,sorted"`
	Path      []vec3    `fbs:"6"`
	Latitude  float64   `fbs:"7,writethrough"`
	Level     *int32    `fbs:"8"`
	Friendly  bool      `fbs:"9"`
	Old       int32     `fbs:"10,deprecated"`
	Equipped  shape     `fbs:"11"`
	Tags      []string  `fbs:"13"`
	Speed     int32     `fbs:"14"`
	Pet       *monster  `fbs:"15"`
}

// nameless shares monster's layout but never writes the required Name.
type nameless struct {
	Mana int16 `fbs:"1"`
}

type chain struct {
	V    int8
	Next *chain
}

func init() {
	if err := schema.RegisterUnion(reflect.TypeFor[shape](), reflect.TypeFor[circle](), reflect.TypeFor[*square]()); err != nil {
		panic(err)
	}
}

var strategies = []Strategy{Lazy, Progressive, Greedy, GreedyMutable}

func write(t testing.TB, v any, opts encode.Options) []byte {
	t.Helper()
	td, err := schema.Compile(reflect.TypeOf(v))
	require.NoError(t, err)
	g := buffer.NewGrowable(0)
	n, err := encode.NewEngine(opts).Write(g, td, reflect.ValueOf(v))
	require.NoError(t, err)
	return g.Bytes()[:n]
}

func monsterDef(t testing.TB) *schema.TableDef {
	t.Helper()
	td, err := schema.CompileOf[monster]()
	require.NoError(t, err)
	return td
}

func sampleMonster() *monster {
	level := int32(7)
	return &monster{
		Pos:       vec3{1, 2, 3},
		Mana:      150,
		HP:        300,
		Name:      "orc",
		Inventory: []uint8{0, 1, 2, 3, 4},
		Weapons:   []*weapon{{Name: "sword", Damage: 3}, {Name: "axe", Damage: 5}},
		Path:      []vec3{{1, 1, 1}, {2, 2, 2}},
		Latitude:  1.2,
		Level:     &level,
		Friendly:  true,
		Equipped:  circle{R: 2},
		Tags:      []string{"green", "angry"},
		Speed:     10,
		Pet:       &monster{Name: "rat", HP: 5},
	}
}

func TestRoundTripAllStrategies(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	def := monsterDef(t)

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			m, err := Parse(buffer.FromBytes(buf), def, s, Options{})
			require.NoError(t, err)
			require.Equal(t, s, m.Strategy())

			pos, err := Field[vec3](m, "Pos")
			require.NoError(t, err)
			require.Equal(t, vec3{1, 2, 3}, pos)

			mana, err := Field[int16](m, "Mana")
			require.NoError(t, err)
			require.EqualValues(t, 150, mana)
			has, err := m.Has("Mana")
			require.NoError(t, err)
			require.False(t, has, "a field equal to its default is not stored")

			hp, err := Field[int16](m, "HP")
			require.NoError(t, err)
			require.EqualValues(t, 300, hp)

			name, err := Field[string](m, "Name")
			require.NoError(t, err)
			require.Equal(t, "orc", name)

			inv, err := Field[*Vector](m, "Inventory")
			require.NoError(t, err)
			b, err := inv.Bytes()
			require.NoError(t, err)
			require.Equal(t, []byte{0, 1, 2, 3, 4}, b)

			weapons, err := Field[*Vector](m, "Weapons")
			require.NoError(t, err)
			require.Equal(t, 2, weapons.Len())
			first, err := weapons.At(0)
			require.NoError(t, err)
			wn, err := Field[string](first.(*Table), "Name")
			require.NoError(t, err)
			require.Equal(t, "axe", wn)

			level, err := Field[*int32](m, "Level")
			require.NoError(t, err)
			require.NotNil(t, level)
			require.EqualValues(t, 7, *level)

			old, err := m.Get("Old")
			require.NoError(t, err)
			require.Equal(t, int32(0), old)

			u, err := Field[Union](m, "Equipped")
			require.NoError(t, err)
			require.EqualValues(t, 1, u.Type)
			require.Equal(t, circle{R: 2}, u.Value)

			pet, err := Field[*Table](m, "Pet")
			require.NoError(t, err)
			require.NotNil(t, pet)
			petName, err := Field[string](pet, "Name")
			require.NoError(t, err)
			require.Equal(t, "rat", petName)

			byIndex, err := m.GetIndex(3)
			require.NoError(t, err)
			require.Equal(t, "orc", byIndex)

			_, err = m.Get("Missing")
			require.ErrorIs(t, err, errs.ErrUnknownField)
			_, err = Field[int64](m, "Speed")
			require.ErrorIs(t, err, errs.ErrTypeMismatch)

			var got monster
			require.NoError(t, m.Unmarshal(&got))
			want := sampleMonster()
			want.Weapons[0], want.Weapons[1] = want.Weapons[1], want.Weapons[0]
			if diff := cmp.Diff(want, &got); diff != "" {
				t.Fatalf("unmarshal mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTableUnionMember(t *testing.T) {
	buf := write(t, &monster{Name: "knight", Equipped: &square{Side: 4}}, encode.Options{})
	for _, s := range strategies {
		m, err := Parse(buffer.FromBytes(buf), monsterDef(t), s, Options{})
		require.NoError(t, err)
		u, err := Field[Union](m, "Equipped")
		require.NoError(t, err)
		require.EqualValues(t, 2, u.Type)
		side, err := Field[int32](u.Value.(*Table), "Side")
		require.NoError(t, err)
		require.EqualValues(t, 4, side)

		var got monster
		require.NoError(t, m.Unmarshal(&got))
		require.Equal(t, &square{Side: 4}, got.Equipped)
	}
}

func TestAbsentFields(t *testing.T) {
	buf := write(t, &monster{Name: "ghost"}, encode.Options{})
	for _, s := range strategies {
		m, err := Parse(buffer.FromBytes(buf), monsterDef(t), s, Options{})
		require.NoError(t, err)

		hp, err := Field[int16](m, "HP")
		require.NoError(t, err)
		require.EqualValues(t, 0, hp, "zero differs from the default of 100, so it is stored")

		level, err := Field[*int32](m, "Level")
		require.NoError(t, err)
		require.Nil(t, level)

		tags, err := Field[*Vector](m, "Tags")
		require.NoError(t, err)
		require.Nil(t, tags)

		pet, err := Field[*Table](m, "Pet")
		require.NoError(t, err)
		require.Nil(t, pet)

		u, err := Field[Union](m, "Equipped")
		require.NoError(t, err)
		require.Zero(t, u.Type)
	}
}

func TestWriteThrough(t *testing.T) {
	for _, s := range []Strategy{Lazy, Progressive} {
		t.Run(s.String(), func(t *testing.T) {
			m0 := sampleMonster()
			m0.HP = 100
			buf := write(t, m0, encode.Options{})
			view := buffer.FromBytes(buf)

			m, err := Parse(view, monsterDef(t), s, Options{})
			require.NoError(t, err)
			_, err = m.Get("Latitude")
			require.NoError(t, err)

			require.NoError(t, m.Set("Latitude", 35.683))
			lat, err := Field[float64](m, "Latitude")
			require.NoError(t, err)
			require.Equal(t, 35.683, lat)

			require.NoError(t, m.Set("Pos", vec3{4, 5, 6}))

			again, err := Parse(view, monsterDef(t), Lazy, Options{})
			require.NoError(t, err)
			lat, err = Field[float64](again, "Latitude")
			require.NoError(t, err)
			require.Equal(t, 35.683, lat, "the buffer itself was modified")
			pos, err := Field[vec3](again, "Pos")
			require.NoError(t, err)
			require.Equal(t, vec3{4, 5, 6}, pos)

			err = m.Set("Speed", int32(11))
			require.ErrorIs(t, err, errs.ErrWriteThroughDisabled)
			speed, err := Field[int32](again, "Speed")
			require.NoError(t, err)
			require.EqualValues(t, 10, speed)

			err = m.Set("HP", 120)
			require.ErrorIs(t, err, errs.ErrWriteThroughAbsent)

			err = m.Set("Latitude", "north")
			require.ErrorIs(t, err, errs.ErrTypeMismatch)

			weapons, err := Field[*Vector](m, "Weapons")
			require.NoError(t, err)
			require.ErrorIs(t, weapons.Append(&weapon{}), errs.ErrWriteThroughDisabled)
		})
	}
}

func TestGreedyIsReadOnly(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	m, err := Parse(buffer.FromBytes(buf), monsterDef(t), Greedy, Options{})
	require.NoError(t, err)

	require.ErrorIs(t, m.Set("Latitude", 2.0), errs.ErrReadOnly)
	tags, err := Field[*Vector](m, "Tags")
	require.NoError(t, err)
	require.ErrorIs(t, tags.Append("x"), errs.ErrReadOnly)
	require.ErrorIs(t, tags.Set(0, "x"), errs.ErrReadOnly)
	_, err = m.NewVector("Tags")
	require.ErrorIs(t, err, errs.ErrReadOnly)
}

func TestGreedyMutableIsDetached(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	m, err := Parse(buffer.FromBytes(buf), monsterDef(t), GreedyMutable, Options{})
	require.NoError(t, err)
	clear(buf)

	name, err := Field[string](m, "Name")
	require.NoError(t, err)
	require.Equal(t, "orc", name)

	require.NoError(t, m.Set("Name", "goblin"))
	require.NoError(t, m.Set("Speed", 42))
	require.NoError(t, m.Set("Level", nil))
	require.ErrorIs(t, m.Set("Mana", int64(1)<<40), errs.ErrTypeMismatch)
	require.ErrorIs(t, m.Set("Friendly", 1), errs.ErrTypeMismatch)

	tags, err := m.NewVector("Tags")
	require.NoError(t, err)
	require.NoError(t, tags.Append("blue"))
	require.NoError(t, tags.Append("calm"))
	require.NoError(t, tags.Set(1, "sleepy"))
	require.ErrorIs(t, tags.Set(2, "x"), errs.ErrBounds)
	require.NoError(t, m.Set("Tags", tags))

	inv, err := Field[*Vector](m, "Inventory")
	require.NoError(t, err)
	require.NoError(t, inv.Set(0, 9))

	var got monster
	require.NoError(t, m.Unmarshal(&got))
	require.Equal(t, "goblin", got.Name)
	require.EqualValues(t, 42, got.Speed)
	require.Nil(t, got.Level)
	require.Equal(t, []string{"blue", "sleepy"}, got.Tags)
	require.Equal(t, []uint8{9, 1, 2, 3, 4}, got.Inventory)
}

func TestNewTable(t *testing.T) {
	m := New(monsterDef(t))
	mana, err := Field[int16](m, "Mana")
	require.NoError(t, err)
	require.EqualValues(t, 150, mana)

	require.NoError(t, m.Set("Name", "fresh"))
	var got monster
	require.NoError(t, m.Unmarshal(&got))
	require.Equal(t, monster{Name: "fresh", Mana: 150, HP: 100}, got)
	require.ErrorIs(t, m.Unmarshal(got), errs.ErrTypeMismatch)
}

func TestRequiredFieldMissing(t *testing.T) {
	buf := write(t, &nameless{Mana: 3}, encode.Options{})
	def := monsterDef(t)

	m, err := Parse(buffer.FromBytes(buf), def, Lazy, Options{})
	require.NoError(t, err, "lazy parsing does not touch fields")
	mana, err := Field[int16](m, "Mana")
	require.NoError(t, err)
	require.EqualValues(t, 3, mana)
	_, err = m.Get("Name")
	require.ErrorIs(t, err, errs.ErrRequiredField)

	_, err = Parse(buffer.FromBytes(buf), def, Greedy, Options{})
	require.ErrorIs(t, err, errs.ErrRequiredField)

	err = Validate(buffer.FromBytes(buf), def, Options{})
	require.True(t, errors.Is(err, errs.ErrInvalidBuffer))
	require.True(t, errors.Is(err, errs.ErrRequiredField))
}

func buildChain(n int) *chain {
	var head *chain
	for i := n; i > 0; i-- {
		head = &chain{V: int8(i), Next: head}
	}
	return head
}

func TestDepthLimit(t *testing.T) {
	def, err := schema.CompileOf[chain]()
	require.NoError(t, err)
	opts := Options{MaxDepth: 5}
	ok := write(t, buildChain(5), encode.Options{MaxDepth: 10})
	deep := write(t, buildChain(6), encode.Options{MaxDepth: 10})

	for _, s := range []Strategy{Greedy, GreedyMutable} {
		_, err := Parse(buffer.FromBytes(ok), def, s, opts)
		require.NoError(t, err)
		_, err = Parse(buffer.FromBytes(deep), def, s, opts)
		require.ErrorIs(t, err, errs.ErrDepthExceeded)
	}

	walk := func(buf []byte) (int, error) {
		cur, err := Parse(buffer.FromBytes(buf), def, Lazy, opts)
		if err != nil {
			return 0, err
		}
		n := 1
		for {
			next, err := Field[*Table](cur, "Next")
			if err != nil {
				return n, err
			}
			if next == nil {
				return n, nil
			}
			cur = next
			n++
		}
	}
	n, err := walk(ok)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	n, err = walk(deep)
	require.ErrorIs(t, err, errs.ErrDepthExceeded)
	require.Equal(t, 5, n)

	require.NoError(t, Validate(buffer.FromBytes(ok), def, opts))
	err = Validate(buffer.FromBytes(deep), def, opts)
	require.True(t, errors.Is(err, errs.ErrInvalidBuffer))
	require.True(t, errors.Is(err, errs.ErrDepthExceeded))
}

func TestSearch(t *testing.T) {
	m0 := &monster{Name: "armory", Weapons: []*weapon{
		{Name: "bow", Damage: 0},
		{Name: "axe", Damage: 1},
		{Name: "axe", Damage: 2},
		{Name: "sword", Damage: 3},
		{Name: "club", Damage: 4},
	}}
	buf := write(t, m0, encode.Options{})

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			m, err := Parse(buffer.FromBytes(buf), monsterDef(t), s, Options{})
			require.NoError(t, err)
			weapons, err := Field[*Vector](m, "Weapons")
			require.NoError(t, err)

			w, found, err := weapons.Search("axe")
			require.NoError(t, err)
			require.True(t, found)
			dmg, err := Field[int16](w, "Damage")
			require.NoError(t, err)
			require.EqualValues(t, 1, dmg, "the first of equal keys in insertion order")

			w, found, err = weapons.Search([]byte("sword"))
			require.NoError(t, err)
			require.True(t, found)
			dmg, err = Field[int16](w, "Damage")
			require.NoError(t, err)
			require.EqualValues(t, 3, dmg)

			for _, missing := range []string{"aaa", "dagger", "zzz"} {
				_, found, err = weapons.Search(missing)
				require.NoError(t, err)
				require.False(t, found, missing)
			}

			_, _, err = weapons.Search(5)
			require.ErrorIs(t, err, errs.ErrTypeMismatch)

			inv, err := Field[*Vector](m, "Inventory")
			require.NoError(t, err)
			require.Nil(t, inv)
		})
	}
}

func TestSearchNeedsSortedVector(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	m, err := Parse(buffer.FromBytes(buf), monsterDef(t), Lazy, Options{})
	require.NoError(t, err)
	tags, err := Field[*Vector](m, "Tags")
	require.NoError(t, err)
	_, _, err = tags.Search("green")
	require.ErrorIs(t, err, errs.ErrNotSorted)
}

func TestVectorBounds(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	for _, s := range strategies {
		m, err := Parse(buffer.FromBytes(buf), monsterDef(t), s, Options{})
		require.NoError(t, err)
		path, err := Field[*Vector](m, "Path")
		require.NoError(t, err)
		require.Equal(t, schema.Struct, path.Elem().Kind)
		p1, err := path.At(1)
		require.NoError(t, err)
		require.Equal(t, vec3{2, 2, 2}, p1)
		_, err = path.At(2)
		require.ErrorIs(t, err, errs.ErrBounds)
		_, err = path.At(-1)
		require.ErrorIs(t, err, errs.ErrBounds)
		_, err = path.Bytes()
		require.ErrorIs(t, err, errs.ErrTypeMismatch)
	}
}

func TestFileIdentifier(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{FileIdentifier: "MONS"})
	def := monsterDef(t)
	_, err := Parse(buffer.FromBytes(buf), def, Lazy, Options{FileIdentifier: "MONS"})
	require.NoError(t, err)
	_, err = Parse(buffer.FromBytes(buf), def, Lazy, Options{FileIdentifier: "ABCD"})
	require.ErrorIs(t, err, errs.ErrInvalidBuffer)
	require.NoError(t, Validate(buffer.FromBytes(buf), def, Options{FileIdentifier: "MONS"}))
}

func TestProgressiveConcurrentReads(t *testing.T) {
	buf := write(t, sampleMonster(), encode.Options{})
	m, err := Parse(buffer.FromBytes(buf), monsterDef(t), Progressive, Options{})
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				name, err := Field[string](m, "Name")
				if err != nil {
					return err
				}
				if name != "orc" {
					return errors.Newf("read %q", name)
				}
				weapons, err := Field[*Vector](m, "Weapons")
				if err != nil {
					return err
				}
				w, err := weapons.At(j % 2)
				if err != nil {
					return err
				}
				if _, err := w.(*Table).Get("Damage"); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	a, err := Field[*Vector](m, "Weapons")
	require.NoError(t, err)
	b, err := Field[*Vector](m, "Weapons")
	require.NoError(t, err)
	require.Same(t, a, b, "progressive tables cache their children")
}

func TestStrategyNames(t *testing.T) {
	for _, s := range strategies {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseStrategy("eager")
	require.Error(t, err)
	_, err = Parse(buffer.FromBytes(write(t, sampleMonster(), encode.Options{})), monsterDef(t), Strategy(9), Options{})
	require.Error(t, err)
}

type nanRecord struct {
	F  float32   `fbs:"0,writethrough"`
	P  *float32  `fbs:"1"`
	V  vec3      `fbs:"2"`
	Fs []float32 `fbs:"3"`
}

func TestFloat32NaNPayloadSurvives(t *testing.T) {
	const snan = 0x7f800001
	p := math.Float32frombits(snan + 1)
	in := &nanRecord{
		F:  math.Float32frombits(snan),
		P:  &p,
		V:  vec3{Y: math.Float32frombits(snan + 2)},
		Fs: []float32{math.Float32frombits(snan + 3)},
	}
	buf := write(t, in, encode.Options{})
	def, err := schema.CompileOf[nanRecord]()
	require.NoError(t, err)

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			r, err := Parse(buffer.FromBytes(buf), def, s, Options{})
			require.NoError(t, err)
			f, err := Field[float32](r, "F")
			require.NoError(t, err)
			require.EqualValues(t, snan, math.Float32bits(f))
			ptr, err := Field[*float32](r, "P")
			require.NoError(t, err)
			require.EqualValues(t, snan+1, math.Float32bits(*ptr))
			v, err := Field[vec3](r, "V")
			require.NoError(t, err)
			require.EqualValues(t, snan+2, math.Float32bits(v.Y))

			var out nanRecord
			require.NoError(t, r.Unmarshal(&out))
			require.EqualValues(t, snan, math.Float32bits(out.F))
			require.EqualValues(t, snan+3, math.Float32bits(out.Fs[0]))
		})
	}

	mutable := append([]byte(nil), buf...)
	r, err := Parse(buffer.FromBytes(mutable), def, Lazy, Options{})
	require.NoError(t, err)
	require.NoError(t, r.Set("F", math.Float32frombits(snan+4)))
	f, err := Field[float32](r, "F")
	require.NoError(t, err)
	require.EqualValues(t, snan+4, math.Float32bits(f), "write-through keeps the payload")
}

package fractus

import (
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type goldenPoint struct {
	X int32 `yaml:"x"`
	Y int32 `yaml:"y"`
}

type goldenLabel struct {
	Name string `yaml:"name"`
}

type golden[T any] struct {
	Name  string `yaml:"name"`
	Value T      `yaml:"value"`
	Hex   string `yaml:"hex"`
}

type goldenFile struct {
	Point []golden[goldenPoint] `yaml:"point"`
	Label []golden[goldenLabel] `yaml:"label"`
}

func loadGolden(t *testing.T) goldenFile {
	t.Helper()
	raw, err := os.ReadFile("testdata/golden.yaml")
	require.NoError(t, err)
	var f goldenFile
	require.NoError(t, yaml.Unmarshal(raw, &f))
	require.NotEmpty(t, f.Point)
	require.NotEmpty(t, f.Label)
	return f
}

func checkGolden[T any](t *testing.T, cases []golden[T]) {
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			want, err := hex.DecodeString(strings.Join(strings.Fields(c.Hex), ""))
			require.NoError(t, err)

			got, err := Marshal(&c.Value)
			require.NoError(t, err)
			require.Equal(t, want, got, "encoded %x", got)

			var back T
			require.NoError(t, Unmarshal(want, &back))
			require.Equal(t, c.Value, back)
		})
	}
}

func TestGoldenEncodings(t *testing.T) {
	f := loadGolden(t)
	t.Run("point", func(t *testing.T) { checkGolden(t, f.Point) })
	t.Run("label", func(t *testing.T) { checkGolden(t, f.Label) })
}

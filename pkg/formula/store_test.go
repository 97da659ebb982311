package formula

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pourtree/pourtree/pkg/types"
)

func TestLookup(t *testing.T) {
	store := NewStore([]types.Formula{
		{Name: "jq", FullName: "jq", Dependencies: []string{"oniguruma"}},
		{Name: "oniguruma", FullName: "oniguruma"},
	})

	f, ok := store.Lookup("jq")
	require.True(t, ok)
	assert.Equal(t, []string{"oniguruma"}, store.Dependencies(f))

	_, ok = store.Lookup("nope")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	content := `[
  {
    "name": "jq",
    "full_name": "jq",
    "versions": {"stable": "1.7.1"},
    "revision": 0,
    "dependencies": ["oniguruma"],
    "bottle": {
      "stable": {
        "rebuild": 0,
        "files": {
          "x86_64_linux": {
            "cellar": ":any_skip_relocation",
            "url": "https://ghcr.io/v2/homebrew/core/jq/blobs/sha256:deadbeef",
            "sha256": "deadbeef"
          }
        }
      }
    }
  }
]`
	path := filepath.Join(t.TempDir(), "formula.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	store, err := LoadFile(path)
	require.NoError(t, err)

	f, ok := store.Lookup("jq")
	require.True(t, ok)
	assert.Equal(t, "1.7.1", f.Versions.Stable)

	bottle, ok := f.Bottle["stable"]
	require.True(t, ok)
	file, ok := bottle.Files["x86_64_linux"]
	require.True(t, ok)
	assert.Equal(t, ":any_skip_relocation", file.Cellar)
	assert.Equal(t, "deadbeef", file.Sha256)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

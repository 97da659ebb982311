package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pourtree/pourtree/pkg/config"
	"github.com/pourtree/pourtree/pkg/filesystem"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		Target:     "x86_64_linux",
		CacheDir:   filepath.Join(root, "cache"),
		CellarDir:  filepath.Join(root, "cellar"),
		MetaDir:    filepath.Join(root, "meta"),
		ScriptsDir: filepath.Join(root, "scripts"),
		PrefixDir:  filepath.Join(root, "prefix"),
	}
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	p := New(testConfig(root))

	assert.Equal(t, filepath.Join(root, "cache", "pkg"), p.PkgCacheDir())
	assert.Equal(t,
		filepath.Join(root, "cache", "pkg", "jq-1.7.x86_64_linux.bottle.tar.gz"),
		p.ArchivePath("jq-1.7.x86_64_linux.bottle.tar.gz"))
	assert.Equal(t, filepath.Join(root, "cellar", "jq", "1.7"), p.KegPath("jq/1.7"))
	assert.Equal(t, filepath.Join(root, "prefix", "opt", "jq"), p.OptPath("jq"))
	assert.Equal(t, filepath.Join(root, "meta", "local", "jq", "current"), p.MetaCurrentPath("jq"))
	assert.Equal(t, filepath.Join(root, "scripts", "jq.sh"), p.PostInstallScript("jq"))
}

func TestEnsureLayout(t *testing.T) {
	root := t.TempDir()
	p := New(testConfig(root))

	require.NoError(t, p.EnsureLayout(filesystem.NewOS()))

	for _, dir := range []string{p.PkgCacheDir(), p.CellarDir(), p.MetaLocalDir(), p.OptDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	// Idempotent: existing directories are fine.
	require.NoError(t, p.EnsureLayout(filesystem.NewOS()))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "kegs"), expandHome("~/kegs"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "~other/path", expandHome("~other/path"))
}

package postinstall

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pourtree/pourtree/pkg/config"
	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/paths"
	"github.com/pourtree/pourtree/pkg/types"
)

func testRunner(t *testing.T) (*Runner, paths.Paths) {
	t.Helper()
	root := t.TempDir()
	p := paths.New(&config.Config{
		Target:     "x86_64_linux",
		CacheDir:   filepath.Join(root, "cache"),
		CellarDir:  filepath.Join(root, "cellar"),
		MetaDir:    filepath.Join(root, "meta"),
		ScriptsDir: filepath.Join(root, "scripts"),
		PrefixDir:  filepath.Join(root, "prefix"),
	})
	require.NoError(t, os.MkdirAll(p.ScriptsDir(), 0755))
	return NewRunner(p), p
}

func writeScript(t *testing.T, p paths.Paths, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(p.PostInstallScript(name), []byte(body), 0755))
}

func TestRunExportsEnvironment(t *testing.T) {
	r, p := testRunner(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	writeScript(t, p, "jq", `post_install() {
  echo "$PREFIX:$CELLAR:$PKG_NAME" > `+out+`
}
`)

	pkg := &types.Package{Name: "jq", Version: "1.7", Keg: "jq/1.7"}
	require.NoError(t, r.Run(context.Background(), pkg))

	// CELLAR is the package's keg directory, not the cellar root.
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, p.PrefixDir()+":"+p.KegPath("jq/1.7")+":jq\n", string(data))
}

func TestRunNoScript(t *testing.T) {
	r, _ := testRunner(t)
	require.NoError(t, r.Run(context.Background(), &types.Package{Name: "jq"}))
}

func TestRunFailureCarriesOutput(t *testing.T) {
	r, p := testRunner(t)
	writeScript(t, p, "jq", `post_install() {
  echo "something went wrong"
  return 3
}
`)

	err := r.Run(context.Background(), &types.Package{Name: "jq"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPostInstallFailed))
	assert.Contains(t, errors.GetErrorDetails(err)["output"], "something went wrong")
}

func TestRunMissingFunction(t *testing.T) {
	r, p := testRunner(t)
	writeScript(t, p, "jq", `echo "script body without the hook function"`+"\n")

	err := r.Run(context.Background(), &types.Package{Name: "jq"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPostInstallFailed))
}

package pipeline

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pourtree/pourtree/pkg/config"
	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/formula"
	"github.com/pourtree/pourtree/pkg/paths"
	"github.com/pourtree/pourtree/pkg/types"
)

type entry struct {
	name string
	body string
	mode int64
	dir  bool
}

// buildBottle assembles a tar.gz archive in memory and returns its
// bytes and sha256 hex digest.
func buildBottle(t *testing.T, entries []entry) ([]byte, string) {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode}
		if hdr.Mode == 0 {
			hdr.Mode = 0644
		}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:])
}

type fixture struct {
	cfg   *config.Config
	store types.FormulaStore
	paths paths.Paths
}

// newFixture serves two bottles (foo depends on bar) from a local
// mirror and returns a matching config and formula store.
func newFixture(t *testing.T, fooSha256Override string) *fixture {
	t.Helper()
	root := t.TempDir()

	fooBottle, fooSha := buildBottle(t, []entry{
		{name: "foo/1.0/bin/foo", body: "run @@HOMEBREW_PREFIX@@/etc/foo.conf\n", mode: 0755},
		{name: "foo/1.0/etc/foo.conf", body: "threshold = 3\n"},
		{name: "foo/1.0/.brew/foo.rb", body: "class Foo < Formula\n  link_overwrite \"etc/foo.conf\"\nend\n"},
	})
	barBottle, barSha := buildBottle(t, []entry{
		{name: "bar/2.1", dir: true},
		{name: "bar/2.1/bin/bar", body: "#!/bin/sh\necho bar\n", mode: 0755},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/foo-1.0.x86_64_linux.bottle.tar.gz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(fooBottle)
	})
	mux.HandleFunc("/bar-2.1.x86_64_linux.bottle.tar.gz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(barBottle)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	if fooSha256Override != "" {
		fooSha = fooSha256Override
	}

	cfg := &config.Config{
		Target:      "x86_64_linux",
		Mirrors:     []config.Mirror{{URL: server.URL}},
		Concurrency: 2,
		CacheDir:    filepath.Join(root, "cache"),
		CellarDir:   filepath.Join(root, "cellar"),
		MetaDir:     filepath.Join(root, "meta"),
		ScriptsDir:  filepath.Join(root, "scripts"),
		PrefixDir:   filepath.Join(root, "prefix"),
	}

	store := formula.NewStore([]types.Formula{
		{
			Name:         "foo",
			FullName:     "foo",
			Versions:     types.Versions{Stable: "1.0"},
			Dependencies: []string{"bar"},
			Bottle: map[string]types.BottleSpec{
				"stable": {Files: map[string]types.BottleFile{
					"x86_64_linux": {Cellar: ":any", Sha256: fooSha},
				}},
			},
		},
		{
			Name:     "bar",
			FullName: "bar",
			Versions: types.Versions{Stable: "2.1"},
			Bottle: map[string]types.BottleSpec{
				"stable": {Files: map[string]types.BottleFile{
					"x86_64_linux": {Cellar: ":any_skip_relocation", Sha256: barSha},
				}},
			},
		},
	})

	return &fixture{cfg: cfg, store: store, paths: paths.New(cfg)}
}

func names(pkgs []*types.Package) []string {
	var out []string
	for _, p := range pkgs {
		out = append(out, p.Name)
	}
	return out
}

func TestRunInstallsRequestAndDependencies(t *testing.T) {
	fx := newFixture(t, "")
	require.NoError(t, os.MkdirAll(fx.cfg.ScriptsDir, 0755))
	hookMark := filepath.Join(t.TempDir(), "hook-ran")
	require.NoError(t, os.WriteFile(fx.paths.PostInstallScript("foo"),
		[]byte("post_install() {\n  touch "+hookMark+"\n}\n"), 0755))

	pl := New(fx.cfg, fx.store, Options{})
	result, err := pl.Run(context.Background(), []string{"foo"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"foo", "bar"}, names(result.Installed))
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Unresolved)

	for _, p := range result.Installed {
		assert.Equal(t, types.StageDone, p.Stage)
		assert.NotEmpty(t, p.Links, p.Name)
	}

	foo, ok := pl.Registry().Get("foo")
	require.True(t, ok)
	assert.True(t, foo.Explicit)
	bar, ok := pl.Registry().Get("bar")
	require.True(t, ok)
	assert.False(t, bar.Explicit)
	assert.Equal(t, []string{"foo"}, bar.RequiredBy)

	// Relocation rewrote the placeholder in foo's binary dir.
	data, err := os.ReadFile(filepath.Join(fx.cfg.CellarDir, "foo/1.0/bin/foo"))
	require.NoError(t, err)
	assert.Equal(t, "run "+fx.cfg.PrefixDir+"/etc/foo.conf\n", string(data))
	assert.Equal(t, []string{"foo/1.0/bin/foo"}, foo.PatchedText)

	// Linking published conventional dirs plus the manifest override.
	for _, link := range []string{"bin/foo", "etc/foo.conf", "bin/bar"} {
		target, err := os.Readlink(filepath.Join(fx.cfg.PrefixDir, link))
		require.NoError(t, err, link)
		assert.Contains(t, target, fx.cfg.CellarDir)
	}
	optTarget, err := os.Readlink(fx.paths.OptPath("foo"))
	require.NoError(t, err)
	assert.Equal(t, fx.paths.KegPath("foo/1.0"), optTarget)

	// Install records persisted for both packages.
	for _, name := range []string{"foo", "bar"} {
		_, err := os.Stat(fx.paths.MetaCurrentPath(name))
		assert.NoError(t, err, name)
	}

	// The post-install hook ran.
	_, err = os.Stat(hookMark)
	assert.NoError(t, err)

	// bar's archive ships no manifest; that is a warning, not a failure.
	require.NotEmpty(t, result.Warnings)
	assert.True(t, errors.IsErrorCode(result.Warnings[0], errors.ErrArchiveInvalid))
}

func TestRunChecksumMismatchFailsOnePackage(t *testing.T) {
	fx := newFixture(t, "deadbeef")

	pl := New(fx.cfg, fx.store, Options{})
	result, err := pl.Run(context.Background(), []string{"foo"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"bar"}, names(result.Installed))
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "foo", result.Failed[0].Name)
	assert.True(t, errors.IsErrorCode(result.Failed[0].Errors[0], errors.ErrChecksumMismatch))

	// The failed package was never linked.
	_, err = os.Lstat(filepath.Join(fx.cfg.PrefixDir, "bin/foo"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunUnresolvedNameDoesNotBlockSiblings(t *testing.T) {
	fx := newFixture(t, "")

	pl := New(fx.cfg, fx.store, Options{})
	result, err := pl.Run(context.Background(), []string{"bar", "nonexistent"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"bar"}, names(result.Installed))
	require.Len(t, result.Unresolved, 1)
	assert.True(t, errors.IsErrorCode(result.Unresolved[0], errors.ErrUnresolvedName))
}

func TestRunSkipUnpackLeavesCellarUntouched(t *testing.T) {
	fx := newFixture(t, "")

	pl := New(fx.cfg, fx.store, Options{SkipUnpack: true})
	result, err := pl.Run(context.Background(), []string{"foo"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"foo", "bar"}, names(result.Installed))
	for _, p := range result.Installed {
		assert.Equal(t, types.StageVerified, p.Stage)
		assert.NotEmpty(t, p.Files)
		assert.Empty(t, p.Links)

		// Archives are cached, the cellar has no keg.
		_, err := os.Stat(p.ArchivePath)
		assert.NoError(t, err)
		_, err = os.Stat(fx.paths.KegPath(p.Keg))
		assert.True(t, os.IsNotExist(err))
	}
}

func TestRunReportsDownloadProgress(t *testing.T) {
	fx := newFixture(t, "")

	var mu sync.Mutex
	finals := map[string]types.DownloadState{}

	pl := New(fx.cfg, fx.store, Options{
		SkipUnpack: true,
		Progress: func(p *types.Package) types.ProgressSink {
			return sinkFunc(func(state types.DownloadState) {
				mu.Lock()
				finals[p.Name] = state
				mu.Unlock()
			})
		},
	})
	result, err := pl.Run(context.Background(), []string{"foo"})
	require.NoError(t, err)
	require.Empty(t, result.Failed)

	mu.Lock()
	defer mu.Unlock()
	for _, name := range []string{"foo", "bar"} {
		state, ok := finals[name]
		require.True(t, ok, name)
		assert.Positive(t, state.Current, name)
	}
}

type sinkFunc func(types.DownloadState)

func (f sinkFunc) Send(state types.DownloadState) { f(state) }

func TestRunCachedArchiveSkipsDownload(t *testing.T) {
	fx := newFixture(t, "")

	pl := New(fx.cfg, fx.store, Options{SkipUnpack: true})
	first, err := pl.Run(context.Background(), []string{"foo"})
	require.NoError(t, err)
	require.Empty(t, first.Failed)
	assert.Positive(t, first.DownloadSize)

	// Second run finds everything cached: nothing counts toward the
	// download total.
	pl2 := New(fx.cfg, fx.store, Options{SkipUnpack: true})
	second, err := pl2.Run(context.Background(), []string{"foo"})
	require.NoError(t, err)
	require.Empty(t, second.Failed)
	assert.Zero(t, second.DownloadSize)
}

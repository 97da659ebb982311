package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
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

func testPaths(t *testing.T) paths.Paths {
	t.Helper()
	root := t.TempDir()
	return paths.New(&config.Config{
		CacheDir:   filepath.Join(root, "cache"),
		CellarDir:  filepath.Join(root, "cellar"),
		MetaDir:    filepath.Join(root, "meta"),
		ScriptsDir: filepath.Join(root, "scripts"),
		PrefixDir:  filepath.Join(root, "prefix"),
	})
}

func TestSizeProbe(t *testing.T) {
	var heads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		heads++
		w.Header().Set("Content-Length", "12345")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &types.Package{
		Name: "foo", FullName: "foo", Version: "1.0", Arch: "x86_64_linux",
		URL: srv.URL + "/foo.tar.gz", Stage: types.StageURLResolved,
	}

	warn := NewSizeResolver(testPaths(t)).Resolve(context.Background(), p)
	require.NoError(t, warn)

	assert.Equal(t, 1, heads)
	assert.Equal(t, int64(12345), p.Size)
	assert.Equal(t, int64(12345), p.DownloadSize)
	assert.Equal(t, "foo-1.0.x86_64_linux.bottle.tar.gz", p.ArchiveName)
	assert.Equal(t, types.StageSizeResolved, p.Stage)
}

func TestSizeProbeSkipsCachedArchive(t *testing.T) {
	tp := testPaths(t)
	require.NoError(t, os.MkdirAll(tp.PkgCacheDir(), 0755))
	archive := tp.ArchivePath("foo-1.0.x86_64_linux.bottle.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("cached"), 0644))

	p := &types.Package{
		Name: "foo", FullName: "foo", Version: "1.0", Arch: "x86_64_linux",
		URL: "http://127.0.0.1:1/unreachable", Stage: types.StageURLResolved,
	}

	warn := NewSizeResolver(tp).Resolve(context.Background(), p)
	require.NoError(t, warn)

	// Cached archives are excluded from the download total.
	assert.Zero(t, p.DownloadSize)
	assert.Equal(t, archive, p.ArchivePath)
	assert.Equal(t, types.StageSizeResolved, p.Stage)
}

func TestSizeProbeFailureIsNonFatal(t *testing.T) {
	p := &types.Package{
		Name: "foo", FullName: "foo", Version: "1.0", Arch: "x86_64_linux",
		URL: "http://127.0.0.1:1/unreachable", Stage: types.StageURLResolved,
	}

	warn := NewSizeResolver(testPaths(t)).Resolve(context.Background(), p)
	require.Error(t, warn)
	assert.True(t, errors.IsErrorCode(warn, errors.ErrSizeProbeFailed))

	// The package itself keeps going with size zero.
	assert.False(t, p.Failed())
	assert.Zero(t, p.Size)
	assert.Equal(t, types.StageSizeResolved, p.Stage)
}

func TestSizeProbeNon2xxIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := &types.Package{
		Name: "foo", FullName: "foo", Version: "1.0", Arch: "x86_64_linux",
		URL: srv.URL, Stage: types.StageURLResolved,
	}

	warn := NewSizeResolver(testPaths(t)).Resolve(context.Background(), p)
	require.NoError(t, warn)
	assert.False(t, p.Failed())
	assert.Zero(t, p.Size)
}

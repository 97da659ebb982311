// Package paths provides centralized path handling for pourtree.
// All locations the pipeline writes to derive from the configured
// filesystem roots; nothing else in the codebase joins path segments
// for those locations directly.
package paths

import (
	"os"
	"path/filepath"

	"github.com/pourtree/pourtree/pkg/config"
	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/types"
)

// Directory and file names inside the managed roots. These define
// pourtree's on-disk layout and are not user-configurable.
const (
	// PkgCacheDirName is the subdirectory of the cache dir holding
	// downloaded bottle archives.
	PkgCacheDirName = "pkg"

	// MetaLocalDirName is the subdirectory of the meta dir holding
	// per-package install records.
	MetaLocalDirName = "local"

	// MetaCurrentName is the file name of the active install record.
	MetaCurrentName = "current"

	// OptDirName is the subdirectory of the prefix holding per-package
	// canonical keg symlinks.
	OptDirName = "opt"
)

// Paths resolves every location the pipeline reads or writes.
type Paths interface {
	CacheDir() string
	PkgCacheDir() string
	ArchivePath(archiveName string) string

	CellarDir() string
	KegPath(keg string) string

	PrefixDir() string
	OptDir() string
	OptPath(name string) string

	MetaDir() string
	MetaLocalDir() string
	MetaCurrentPath(name string) string

	ScriptsDir() string
	PostInstallScript(name string) string

	// EnsureLayout creates the directories the pipeline requires.
	// Failure here is environment-level and aborts the run.
	EnsureLayout(fs types.FS) error
}

type paths struct {
	cacheDir   string
	cellarDir  string
	metaDir    string
	scriptsDir string
	prefixDir  string
}

// New creates a Paths instance from the loaded configuration.
func New(cfg *config.Config) Paths {
	return &paths{
		cacheDir:   expandHome(cfg.CacheDir),
		cellarDir:  expandHome(cfg.CellarDir),
		metaDir:    expandHome(cfg.MetaDir),
		scriptsDir: expandHome(cfg.ScriptsDir),
		prefixDir:  expandHome(cfg.PrefixDir),
	}
}

func (p *paths) CacheDir() string {
	return p.cacheDir
}

func (p *paths) PkgCacheDir() string {
	return filepath.Join(p.cacheDir, PkgCacheDirName)
}

// ArchivePath returns the cache location of a downloaded bottle.
func (p *paths) ArchivePath(archiveName string) string {
	return filepath.Join(p.PkgCacheDir(), archiveName)
}

func (p *paths) CellarDir() string {
	return p.cellarDir
}

// KegPath returns the install directory of a keg ("name/version")
// under the cellar.
func (p *paths) KegPath(keg string) string {
	return filepath.Join(p.cellarDir, keg)
}

func (p *paths) PrefixDir() string {
	return p.prefixDir
}

func (p *paths) OptDir() string {
	return filepath.Join(p.prefixDir, OptDirName)
}

// OptPath returns the canonical per-package symlink location.
func (p *paths) OptPath(name string) string {
	return filepath.Join(p.OptDir(), name)
}

func (p *paths) MetaDir() string {
	return p.metaDir
}

func (p *paths) MetaLocalDir() string {
	return filepath.Join(p.metaDir, MetaLocalDirName)
}

// MetaCurrentPath returns the location of a package's active install
// record.
func (p *paths) MetaCurrentPath(name string) string {
	return filepath.Join(p.MetaLocalDir(), name, MetaCurrentName)
}

func (p *paths) ScriptsDir() string {
	return p.scriptsDir
}

// PostInstallScript returns the optional hook script location for a
// package.
func (p *paths) PostInstallScript(name string) string {
	return filepath.Join(p.scriptsDir, name+".sh")
}

func (p *paths) EnsureLayout(fs types.FS) error {
	for _, dir := range []string{
		p.PkgCacheDir(),
		p.cellarDir,
		p.MetaLocalDir(),
		p.OptDir(),
	} {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", dir)
		}
	}
	return nil
}

// expandHome expands ~ to the home directory
func expandHome(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = os.Getenv("HOME")
			if homeDir == "" {
				return path
			}
		}

		if len(path) == 1 {
			return homeDir
		}

		if path[1] == '/' || path[1] == filepath.Separator {
			return filepath.Join(homeDir, path[2:])
		}

		return path
	}

	return path
}

// Package linker publishes installed kegs into the shared prefix by
// symlinking their conventional directories, plus any overrides the
// package manifest declares.
package linker

import (
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/paths"
	"github.com/pourtree/pourtree/pkg/types"
)

// Subdirectories of lib that are linked as whole directories rather
// than entry by entry.
var libWholeDirs = []string{"pkgconfig", "cmake"}

// Linker symlinks keg contents into the prefix. Existing entries at a
// link destination are clobbered, never merged.
type Linker struct {
	paths  paths.Paths
	fs     types.FS
	logger zerolog.Logger
}

// New creates a Linker over the configured prefix and cellar.
func New(p paths.Paths, filesystem types.FS) *Linker {
	return &Linker{
		paths:  p,
		fs:     filesystem,
		logger: logging.GetLogger("linker"),
	}
}

// LinkPackage symlinks the package's keg into the prefix and records
// the created links on the package, directories with a trailing slash.
// It also replaces the package's opt symlink with one pointing at this
// keg. Individual missing sources are logged and skipped; a failure to
// create a link is fatal to this package's linking.
func (l *Linker) LinkPackage(p *types.Package) error {
	kegPath := l.paths.KegPath(p.Keg)

	relLinks, err := l.linkablePaths(p, kegPath)
	if err != nil {
		return err
	}

	var links []string
	for _, rel := range relLinks {
		src := filepath.Join(kegPath, rel)
		dst := filepath.Join(l.paths.PrefixDir(), rel)

		info, err := l.fs.Lstat(src)
		if err != nil {
			l.logger.Error().Str("package", p.Name).Str("source", src).
				Msg("link source missing, skipping")
			continue
		}

		if err := l.replaceWithSymlink(src, dst); err != nil {
			return errors.Wrapf(err, errors.ErrLinkFailed,
				"linking %s of package %s", rel, p.Name).
				WithDetail("package", p.Name).
				WithDetail("link", rel)
		}

		if info.IsDir() {
			rel += "/"
		}
		links = append(links, rel)
		l.logger.Debug().Str("source", src).Str("target", dst).Msg("linked")
	}

	if err := l.replaceWithSymlink(kegPath, l.paths.OptPath(p.Name)); err != nil {
		return errors.Wrapf(err, errors.ErrLinkFailed,
			"creating opt link for package %s", p.Name).
			WithDetail("package", p.Name)
	}

	p.Links = links
	return nil
}

// linkablePaths collects the keg-relative paths to link: per-package
// share and libexec directories, the entries of the conventional
// directories, and the manifest's link_overwrite list.
func (l *Linker) linkablePaths(p *types.Package, kegPath string) ([]string, error) {
	var rels []string

	base := p.BaseName()
	for _, dir := range []string{"share", "libexec"} {
		rel := filepath.Join(dir, base)
		if _, err := l.fs.Lstat(filepath.Join(kegPath, rel)); err == nil {
			rels = append(rels, rel)
		}
	}

	rels = append(rels, l.listEntries(kegPath, "bin", nil)...)
	rels = append(rels, l.listEntries(kegPath, "lib", libWholeDirs)...)
	for _, sub := range libWholeDirs {
		rels = append(rels, l.listEntries(kegPath, filepath.Join("lib", sub), nil)...)
	}
	rels = append(rels, l.listEntries(kegPath, "include", nil)...)

	overrides, err := l.manifestOverrides(p)
	if err != nil {
		return nil, err
	}
	return append(rels, overrides...), nil
}

// listEntries returns the keg-relative paths of dir's entries, minus
// any excluded names. A missing or unreadable dir yields nothing.
func (l *Linker) listEntries(kegPath, dir string, exclude []string) []string {
	entries, err := l.fs.ReadDir(filepath.Join(kegPath, dir))
	if err != nil {
		return nil
	}

	var rels []string
entries:
	for _, entry := range entries {
		for _, name := range exclude {
			if entry.Name() == name {
				continue entries
			}
		}
		rels = append(rels, filepath.Join(dir, entry.Name()))
	}
	return rels
}

// manifestOverrides parses the keg's manifest for link_overwrite
// paths. A missing manifest means no overrides; a malformed one fails
// the package's linking.
func (l *Linker) manifestOverrides(p *types.Package) ([]string, error) {
	manifestPath := filepath.Join(l.paths.CellarDir(), filepath.FromSlash(p.ManifestFile()))

	data, err := l.fs.ReadFile(manifestPath)
	if err != nil {
		l.logger.Debug().Str("package", p.Name).Str("manifest", manifestPath).
			Msg("manifest not readable, no link overrides")
		return nil, nil
	}

	overrides, err := ParseLinkOverwrite(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLinkFailed,
			"parsing manifest of package %s", p.Name).
			WithDetail("package", p.Name)
	}
	return overrides, nil
}

// replaceWithSymlink points dst at src, removing whatever currently
// occupies dst and creating parent directories as needed.
func (l *Linker) replaceWithSymlink(src, dst string) error {
	if _, err := l.fs.Lstat(dst); err == nil {
		if err := l.fs.Remove(dst); err != nil {
			if err := l.fs.RemoveAll(dst); err != nil {
				return err
			}
		}
	}

	if err := l.fs.MkdirAll(filepath.Dir(dst), fs.FileMode(0755)); err != nil {
		return err
	}
	return l.fs.Symlink(src, dst)
}

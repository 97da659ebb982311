package relocate

import (
	"io/fs"
	"path/filepath"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/logging"
	"github.com/pourtree/pourtree/pkg/types"
)

// Engine relocates one package at a time. It is safe for concurrent
// use across packages: the pattern is read-only and packages' files
// are disjoint.
type Engine struct {
	pattern   *Pattern
	cellarDir string
	fs        types.FS
	logger    zerolog.Logger
}

// NewEngine creates a relocation engine over the cellar.
func NewEngine(pattern *Pattern, cellarDir string, filesystem types.FS) *Engine {
	return &Engine{
		pattern:   pattern,
		cellarDir: cellarDir,
		fs:        filesystem,
		logger:    logging.GetLogger("relocate"),
	}
}

// RelocatePackage patches every member file of the package that
// carries placeholder paths, filling the package's patched-binary and
// patched-text lists. An I/O failure is fatal to this package's
// relocation only; the error carries the offending file.
func (e *Engine) RelocatePackage(p *types.Package) error {
	var patchedBinaries, patchedText []string

	for _, member := range p.Files {
		path := filepath.Join(e.cellarDir, member)

		info, err := e.fs.Lstat(path)
		if err != nil {
			e.logger.Warn().Str("file", path).Msg("member file missing, skipping")
			continue
		}
		if info.Mode()&fs.ModeSymlink != 0 || info.IsDir() {
			continue
		}

		kind, err := e.relocateFile(path, info.Mode())
		if err != nil {
			return errors.Wrapf(err, errors.ErrRelocationFailed,
				"relocating %s of package %s", member, p.Name).
				WithDetail("package", p.Name).
				WithDetail("file", member)
		}

		switch kind {
		case patchedBinary:
			e.logger.Debug().Str("file", path).Msg("patched binary")
			patchedBinaries = append(patchedBinaries, member)
		case patchedTextFile:
			e.logger.Debug().Str("file", path).Msg("patched text")
			patchedText = append(patchedText, member)
		}
	}

	p.PatchedBinaries = patchedBinaries
	p.PatchedText = patchedText
	return nil
}

type patchKind int

const (
	untouched patchKind = iota
	patchedBinary
	patchedTextFile
)

// relocateFile patches a single file: object files in place, UTF-8
// text by substitution. Files that are neither are left untouched.
func (e *Engine) relocateFile(path string, mode fs.FileMode) (patchKind, error) {
	if bin, err := OpenBinary(path); err == nil {
		relocs, err := ComputeRelocations(bin, e.pattern)
		if err != nil {
			return untouched, err
		}
		if relocs.Empty() {
			return untouched, nil
		}
		if err := e.withWritable(path, mode, func() error {
			return relocs.Apply(path)
		}); err != nil {
			return untouched, err
		}
		return patchedBinary, nil
	}

	data, err := e.fs.ReadFile(path)
	if err != nil {
		return untouched, err
	}
	if !utf8.Valid(data) {
		return untouched, nil
	}

	replaced, changed := e.pattern.Replace(string(data))
	if !changed {
		return untouched, nil
	}

	if err := e.withWritable(path, mode, func() error {
		return e.fs.WriteFile(path, []byte(replaced), mode.Perm())
	}); err != nil {
		return untouched, err
	}
	return patchedTextFile, nil
}

// withWritable runs fn with the file temporarily made owner-writable,
// restoring the original permissions afterwards.
func (e *Engine) withWritable(path string, mode fs.FileMode, fn func() error) error {
	const ownerWrite = 0200
	if mode.Perm()&ownerWrite != 0 {
		return fn()
	}
	if err := e.fs.Chmod(path, mode.Perm()|ownerWrite); err != nil {
		return err
	}
	err := fn()
	if chmodErr := e.fs.Chmod(path, mode.Perm()); err == nil {
		err = chmodErr
	}
	return err
}

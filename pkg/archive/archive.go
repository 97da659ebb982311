// Package archive validates and extracts bottle archives (gzipped
// tarballs). Member enumeration happens before extraction so the
// validated member list can serve as ground truth for relocation and
// linking.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/logging"
)

// Archive is an on-disk bottle archive.
type Archive struct {
	path string
}

// Open validates that the file exists and is a readable gzip stream.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchiveInvalid, "opening %s", path)
	}
	defer func() { _ = file.Close() }()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchiveInvalid, "%s is not a gzip archive", path)
	}
	_ = zr.Close()

	return &Archive{path: path}, nil
}

// Entries enumerates the member paths without extracting anything.
// Names are normalized: leading "./" stripped, trailing "/" on
// directories dropped.
func (a *Archive) Entries() ([]string, error) {
	var entries []string
	err := a.walk(func(hdr *tar.Header, _ *tar.Reader) error {
		name := normalizeName(hdr.Name)
		if name == "" {
			return nil
		}
		entries = append(entries, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Unpack extracts the full entry set under root, preserving relative
// paths and archive-declared entry types. Entries escaping root are
// rejected, including entries whose path passes through a symlink
// pointing outside root.
func (a *Archive) Unpack(root string) error {
	logger := logging.GetLogger("archive")

	if err := os.MkdirAll(root, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "creating %s", root)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveInvalid, "resolving %s", root)
	}

	// ensureParent creates the entry's parent directory and verifies
	// that, with symlinks resolved, it still lives under root. A
	// symlink entry extracted earlier must not redirect later entries
	// outside the extraction root.
	ensureParent := func(dest, name string) error {
		parent := filepath.Dir(dest)
		if err := os.MkdirAll(parent, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrDirCreate, "creating parent of %s", dest)
		}
		resolved, err := filepath.EvalSymlinks(parent)
		if err != nil {
			return errors.Wrapf(err, errors.ErrArchiveInvalid, "resolving parent of %s", dest)
		}
		if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+string(filepath.Separator)) {
			return errors.Newf(errors.ErrArchiveInvalid, "entry %q escapes archive root", name)
		}
		return nil
	}

	return a.walk(func(hdr *tar.Header, tr *tar.Reader) error {
		name := normalizeName(hdr.Name)
		if name == "" {
			return nil
		}
		if !filepath.IsLocal(name) {
			return errors.Newf(errors.ErrArchiveInvalid, "entry %q escapes archive root", hdr.Name)
		}
		dest := filepath.Join(root, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := ensureParent(dest, hdr.Name); err != nil {
				return err
			}
			if err := os.MkdirAll(dest, hdr.FileInfo().Mode().Perm()); err != nil {
				return errors.Wrapf(err, errors.ErrDirCreate, "creating %s", dest)
			}

		case tar.TypeSymlink:
			if err := ensureParent(dest, hdr.Name); err != nil {
				return err
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return errors.Wrapf(err, errors.ErrArchiveInvalid, "symlinking %s", dest)
			}

		case tar.TypeLink:
			target := filepath.Join(root, normalizeName(hdr.Linkname))
			if err := ensureParent(dest, hdr.Name); err != nil {
				return err
			}
			_ = os.Remove(dest)
			if err := os.Link(target, dest); err != nil {
				return errors.Wrapf(err, errors.ErrArchiveInvalid, "hardlinking %s", dest)
			}

		case tar.TypeReg:
			if err := ensureParent(dest, hdr.Name); err != nil {
				return err
			}
			file, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileCreate, "creating %s", dest)
			}
			if _, err := io.Copy(file, tr); err != nil {
				_ = file.Close()
				return errors.Wrapf(err, errors.ErrArchiveInvalid, "extracting %s", dest)
			}
			if err := file.Close(); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "closing %s", dest)
			}

		default:
			logger.Debug().Str("entry", hdr.Name).Int("type", int(hdr.Typeflag)).Msg("skipping unsupported entry type")
		}
		return nil
	})
}

// walk reopens the archive and visits every header in order.
func (a *Archive) walk(fn func(*tar.Header, *tar.Reader) error) error {
	file, err := os.Open(a.path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveInvalid, "opening %s", a.path)
	}
	defer func() { _ = file.Close() }()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveInvalid, "reading %s", a.path)
	}
	defer func() { _ = zr.Close() }()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, errors.ErrArchiveInvalid, "reading %s", a.path)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

func normalizeName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, "/")
	if name == "." || name == "" {
		return ""
	}
	return name
}

// Package meta persists per-package install records. The pipeline
// saves a package's record after every mutating stage so a crash
// leaves enough on disk to clean up or resume.
package meta

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/paths"
	"github.com/pourtree/pourtree/pkg/types"
)

// Store reads and writes install records under the meta dir.
type Store struct {
	paths paths.Paths
	fs    types.FS
}

// NewStore creates a Store over the configured meta dir.
func NewStore(p paths.Paths, filesystem types.FS) *Store {
	return &Store{paths: p, fs: filesystem}
}

// Save writes the current install record for a package, creating its
// directory if needed.
func (s *Store) Save(name string, m *types.PackageMeta) error {
	path := s.paths.MetaCurrentPath(name)

	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrMetaPersist,
			"creating meta dir for %s", name)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrapf(err, errors.ErrMetaPersist,
			"encoding meta of %s", name)
	}

	if err := s.fs.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrMetaPersist,
			"writing meta of %s", name)
	}
	return nil
}

// Load reads the current install record for a package. The second
// return is false when no record exists; any other read failure is an
// error.
func (s *Store) Load(name string) (*types.PackageMeta, bool, error) {
	data, err := s.fs.ReadFile(s.paths.MetaCurrentPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, errors.ErrMetaPersist,
			"reading meta of %s", name)
	}

	var m types.PackageMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, errors.Wrapf(err, errors.ErrMetaPersist,
			"decoding meta of %s", name)
	}
	return &m, true, nil
}

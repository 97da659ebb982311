// Package formula provides the read-only formula database the
// pipeline resolves against. The store is fully populated before the
// pipeline starts; acquisition and caching of the database itself is
// out of scope here.
package formula

import (
	"encoding/json"
	"os"

	"github.com/pourtree/pourtree/pkg/errors"
	"github.com/pourtree/pourtree/pkg/types"
)

type memoryStore struct {
	formulas map[string]*types.Formula
}

// NewStore builds a store from already-decoded formula records.
func NewStore(formulas []types.Formula) types.FormulaStore {
	store := &memoryStore{formulas: make(map[string]*types.Formula, len(formulas))}
	for i := range formulas {
		f := &formulas[i]
		store.formulas[f.Name] = f
	}
	return store
}

// LoadFile reads a formula database in the formulae.brew.sh JSON array
// format.
func LoadFile(path string) (types.FormulaStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read formula database %s", path)
	}

	var formulas []types.Formula
	if err := json.Unmarshal(data, &formulas); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to parse formula database %s", path)
	}

	return NewStore(formulas), nil
}

func (s *memoryStore) Lookup(name string) (*types.Formula, bool) {
	f, ok := s.formulas[name]
	return f, ok
}

func (s *memoryStore) Dependencies(f *types.Formula) []string {
	return f.Dependencies
}

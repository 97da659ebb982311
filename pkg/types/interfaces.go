package types

import (
	"io/fs"
)

// FS is the filesystem interface required for pourtree operations
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Directory operations
	MkdirAll(path string, perm fs.FileMode) error

	// Symlink operations
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)

	// Other operations
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Chmod(name string, mode fs.FileMode) error
}

// FormulaStore is the read-only formula database the pipeline resolves
// against. It is fully populated before the pipeline starts.
type FormulaStore interface {
	// Lookup returns the formula for a name, or false if unknown.
	Lookup(name string) (*Formula, bool)

	// Dependencies returns the direct dependency names of a formula.
	Dependencies(f *Formula) []string
}

package relocate

import (
	"os"

	"github.com/pourtree/pourtree/pkg/errors"
)

// PathRef is one path-bearing metadata field in an object file: a
// string at a fixed file offset with a fixed byte capacity.
type PathRef struct {
	// Offset is the file offset of the string.
	Offset int64

	// Capacity is the number of bytes available at Offset, including
	// the terminating NUL and any padding.
	Capacity int

	// Value is the current string.
	Value string
}

// Binary is an object file whose path-bearing metadata can be
// enumerated and patched in place.
type Binary interface {
	// Format names the object-file format, e.g. "macho" or "elf".
	Format() string

	// PathRefs returns every path-bearing metadata field.
	PathRefs() []PathRef
}

// OpenBinary parses the file as a known object-file format. The error
// is non-nil when the file is neither Mach-O nor ELF; callers then
// fall back to text relocation.
func OpenBinary(path string) (Binary, error) {
	if bin, err := openMachO(path); err == nil {
		return bin, nil
	}
	if bin, err := openELF(path); err == nil {
		return bin, nil
	}
	return nil, errors.Newf(errors.ErrNotFound, "%s is not a recognized object file", path)
}

// edit is one pending in-place rewrite.
type edit struct {
	offset   int64
	capacity int
	value    string
}

// Relocations is the set of in-place rewrites a binary needs for a
// given pattern.
type Relocations struct {
	edits []edit
}

// ComputeRelocations scans the binary's path refs for placeholder
// occurrences. A replacement that cannot fit in the field's capacity
// is an error: rewrites never truncate silently.
func ComputeRelocations(bin Binary, pattern *Pattern) (*Relocations, error) {
	var relocs Relocations
	for _, ref := range bin.PathRefs() {
		replaced, changed := pattern.Replace(ref.Value)
		if !changed {
			continue
		}
		// +1 for the terminating NUL.
		if len(replaced)+1 > ref.Capacity {
			return nil, errors.Newf(errors.ErrRelocationFailed,
				"replacement %q (%d bytes) overflows field capacity %d",
				replaced, len(replaced)+1, ref.Capacity)
		}
		relocs.edits = append(relocs.edits, edit{
			offset:   ref.Offset,
			capacity: ref.Capacity,
			value:    replaced,
		})
	}
	return &relocs, nil
}

// Empty reports whether there is nothing to rewrite.
func (r *Relocations) Empty() bool {
	return len(r.edits) == 0
}

// Apply rewrites the file in place. Each field is written at its
// original offset and padded with NULs to its original capacity, so
// the file length never changes.
func (r *Relocations) Apply(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "opening %s for patching", path)
	}
	defer func() { _ = file.Close() }()

	for _, e := range r.edits {
		buf := make([]byte, e.capacity)
		copy(buf, e.value)
		if _, err := file.WriteAt(buf, e.offset); err != nil {
			return errors.Wrapf(err, errors.ErrFileWrite, "patching %s at offset %d", path, e.offset)
		}
	}
	return nil
}

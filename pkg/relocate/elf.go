package relocate

import (
	"debug/elf"

	stderrors "errors"
)

type elfBinary struct {
	refs []PathRef
}

func (b *elfBinary) Format() string      { return "elf" }
func (b *elfBinary) PathRefs() []PathRef { return b.refs }

// openELF parses the dynamic string table, which holds every
// path-bearing string of a dynamically linked ELF object: run paths,
// needed library names, and sonames. Each packed string is exposed as
// a ref whose capacity is its original extent, so rewrites can never
// spill into a neighbor.
func openELF(path string) (Binary, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	dynstr := f.Section(".dynstr")
	if dynstr == nil {
		// Statically linked objects carry no path metadata to patch.
		return &elfBinary{}, nil
	}
	if dynstr.Type == elf.SHT_NOBITS {
		return nil, stderrors.New("dynamic string table has no file contents")
	}

	data, err := dynstr.Data()
	if err != nil {
		return nil, err
	}

	bin := &elfBinary{}
	start := 0
	for i, c := range data {
		if c != 0 {
			continue
		}
		if i > start {
			bin.refs = append(bin.refs, PathRef{
				Offset:   int64(dynstr.Offset) + int64(start),
				Capacity: i - start + 1,
				Value:    string(data[start:i]),
			})
		}
		start = i + 1
	}

	return bin, nil
}

package relocate

import (
	"debug/macho"
	"fmt"
)

// Load command types carrying a path string. The string's offset
// within the command is stored at byte 8 of the command itself.
const (
	lcReqDyld = 0x80000000

	lcIDDylib         = 0xd
	lcLoadDylib       = 0xc
	lcLoadWeakDylib   = 0x18 | lcReqDyld
	lcReexportDylib   = 0x1f | lcReqDyld
	lcLazyLoadDylib   = 0x20
	lcLoadUpwardDylib = 0x23 | lcReqDyld
	lcIDDylinker      = 0xf
	lcLoadDylinker    = 0xe
	lcRpath           = 0x1c | lcReqDyld
)

var pathBearingCommands = map[uint32]bool{
	lcIDDylib:         true,
	lcLoadDylib:       true,
	lcLoadWeakDylib:   true,
	lcReexportDylib:   true,
	lcLazyLoadDylib:   true,
	lcLoadUpwardDylib: true,
	lcIDDylinker:      true,
	lcLoadDylinker:    true,
	lcRpath:           true,
}

type machoBinary struct {
	refs []PathRef
}

func (b *machoBinary) Format() string      { return "macho" }
func (b *machoBinary) PathRefs() []PathRef { return b.refs }

// openMachO parses the file's load commands and collects every
// path-bearing field: dylib install names, dylinker paths, run paths.
func openMachO(path string) (Binary, error) {
	f, err := macho.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	// Load commands start right after the Mach header.
	offset := int64(28)
	if f.Magic == macho.Magic64 {
		offset = 32
	}

	bin := &machoBinary{}
	for _, load := range f.Loads {
		raw := load.Raw()
		if len(raw) < 12 {
			offset += int64(len(raw))
			continue
		}
		cmd := f.ByteOrder.Uint32(raw[0:4])
		cmdsize := f.ByteOrder.Uint32(raw[4:8])

		if pathBearingCommands[cmd] {
			stroff := f.ByteOrder.Uint32(raw[8:12])
			if stroff >= cmdsize || int(cmdsize) > len(raw) {
				return nil, fmt.Errorf("malformed load command at offset %d", offset)
			}
			value := cString(raw[stroff:cmdsize])
			bin.refs = append(bin.refs, PathRef{
				Offset:   offset + int64(stroff),
				Capacity: int(cmdsize - stroff),
				Value:    value,
			})
		}

		offset += int64(len(raw))
	}

	return bin, nil
}

// cString reads a NUL-terminated string from the buffer.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

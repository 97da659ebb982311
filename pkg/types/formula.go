package types

// Formula is an external package definition: identity, version,
// dependencies, and prebuilt bottle variants keyed by channel.
// Formulas are read-only inputs; the pipeline never mutates them.
type Formula struct {
	Name         string                `json:"name"`
	FullName     string                `json:"full_name"`
	Versions     Versions              `json:"versions"`
	Revision     int                   `json:"revision"`
	Dependencies []string              `json:"dependencies"`
	Bottle       map[string]BottleSpec `json:"bottle"`
}

// Versions holds the per-channel version strings of a formula.
type Versions struct {
	Stable string `json:"stable"`
}

// BottleSpec is the bottle set for one channel: a rebuild counter and
// one downloadable file per architecture.
type BottleSpec struct {
	Rebuild int                   `json:"rebuild"`
	Files   map[string]BottleFile `json:"files"`
}

// BottleFile describes a single prebuilt archive.
type BottleFile struct {
	Cellar string `json:"cellar"`
	URL    string `json:"url"`
	Sha256 string `json:"sha256"`
}

// Arches returns the architectures a bottle spec was built for.
func (b BottleSpec) Arches() []string {
	arches := make([]string, 0, len(b.Files))
	for arch := range b.Files {
		arches = append(arches, arch)
	}
	return arches
}

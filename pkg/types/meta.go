package types

// PackageMeta is the durable record of an installed package, persisted
// under the meta dir and owned independently of the in-memory Package.
// It must round-trip losslessly for later uninstall or upgrade.
type PackageMeta struct {
	Keg             string   `json:"keg"`
	Files           []string `json:"files"`
	Explicit        bool     `json:"explicit"`
	RequiredBy      []string `json:"required_by,omitempty"`
	PatchedBinaries []string `json:"patched_binaries,omitempty"`
	PatchedText     []string `json:"patched_text,omitempty"`
	Links           []string `json:"links,omitempty"`
}

// MetaFromPackage snapshots the install-relevant fields of a package.
func MetaFromPackage(p *Package) *PackageMeta {
	return &PackageMeta{
		Keg:             p.Keg,
		Files:           p.Files,
		Explicit:        p.Explicit,
		RequiredBy:      p.RequiredBy,
		PatchedBinaries: p.PatchedBinaries,
		PatchedText:     p.PatchedText,
		Links:           p.Links,
	}
}

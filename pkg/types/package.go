package types

import (
	"fmt"
	"strings"
)

// Stage is the most recently completed pipeline phase for a package.
// Stages only ever advance; a package that errors stalls where it is
// and is skipped by later stages.
type Stage int

const (
	StageResolved Stage = iota
	StageURLResolved
	StageSizeResolved
	StageDownloaded
	StageVerified
	StageRelocated
	StageLinked
	StageDone
)

var stageNames = map[Stage]string{
	StageResolved:     "resolved",
	StageURLResolved:  "url-resolved",
	StageSizeResolved: "size-resolved",
	StageDownloaded:   "downloaded",
	StageVerified:     "verified",
	StageRelocated:    "relocated",
	StageLinked:       "linked",
	StageDone:         "done",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// RelocateMode describes how a bottle's embedded paths must be handled
// after extraction. It is derived from the bottle's cellar hint.
type RelocateMode int

const (
	// RelocateAny means the bottle was built relocatable and carries
	// placeholder paths that must be rewritten to the real prefix.
	RelocateAny RelocateMode = iota
	// RelocateSkip means the bottle needs no relocation at all.
	RelocateSkip
	// RelocateCellar means the bottle was built against a fixed cellar
	// path and is only valid when installed there; paths are still
	// rewritten if placeholders are present.
	RelocateCellar
)

func (m RelocateMode) String() string {
	switch m {
	case RelocateAny:
		return "any"
	case RelocateSkip:
		return "skip"
	case RelocateCellar:
		return "cellar"
	}
	return fmt.Sprintf("relocate(%d)", int(m))
}

// ParseRelocateMode parses a bottle cellar hint. Known hints are
// ":any", ":any_skip_relocation", and an absolute cellar path. An
// empty hint defaults to ":any".
func ParseRelocateMode(cellar string) (RelocateMode, error) {
	switch {
	case cellar == "" || cellar == ":any":
		return RelocateAny, nil
	case cellar == ":any_skip_relocation":
		return RelocateSkip, nil
	case strings.HasPrefix(cellar, "/"):
		return RelocateCellar, nil
	}
	return RelocateAny, fmt.Errorf("unknown cellar hint %q", cellar)
}

// Package is the mutable per-formula record the pipeline accumulates
// state into, one per resolved formula. Fields fill in stage by stage.
type Package struct {
	// Identity, set by the dependency resolver.
	Name     string
	FullName string
	Version  string
	Revision int

	// Resolution fields, set by the bottle resolver.
	Arch     string
	URL      string
	Sha256   string
	Relocate RelocateMode
	Rebuild  int

	// Size fields, set by the size resolver.
	Size         int64
	DownloadSize int64

	// Archive fields, set around download.
	ArchiveName string
	ArchivePath string

	// Install fields.
	Keg             string
	Files           []string
	Explicit        bool
	RequiredBy      []string
	PatchedBinaries []string
	PatchedText     []string
	Links           []string

	// Bookkeeping.
	Stage  Stage
	Errors []error
}

// VersionFull is the version with the formula revision suffix, as used
// in keg paths and bottle filenames.
func (p *Package) VersionFull() string {
	if p.Revision != 0 {
		return fmt.Sprintf("%s_%d", p.Version, p.Revision)
	}
	return p.Version
}

// BaseName is the package name before any "@version" suffix.
func (p *Package) BaseName() string {
	name, _, _ := strings.Cut(p.Name, "@")
	return name
}

// ManifestFile is the archive member carrying the package manifest,
// relative to the cellar root.
func (p *Package) ManifestFile() string {
	return fmt.Sprintf("%s/%s/.brew/%s.rb", p.Name, p.VersionFull(), p.Name)
}

// Fail records an error against the package. The package stalls at its
// current stage and is skipped by later stages.
func (p *Package) Fail(err error) {
	if err != nil {
		p.Errors = append(p.Errors, err)
	}
}

// Failed reports whether the package has accumulated any error.
func (p *Package) Failed() bool {
	return len(p.Errors) > 0
}

// Advance moves the package to the given stage. Stages are monotonic;
// moving backwards is a no-op.
func (p *Package) Advance(s Stage) {
	if s > p.Stage {
		p.Stage = s
	}
}

// Ready reports whether the package should be processed by a stage
// requiring at least the given completed stage.
func (p *Package) Ready(s Stage) bool {
	return !p.Failed() && p.Stage >= s
}

// Package relocate rewrites embedded installation-path references in
// extracted bottles. Bottles are built against placeholder paths;
// after extraction every occurrence must point at the real prefix and
// cellar. Object files are patched in place preserving field capacity;
// anything else that parses as UTF-8 text is substituted textually.
package relocate

import (
	"strings"

	"github.com/pourtree/pourtree/pkg/config"
)

// Placeholder strings bottles are built against.
const (
	PlaceholderPrefix = "@@HOMEBREW_PREFIX@@"
	PlaceholderCellar = "@@HOMEBREW_CELLAR@@"
)

// Replacement maps one placeholder to its concrete path.
type Replacement struct {
	Placeholder string
	Path        string
}

// Pattern is the placeholder-to-path mapping, derived once from the
// configuration and shared read-only across packages.
type Pattern struct {
	replacements []Replacement
}

// NewPattern derives the relocation pattern from the configuration.
func NewPattern(cfg *config.Config) *Pattern {
	return &Pattern{
		replacements: []Replacement{
			{Placeholder: PlaceholderCellar, Path: cfg.CellarDir},
			{Placeholder: PlaceholderPrefix, Path: cfg.PrefixDir},
		},
	}
}

// NewPatternFrom builds a pattern from explicit replacements, mostly
// for tests.
func NewPatternFrom(replacements ...Replacement) *Pattern {
	return &Pattern{replacements: replacements}
}

// Contains reports whether s holds any placeholder.
func (p *Pattern) Contains(s string) bool {
	for _, r := range p.replacements {
		if strings.Contains(s, r.Placeholder) {
			return true
		}
	}
	return false
}

// Replace substitutes every placeholder occurrence. The boolean
// reports whether anything changed.
func (p *Pattern) Replace(s string) (string, bool) {
	out := s
	for _, r := range p.replacements {
		out = strings.ReplaceAll(out, r.Placeholder, r.Path)
	}
	return out, out != s
}

package relocate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func testPattern() *Pattern {
	return NewPatternFrom(
		Replacement{Placeholder: PlaceholderCellar, Path: "/pt/Cellar"},
		Replacement{Placeholder: PlaceholderPrefix, Path: "/pt"},
	)
}

func TestReplace(t *testing.T) {
	p := testPattern()

	out, changed := p.Replace("prefix=@@HOMEBREW_PREFIX@@\nlibdir=@@HOMEBREW_CELLAR@@/foo/1.0/lib\n")
	assert.True(t, changed)
	assert.Equal(t, "prefix=/pt\nlibdir=/pt/Cellar/foo/1.0/lib\n", out)

	out, changed = p.Replace("no placeholders here")
	assert.False(t, changed)
	assert.Equal(t, "no placeholders here", out)
}

func TestContains(t *testing.T) {
	p := testPattern()
	assert.True(t, p.Contains("x @@HOMEBREW_CELLAR@@ y"))
	assert.False(t, p.Contains("plain"))
}

// Replacing is idempotent: once substituted, a second pass finds
// nothing left to change.
func TestReplaceIdempotent(t *testing.T) {
	p := testPattern()

	rapid.Check(t, func(t *rapid.T) {
		fragments := rapid.SliceOfN(rapid.SampledFrom([]string{
			"@@HOMEBREW_PREFIX@@",
			"@@HOMEBREW_CELLAR@@",
			"/usr/lib",
			"text ",
			"\n",
			"bin:",
		}), 0, 12).Draw(t, "fragments")
		input := strings.Join(fragments, "")

		once, _ := p.Replace(input)
		twice, changed := p.Replace(once)

		assert.False(t, changed)
		assert.Equal(t, once, twice)
		assert.False(t, p.Contains(once))
	})
}

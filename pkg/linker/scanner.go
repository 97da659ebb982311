package linker

import (
	"fmt"
	"strings"
)

// linkOverwriteDirective introduces override paths in a package
// manifest.
const linkOverwriteDirective = "link_overwrite"

// ParseLinkOverwrite extracts the link_overwrite override list from a
// package manifest. A directive's arguments are double-quoted strings
// separated by commas, optionally wrapped in brackets, and may span
// lines: a line continues the directive while its brackets are
// unbalanced or it ends with a comma.
func ParseLinkOverwrite(manifest string) ([]string, error) {
	var overrides []string

	lines := strings.Split(manifest, "\n")
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		rest, ok := strings.CutPrefix(trimmed, linkOverwriteDirective)
		if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '(' && rest[0] != '[') {
			continue
		}

		literal := strings.TrimSpace(rest)
		for !literalComplete(literal) && i+1 < len(lines) {
			i++
			literal += strings.TrimSpace(lines[i])
		}

		values, err := parseStringList(literal)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, values...)
	}

	return overrides, nil
}

// literalComplete reports whether the accumulated argument literal is
// finished: brackets balanced and no trailing comma.
func literalComplete(literal string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(literal); i++ {
		c := literal[i]
		switch {
		case inString:
			if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
		}
	}
	if inString || depth > 0 {
		return false
	}
	return !strings.HasSuffix(strings.TrimSpace(literal), ",")
}

// parseStringList reads the double-quoted strings out of a bracketed
// or bare comma-separated literal.
func parseStringList(literal string) ([]string, error) {
	var values []string
	var current strings.Builder
	inString := false

	for i := 0; i < len(literal); i++ {
		c := literal[i]
		switch {
		case inString:
			if c == '"' {
				values = append(values, current.String())
				current.Reset()
				inString = false
			} else {
				current.WriteByte(c)
			}
		case c == '"':
			inString = true
		case c == '[' || c == ']' || c == '(' || c == ')' || c == ',' || c == ' ' || c == '\t':
			// separators and brackets between strings
		default:
			return nil, fmt.Errorf("unexpected character %q in link_overwrite arguments", c)
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string in link_overwrite arguments")
	}
	return values, nil
}

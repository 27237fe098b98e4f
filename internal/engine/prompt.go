package engine

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// promptMatcher is the compiled form of a PromptMatch predicate.
type promptMatcher struct {
	negate bool
	match  func(prompt string) bool
}

// compilePromptMatch compiles a PromptMatch's pattern/mode/anchor
// combination. Negation and anchoring are applied uniformly across
// modes: anchor shapes the comparison ("start" => prefix, "end" =>
// suffix, "full" => exact, "any" => contains-style), and mode picks the
// string, glob, or regex primitive used to realize it.
func compilePromptMatch(pm *PromptMatch) (*promptMatcher, error) {
	mode := pm.Mode
	if mode == "" {
		mode = "substring"
	}
	if !allowedModes[mode] {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	anchor := pm.Anchor
	if anchor == "" {
		anchor = "any"
	}
	if !allowedAnchors[anchor] {
		return nil, fmt.Errorf("unknown anchor %q", anchor)
	}

	var match func(string) bool

	switch mode {
	case "regex":
		pattern := anchorRegex(pm.Pattern, anchor)
		m, err := newRegexMatcher(pattern, pm.CaseInsensitive)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		match = m.MatchString

	case "glob":
		pattern := anchorGlob(pm.Pattern, anchor)
		if pm.CaseInsensitive {
			pattern = strings.ToLower(pattern)
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		match = func(s string) bool {
			if pm.CaseInsensitive {
				s = strings.ToLower(s)
			}
			return g.Match(s)
		}

	case "substring":
		pattern := pm.Pattern
		match = func(s string) bool {
			haystack, needle := s, pattern
			if pm.CaseInsensitive {
				haystack = strings.ToLower(haystack)
				needle = strings.ToLower(needle)
			}
			switch anchor {
			case "start":
				return strings.HasPrefix(haystack, needle)
			case "end":
				return strings.HasSuffix(haystack, needle)
			case "full":
				return haystack == needle
			default:
				return strings.Contains(haystack, needle)
			}
		}
	}

	return &promptMatcher{negate: pm.Negate, match: match}, nil
}

func anchorRegex(pattern, anchor string) string {
	switch anchor {
	case "start":
		return "^" + pattern
	case "end":
		return pattern + "$"
	case "full":
		return "^" + pattern + "$"
	default:
		return pattern
	}
}

func anchorGlob(pattern, anchor string) string {
	switch anchor {
	case "start":
		return pattern + "*"
	case "end":
		return "*" + pattern
	case "full":
		return pattern
	default:
		return "*" + pattern + "*"
	}
}

// Matches reports whether prompt satisfies the compiled predicate,
// including negation.
func (m *promptMatcher) Matches(prompt string) bool {
	result := m.match(prompt)
	if m.negate {
		return !result
	}
	return result
}

package engine

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// compiledMatchers holds the pre-compiled form of a rule's predicates.
// Compiling regex/glob/expression patterns once at load time keeps
// per-event matching cost to pure comparisons.
type compiledMatchers struct {
	directoryGlobs []glob.Glob
	commandRegex   *regexMatcher
	promptMatcher  *promptMatcher
	enabledWhen    *exprProgram
	blockIfMatch   *regexMatcher
	validateExpr   *exprProgram
}

var allowedFieldTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"array": true, "object": true, "any": true,
}

var allowedModes = map[string]bool{"substring": true, "regex": true, "glob": true}
var allowedAnchors = map[string]bool{"any": true, "start": true, "end": true, "full": true}
var allowedRuleModes = map[string]bool{"": true, "enforce": true, "warn": true, "audit": true}

// Compile validates and pre-compiles a rule's matcher patterns. It is
// called once per rule at config load time; the same validation must
// accept exactly what the hot-path matcher accepts (no gap between
// loader and evaluator), so Matches never re-validates — it only
// consults the compiled form.
func (r *Rule) Compile() error {
	if r.Name == "" {
		return fmt.Errorf("rule has no name")
	}
	if !allowedRuleModes[r.Metadata.Mode] {
		return fmt.Errorf("rule %q: invalid mode %q", r.Name, r.Metadata.Mode)
	}

	c := &compiledMatchers{}

	for _, pat := range r.Matchers.Directories {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return fmt.Errorf("rule %q: invalid directories glob %q: %w", r.Name, pat, err)
		}
		c.directoryGlobs = append(c.directoryGlobs, g)
	}

	if r.Matchers.CommandMatch != "" {
		m, err := newRegexMatcher(r.Matchers.CommandMatch, false)
		if err != nil {
			return fmt.Errorf("rule %q: invalid command_match: %w", r.Name, err)
		}
		c.commandRegex = m
	}

	if r.Matchers.PromptMatch != nil {
		pm, err := compilePromptMatch(r.Matchers.PromptMatch)
		if err != nil {
			return fmt.Errorf("rule %q: invalid prompt_match: %w", r.Name, err)
		}
		c.promptMatcher = pm
	}

	for _, path := range r.Matchers.RequireFields {
		if err := validateFieldPath(path); err != nil {
			return fmt.Errorf("rule %q: require_fields: %w", r.Name, err)
		}
	}

	for path, typ := range r.Matchers.FieldTypes {
		if err := validateFieldPath(path); err != nil {
			return fmt.Errorf("rule %q: field_types: %w", r.Name, err)
		}
		if !allowedFieldTypes[typ] {
			return fmt.Errorf("rule %q: field_types: unknown type %q for %q", r.Name, typ, path)
		}
	}

	if r.Matchers.EnabledWhen != "" {
		prog, err := compileExpr(r.Matchers.EnabledWhen)
		if err != nil {
			return fmt.Errorf("rule %q: invalid enabled_when: %w", r.Name, err)
		}
		c.enabledWhen = prog
	}

	if r.Actions.BlockIfMatch != "" {
		m, err := newRegexMatcher(r.Actions.BlockIfMatch, false)
		if err != nil {
			return fmt.Errorf("rule %q: invalid block_if_match: %w", r.Name, err)
		}
		c.blockIfMatch = m
	}

	if r.Actions.ValidateExpr != "" {
		prog, err := compileExpr(r.Actions.ValidateExpr)
		if err != nil {
			return fmt.Errorf("rule %q: invalid validate_expr: %w", r.Name, err)
		}
		c.validateExpr = prog
	}

	r.compiled = c
	return nil
}

// validateFieldPath checks that a dot-path is well-formed: no empty,
// leading, trailing, or consecutive dots.
func validateFieldPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty field path")
	}
	if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return fmt.Errorf("field path %q has a leading or trailing dot", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("field path %q has consecutive dots", path)
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("field path %q has an empty segment", path)
		}
	}
	return nil
}

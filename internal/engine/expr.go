package engine

import (
	"fmt"
	"regexp"

	"github.com/google/cel-go/cel"
)

// exprProgram is a pre-compiled enabled_when/validate_expr boolean
// expression. CEL (github.com/google/cel-go) gives a sandboxed
// expression language with no process control, file I/O, or unbounded
// recursion — exactly the "small, embeddable expression library" the
// design calls for, rather than a general-purpose scripting runtime.
type exprProgram struct {
	source string
	prg    cel.Program
}

// identPattern finds candidate CEL identifiers in source text. It is
// deliberately permissive: field-select targets (the "bar" in "foo.bar")
// get swept up too, but declaring an unused variable is harmless, so
// over-matching is safe while under-matching would reject valid
// expressions.
var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// celReserved excludes CEL keywords and built-in macro/function names
// from the candidate identifier set so they aren't shadowed by a
// declared variable of the same name.
var celReserved = map[string]bool{
	"true": true, "false": true, "null": true, "in": true,
	"has": true, "all": true, "exists": true, "exists_one": true,
	"map": true, "filter": true, "size": true, "matches": true,
	"contains": true, "startsWith": true, "endsWith": true,
	"string": true, "int": true, "uint": true, "double": true, "bool": true,
}

// compileExpr builds a CEL environment scoped to the identifiers the
// expression actually references, then compiles and programs it. Used
// for both config-load validation and hot-path evaluation so there is
// no gap between what the loader accepts and what the evaluator runs.
func compileExpr(source string) (*exprProgram, error) {
	seen := map[string]bool{}
	var opts []cel.EnvOption
	for _, tok := range identPattern.FindAllString(source, -1) {
		if celReserved[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		opts = append(opts, cel.Variable(tok, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("building expression environment: %w", err)
	}

	ast, iss := env.Compile(source)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", source, iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building expression program %q: %w", source, err)
	}

	return &exprProgram{source: source, prg: prg}, nil
}

// Eval runs the expression against the given variable bindings and
// requires a boolean result. Any runtime error (missing binding, type
// mismatch) is returned to the caller, which must fail closed per the
// predicate's semantics.
func (p *exprProgram) Eval(vars map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", p.source, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean", p.source)
	}
	return b, nil
}

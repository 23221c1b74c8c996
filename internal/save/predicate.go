package save

import (
	"fmt"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/joeycumines/turnkeeper/internal/history"
)

// PredicateEnv is the environment save predicates are evaluated in.
type PredicateEnv struct {
	Title    string         `expr:"title"`
	Tags     []string       `expr:"tags"`
	Turns    int            `expr:"turns"`
	Index    int            `expr:"index"`
	Passages []string       `expr:"passages"`
	Expired  []string       `expr:"expired"`
	Vars     map[string]any `expr:"vars"`
}

// HasTag reports whether the current passage carries tag.
func (e PredicateEnv) HasTag(tag string) bool { return slices.Contains(e.Tags, tag) }

// Visited reports whether a passage titled title was played.
func (e PredicateEnv) Visited(title string) bool {
	return slices.Contains(e.Passages, title) || slices.Contains(e.Expired, title)
}

// Predicate is a compiled boolean expression over a PredicateEnv, for
// example `turns > 3 && vars.gold >= 10` or `HasTag("safe")`.
type Predicate struct {
	source  string
	program *vm.Program
}

// CompilePredicate compiles source. An empty source yields a nil Predicate,
// which always holds.
func CompilePredicate(source string) (*Predicate, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source,
		expr.Env(PredicateEnv{}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", source, err)
	}
	return &Predicate{source: source, program: program}, nil
}

// String returns the predicate's source.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Eval evaluates the predicate. A nil Predicate holds.
func (p *Predicate) Eval(env PredicateEnv) (bool, error) {
	if p == nil {
		return true, nil
	}
	out, err := expr.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate predicate %q: %w", p.source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q returned %T, not bool", p.source, out)
	}
	return b, nil
}

// envFor builds a PredicateEnv from the live history.
func envFor(h *history.Manager, tags []string) PredicateEnv {
	env := PredicateEnv{
		Title:    h.Title(),
		Tags:     tags,
		Turns:    h.Turns(),
		Index:    h.Index(),
		Passages: h.Passages(),
		Expired:  h.Expired(),
		Vars:     map[string]any{},
	}
	if m, ok := h.Variables().ToAny().(map[string]any); ok {
		env.Vars = m
	}
	return env
}

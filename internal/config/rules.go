package config

import (
	"fmt"
	"strings"

	"github.com/unikernel-ci/matrixctl/internal/matrix"
)

// CompileRules turns the raw exclude_variants entries into matrix.Rule
// values. Each RawRule key is an axis name; its value may be:
//
//	level                -> axis = level               (OpEq)
//	"not level"          -> axis ≠ level                (OpNeq)
//	[level, …]           -> axis ∈ {level, …}           (OpIn)
//	["not", level, …]    -> axis ∉ {level, …}           (OpNotIn)
//
// A RawRule with a single key and no siblings compiles to a one-atom
// Rule — spec.md §3/§9's "lone atom means unconditional drop" falls out
// of conjunction-of-one with no special case needed.
func CompileRules(raw []RawRule) ([]matrix.Rule, error) {
	rules := make([]matrix.Rule, 0, len(raw))
	for i, r := range raw {
		atoms := make([]matrix.Atom, 0, len(r))
		for axis, val := range r {
			atom, err := compileAtom(axis, val)
			if err != nil {
				return nil, fmt.Errorf("exclude_variants[%d]: %w", i, err)
			}
			atoms = append(atoms, atom)
		}
		rules = append(rules, matrix.Rule{Atoms: atoms})
	}
	return rules, nil
}

func compileAtom(axis string, val interface{}) (matrix.Atom, error) {
	switch v := val.(type) {
	case string:
		if rest, ok := cutPrefix(v, "not "); ok {
			return matrix.Atom{Axis: axis, Op: matrix.OpNeq, Values: []string{rest}}, nil
		}
		return matrix.Atom{Axis: axis, Op: matrix.OpEq, Values: []string{v}}, nil
	case []interface{}:
		levels, negated, err := splitLevelList(v)
		if err != nil {
			return matrix.Atom{}, fmt.Errorf("axis %q: %w", axis, err)
		}
		if negated {
			return matrix.Atom{Axis: axis, Op: matrix.OpNotIn, Values: levels}, nil
		}
		return matrix.Atom{Axis: axis, Op: matrix.OpIn, Values: levels}, nil
	default:
		return matrix.Atom{}, fmt.Errorf("axis %q: unsupported exclusion value %T", axis, val)
	}
}

func splitLevelList(raw []interface{}) (levels []string, negated bool, err error) {
	levels = make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false, fmt.Errorf("element %d is not a string", i)
		}
		if i == 0 && s == "not" {
			negated = true
			continue
		}
		levels = append(levels, s)
	}
	return levels, negated, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

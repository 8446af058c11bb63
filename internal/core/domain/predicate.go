package domain

import (
	"slices"
	"strings"
	"unicode"

	"go.trai.ch/zerr"
)

// PredicateOp is the node type of a feature predicate tree.
type PredicateOp uint8

const (
	// OpAlways is the zero predicate. It holds for every feature set.
	OpAlways PredicateOp = iota
	// OpAtom holds when its feature is enabled.
	OpAtom
	// OpAll holds when every operand holds.
	OpAll
	// OpAny holds when at least one operand holds.
	OpAny
	// OpNot negates its single operand.
	OpNot
)

// Predicate is a boolean expression over feature names.
type Predicate struct {
	Op       PredicateOp
	Feature  string
	Operands []Predicate
}

// Atom returns a predicate that holds when feature is enabled.
func Atom(feature string) Predicate {
	return Predicate{Op: OpAtom, Feature: feature}
}

// All returns the conjunction of ps. With no operands it always holds.
func All(ps ...Predicate) Predicate {
	if len(ps) == 0 {
		return Predicate{}
	}
	if len(ps) == 1 {
		return ps[0]
	}
	return Predicate{Op: OpAll, Operands: ps}
}

// Any returns the disjunction of ps. With no operands it never holds.
func Any(ps ...Predicate) Predicate {
	if len(ps) == 1 {
		return ps[0]
	}
	return Predicate{Op: OpAny, Operands: ps}
}

// Not returns the negation of p.
func Not(p Predicate) Predicate {
	return Predicate{Op: OpNot, Operands: []Predicate{p}}
}

// RequireFeatures builds the conjunction of atoms used for a list of required features.
func RequireFeatures(features []string) Predicate {
	atoms := make([]Predicate, 0, len(features))
	for _, f := range features {
		atoms = append(atoms, Atom(f))
	}
	return All(atoms...)
}

// IsAlways reports whether p is the trivial predicate.
func (p Predicate) IsAlways() bool {
	return p.Op == OpAlways
}

// Eval evaluates p against the enabled feature set.
func (p Predicate) Eval(enabled FeatureSet) bool {
	switch p.Op {
	case OpAlways:
		return true
	case OpAtom:
		return enabled.Has(p.Feature)
	case OpAll:
		for _, o := range p.Operands {
			if !o.Eval(enabled) {
				return false
			}
		}
		return true
	case OpAny:
		for _, o := range p.Operands {
			if o.Eval(enabled) {
				return true
			}
		}
		return false
	case OpNot:
		return len(p.Operands) == 1 && !p.Operands[0].Eval(enabled)
	default:
		return false
	}
}

// Features returns the sorted, de-duplicated feature names referenced by p.
func (p Predicate) Features() []string {
	var out []string
	var visit func(Predicate)
	visit = func(q Predicate) {
		if q.Op == OpAtom {
			out = append(out, q.Feature)
		}
		for _, o := range q.Operands {
			visit(o)
		}
	}
	visit(p)
	slices.Sort(out)
	return slices.Compact(out)
}

// String renders p in the form accepted by ParsePredicate.
func (p Predicate) String() string {
	switch p.Op {
	case OpAlways:
		return "all()"
	case OpAtom:
		return p.Feature
	case OpAll, OpAny, OpNot:
		name := map[PredicateOp]string{OpAll: "all", OpAny: "any", OpNot: "not"}[p.Op]
		parts := make([]string, 0, len(p.Operands))
		for _, o := range p.Operands {
			parts = append(parts, o.String())
		}
		return name + "(" + strings.Join(parts, ", ") + ")"
	default:
		return "?"
	}
}

// ParsePredicate parses expressions like `all(cli, any(color, not(no-std)))`.
func ParsePredicate(s string) (Predicate, error) {
	p := &predicateParser{input: s}
	pred, err := p.parseExpr()
	if err != nil {
		return Predicate{}, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return Predicate{}, p.errorf("unexpected trailing input")
	}
	return pred, nil
}

type predicateParser struct {
	input string
	pos   int
}

func (p *predicateParser) parseExpr() (Predicate, error) {
	p.skipSpace()
	ident := p.ident()
	if ident == "" {
		return Predicate{}, p.errorf("expected feature name or operator")
	}
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != '(' {
		return Atom(ident), nil
	}

	var build func([]Predicate) (Predicate, error)
	switch ident {
	case "all":
		build = func(ops []Predicate) (Predicate, error) { return All(ops...), nil }
	case "any":
		build = func(ops []Predicate) (Predicate, error) { return Any(ops...), nil }
	case "not":
		build = func(ops []Predicate) (Predicate, error) {
			if len(ops) != 1 {
				return Predicate{}, p.errorf("not() takes exactly one operand")
			}
			return Not(ops[0]), nil
		}
	default:
		return Predicate{}, p.errorf("unknown operator " + ident)
	}

	p.pos++ // (
	var operands []Predicate
	for {
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == ')' {
			p.pos++
			return build(operands)
		}
		if len(operands) > 0 {
			if p.pos >= len(p.input) || p.input[p.pos] != ',' {
				return Predicate{}, p.errorf("expected ',' or ')'")
			}
			p.pos++
		}
		operand, err := p.parseExpr()
		if err != nil {
			return Predicate{}, err
		}
		operands = append(operands, operand)
	}
}

func (p *predicateParser) ident() string {
	start := p.pos
	for p.pos < len(p.input) {
		r := rune(p.input[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '/' && r != ':' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *predicateParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *predicateParser) errorf(msg string) error {
	err := zerr.With(zerr.Wrap(ErrInvalidPredicate, msg), "expression", p.input)
	return zerr.With(err, "offset", p.pos)
}

// FeatureSet is a set of enabled feature names.
type FeatureSet map[string]struct{}

// NewFeatureSet returns a set holding features.
func NewFeatureSet(features ...string) FeatureSet {
	s := make(FeatureSet, len(features))
	for _, f := range features {
		s[f] = struct{}{}
	}
	return s
}

// Has reports whether feature is enabled.
func (s FeatureSet) Has(feature string) bool {
	_, ok := s[feature]
	return ok
}

// Sorted returns the enabled features in ascending order.
func (s FeatureSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

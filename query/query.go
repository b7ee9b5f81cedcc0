// Package query compiles the VM Store's three filter surfaces — structured
// key=value filters, the LDAP-style `query=` string, and the JSON
// `predicate=` tree — into one shared Expr evaluated row by row (spec.md
// §4.5, design note §9 "LDAP filter translation").
//
// No parser library in the example corpus covers either grammar, so both
// are hand-written against the standard library; see DESIGN.md.
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Op is a comparison or boolean-combination operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGe  Op = "ge"
	OpLt  Op = "lt"
	OpLe  Op = "le"
	OpAnd Op = "and"
	OpOr  Op = "or"
)

// Expr is a node in the compiled predicate tree. A leaf has Field/Value
// set; a branch (and/or) has Children set.
type Expr struct {
	Op       Op
	Field    string
	Value    any
	Children []*Expr
}

// Row is the minimal field-lookup surface Eval needs; store.VMStore
// provides it by projecting a VM's comparable fields and tags.
type Row interface {
	Field(name string) (any, bool)
}

// Eval evaluates e against row.
func Eval(e *Expr, row Row) bool {
	if e == nil {
		return true
	}
	switch e.Op {
	case OpAnd:
		for _, c := range e.Children {
			if !Eval(c, row) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range e.Children {
			if Eval(c, row) {
				return true
			}
		}
		return false
	default:
		v, ok := row.Field(e.Field)
		if !ok {
			return false
		}
		return compare(e.Op, v, e.Value)
	}
}

func compare(op Op, a, b any) bool {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch op {
		case OpEq:
			return as == bs
		case OpNe:
			return as != bs
		case OpGt:
			return as > bs
		case OpGe:
			return as >= bs
		case OpLt:
			return as < bs
		case OpLe:
			return as <= bs
		}
		return false
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return op == OpNe
	}
	switch op {
	case OpEq:
		return af == bf
	case OpNe:
		return af != bf
	case OpGt:
		return af > bf
	case OpGe:
		return af >= bf
	case OpLt:
		return af < bf
	case OpLe:
		return af <= bf
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// And combines expressions with OpAnd, dropping nil children; returns nil
// if nothing remains.
func And(exprs ...*Expr) *Expr {
	children := make([]*Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			children = append(children, e)
		}
	}
	if len(children) == 0 {
		return nil
	}
	if len(children) == 1 {
		return children[0]
	}
	return &Expr{Op: OpAnd, Children: children}
}

// predicateJSON mirrors the JSON predicate grammar from spec.md §4.5:
// {eq:[field,value]} | {ne:…} | … | {and:[…]} | {or:[…]}.
type predicateJSON map[string]json.RawMessage

// ParsePredicate compiles a `predicate=` JSON document into an Expr.
func ParsePredicate(data []byte) (*Expr, error) {
	var raw predicateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("predicate: invalid json: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("predicate: expected exactly one operator key, got %d", len(raw))
	}
	for k, v := range raw {
		return parsePredicateOp(Op(k), v)
	}
	return nil, nil
}

func parsePredicateOp(op Op, v json.RawMessage) (*Expr, error) {
	switch op {
	case OpAnd, OpOr:
		var children []json.RawMessage
		if err := json.Unmarshal(v, &children); err != nil {
			return nil, fmt.Errorf("predicate: %s expects an array: %w", op, err)
		}
		e := &Expr{Op: op}
		for _, c := range children {
			child, err := ParsePredicate(c)
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
		}
		return e, nil
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		var pair [2]json.RawMessage
		if err := json.Unmarshal(v, &pair); err != nil {
			return nil, fmt.Errorf("predicate: %s expects [field, value]: %w", op, err)
		}
		var field string
		if err := json.Unmarshal(pair[0], &field); err != nil {
			return nil, fmt.Errorf("predicate: %s field must be a string: %w", op, err)
		}
		var value any
		if err := json.Unmarshal(pair[1], &value); err != nil {
			return nil, fmt.Errorf("predicate: %s value is invalid json: %w", op, err)
		}
		return &Expr{Op: op, Field: field, Value: value}, nil
	default:
		return nil, fmt.Errorf("predicate: unknown operator %q", op)
	}
}

// ParseLDAP compiles the `query=` LDAP-style filter string from spec.md
// §4.5, e.g. "(&(ram>=128)(tags=*-smartdc_type=core-*))". Tag membership
// uses the "tags=*-<key>=<value>-*" convention, compiled to an
// eq-on-synthetic-field "tag.<key>" comparison.
func ParseLDAP(s string) (*Expr, error) {
	p := &ldapParser{s: s}
	e, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("query: unexpected trailing input at %d", p.pos)
	}
	return e, nil
}

type ldapParser struct {
	s   string
	pos int
}

func (p *ldapParser) skipSpace() {
	for p.pos < len(p.s) && p.s[p.pos] == ' ' {
		p.pos++
	}
}

func (p *ldapParser) parseFilter() (*Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != '(' {
		return nil, fmt.Errorf("query: expected '(' at %d", p.pos)
	}
	p.pos++ // consume '('

	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("query: unexpected end of input")
	}

	var e *Expr
	var err error
	switch p.s[p.pos] {
	case '&', '|':
		op := OpAnd
		if p.s[p.pos] == '|' {
			op = OpOr
		}
		p.pos++
		e = &Expr{Op: op}
		for {
			p.skipSpace()
			if p.pos < len(p.s) && p.s[p.pos] == ')' {
				break
			}
			child, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
		}
	default:
		e, err = p.parseSimple()
		if err != nil {
			return nil, err
		}
	}

	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != ')' {
		return nil, fmt.Errorf("query: expected ')' at %d", p.pos)
	}
	p.pos++ // consume ')'
	return e, nil
}

// parseSimple parses "field<op>value" up to the closing ')'.
func (p *ldapParser) parseSimple() (*Expr, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ')' {
		p.pos++
	}
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("query: unterminated simple filter at %d", start)
	}
	clause := p.s[start:p.pos]

	for _, cand := range []struct {
		sym string
		op  Op
	}{
		{">=", OpGe}, {"<=", OpLe}, {"!=", OpNe}, {">", OpGt}, {"<", OpLt}, {"=", OpEq},
	} {
		if i := strings.Index(clause, cand.sym); i >= 0 {
			field := clause[:i]
			value := clause[i+len(cand.sym):]
			if field == "tags" {
				key, val, err := parseTagClause(value)
				if err != nil {
					return nil, err
				}
				return &Expr{Op: OpEq, Field: "tag." + key, Value: val}, nil
			}
			return &Expr{Op: cand.op, Field: field, Value: coerceLDAPValue(value)}, nil
		}
	}
	return nil, fmt.Errorf("query: no operator found in clause %q", clause)
}

// parseTagClause parses the "*-key=value-*" convention used for tag
// filtering inside an LDAP query string.
func parseTagClause(s string) (key, value string, err error) {
	s = strings.TrimPrefix(s, "*-")
	s = strings.TrimSuffix(s, "-*")
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("query: malformed tags clause %q", s)
	}
	return parts[0], parts[1], nil
}

func coerceLDAPValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mapRow map[string]any

func (r mapRow) Field(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

func TestEvalComparisons(t *testing.T) {
	row := mapRow{"ram": float64(256), "brand": "kvm"}

	cases := []struct {
		e    *Expr
		want bool
	}{
		{&Expr{Op: OpEq, Field: "brand", Value: "kvm"}, true},
		{&Expr{Op: OpNe, Field: "brand", Value: "kvm"}, false},
		{&Expr{Op: OpGe, Field: "ram", Value: float64(256)}, true},
		{&Expr{Op: OpGt, Field: "ram", Value: float64(256)}, false},
		{&Expr{Op: OpLt, Field: "ram", Value: float64(512)}, true},
		{&Expr{Op: OpEq, Field: "missing", Value: "x"}, false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Eval(c.e, row))
	}
}

func TestEvalAndOr(t *testing.T) {
	row := mapRow{"ram": float64(256), "brand": "kvm"}

	and := &Expr{Op: OpAnd, Children: []*Expr{
		{Op: OpEq, Field: "brand", Value: "kvm"},
		{Op: OpGe, Field: "ram", Value: float64(128)},
	}}
	require.True(t, Eval(and, row))

	or := &Expr{Op: OpOr, Children: []*Expr{
		{Op: OpEq, Field: "brand", Value: "bhyve"},
		{Op: OpGe, Field: "ram", Value: float64(128)},
	}}
	require.True(t, Eval(or, row))

	orFalse := &Expr{Op: OpOr, Children: []*Expr{
		{Op: OpEq, Field: "brand", Value: "bhyve"},
		{Op: OpGe, Field: "ram", Value: float64(1024)},
	}}
	require.False(t, Eval(orFalse, row))
}

func TestEvalNilIsVacuouslyTrue(t *testing.T) {
	require.True(t, Eval(nil, mapRow{}))
}

func TestAndDropsNilChildren(t *testing.T) {
	e := And(nil, &Expr{Op: OpEq, Field: "a", Value: "b"}, nil)
	require.NotNil(t, e)
	require.Equal(t, OpEq, e.Op)

	require.Nil(t, And(nil, nil))
}

func TestParsePredicateEq(t *testing.T) {
	e, err := ParsePredicate([]byte(`{"eq":["brand","kvm"]}`))
	require.NoError(t, err)
	require.Equal(t, OpEq, e.Op)
	require.Equal(t, "brand", e.Field)
	require.Equal(t, "kvm", e.Value)
}

func TestParsePredicateAndNested(t *testing.T) {
	e, err := ParsePredicate([]byte(`{"and":[{"eq":["brand","kvm"]},{"ge":["ram",128]}]}`))
	require.NoError(t, err)
	require.Equal(t, OpAnd, e.Op)
	require.Len(t, e.Children, 2)

	row := mapRow{"brand": "kvm", "ram": float64(256)}
	require.True(t, Eval(e, row))
}

func TestParsePredicateRejectsMultipleKeys(t *testing.T) {
	_, err := ParsePredicate([]byte(`{"eq":["a","b"],"ne":["c","d"]}`))
	require.Error(t, err)
}

func TestParsePredicateRejectsUnknownOp(t *testing.T) {
	_, err := ParsePredicate([]byte(`{"xor":["a","b"]}`))
	require.Error(t, err)
}

func TestParseLDAPSimpleClause(t *testing.T) {
	e, err := ParseLDAP("(ram>=128)")
	require.NoError(t, err)
	require.Equal(t, OpGe, e.Op)
	require.Equal(t, "ram", e.Field)
	require.Equal(t, float64(128), e.Value)
}

func TestParseLDAPAndOfClauses(t *testing.T) {
	e, err := ParseLDAP("(&(ram>=128)(brand=kvm))")
	require.NoError(t, err)
	require.Equal(t, OpAnd, e.Op)
	require.Len(t, e.Children, 2)

	row := mapRow{"ram": float64(256), "brand": "kvm"}
	require.True(t, Eval(e, row))
}

func TestParseLDAPOrOfClauses(t *testing.T) {
	e, err := ParseLDAP("(|(brand=kvm)(brand=bhyve))")
	require.NoError(t, err)
	require.Equal(t, OpOr, e.Op)
}

func TestParseLDAPTagClauseCompilesToSyntheticField(t *testing.T) {
	e, err := ParseLDAP("(tags=*-smartdc_type=core-*)")
	require.NoError(t, err)
	require.Equal(t, OpEq, e.Op)
	require.Equal(t, "tag.smartdc_type", e.Field)
	require.Equal(t, "core", e.Value)

	row := mapRow{"tag.smartdc_type": "core"}
	require.True(t, Eval(e, row))
}

func TestParseLDAPRejectsUnbalancedParens(t *testing.T) {
	_, err := ParseLDAP("(&(ram>=128)(brand=kvm)")
	require.Error(t, err)
}

func TestParseLDAPRejectsMissingOperator(t *testing.T) {
	_, err := ParseLDAP("(ram128)")
	require.Error(t, err)
}

func TestCoerceLDAPValue(t *testing.T) {
	require.Equal(t, float64(128), coerceLDAPValue("128"))
	require.Equal(t, true, coerceLDAPValue("true"))
	require.Equal(t, "kvm", coerceLDAPValue("kvm"))
}

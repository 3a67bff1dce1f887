package query_test

import (
	"testing"

	"github.com/keldb/keldb/internal/cell"
	"github.com/keldb/keldb/internal/table"
	"github.com/keldb/keldb/internal/token"
	. "github.com/keldb/keldb/internal/query"
	"gotest.tools/assert"
)

func newNumbers() *table.Table {
	t := table.New(table.NewHeader([]table.Column{
		{Name: "a", Type: cell.TypeInt},
		{Name: "b", Type: cell.TypeInt},
		{Name: "s", Type: cell.TypeString},
	}))
	t.AddRow(table.Row{cell.NewInt(1), cell.NewInt(10), cell.NewString("x")})
	t.AddRow(table.Row{cell.NewInt(2), cell.NewInt(20), cell.NewString("y")})
	t.AddRow(table.Row{cell.NewInt(3), cell.Null(), cell.NewString("z")})
	return t
}

func evalExpr(t *testing.T, tbl *table.Table, source string) *Expression {
	t.Helper()
	stream := token.NewStream(source)
	expr, err := EvaluateExpression(tbl, stream, nil)
	assert.NilError(t, err)
	assert.NilError(t, stream.AssertEnd())
	return expr
}

func TestArithmeticOverRows(t *testing.T) {
	tbl := newNumbers()

	expr := evalExpr(t, tbl, "a + b * 2")
	assert.Equal(t, expr.Type, cell.TypeInt)
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(21)))
	assert.Assert(t, cell.IsIdentical(expr.Values[1], cell.NewInt(42)))
	// null propagates
	assert.Assert(t, expr.Values[2].IsNull())

	// left associativity
	expr = evalExpr(t, tbl, "a - 1 - 1")
	assert.Assert(t, cell.IsIdentical(expr.Values[2], cell.NewInt(1)))

	// string concatenation via promotion
	expr = evalExpr(t, tbl, `s + "!"`)
	assert.Equal(t, expr.Type, cell.TypeString)
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewString("x!")))
}

func TestExpressionTypeInference(t *testing.T) {
	tbl := newNumbers()

	// inferred from declared column types against a dummy null row
	assert.Equal(t, evalExpr(t, tbl, "a").Type, cell.TypeInt)
	assert.Equal(t, evalExpr(t, tbl, "a + 1.5").Type, cell.TypeFloat)
	assert.Equal(t, evalExpr(t, tbl, "a + s").Type, cell.TypeString)
	assert.Equal(t, evalExpr(t, tbl, "NULL").Type, cell.TypeNull)
}

func TestExpressionErrors(t *testing.T) {
	tbl := newNumbers()

	_, err := EvaluateExpression(tbl, token.NewStream("missing"), nil)
	assert.ErrorContains(t, err, "variable not found")

	_, err = EvaluateExpression(tbl, token.NewStream("a / 0"), nil)
	assert.ErrorContains(t, err, "division by zero")

	_, err = EvaluateExpression(tbl, token.NewStream("s - a"), nil)
	assert.ErrorContains(t, err, "invalid operands")
}

func TestCount(t *testing.T) {
	tbl := newNumbers()

	expr := evalExpr(t, tbl, "COUNT(*)")
	assert.Equal(t, expr.Type, cell.TypeInt)
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(3)))

	// nulls are not counted
	expr = evalExpr(t, tbl, "COUNT(b)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(2)))

	_, err := EvaluateExpression(tbl, token.NewStream("COUNT(nope)"), nil)
	assert.ErrorContains(t, err, "unknown column")
}

func TestCountDistinct(t *testing.T) {
	tbl := table.New(table.NewHeader([]table.Column{{Name: "v", Type: cell.TypeInt}}))
	for _, v := range []int32{1, 1, 2, 2, 3} {
		tbl.AddRow(table.Row{cell.NewInt(v)})
	}

	expr := evalExpr(t, tbl, "COUNT(DISTINCT v)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(3)))

	expr = evalExpr(t, tbl, "COUNT(ALL v)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(5)))
}

func TestAggregates(t *testing.T) {
	tbl := newNumbers()

	expr := evalExpr(t, tbl, "SUM(a)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(6)))
	// aggregates are constant across rows
	assert.Assert(t, cell.IsIdentical(expr.Values[2], cell.NewInt(6)))

	expr = evalExpr(t, tbl, "MIN(a)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(1)))

	expr = evalExpr(t, tbl, "MAX(a)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(3)))

	expr = evalExpr(t, tbl, "AVG(a)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(2)))

	// a null in the column poisons SUM
	expr = evalExpr(t, tbl, "SUM(b)")
	assert.Assert(t, expr.Values[0].IsNull())

	// aggregate over an arbitrary expression
	expr = evalExpr(t, tbl, "SUM(a * 2)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(12)))

	expr = evalExpr(t, tbl, "SUM(DISTINCT a - a)")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(0)))
}

func TestAggregatesOnEmptyTable(t *testing.T) {
	empty := table.New(table.NewHeader([]table.Column{{Name: "v", Type: cell.TypeInt}}))

	expr := evalExpr(t, empty, "COUNT(*)")
	assert.Equal(t, len(expr.Values), 0)
	one, err := expr.EvaluateOnEmpty()
	assert.NilError(t, err)
	assert.Assert(t, cell.IsIdentical(one, cell.NewInt(0)))

	expr = evalExpr(t, empty, "SUM(v)")
	one, err = expr.EvaluateOnEmpty()
	assert.NilError(t, err)
	assert.Assert(t, one.IsNull())
}

func TestQualifiedVariables(t *testing.T) {
	tbl := table.New(table.NewHeader([]table.Column{
		{Alias: "t", Name: "v", Type: cell.TypeInt},
		{Alias: "u", Name: "v", Type: cell.TypeInt},
	}))
	tbl.AddRow(table.Row{cell.NewInt(1), cell.NewInt(2)})

	expr := evalExpr(t, tbl, "t.v + u.v")
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(3)))

	_, err := EvaluateExpression(tbl, token.NewStream("v"), nil)
	assert.ErrorContains(t, err, "non-unique variable name")
}

func TestOuterScope(t *testing.T) {
	tbl := newNumbers()

	outerHeader := table.NewHeader([]table.Column{{Alias: "o", Name: "base", Type: cell.TypeInt}})
	outer := table.Scope{}.Extend(table.BoundRow{
		Header: outerHeader,
		Row:    table.Row{cell.NewInt(100)},
	})

	stream := token.NewStream("a + base")
	expr, err := EvaluateExpression(tbl, stream, outer)
	assert.NilError(t, err)
	assert.Assert(t, cell.IsIdentical(expr.Values[0], cell.NewInt(101)))
	assert.Assert(t, cell.IsIdentical(expr.Values[1], cell.NewInt(102)))
}

func TestProject(t *testing.T) {
	tbl := newNumbers()

	result, err := Project(tbl, []string{"a", "a + b"}, nil, false)
	assert.NilError(t, err)
	assert.Equal(t, result.RowCount(), 3)
	assert.Equal(t, result.Header.Columns[1].Name, "a + b")
	assert.Equal(t, result.Header.Columns[1].Type, cell.TypeInt)
	assert.Assert(t, cell.IsIdentical(result.Rows[0][1], cell.NewInt(11)))

	// star clones
	result, err = Project(tbl, []string{"*"}, nil, false)
	assert.NilError(t, err)
	assert.Equal(t, result.RowCount(), 3)
	assert.Equal(t, len(result.Header.Columns), 3)
}

func TestProjectAggregateMode(t *testing.T) {
	tbl := newNumbers()

	result, err := Project(tbl, []string{"COUNT(*)", "SUM(a)"}, nil, true)
	assert.NilError(t, err)
	assert.Equal(t, result.RowCount(), 1)
	assert.Assert(t, cell.IsIdentical(result.Rows[0][0], cell.NewInt(3)))
	assert.Assert(t, cell.IsIdentical(result.Rows[0][1], cell.NewInt(6)))

	empty := table.New(tbl.Header)
	result, err = Project(empty, []string{"COUNT(*)", "SUM(a)"}, nil, true)
	assert.NilError(t, err)
	assert.Equal(t, result.RowCount(), 1)
	assert.Assert(t, cell.IsIdentical(result.Rows[0][0], cell.NewInt(0)))
	assert.Assert(t, result.Rows[0][1].IsNull())
}

func TestSplitExpressions(t *testing.T) {
	sources, err := SplitExpressions(`a, SUM(b + 1), s + ","`)
	assert.NilError(t, err)
	assert.DeepEqual(t, sources, []string{"a", "SUM(b + 1)", `s + ","`})

	_, err = SplitExpressions("a, , b")
	assert.ErrorContains(t, err, "empty projection")
}

func TestContainsAggregate(t *testing.T) {
	assert.Assert(t, ContainsAggregate("count(*)"))
	assert.Assert(t, ContainsAggregate("1 + SUM(v)"))
	assert.Assert(t, !ContainsAggregate("a + b"))
	// substring scan: a column named COUNTRY is (mis)classified
	assert.Assert(t, ContainsAggregate("country"))
}

package query

import (
	"github.com/keldb/keldb/internal/cell"
	"github.com/keldb/keldb/internal/table"
	"github.com/keldb/keldb/internal/token"
)

// SubselectFunc re-enters the statement dispatcher: it parses and
// executes the SELECT on the given stream under the supplied variable
// scope and returns the fresh result table.
type SubselectFunc func(stream *token.Stream, vars table.Scope) (*table.Table, error)

type comparator func(a, b cell.Cell) bool

// conditionEvaluator drives the boolean grammar over one table. Results
// are vectors with one bit per row; subselects run once per row with the
// row bound into the scope.
type conditionEvaluator struct {
	tbl       *table.Table
	stream    *token.Stream
	vars      table.Scope
	subselect SubselectFunc
}

// EvaluateCondition parses a condition from the stream and evaluates it
// against every row of the table.
func EvaluateCondition(tbl *table.Table, stream *token.Stream, vars table.Scope, subselect SubselectFunc) ([]bool, error) {
	e := conditionEvaluator{tbl: tbl, stream: stream, vars: vars, subselect: subselect}
	return e.evaluateDisjunctive()
}

// EvaluateAggregateCondition evaluates a condition over a group and
// requires every per-row result to agree; the common value is the
// group's verdict. Empty groups are false.
func EvaluateAggregateCondition(tbl *table.Table, stream *token.Stream, vars table.Scope, subselect SubselectFunc) (bool, error) {
	result, err := EvaluateCondition(tbl, stream, vars, subselect)
	if err != nil {
		return false, err
	}
	if len(result) == 0 {
		return false, nil
	}
	for _, v := range result[1:] {
		if v != result[0] {
			return false, invalidf("non-aggregate condition used as aggregate")
		}
	}
	return result[0], nil
}

func negate(bits []bool) []bool {
	for i := range bits {
		bits[i] = !bits[i]
	}
	return bits
}

func (e *conditionEvaluator) evaluateDisjunctive() ([]bool, error) {
	result, err := e.evaluateConjunctive()
	if err != nil {
		return nil, err
	}

	for e.stream.TryIgnore("OR") {
		right, err := e.evaluateConjunctive()
		if err != nil {
			return nil, err
		}
		for i := range result {
			result[i] = result[i] || right[i]
		}
	}

	return result, nil
}

func (e *conditionEvaluator) evaluateConjunctive() ([]bool, error) {
	result, err := e.evaluateInner()
	if err != nil {
		return nil, err
	}

	for e.stream.TryIgnore("AND") {
		right, err := e.evaluateInner()
		if err != nil {
			return nil, err
		}
		for i := range result {
			result[i] = result[i] && right[i]
		}
	}

	return result, nil
}

func (e *conditionEvaluator) evaluateInner() ([]bool, error) {
	negated := e.stream.TryIgnore("NOT")

	result, err := e.evaluatePrimary()
	if err != nil {
		return nil, err
	}

	if negated {
		result = negate(result)
	}
	return result, nil
}

func (e *conditionEvaluator) evaluatePrimary() ([]bool, error) {
	if e.stream.TryIgnore("EXISTS") {
		return e.evaluateExists()
	}

	bracketed := e.stream.TryIgnore("(")

	expr, err := EvaluateExpression(e.tbl, e.stream, e.vars)
	if err != nil {
		return nil, err
	}

	if bracketed {
		if err := e.stream.Ignore(")"); err != nil {
			return nil, err
		}
	}

	negated := e.stream.TryIgnore("NOT")

	result, err := e.evaluateSwitch(expr)
	if err != nil {
		return nil, err
	}

	if negated {
		result = negate(result)
	}
	return result, nil
}

func (e *conditionEvaluator) evaluateSwitch(expr *Expression) ([]bool, error) {
	if e.stream.TryIgnore("IS") {
		return e.evaluateIs(expr)
	}
	if e.stream.TryIgnore("LIKE") {
		return e.evaluateLike(expr)
	}
	if e.stream.TryIgnore("IN") {
		return e.evaluateIn(expr)
	}
	if e.stream.TryIgnore("BETWEEN") {
		return e.evaluateBetween(expr)
	}
	return e.evaluateCompare(expr)
}

func (e *conditionEvaluator) evaluateIs(expr *Expression) ([]bool, error) {
	negated := e.stream.TryIgnore("NOT")
	if err := e.stream.Ignore("NULL"); err != nil {
		return nil, err
	}

	result := make([]bool, len(expr.Values))
	for i, v := range expr.Values {
		result[i] = v.IsNull()
	}

	if negated {
		result = negate(result)
	}
	return result, nil
}

func (e *conditionEvaluator) evaluateLike(expr *Expression) ([]bool, error) {
	pattern, err := e.stream.GetOfType(token.TypeString)
	if err != nil {
		return nil, err
	}
	re, err := likeToRegexp(pattern.Value)
	if err != nil {
		return nil, err
	}

	result := make([]bool, len(expr.Values))
	for i, v := range expr.Values {
		repr, ok := v.Repr()
		if !ok {
			// null is not like anything
			continue
		}
		result[i] = re.MatchString(repr)
	}
	return result, nil
}

func (e *conditionEvaluator) evaluateIn(expr *Expression) ([]bool, error) {
	if err := e.stream.Ignore("("); err != nil {
		return nil, err
	}

	var searched [][]cell.Cell

	next, err := e.stream.Peek()
	if err != nil {
		return nil, err
	}
	if next.Type == token.TypeIdentifier && next.Like("SELECT") {
		searched, err = e.processSelectVectors()
		if err != nil {
			return nil, err
		}
	} else {
		values, err := e.readLiteralList()
		if err != nil {
			return nil, err
		}
		// the same list applies to every row
		searched = make([][]cell.Cell, len(expr.Values))
		for i := range searched {
			searched[i] = values
		}
	}

	if err := e.stream.Ignore(")"); err != nil {
		return nil, err
	}

	result := make([]bool, len(expr.Values))
	for i, target := range expr.Values {
		for _, candidate := range searched[i] {
			if cell.Equal(target, candidate) {
				result[i] = true
				break
			}
		}
	}
	return result, nil
}

// readLiteralList reads comma-separated literal tokens up to the closing
// parenthesis, which is left in the stream.
func (e *conditionEvaluator) readLiteralList() ([]cell.Cell, error) {
	values := []cell.Cell{}

	next, err := e.stream.Peek()
	if err != nil {
		return nil, err
	}
	if next.Type == token.TypeSpecial && next.Value == ")" {
		return values, nil
	}

	for {
		tok, err := e.stream.Get()
		if err != nil {
			return nil, err
		}
		value, err := tok.ToCell()
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		next, err := e.stream.Peek()
		if err != nil {
			return nil, err
		}
		if next.Type == token.TypeSpecial && next.Value == ")" {
			return values, nil
		}
		if err := e.stream.Ignore(","); err != nil {
			return nil, err
		}
	}
}

func (e *conditionEvaluator) evaluateBetween(expr *Expression) ([]bool, error) {
	low, err := EvaluateExpression(e.tbl, e.stream, e.vars)
	if err != nil {
		return nil, err
	}
	if err := e.stream.Ignore("AND"); err != nil {
		return nil, err
	}
	high, err := EvaluateExpression(e.tbl, e.stream, e.vars)
	if err != nil {
		return nil, err
	}

	result := make([]bool, len(expr.Values))
	for i, v := range expr.Values {
		result[i] = cell.LessEqual(low.Values[i], v) && cell.LessEqual(v, high.Values[i])
	}
	return result, nil
}

func tokenToComparator(tok token.Token) (comparator, error) {
	switch tok.Value {
	case "<":
		return cell.Less, nil
	case ">":
		return cell.Greater, nil
	case "=":
		return cell.Equal, nil
	case "<=":
		return cell.LessEqual, nil
	case ">=":
		return cell.GreaterEqual, nil
	case "<>":
		return cell.NotEqual, nil
	}
	return nil, invalidf("invalid operator %s", tok.Value)
}

func (e *conditionEvaluator) evaluateCompare(expr *Expression) ([]bool, error) {
	opToken, err := e.stream.Get()
	if err != nil {
		return nil, err
	}
	compare, err := tokenToComparator(opToken)
	if err != nil {
		return nil, err
	}

	hasAny := e.stream.TryIgnore("ANY")
	hasAll := e.stream.TryIgnore("ALL")
	if hasAny && hasAll {
		return nil, invalidf("cannot use ANY and ALL together")
	}

	next, err := e.stream.Peek()
	if err != nil {
		return nil, err
	}
	if next.Type == token.TypeSpecial && next.Value == "(" {
		return e.evaluateCompareSubquery(expr, compare, hasAny, hasAll)
	}
	if hasAny || hasAll {
		return nil, invalidf("ANY and ALL require a subquery")
	}

	right, err := EvaluateExpression(e.tbl, e.stream, e.vars)
	if err != nil {
		return nil, err
	}

	result := make([]bool, len(expr.Values))
	for i, v := range expr.Values {
		result[i] = compare(v, right.Values[i])
	}
	return result, nil
}

func (e *conditionEvaluator) evaluateCompareSubquery(expr *Expression, compare comparator, hasAny, hasAll bool) ([]bool, error) {
	if err := e.stream.Ignore("("); err != nil {
		return nil, err
	}

	if !hasAny && !hasAll {
		singles, err := e.processSelectSingles()
		if err != nil {
			return nil, err
		}
		if err := e.stream.Ignore(")"); err != nil {
			return nil, err
		}

		result := make([]bool, len(expr.Values))
		for i, v := range expr.Values {
			result[i] = compare(v, singles[i])
		}
		return result, nil
	}

	vectors, err := e.processSelectVectors()
	if err != nil {
		return nil, err
	}
	if err := e.stream.Ignore(")"); err != nil {
		return nil, err
	}

	result := make([]bool, len(expr.Values))
	for i, v := range expr.Values {
		if hasAny {
			// any over an empty set is false
			for _, candidate := range vectors[i] {
				if compare(v, candidate) {
					result[i] = true
					break
				}
			}
		} else {
			// all over an empty set is vacuously true
			result[i] = true
			for _, candidate := range vectors[i] {
				if !compare(v, candidate) {
					result[i] = false
					break
				}
			}
		}
	}
	return result, nil
}

func (e *conditionEvaluator) evaluateExists() ([]bool, error) {
	if err := e.stream.Ignore("("); err != nil {
		return nil, err
	}

	tables, err := e.processSelect()
	if err != nil {
		return nil, err
	}
	if err := e.stream.Ignore(")"); err != nil {
		return nil, err
	}

	result := make([]bool, len(tables))
	for i, tbl := range tables {
		result[i] = tbl.RowCount() > 0
	}
	return result, nil
}

// processSelect captures the subquery source between the balanced
// parentheses and executes it once per row of the outer table, with that
// row bound into the scope so correlated references resolve.
func (e *conditionEvaluator) processSelect() ([]*table.Table, error) {
	if e.subselect == nil {
		return nil, invalidf("subqueries are not allowed here")
	}

	source, err := e.stream.CaptureBracketed()
	if err != nil {
		return nil, err
	}
	source += ";"

	tables := make([]*table.Table, len(e.tbl.Rows))
	for i, row := range e.tbl.Rows {
		scope := e.vars.Extend(table.BoundRow{Header: e.tbl.Header, Row: row})
		tables[i], err = e.subselect(token.NewStream(source), scope)
		if err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func extractSingle(tbl *table.Table) (cell.Cell, error) {
	if len(tbl.Header.Columns) != 1 {
		return cell.Null(), invalidf("subquery must return one column")
	}
	if tbl.RowCount() != 1 {
		return cell.Null(), invalidf("subquery must return one row")
	}
	return tbl.Rows[0][0], nil
}

func extractVector(tbl *table.Table) ([]cell.Cell, error) {
	if len(tbl.Header.Columns) != 1 {
		return nil, invalidf("subquery must return one column")
	}
	result := make([]cell.Cell, len(tbl.Rows))
	for i, row := range tbl.Rows {
		result[i] = row[0]
	}
	return result, nil
}

func (e *conditionEvaluator) processSelectSingles() ([]cell.Cell, error) {
	tables, err := e.processSelect()
	if err != nil {
		return nil, err
	}
	result := make([]cell.Cell, len(tables))
	for i, tbl := range tables {
		result[i], err = extractSingle(tbl)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (e *conditionEvaluator) processSelectVectors() ([][]cell.Cell, error) {
	tables, err := e.processSelect()
	if err != nil {
		return nil, err
	}
	result := make([][]cell.Cell, len(tables))
	for i, tbl := range tables {
		result[i], err = extractVector(tbl)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

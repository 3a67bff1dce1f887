package query

import (
	"github.com/keldb/keldb/internal/cell"
	"github.com/keldb/keldb/internal/table"
	"github.com/keldb/keldb/internal/token"
)

// exprNode is one node of a parsed expression tree. Aggregates are
// folded into constant nodes at parse time, so only three node kinds
// remain.
type exprNode interface {
	evaluate(scope table.Scope) (cell.Cell, error)
	inferType(scope table.Scope) (cell.DataType, error)
}

type constantNode struct{ value cell.Cell }

func (n constantNode) evaluate(table.Scope) (cell.Cell, error) { return n.value, nil }
func (n constantNode) inferType(table.Scope) (cell.DataType, error) {
	return n.value.Type(), nil
}

type variableNode struct{ name string }

func (n variableNode) evaluate(scope table.Scope) (cell.Cell, error) {
	value, _, err := scope.Get(n.name)
	return value, err
}

func (n variableNode) inferType(scope table.Scope) (cell.DataType, error) {
	_, typ, err := scope.Get(n.name)
	return typ, err
}

type binaryNode struct {
	apply       func(a, b cell.Cell) (cell.Cell, error)
	left, right exprNode
}

func (n binaryNode) evaluate(scope table.Scope) (cell.Cell, error) {
	left, err := n.left.evaluate(scope)
	if err != nil {
		return cell.Null(), err
	}
	right, err := n.right.evaluate(scope)
	if err != nil {
		return cell.Null(), err
	}
	return n.apply(left, right)
}

func (n binaryNode) inferType(scope table.Scope) (cell.DataType, error) {
	left, err := n.left.inferType(scope)
	if err != nil {
		return cell.TypeNull, err
	}
	right, err := n.right.inferType(scope)
	if err != nil {
		return cell.TypeNull, err
	}
	return cell.CommonType(left, right), nil
}

// Expression is the result of parsing and evaluating an expression over
// every row of a table: the inferred type and one cell per row.
type Expression struct {
	Type   cell.DataType
	Values []cell.Cell

	tree exprNode
	tbl  *table.Table
	vars table.Scope
}

// evaluator drives the recursive-descent expression grammar against one
// table with an outer variable scope.
type evaluator struct {
	tbl    *table.Table
	stream *token.Stream
	vars   table.Scope
}

// EvaluateExpression parses the next additive expression from the stream
// and evaluates it across all rows of the table, extending the outer
// scope with one bound row at a time.
func EvaluateExpression(tbl *table.Table, stream *token.Stream, vars table.Scope) (*Expression, error) {
	e := evaluator{tbl: tbl, stream: stream, vars: vars}

	tree, err := e.parseAdditive()
	if err != nil {
		return nil, err
	}

	values := make([]cell.Cell, len(tbl.Rows))
	for i, row := range tbl.Rows {
		scope := vars.Extend(table.BoundRow{Header: tbl.Header, Row: row})
		values[i], err = tree.evaluate(scope)
		if err != nil {
			return nil, err
		}
	}

	dummy := vars.Extend(table.BoundRow{Header: tbl.Header, Row: table.NullRow(tbl.Header)})
	typ, err := tree.inferType(dummy)
	if err != nil {
		return nil, err
	}

	return &Expression{Type: typ, Values: values, tree: tree, tbl: tbl, vars: vars}, nil
}

// EvaluateOnEmpty evaluates the tree once against a null-filled dummy
// row; projection uses it to produce the aggregate row of an empty
// group.
func (x *Expression) EvaluateOnEmpty() (cell.Cell, error) {
	scope := x.vars.Extend(table.BoundRow{Header: x.tbl.Header, Row: table.NullRow(x.tbl.Header)})
	return x.tree.evaluate(scope)
}

func (e *evaluator) parseAdditive() (exprNode, error) {
	result, err := e.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	// looped, not recursed: + and - are left-associative
	for {
		next, err := e.stream.Peek()
		if err != nil {
			return nil, err
		}
		if next.Type != token.TypeSpecial || (next.Value != "+" && next.Value != "-") {
			break
		}
		if _, err := e.stream.Get(); err != nil {
			return nil, err
		}

		right, err := e.parseMultiplicative()
		if err != nil {
			return nil, err
		}

		if next.Value == "+" {
			result = binaryNode{apply: cell.Add, left: result, right: right}
		} else {
			result = binaryNode{apply: cell.Sub, left: result, right: right}
		}
	}

	return result, nil
}

func (e *evaluator) parseMultiplicative() (exprNode, error) {
	result, err := e.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		next, err := e.stream.Peek()
		if err != nil {
			return nil, err
		}
		if next.Type != token.TypeSpecial || (next.Value != "*" && next.Value != "/") {
			break
		}
		if _, err := e.stream.Get(); err != nil {
			return nil, err
		}

		right, err := e.parsePrimary()
		if err != nil {
			return nil, err
		}

		if next.Value == "*" {
			result = binaryNode{apply: cell.Mul, left: result, right: right}
		} else {
			result = binaryNode{apply: cell.Div, left: result, right: right}
		}
	}

	return result, nil
}

func isAggregateName(tok token.Token) bool {
	return tok.Like("MIN") || tok.Like("MAX") || tok.Like("SUM") || tok.Like("AVG")
}

func (e *evaluator) parsePrimary() (exprNode, error) {
	next, err := e.stream.Peek()
	if err != nil {
		return nil, err
	}

	if e.stream.TryIgnore("NULL") {
		return constantNode{value: cell.Null()}, nil
	}

	if e.stream.TryIgnore("COUNT") {
		return e.parseCount()
	}

	if next.Type == token.TypeIdentifier && isAggregateName(next) {
		return e.parseAggregate()
	}

	if next.Type == token.TypeIdentifier {
		name, err := e.parseColumnName()
		if err != nil {
			return nil, err
		}
		return variableNode{name: name}, nil
	}

	tok, err := e.stream.Get()
	if err != nil {
		return nil, err
	}
	value, err := tok.ToCell()
	if err != nil {
		return nil, err
	}
	return constantNode{value: value}, nil
}

// parseColumnName reads a bare or dot-qualified column reference.
func (e *evaluator) parseColumnName() (string, error) {
	tok, err := e.stream.GetOfType(token.TypeIdentifier)
	if err != nil {
		return "", err
	}
	name := tok.Value
	for e.stream.TryIgnore(".") {
		part, err := e.stream.GetOfType(token.TypeIdentifier)
		if err != nil {
			return "", err
		}
		name += "." + part.Value
	}
	return name, nil
}

func distinctCells(values []cell.Cell) []cell.Cell {
	seen := map[string]bool{}
	result := make([]cell.Cell, 0, len(values))
	for _, v := range values {
		key := v.IdentityKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, v)
	}
	return result
}

// parseCount handles COUNT(*) and COUNT([DISTINCT|ALL] column). Both
// fold to an int constant.
func (e *evaluator) parseCount() (exprNode, error) {
	if err := e.stream.Ignore("("); err != nil {
		return nil, err
	}

	if e.stream.TryIgnore("*") {
		if err := e.stream.Ignore(")"); err != nil {
			return nil, err
		}
		return constantNode{value: cell.NewInt(int32(e.tbl.RowCount()))}, nil
	}

	distinct := e.stream.TryIgnore("DISTINCT")
	e.stream.TryIgnore("ALL") // ALL is the default
	name, err := e.parseColumnName()
	if err != nil {
		return nil, err
	}
	if err := e.stream.Ignore(")"); err != nil {
		return nil, err
	}

	index, err := e.tbl.Header.FindUnique(name)
	if err != nil {
		return nil, invalidf("%s", err.Error())
	}

	values := []cell.Cell{}
	for _, row := range e.tbl.Rows {
		if !row[index].IsNull() {
			values = append(values, row[index])
		}
	}
	if distinct {
		values = distinctCells(values)
	}

	return constantNode{value: cell.NewInt(int32(len(values)))}, nil
}

// parseAggregate handles MIN/MAX/SUM/AVG over an argument expression.
// The argument is evaluated across the whole table up front and the
// reduction folds to a constant.
func (e *evaluator) parseAggregate() (exprNode, error) {
	kind, err := e.stream.Get()
	if err != nil {
		return nil, err
	}
	if err := e.stream.Ignore("("); err != nil {
		return nil, err
	}

	distinct := e.stream.TryIgnore("DISTINCT")

	argument, err := EvaluateExpression(e.tbl, e.stream, e.vars)
	if err != nil {
		return nil, err
	}
	if err := e.stream.Ignore(")"); err != nil {
		return nil, err
	}

	values := argument.Values
	if len(values) == 0 {
		return constantNode{value: cell.Null()}, nil
	}
	if distinct {
		values = distinctCells(values)
	}

	if kind.Like("MAX") {
		result := values[0]
		for _, v := range values[1:] {
			if cell.Greater(v, result) {
				result = v
			}
		}
		return constantNode{value: result}, nil
	}
	if kind.Like("MIN") {
		result := values[0]
		for _, v := range values[1:] {
			if cell.Less(v, result) {
				result = v
			}
		}
		return constantNode{value: result}, nil
	}

	sum := values[0]
	for _, v := range values[1:] {
		sum, err = cell.Add(sum, v)
		if err != nil {
			return nil, err
		}
	}

	if kind.Like("AVG") {
		sum, err = cell.Div(sum, cell.NewInt(int32(len(values))))
		if err != nil {
			return nil, err
		}
	}

	return constantNode{value: sum}, nil
}

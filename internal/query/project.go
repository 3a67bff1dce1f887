package query

import (
	"strings"

	"github.com/keldb/keldb/internal/table"
	"github.com/keldb/keldb/internal/token"
)

var aggregateNames = []string{"COUNT", "SUM", "AVG", "MIN", "MAX"}

// ContainsAggregate reports whether a projection expression mentions an
// aggregate function. A substring scan: a column literally named COUNTRY
// qualifies too.
func ContainsAggregate(source string) bool {
	upper := strings.ToUpper(source)
	for _, name := range aggregateNames {
		if strings.Contains(upper, name) {
			return true
		}
	}
	return false
}

// SplitExpressions breaks a projection list into its top-level
// comma-separated expression source strings, leaving parenthesized and
// quoted commas alone.
func SplitExpressions(source string) ([]string, error) {
	stream := token.NewStream(source)

	sources := []string{}
	start := 0
	nesting := 0
	for {
		tok, err := stream.Get()
		if err != nil {
			return nil, err
		}
		if tok.Type == token.TypeEmpty {
			sources = append(sources, strings.TrimSpace(source[start:]))
			break
		}
		if tok.Type == token.TypeSpecial && tok.Value == "(" {
			nesting++
		}
		if tok.Type == token.TypeSpecial && tok.Value == ")" {
			nesting--
		}
		if nesting == 0 && tok.Type == token.TypeSpecial && tok.Value == "," {
			sources = append(sources, strings.TrimSpace(source[start:tok.Pos]))
			start = tok.Pos + 1
		}
	}

	for _, s := range sources {
		if s == "" {
			return nil, invalidf("empty projection expression")
		}
	}
	return sources, nil
}

// Project evaluates each expression source over the table and makes its
// results one output column. Column names are the expression sources;
// column types are inferred. In aggregate mode the output is a single
// row built from the first value of each expression (aggregates are
// constant across rows), or from a null-row evaluation when the input is
// empty.
func Project(tbl *table.Table, sources []string, vars table.Scope, aggregate bool) (*table.Table, error) {
	if !aggregate && len(sources) == 1 && sources[0] == "*" {
		return tbl.Clone(), nil
	}

	columns := make([]table.Column, len(sources))
	expressions := make([]*Expression, len(sources))

	for i, source := range sources {
		stream := token.NewStream(source)
		expr, err := EvaluateExpression(tbl, stream, vars)
		if err != nil {
			return nil, err
		}
		if err := stream.AssertEnd(); err != nil {
			return nil, err
		}
		expressions[i] = expr
		columns[i] = table.Column{Name: source, Type: expr.Type}
	}

	result := table.New(table.NewHeader(columns))

	if aggregate {
		row := make(table.Row, len(expressions))
		for i, expr := range expressions {
			if len(expr.Values) > 0 {
				row[i] = expr.Values[0]
			} else {
				// empty group: COUNT folds to 0, other aggregates to null
				value, err := expr.EvaluateOnEmpty()
				if err != nil {
					return nil, err
				}
				row[i] = value
			}
		}
		result.Rows = append(result.Rows, row)
		return result, nil
	}

	for rowIndex := 0; rowIndex < tbl.RowCount(); rowIndex++ {
		row := make(table.Row, len(expressions))
		for i, expr := range expressions {
			row[i] = expr.Values[rowIndex]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

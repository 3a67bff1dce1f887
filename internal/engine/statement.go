package engine

import (
	"fmt"
	"strings"

	"github.com/keldb/keldb/internal/cell"
	"github.com/keldb/keldb/internal/query"
	"github.com/keldb/keldb/internal/storage"
	"github.com/keldb/keldb/internal/table"
	"github.com/keldb/keldb/internal/token"
	"github.com/keldb/keldb/pkg"
)

// ProcessQuery runs one statement and formats the response: `OK ...` for
// successful commands, the serialized result table for SELECT, and
// `ERROR ...` for any failure. Errors never escape.
func (e *Engine) ProcessQuery(q string) string {
	response, err := e.execute(q)
	if err != nil {
		pkg.DebugLog("query failed:", err)
		return "ERROR " + err.Error()
	}
	return response
}

func (e *Engine) execute(q string) (string, error) {
	stream := token.NewStream(q)

	first, err := stream.GetOfType(token.TypeIdentifier)
	if err != nil {
		return "", err
	}

	switch {
	case first.Like("CREATE"):
		return e.createStatement(stream)
	case first.Like("DROP"):
		return e.dropStatement(stream)
	case first.Like("INSERT"):
		return e.insertStatement(stream)
	case first.Like("DELETE"):
		return e.deleteStatement(stream)
	case first.Like("SELECT"):
		return e.topLevelSelect(stream)
	}
	return "", invalidf("unknown statement %s", first.Value)
}

// finishStatement consumes the terminating semicolon and rejects
// trailing input.
func finishStatement(stream *token.Stream) error {
	if err := stream.Ignore(";"); err != nil {
		return err
	}
	return stream.AssertEnd()
}

func (e *Engine) createStatement(stream *token.Stream) (string, error) {
	if err := stream.Ignore("TABLE"); err != nil {
		return "", err
	}
	nameToken, err := stream.GetOfType(token.TypeIdentifier)
	if err != nil {
		return "", err
	}
	if err := stream.Ignore("("); err != nil {
		return "", err
	}

	columns := []table.Column{}
	for {
		colToken, err := stream.GetOfType(token.TypeIdentifier)
		if err != nil {
			return "", err
		}
		if token.IsKeyword(colToken.Value) {
			return "", invalidf("column name %s is a reserved keyword", colToken.Value)
		}

		typeToken, err := stream.GetOfType(token.TypeIdentifier)
		if err != nil {
			return "", err
		}
		typ, err := cell.ParseDataType(strings.ToUpper(typeToken.Value))
		if err != nil || typ == cell.TypeNull {
			return "", invalidf("invalid column type %s", typeToken.Value)
		}

		columns = append(columns, table.Column{Name: colToken.Value, Type: typ})

		if stream.TryIgnore(")") {
			break
		}
		if err := stream.Ignore(","); err != nil {
			return "", err
		}
	}

	if err := finishStatement(stream); err != nil {
		return "", err
	}

	if err := e.AddTable(table.NewNamed(nameToken.Value, table.NewHeader(columns))); err != nil {
		return "", err
	}
	return fmt.Sprintf("OK Table %s created", nameToken.Value), nil
}

func (e *Engine) dropStatement(stream *token.Stream) (string, error) {
	if err := stream.Ignore("TABLE"); err != nil {
		return "", err
	}
	nameToken, err := stream.GetOfType(token.TypeIdentifier)
	if err != nil {
		return "", err
	}
	if err := finishStatement(stream); err != nil {
		return "", err
	}

	var removeErr error
	pkg.LockWrap(e, func() {
		removeErr = e.removeTableLocked(nameToken.Value)
	})
	if removeErr != nil {
		return "", removeErr
	}
	return fmt.Sprintf("OK Table %s dropped", nameToken.Value), nil
}

func (e *Engine) insertStatement(stream *token.Stream) (string, error) {
	if err := stream.Ignore("INTO"); err != nil {
		return "", err
	}
	nameToken, err := stream.GetOfType(token.TypeIdentifier)
	if err != nil {
		return "", err
	}

	// optional column list
	var names []string
	if stream.TryIgnore("(") {
		names = []string{}
		for {
			colToken, err := stream.GetOfType(token.TypeIdentifier)
			if err != nil {
				return "", err
			}
			names = append(names, colToken.Value)
			if stream.TryIgnore(")") {
				break
			}
			if err := stream.Ignore(","); err != nil {
				return "", err
			}
		}
	}

	if err := stream.Ignore("VALUES"); err != nil {
		return "", err
	}
	if err := stream.Ignore("("); err != nil {
		return "", err
	}

	values := []cell.Cell{}
	if !stream.TryIgnore(")") {
		for {
			tok, err := stream.Get()
			if err != nil {
				return "", err
			}
			value, err := tok.ToCell()
			if err != nil {
				return "", err
			}
			values = append(values, value)
			if stream.TryIgnore(")") {
				break
			}
			if err := stream.Ignore(","); err != nil {
				return "", err
			}
		}
	}

	if err := finishStatement(stream); err != nil {
		return "", err
	}

	e.locker.RLock()
	defer e.locker.RUnlock()

	t, err := e.getTableLocked(nameToken.Value)
	if err != nil {
		return "", err
	}

	row, err := buildInsertRow(t.Header, names, values)
	if err != nil {
		return "", err
	}
	if err := t.AddRow(row); err != nil {
		return "", err
	}

	return fmt.Sprintf("OK Inserted 1 row into table %s", t.Name), nil
}

// buildInsertRow assigns literals to columns: positionally across the
// whole header without a column list, by name with one. Omitted named
// columns become null; literals convert to the declared column type.
func buildInsertRow(header *table.Header, names []string, values []cell.Cell) (table.Row, error) {
	if names == nil {
		if len(values) != len(header.Columns) {
			return nil, invalidf("expected %d values, got %d", len(header.Columns), len(values))
		}
		row := make(table.Row, len(values))
		for i, value := range values {
			converted, err := value.Convert(header.Columns[i].Type)
			if err != nil {
				return nil, err
			}
			row[i] = converted
		}
		return row, nil
	}

	if len(names) != len(values) {
		return nil, invalidf("expected %d values, got %d", len(names), len(values))
	}

	row := make(table.Row, len(header.Columns))
	assigned := pkg.Map[int, bool]{}
	for i, name := range names {
		index, err := header.FindUnique(name)
		if err != nil {
			return nil, err
		}
		if assigned.Has(index) {
			return nil, invalidf("column %s assigned twice", name)
		}
		assigned.Set(index, true)

		converted, err := values[i].Convert(header.Columns[index].Type)
		if err != nil {
			return nil, err
		}
		row[index] = converted
	}
	return row, nil
}

func (e *Engine) deleteStatement(stream *token.Stream) (string, error) {
	if err := stream.Ignore("FROM"); err != nil {
		return "", err
	}
	nameToken, err := stream.GetOfType(token.TypeIdentifier)
	if err != nil {
		return "", err
	}
	if err := stream.Ignore("WHERE"); err != nil {
		return "", err
	}

	e.locker.RLock()
	defer e.locker.RUnlock()

	t, err := e.getTableLocked(nameToken.Value)
	if err != nil {
		return "", err
	}

	// condition evaluation and filtering form one critical section so
	// the mask stays aligned with the rows it was computed from
	deleted := 0
	var filterErr error
	pkg.LockWrap(t, func() {
		mask, err := query.EvaluateCondition(t, stream, nil, e.subselect)
		if err != nil {
			filterErr = err
			return
		}
		if err := finishStatement(stream); err != nil {
			filterErr = err
			return
		}
		before := t.RowCount()
		if err := t.RetainLocked(mask, true); err != nil {
			filterErr = err
			return
		}
		deleted = before - t.RowCount()
	})
	if filterErr != nil {
		return "", filterErr
	}

	return fmt.Sprintf("OK Deleted %d rows from table %s", deleted, t.Name), nil
}

// subselect is the callback handed to the condition evaluator: it parses
// a nested SELECT and executes it under the caller's variable scope. The
// catalog lock is already held in shared mode by the enclosing
// statement.
func (e *Engine) subselect(stream *token.Stream, vars table.Scope) (*table.Table, error) {
	if err := stream.Ignore("SELECT"); err != nil {
		return nil, err
	}
	return e.selectStatement(stream, vars)
}

func (e *Engine) topLevelSelect(stream *token.Stream) (string, error) {
	e.locker.RLock()
	defer e.locker.RUnlock()

	result, err := e.selectStatement(stream, nil)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	if err := storage.SerializeTable(result, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// selectStatement executes a SELECT whose keyword is already consumed.
// The caller holds the catalog lock in shared mode; subqueries re-enter
// here with the correlated scope.
func (e *Engine) selectStatement(stream *token.Stream, vars table.Scope) (*table.Table, error) {
	distinct := stream.TryIgnore("DISTINCT")
	if !distinct {
		stream.TryIgnore("ALL")
	}

	projectionSource, err := stream.CaptureUntil("FROM")
	if err != nil {
		return nil, err
	}
	sources, err := query.SplitExpressions(projectionSource)
	if err != nil {
		return nil, err
	}
	if err := stream.Ignore("FROM"); err != nil {
		return nil, err
	}

	operands, err := e.parseTableList(stream)
	if err != nil {
		return nil, err
	}

	current, err := table.CrossProduct(operands)
	if err != nil {
		return nil, err
	}

	if stream.TryIgnore("WHERE") {
		mask, err := query.EvaluateCondition(current, stream, vars, e.subselect)
		if err != nil {
			return nil, err
		}
		if err := current.Retain(mask, false); err != nil {
			return nil, err
		}
	}

	aggregate := false
	for _, source := range sources {
		if query.ContainsAggregate(source) {
			aggregate = true
		}
	}

	var groups []*table.Table
	if stream.TryIgnore("GROUP") {
		aggregate = true
		if err := stream.Ignore("BY"); err != nil {
			return nil, err
		}

		names := []string{}
		for {
			name, err := parseColumnReference(stream)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
			if !stream.TryIgnore(",") {
				break
			}
		}

		groups, err = current.GroupBy(names)
		if err != nil {
			return nil, err
		}

		if stream.TryIgnore("HAVING") {
			havingSource, err := stream.CaptureUntil(";")
			if err != nil {
				return nil, err
			}
			kept := []*table.Table{}
			for _, group := range groups {
				havingStream := token.NewStream(havingSource)
				ok, err := query.EvaluateAggregateCondition(group, havingStream, vars, e.subselect)
				if err != nil {
					return nil, err
				}
				if err := havingStream.AssertEnd(); err != nil {
					return nil, err
				}
				if ok {
					kept = append(kept, group)
				}
			}
			groups = kept
		}
	} else {
		groups = []*table.Table{current.Clone()}
	}

	if err := finishStatement(stream); err != nil {
		return nil, err
	}

	// the projection list resolves against this SELECT's own tables only:
	// with the outer frames in scope, any column name shared with the
	// enclosing query would be ambiguous
	var result *table.Table
	for _, group := range groups {
		projected, err := query.Project(group, sources, nil, aggregate)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = projected
			continue
		}
		if err := result.AppendTable(projected); err != nil {
			return nil, err
		}
	}

	if result == nil {
		// every group was filtered out: keep the projected header with
		// zero rows, types inferred against null-filled dummy rows
		emptied := table.New(current.Header)
		result, err = query.Project(emptied, sources, nil, false)
		if err != nil {
			return nil, err
		}
	}

	if distinct {
		result.Distinct()
	}

	return result, nil
}

// parseTableList reads `name [alias] (, name [alias])*`; a missing alias
// defaults to the table name so qualified references work unaliased.
func (e *Engine) parseTableList(stream *token.Stream) ([]table.Operand, error) {
	operands := []table.Operand{}
	for {
		nameToken, err := stream.GetOfType(token.TypeIdentifier)
		if err != nil {
			return nil, err
		}
		if token.IsKeyword(nameToken.Value) {
			return nil, invalidf("expected table name, got %s", nameToken.Value)
		}

		t, err := e.getTableLocked(nameToken.Value)
		if err != nil {
			return nil, err
		}

		alias := nameToken.Value
		next, err := stream.Peek()
		if err != nil {
			return nil, err
		}
		if next.Type == token.TypeIdentifier && !token.IsKeyword(next.Value) {
			aliasToken, _ := stream.Get()
			alias = aliasToken.Value
		}

		operands = append(operands, table.Operand{Table: t, Alias: alias})

		if !stream.TryIgnore(",") {
			break
		}
	}
	return operands, nil
}

func parseColumnReference(stream *token.Stream) (string, error) {
	tok, err := stream.GetOfType(token.TypeIdentifier)
	if err != nil {
		return "", err
	}
	name := tok.Value
	for stream.TryIgnore(".") {
		part, err := stream.GetOfType(token.TypeIdentifier)
		if err != nil {
			return "", err
		}
		name += "." + part.Value
	}
	return name, nil
}

package table

import (
	"fmt"

	"github.com/keldb/keldb/internal/cell"
)

// BoundRow is a non-owning pairing of a header and one of its rows, used
// as a name-resolution frame during evaluation.
type BoundRow struct {
	Header *Header
	Row    Row
}

// lookup resolves a column name inside this frame. An ambiguity within a
// single header is already an error.
func (b BoundRow) lookup(name string) (cell.Cell, cell.DataType, bool, error) {
	index, outcome := b.Header.Find(name)
	switch outcome {
	case LookupNotFound:
		return cell.Null(), cell.TypeNull, false, nil
	case LookupAmbiguous:
		return cell.Null(), cell.TypeNull, false, fmt.Errorf("non-unique variable name: %s", name)
	}
	return b.Row[index], b.Header.Columns[index].Type, true, nil
}

// Scope is a stack of bound rows forming a variable scope. Lookup scans
// every frame; a name visible in more than one frame is ambiguous.
type Scope []BoundRow

// Extend returns a new scope with one more frame; the receiver is left
// untouched so outer scopes can be shared across rows.
func (s Scope) Extend(b BoundRow) Scope {
	extended := make(Scope, len(s), len(s)+1)
	copy(extended, s)
	return append(extended, b)
}

// Get resolves a variable to its value and declared column type.
func (s Scope) Get(name string) (cell.Cell, cell.DataType, error) {
	var (
		value cell.Cell
		typ   cell.DataType
		found bool
	)

	for _, member := range s {
		v, t, ok, err := member.lookup(name)
		if err != nil {
			return cell.Null(), cell.TypeNull, err
		}
		if !ok {
			continue
		}
		if found {
			return cell.Null(), cell.TypeNull, fmt.Errorf("non-unique variable name: %s", name)
		}
		value, typ, found = v, t, true
	}

	if !found {
		return cell.Null(), cell.TypeNull, fmt.Errorf("variable not found: %s", name)
	}
	return value, typ, nil
}

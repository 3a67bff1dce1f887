package table

import (
	"fmt"

	"github.com/keldb/keldb/pkg"
)

// Operand names one input of a cross product. An empty alias defaults to
// the table's catalog name supplied by the caller.
type Operand struct {
	Table *Table
	Alias string
}

// CrossProduct builds the Cartesian product of the operands in order,
// installing each operand's alias on its columns. Shared locks are held
// on every operand for the duration, in list order.
func CrossProduct(operands []Operand) (*Table, error) {
	if len(operands) == 0 {
		return nil, fmt.Errorf("cross product needs at least one table")
	}

	for _, op := range operands {
		op.Table.GetLocker().RLock()
		defer op.Table.GetLocker().RUnlock()
	}

	header := operands[0].Table.Header.WithAlias(operands[0].Alias)
	rows := make([]Row, len(operands[0].Table.Rows))
	copy(rows, operands[0].Table.Rows)

	for _, op := range operands[1:] {
		header = joinHeaders(header, op.Table.Header.WithAlias(op.Alias))

		joined := make([]Row, 0, len(rows)*len(op.Table.Rows))
		for _, outer := range rows {
			for _, inner := range op.Table.Rows {
				row := make(Row, 0, len(outer)+len(inner))
				row = append(row, outer...)
				row = append(row, inner...)
				joined = append(joined, row)
			}
		}
		rows = joined
	}

	result := New(header)
	result.Rows = rows
	return result, nil
}

// Retain keeps the rows whose mask bit is true (false when negate is
// set), preserving order. The table's write lock is held.
func (t *Table) Retain(mask []bool, negate bool) error {
	var err error
	pkg.LockWrap(t, func() {
		err = t.RetainLocked(mask, negate)
	})
	return err
}

// RetainLocked is Retain for callers that already hold the write lock,
// e.g. DELETE, which evaluates its condition and filters in one critical
// section.
func (t *Table) RetainLocked(mask []bool, negate bool) error {
	if len(mask) != len(t.Rows) {
		return fmt.Errorf("mask has %d entries, table has %d rows", len(mask), len(t.Rows))
	}
	kept := make([]Row, 0, len(t.Rows))
	for i, row := range t.Rows {
		if mask[i] != negate {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
	return nil
}

// Distinct collapses rows by identity, keeping the first occurrence of
// each. Idempotent.
func (t *Table) Distinct() {
	pkg.LockWrap(t, func() {
		seen := pkg.Map[string, bool]{}
		kept := make([]Row, 0, len(t.Rows))
		for _, row := range t.Rows {
			key := row.identityKey()
			if seen.Has(key) {
				continue
			}
			seen.Set(key, true)
			kept = append(kept, row)
		}
		t.Rows = kept
	})
}

// AppendTable appends another table's rows to this one. The column
// descriptors must match exactly.
func (t *Table) AppendTable(other *Table) error {
	if !t.Header.Equal(other.Header) {
		return fmt.Errorf("incompatible headers in table union")
	}
	pkg.LockWrap(t, func() {
		t.Rows = append(t.Rows, other.Rows...)
	})
	return nil
}

// GroupBy partitions the rows by the identity tuple of the named
// columns. Each partition inherits the header; the source table is
// emptied. Partitions come back in first-seen order.
func (t *Table) GroupBy(names []string) ([]*Table, error) {
	indexes := make([]int, len(names))
	for i, name := range names {
		index, err := t.Header.FindUnique(name)
		if err != nil {
			return nil, err
		}
		indexes[i] = index
	}

	var groups []*Table
	pkg.LockWrap(t, func() {
		partitions := pkg.Map[string, *Table]{}
		for _, row := range t.Rows {
			key := Row{}
			for _, index := range indexes {
				key = append(key, row[index])
			}
			id := key.identityKey()

			group := partitions.Get(id)
			if group == nil {
				group = New(t.Header)
				partitions.Set(id, group)
				groups = append(groups, group)
			}
			group.Rows = append(group.Rows, row)
		}
		t.Rows = nil
	})

	return groups, nil
}

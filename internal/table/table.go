package table

import (
	"fmt"
	"strings"
	"sync"

	"github.com/keldb/keldb/internal/cell"
	"github.com/keldb/keldb/pkg"
)

// Column describes one column: an optional alias (the qualifier used in
// joined tables), the bare name, the declared type and the position in
// the row.
type Column struct {
	Alias string
	Name  string
	Type  cell.DataType
	Index int
}

// LookupResult is the outcome of a name lookup in a header.
type LookupResult int

const (
	LookupNotFound LookupResult = iota
	LookupUnique
	LookupAmbiguous
)

// Header is an ordered column list plus a lookup multimap. Keys are the
// bare column names and, for aliased columns, the qualified alias.name
// form. A bare name shared by two columns maps to both indexes.
type Header struct {
	Columns []Column
	lookup  pkg.Map[string, []int]
}

func NewHeader(columns []Column) *Header {
	h := &Header{Columns: columns, lookup: pkg.Map[string, []int]{}}
	for i := range h.Columns {
		h.Columns[i].Index = i
		c := &h.Columns[i]
		h.lookup.Set(c.Name, append(h.lookup.Get(c.Name), i))
		if c.Alias != "" {
			qualified := c.Alias + "." + c.Name
			h.lookup.Set(qualified, append(h.lookup.Get(qualified), i))
		}
	}
	return h
}

// Find resolves a bare or qualified column name. Lookup is
// case-sensitive.
func (h *Header) Find(name string) (int, LookupResult) {
	indexes := h.lookup.Get(name)
	switch len(indexes) {
	case 0:
		return 0, LookupNotFound
	case 1:
		return indexes[0], LookupUnique
	}
	return 0, LookupAmbiguous
}

// FindUnique resolves a column name, failing on missing or ambiguous
// names.
func (h *Header) FindUnique(name string) (int, error) {
	index, outcome := h.Find(name)
	switch outcome {
	case LookupNotFound:
		return 0, fmt.Errorf("unknown column %s", name)
	case LookupAmbiguous:
		return 0, fmt.Errorf("ambiguous column %s", name)
	}
	return index, nil
}

// WithAlias returns a copy of the header with the alias installed on
// every column.
func (h *Header) WithAlias(alias string) *Header {
	columns := make([]Column, len(h.Columns))
	copy(columns, h.Columns)
	for i := range columns {
		columns[i].Alias = alias
	}
	return NewHeader(columns)
}

func joinHeaders(left, right *Header) *Header {
	columns := make([]Column, 0, len(left.Columns)+len(right.Columns))
	columns = append(columns, left.Columns...)
	columns = append(columns, right.Columns...)
	return NewHeader(columns)
}

// Equal compares descriptors field by field; vertical union requires it.
func (h *Header) Equal(other *Header) bool {
	if len(h.Columns) != len(other.Columns) {
		return false
	}
	for i := range h.Columns {
		if h.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Row is a positional vector of cells aligned with a header.
type Row []cell.Cell

func (r Row) identityKey() string {
	var b strings.Builder
	for _, c := range r {
		b.WriteString(c.IdentityKey())
		b.WriteByte('|')
	}
	return b.String()
}

// NullRow builds an all-null row for the given header; type inference
// evaluates expressions against it.
func NullRow(h *Header) Row {
	return make(Row, len(h.Columns))
}

// Table is a header plus rows in insertion order, guarded by its own
// reader-writer lock. Name is the catalog name; transient result tables
// are anonymous.
type Table struct {
	locker sync.RWMutex

	Name   string
	Header *Header
	Rows   []Row
}

func New(header *Header) *Table {
	return &Table{Header: header}
}

func NewNamed(name string, header *Header) *Table {
	return &Table{Name: name, Header: header}
}

func (t *Table) GetLocker() *sync.RWMutex { return &t.locker }

func (t *Table) RowCount() int { return len(t.Rows) }

func (t *Table) validateRow(row Row) error {
	if len(row) != len(t.Header.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(t.Header.Columns))
	}
	for i, c := range row {
		declared := t.Header.Columns[i].Type
		if c.Type() != declared && !c.IsNull() {
			return fmt.Errorf("cell %d has type %s, column %s is %s",
				i, c.Type(), t.Header.Columns[i].Name, declared)
		}
	}
	return nil
}

// AddRow appends a row under the table's write lock after checking the
// per-column variant constraint.
func (t *Table) AddRow(row Row) error {
	var err error
	pkg.LockWrap(t, func() {
		if err = t.validateRow(row); err != nil {
			return
		}
		t.Rows = append(t.Rows, row)
	})
	return err
}

// Clone copies the table under its read lock. Rows share cells (cells
// are immutable values) but the row slice is fresh.
func (t *Table) Clone() *Table {
	clone := New(t.Header)
	pkg.RLockWrap(t, func() {
		clone.Rows = make([]Row, len(t.Rows))
		copy(clone.Rows, t.Rows)
	})
	return clone
}

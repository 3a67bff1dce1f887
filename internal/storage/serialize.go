package storage

import (
	"io"

	"github.com/keldb/keldb/internal/cell"
	"github.com/keldb/keldb/internal/table"
	"github.com/pkg/errors"
)

// SerializeTable writes a table as delimited text: column names, then
// declared types in uppercase, then one line per row with null cells as
// the \x sentinel.
func SerializeTable(t *table.Table, w io.Writer) error {
	records := make([][]Field, 0, t.RowCount()+2)

	names := make([]Field, len(t.Header.Columns))
	types := make([]Field, len(t.Header.Columns))
	for i, col := range t.Header.Columns {
		names[i] = Field{Value: col.Name}
		types[i] = Field{Value: col.Type.String()}
	}
	records = append(records, names, types)

	for _, row := range t.Rows {
		record := make([]Field, len(row))
		for i, c := range row {
			repr, ok := c.Repr()
			record[i] = Field{Value: repr, Null: !ok}
		}
		records = append(records, record)
	}

	return WriteRecords(w, records)
}

// LoadTable reads a table serialized by SerializeTable. Row cells are
// rebuilt from their string form through the declared column type.
func LoadTable(r io.Reader) (*table.Table, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, errors.New("invalid table data: missing header rows")
	}

	names := records[0]
	types := records[1]
	if len(types) != len(names) {
		return nil, errors.New("invalid table data: column type count mismatch")
	}

	columns := make([]table.Column, len(names))
	for i := range names {
		if names[i].Null {
			return nil, errors.New("invalid table data: null column name")
		}
		if types[i].Null {
			return nil, errors.New("invalid table data: null column type")
		}
		typ, err := cell.ParseDataType(types[i].Value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid table data")
		}
		columns[i] = table.Column{Name: names[i].Value, Type: typ}
	}

	result := table.New(table.NewHeader(columns))

	for _, record := range records[2:] {
		if len(record) != len(columns) {
			return nil, errors.New("invalid table data: row width mismatch")
		}
		row := make(table.Row, len(record))
		for i, field := range record {
			if field.Null {
				row[i] = cell.Null()
				continue
			}
			c, err := cell.FromString(field.Value, columns[i].Type)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", columns[i].Name)
			}
			row[i] = c
		}
		if err := result.AddRow(row); err != nil {
			return nil, err
		}
	}

	return result, nil
}

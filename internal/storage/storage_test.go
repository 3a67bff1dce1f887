package storage_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/keldb/keldb/internal/cell"
	. "github.com/keldb/keldb/internal/storage"
	"github.com/keldb/keldb/internal/table"
	"gotest.tools/assert"
)

const serialized = "Name,Age,Weight,Gender,\n" +
	"STRING,INT,FLOAT,CHAR,\n" +
	"John,\\x,0.500000,M,\n" +
	"Jane,30,\\x,F,\n" +
	"\\x,28,4.000000,\\x,\n"

func newPeopleTable(t *testing.T) *table.Table {
	tbl := table.New(table.NewHeader([]table.Column{
		{Name: "Name", Type: cell.TypeString},
		{Name: "Age", Type: cell.TypeInt},
		{Name: "Weight", Type: cell.TypeFloat},
		{Name: "Gender", Type: cell.TypeChar},
	}))
	assert.NilError(t, tbl.AddRow(table.Row{
		cell.NewString("John"), cell.Null(), cell.NewFloat(0.5), cell.NewChar('M'),
	}))
	assert.NilError(t, tbl.AddRow(table.Row{
		cell.NewString("Jane"), cell.NewInt(30), cell.Null(), cell.NewChar('F'),
	}))
	assert.NilError(t, tbl.AddRow(table.Row{
		cell.Null(), cell.NewInt(28), cell.NewFloat(4), cell.Null(),
	}))
	return tbl
}

func TestSerializeTable(t *testing.T) {
	var out bytes.Buffer
	assert.NilError(t, SerializeTable(newPeopleTable(t), &out))
	assert.Equal(t, out.String(), serialized)
}

func TestLoadThenSerializeRoundTrip(t *testing.T) {
	tbl, err := LoadTable(strings.NewReader(serialized))
	assert.NilError(t, err)
	assert.Equal(t, tbl.RowCount(), 3)

	var out bytes.Buffer
	assert.NilError(t, SerializeTable(tbl, &out))
	assert.Equal(t, out.String(), serialized)
}

func TestEscapes(t *testing.T) {
	tbl := table.New(table.NewHeader([]table.Column{{Name: "s", Type: cell.TypeString}}))
	assert.NilError(t, tbl.AddRow(table.Row{cell.NewString(`a,b\c`)}))

	var out bytes.Buffer
	assert.NilError(t, SerializeTable(tbl, &out))
	assert.Equal(t, out.String(), "s,\nSTRING,\na\\,b\\\\c,\n")

	reloaded, err := LoadTable(&out)
	assert.NilError(t, err)
	assert.Equal(t, reloaded.Rows[0][0].StringVal(), `a,b\c`)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadTable(strings.NewReader("a,\n"))
	assert.ErrorContains(t, err, "missing header rows")

	_, err = LoadTable(strings.NewReader("a,\nINT,STRING,\n"))
	assert.ErrorContains(t, err, "type count mismatch")

	_, err = LoadTable(strings.NewReader("a,\nBOGUS,\n"))
	assert.ErrorContains(t, err, "invalid data type")

	_, err = LoadTable(strings.NewReader("a,\nINT,\nnotanint,\n"))
	assert.ErrorContains(t, err, "could not convert")

	// \x with trailing content is malformed
	_, err = LoadTable(strings.NewReader("a,\nINT,\n\\xy,\n"))
	assert.ErrorContains(t, err, "null field")

	_, err = LoadTable(strings.NewReader("a,\nINT,\n\\q,\n"))
	assert.ErrorContains(t, err, "unknown escape")

	_, err = LoadTable(strings.NewReader("a,\nINT,\n1,2,\n"))
	assert.ErrorContains(t, err, "row width mismatch")
}

func TestEmptyTableRoundTrip(t *testing.T) {
	tbl := table.New(table.NewHeader([]table.Column{
		{Name: "id", Type: cell.TypeInt},
	}))

	var out bytes.Buffer
	assert.NilError(t, SerializeTable(tbl, &out))
	assert.Equal(t, out.String(), "id,\nINT,\n")

	reloaded, err := LoadTable(&out)
	assert.NilError(t, err)
	assert.Equal(t, reloaded.RowCount(), 0)
	assert.Equal(t, reloaded.Header.Columns[0].Name, "id")
}

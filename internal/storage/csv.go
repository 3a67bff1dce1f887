package storage

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	separator      = ','
	escapeSequence = '\\'
	nullEscape     = 'x'
)

// Field is one serialized cell: either a string value or the null
// sentinel. The empty string and null are distinct.
type Field struct {
	Value string
	Null  bool
}

// writeField escapes separators and backslashes; a null cell is written
// as the standalone \x sentinel.
func writeField(w io.Writer, field Field) error {
	if field.Null {
		_, err := w.Write([]byte{escapeSequence, nullEscape})
		return err
	}

	var b strings.Builder
	for i := 0; i < len(field.Value); i++ {
		c := field.Value[i]
		if c == escapeSequence || c == separator {
			b.WriteByte(escapeSequence)
		}
		b.WriteByte(c)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRecords writes rows of fields, each field terminated by the
// separator and each row (the last included) by a newline.
func WriteRecords(w io.Writer, records [][]Field) error {
	for _, record := range records {
		for _, field := range record {
			if err := writeField(w, field); err != nil {
				return err
			}
			if _, err := w.Write([]byte{separator}); err != nil {
				return err
			}
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}

type decodeError struct{ msg string }

func (e *decodeError) Error() string { return e.msg }

// parseLine splits one line into fields, undoing the escape alphabet.
func parseLine(line string) ([]Field, error) {
	fields := []Field{}

	pos := 0
	for pos < len(line) {
		var b strings.Builder
		null := false
		terminated := false

		for pos < len(line) {
			c := line[pos]
			pos++

			if c == separator {
				terminated = true
				break
			}

			if c != escapeSequence {
				b.WriteByte(c)
				continue
			}

			if pos >= len(line) {
				return nil, &decodeError{msg: "dangling escape at end of line"}
			}
			next := line[pos]
			pos++
			switch next {
			case escapeSequence:
				b.WriteByte(escapeSequence)
			case separator:
				b.WriteByte(separator)
			case nullEscape:
				if b.Len() != 0 || (pos < len(line) && line[pos] != separator) {
					return nil, &decodeError{msg: "null field has additional content"}
				}
				null = true
			default:
				return nil, &decodeError{msg: "unknown escape sequence"}
			}
		}

		if !terminated {
			return nil, &decodeError{msg: "unexpected end of line"}
		}
		fields = append(fields, Field{Value: b.String(), Null: null})
	}

	return fields, nil
}

// ReadRecords reads every line of delimited fields from the reader.
func ReadRecords(r io.Reader) ([][]Field, error) {
	records := [][]Field{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		record, err := parseLine(scanner.Text())
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading records")
	}

	return records, nil
}

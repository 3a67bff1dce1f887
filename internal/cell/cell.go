package cell

import (
	"fmt"
	"strconv"
)

// DataType is the runtime variant of a cell. Null is a value, not a
// declarable column type.
type DataType int

const (
	TypeNull DataType = iota
	TypeInt
	TypeFloat
	TypeChar
	TypeString
)

func (t DataType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeChar:
		return "CHAR"
	case TypeString:
		return "STRING"
	}
	return "INVALID"
}

// ParseDataType reads an uppercase type name as written in serialized
// table headers and CREATE TABLE statements.
func ParseDataType(name string) (DataType, error) {
	switch name {
	case "NULL":
		return TypeNull, nil
	case "INT":
		return TypeInt, nil
	case "FLOAT":
		return TypeFloat, nil
	case "CHAR":
		return TypeChar, nil
	case "STRING":
		return TypeString, nil
	}
	return TypeNull, &ConversionError{msg: fmt.Sprintf("invalid data type %q", name)}
}

// ConversionError reports a failed cell type conversion.
type ConversionError struct{ msg string }

func (e *ConversionError) Error() string { return e.msg }

func conversionErrorf(format string, args ...any) error {
	return &ConversionError{msg: fmt.Sprintf(format, args...)}
}

// Cell is a scalar value: one of null, int32, float32, one-byte char or
// string. The zero value is null. Cells are cheap value objects; only
// the payload field matching the variant is meaningful.
type Cell struct {
	typ DataType
	i   int32
	f   float32
	c   byte
	s   string
}

func Null() Cell                { return Cell{} }
func NewInt(v int32) Cell       { return Cell{typ: TypeInt, i: v} }
func NewFloat(v float32) Cell   { return Cell{typ: TypeFloat, f: v} }
func NewChar(v byte) Cell       { return Cell{typ: TypeChar, c: v} }
func NewString(v string) Cell   { return Cell{typ: TypeString, s: v} }
func (c Cell) Type() DataType   { return c.typ }
func (c Cell) IsNull() bool     { return c.typ == TypeNull }
func (c Cell) Int() int32       { return c.i }
func (c Cell) Float() float32   { return c.f }
func (c Cell) Char() byte       { return c.c }
func (c Cell) StringVal() string { return c.s }

// FromString builds a cell of the target type from its string form.
// The whole input must parse; trailing characters fail the conversion.
func FromString(value string, target DataType) (Cell, error) {
	return NewString(value).Convert(target)
}

// Repr returns the string form of the cell and whether the cell is
// non-null. Null has no representation.
func (c Cell) Repr() (string, bool) {
	if c.typ == TypeNull {
		return "", false
	}
	s, _ := c.Convert(TypeString)
	return s.s, true
}

// Convert returns the cell converted to the target type. Null converts
// to null regardless of target.
func (c Cell) Convert(target DataType) (Cell, error) {
	switch target {
	case TypeNull:
		return Null(), nil
	case TypeString:
		return c.convertToString()
	case TypeInt:
		return c.convertToInt()
	case TypeFloat:
		return c.convertToFloat()
	case TypeChar:
		return c.convertToChar()
	}
	return Null(), conversionErrorf("invalid conversion target")
}

func (c Cell) convertToString() (Cell, error) {
	switch c.typ {
	case TypeNull:
		return Null(), nil
	case TypeInt:
		return NewString(strconv.Itoa(int(c.i))), nil
	case TypeFloat:
		// six fixed decimals, same as the on-disk format
		return NewString(strconv.FormatFloat(float64(c.f), 'f', 6, 32)), nil
	case TypeChar:
		return NewString(string(c.c)), nil
	case TypeString:
		return c, nil
	}
	return Null(), conversionErrorf("invalid cell")
}

func (c Cell) convertToInt() (Cell, error) {
	switch c.typ {
	case TypeNull:
		return Null(), nil
	case TypeInt:
		return c, nil
	case TypeString:
		v, err := strconv.ParseInt(c.s, 10, 32)
		if err != nil {
			return Null(), conversionErrorf("could not convert %q to int", c.s)
		}
		return NewInt(int32(v)), nil
	}
	return Null(), conversionErrorf("can't convert %s to int", c.typ)
}

func (c Cell) convertToFloat() (Cell, error) {
	switch c.typ {
	case TypeNull:
		return Null(), nil
	case TypeInt:
		return NewFloat(float32(c.i)), nil
	case TypeFloat:
		return c, nil
	case TypeString:
		v, err := strconv.ParseFloat(c.s, 32)
		if err != nil {
			return Null(), conversionErrorf("could not convert %q to float", c.s)
		}
		return NewFloat(float32(v)), nil
	}
	return Null(), conversionErrorf("can't convert %s to float", c.typ)
}

func (c Cell) convertToChar() (Cell, error) {
	switch c.typ {
	case TypeNull:
		return Null(), nil
	case TypeChar:
		return c, nil
	case TypeString:
		if len(c.s) != 1 {
			return Null(), conversionErrorf("could not convert %q to char", c.s)
		}
		return NewChar(c.s[0]), nil
	}
	return Null(), conversionErrorf("can't convert %s to char", c.typ)
}

// CommonType is the promotion lattice for binary operations:
// same type stays, null wins, int+float widens to float, everything
// else (char included) meets at string.
func CommonType(a, b DataType) DataType {
	if a == b && a != TypeChar {
		return a
	}
	if a == TypeNull || b == TypeNull {
		return TypeNull
	}
	if (a == TypeInt && b == TypeFloat) || (a == TypeFloat && b == TypeInt) {
		return TypeFloat
	}
	return TypeString
}

// PromoteToCommon converts both cells to their common type. Promotion
// only ever moves toward null, float or string, so it cannot fail.
func PromoteToCommon(a, b Cell) (Cell, Cell) {
	target := CommonType(a.typ, b.typ)
	l, _ := a.Convert(target)
	r, _ := b.Convert(target)
	return l, r
}

// IsIdentical compares on identity: same variant and same payload.
// Unlike SQL equality, two nulls are identical.
func IsIdentical(a, b Cell) bool { return a == b }

// IdentityKey encodes the cell's variant and payload for use as a map
// key in grouping and deduplication.
func (c Cell) IdentityKey() string {
	r, _ := c.Repr()
	if c.typ == TypeFloat {
		// the shortest exact form, not the six-decimal rendering
		r = strconv.FormatFloat(float64(c.f), 'g', -1, 32)
	}
	return fmt.Sprintf("%d:%d:%s", c.typ, len(r), r)
}

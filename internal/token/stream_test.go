package token_test

import (
	"testing"

	"github.com/keldb/keldb/internal/cell"
	. "github.com/keldb/keldb/internal/token"
	"gotest.tools/assert"
)

func TestStreamBasics(t *testing.T) {
	s := NewStream("SELECT a, b2 FROM _t WHERE a <= 1.5;")

	tok, err := s.Get()
	assert.NilError(t, err)
	assert.Equal(t, tok.Type, TypeIdentifier)
	assert.Assert(t, tok.Like("select"))

	tok, err = s.GetOfType(TypeIdentifier)
	assert.NilError(t, err)
	assert.Equal(t, tok.Value, "a")

	assert.NilError(t, s.Ignore(","))
	tok, _ = s.Get()
	assert.Equal(t, tok.Value, "b2")

	assert.NilError(t, s.Ignore("FROM"))
	tok, _ = s.Get()
	assert.Equal(t, tok.Value, "_t")

	assert.NilError(t, s.Ignore("WHERE"))
	tok, _ = s.Get()
	assert.Equal(t, tok.Value, "a")

	tok, _ = s.Get()
	assert.Equal(t, tok.Type, TypeSpecial)
	assert.Equal(t, tok.Value, "<=")

	tok, _ = s.Get()
	assert.Equal(t, tok.Type, TypeNumber)
	assert.Equal(t, tok.Value, "1.5")

	assert.NilError(t, s.Ignore(";"))
	assert.NilError(t, s.AssertEnd())
	assert.Assert(t, s.Empty())
}

func TestPeekIsLazy(t *testing.T) {
	s := NewStream("a b")
	tok, err := s.Peek()
	assert.NilError(t, err)
	assert.Equal(t, tok.Value, "a")

	// peek does not consume
	tok, err = s.Get()
	assert.NilError(t, err)
	assert.Equal(t, tok.Value, "a")

	tok, err = s.Get()
	assert.NilError(t, err)
	assert.Equal(t, tok.Value, "b")

	tok, err = s.Get()
	assert.NilError(t, err)
	assert.Equal(t, tok.Type, TypeEmpty)
}

func TestStringLiterals(t *testing.T) {
	s := NewStream(`"double" 'single' "it's"`)

	tok, err := s.GetOfType(TypeString)
	assert.NilError(t, err)
	assert.Equal(t, tok.Value, "double")

	tok, err = s.GetOfType(TypeString)
	assert.NilError(t, err)
	assert.Equal(t, tok.Value, "single")

	tok, err = s.GetOfType(TypeString)
	assert.NilError(t, err)
	assert.Equal(t, tok.Value, "it's")

	_, err = NewStream(`"unclosed`).Get()
	assert.ErrorContains(t, err, "unclosed string literal")
}

func TestTwoCharSpecials(t *testing.T) {
	s := NewStream("<= >= <> < > =")
	expected := []string{"<=", ">=", "<>", "<", ">", "="}
	for _, want := range expected {
		tok, err := s.Get()
		assert.NilError(t, err)
		assert.Equal(t, tok.Type, TypeSpecial)
		assert.Equal(t, tok.Value, want)
	}
}

func TestTryIgnore(t *testing.T) {
	s := NewStream("DISTINCT a")
	assert.Assert(t, s.TryIgnore("distinct"))
	assert.Assert(t, !s.TryIgnore("ALL"))

	tok, _ := s.Get()
	assert.Equal(t, tok.Value, "a")

	err := NewStream("b").Ignore("a")
	assert.ErrorContains(t, err, `expected token "a"`)
}

func TestCaptureBracketed(t *testing.T) {
	s := NewStream(`(SELECT x FROM t WHERE s = "a,b" AND (x > 1)) next`)
	assert.NilError(t, s.Ignore("("))

	inner, err := s.CaptureBracketed()
	assert.NilError(t, err)
	assert.Equal(t, inner, `SELECT x FROM t WHERE s = "a,b" AND (x > 1)`)

	assert.NilError(t, s.Ignore(")"))
	tok, _ := s.Get()
	assert.Equal(t, tok.Value, "next")

	_, err = NewStream("( a b").CaptureBracketed()
	assert.ErrorContains(t, err, "unbalanced")
}

func TestCaptureUntil(t *testing.T) {
	s := NewStream("a + b, COUNT(c) FROM t")
	src, err := s.CaptureUntil("FROM")
	assert.NilError(t, err)
	assert.Equal(t, src, "a + b, COUNT(c) ")
	assert.NilError(t, s.Ignore("FROM"))

	// a FROM inside parentheses is not a stop
	s = NewStream("(SELECT a FROM u) FROM t")
	src, err = s.CaptureUntil("FROM")
	assert.NilError(t, err)
	assert.Equal(t, src, "(SELECT a FROM u) ")
}

func TestToCell(t *testing.T) {
	c, err := (Token{Type: TypeNumber, Value: "12"}).ToCell()
	assert.NilError(t, err)
	assert.Assert(t, cell.IsIdentical(c, cell.NewInt(12)))

	c, err = (Token{Type: TypeNumber, Value: "1.5"}).ToCell()
	assert.NilError(t, err)
	assert.Assert(t, cell.IsIdentical(c, cell.NewFloat(1.5)))

	c, err = (Token{Type: TypeString, Value: "hi"}).ToCell()
	assert.NilError(t, err)
	assert.Assert(t, cell.IsIdentical(c, cell.NewString("hi")))

	c, err = (Token{Type: TypeIdentifier, Value: "NULL"}).ToCell()
	assert.NilError(t, err)
	assert.Assert(t, c.IsNull())

	_, err = (Token{Type: TypeSpecial, Value: "-"}).ToCell()
	assert.ErrorContains(t, err, "expected a literal")
}

func TestIsKeyword(t *testing.T) {
	assert.Assert(t, IsKeyword("select"))
	assert.Assert(t, IsKeyword("Between"))
	assert.Assert(t, !IsKeyword("name"))
}

package token

// Stream tokenizes a query string with exactly one token of lookahead,
// materialized lazily.
type Stream struct {
	src  string
	pos  int
	next *Token
}

func NewStream(src string) *Stream {
	return &Stream{src: src}
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

func startsIdentifier(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func continuesIdentifier(c byte) bool {
	return startsIdentifier(c) || (c >= '0' && c <= '9')
}

func startsNumber(c byte) bool {
	return c == '.' || (c >= '0' && c <= '9')
}

func startsString(c byte) bool {
	return c == '"' || c == '\''
}

func (s *Stream) skipWhitespace() {
	for s.pos < len(s.src) && isWhitespace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *Stream) loadNext() error {
	if s.next != nil {
		return nil
	}

	s.skipWhitespace()

	if s.pos >= len(s.src) {
		s.next = &Token{Type: TypeEmpty, Pos: s.pos}
		return nil
	}

	start := s.pos
	c := s.src[s.pos]

	var tok Token
	switch {
	case startsString(c):
		quote := c
		s.pos++
		for s.pos < len(s.src) && s.src[s.pos] != quote {
			s.pos++
		}
		if s.pos >= len(s.src) {
			return parseErrorf("unclosed string literal")
		}
		tok = Token{Type: TypeString, Value: s.src[start+1 : s.pos], Pos: start}
		s.pos++
	case startsIdentifier(c):
		for s.pos < len(s.src) && continuesIdentifier(s.src[s.pos]) {
			s.pos++
		}
		tok = Token{Type: TypeIdentifier, Value: s.src[start:s.pos], Pos: start}
	case startsNumber(c):
		for s.pos < len(s.src) && startsNumber(s.src[s.pos]) {
			s.pos++
		}
		tok = Token{Type: TypeNumber, Value: s.src[start:s.pos], Pos: start}
	default:
		s.pos++
		// <= >= <> are single two-character specials
		if s.pos < len(s.src) {
			two := s.src[start : s.pos+1]
			if two == "<=" || two == ">=" || two == "<>" {
				s.pos++
			}
		}
		tok = Token{Type: TypeSpecial, Value: s.src[start:s.pos], Pos: start}
	}

	s.next = &tok
	return nil
}

// Peek returns the next token without consuming it.
func (s *Stream) Peek() (Token, error) {
	if err := s.loadNext(); err != nil {
		return Token{}, err
	}
	return *s.next, nil
}

// Get consumes and returns the next token.
func (s *Stream) Get() (Token, error) {
	if err := s.loadNext(); err != nil {
		return Token{}, err
	}
	tok := *s.next
	s.next = nil
	return tok, nil
}

// GetOfType consumes the next token and fails unless it has the wanted
// type.
func (s *Stream) GetOfType(typ TokenType) (Token, error) {
	tok, err := s.Get()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != typ {
		return Token{}, parseErrorf("expected %s token, got %q", typ, tok.Value)
	}
	return tok, nil
}

// Ignore consumes the next token and fails unless its lexeme matches
// case-insensitively.
func (s *Stream) Ignore(lexeme string) error {
	tok, err := s.Get()
	if err != nil {
		return err
	}
	if !tok.Like(lexeme) {
		return parseErrorf("expected token %q, got %q", lexeme, tok.Value)
	}
	return nil
}

// TryIgnore consumes the next token only when it matches.
func (s *Stream) TryIgnore(lexeme string) bool {
	tok, err := s.Peek()
	if err != nil {
		return false
	}
	if tok.Type == TypeString || !tok.Like(lexeme) {
		return false
	}
	s.next = nil
	return true
}

// Empty reports whether the stream is exhausted.
func (s *Stream) Empty() bool {
	tok, err := s.Peek()
	if err != nil {
		return false
	}
	return tok.Type == TypeEmpty
}

// AssertEnd fails when unconsumed tokens remain.
func (s *Stream) AssertEnd() error {
	tok, err := s.Peek()
	if err != nil {
		return err
	}
	if tok.Type != TypeEmpty {
		return parseErrorf("unexpected trailing token %q", tok.Value)
	}
	return nil
}

// CaptureBracketed returns the raw source between the current position
// and the closing parenthesis matching an already-consumed opener. The
// closing parenthesis is left in the stream.
func (s *Stream) CaptureBracketed() (string, error) {
	first, err := s.Peek()
	if err != nil {
		return "", err
	}
	start := first.Pos
	end := start

	nesting := 1
	for {
		tok, err := s.Peek()
		if err != nil {
			return "", err
		}
		if tok.Type == TypeEmpty {
			return "", parseErrorf("unbalanced parentheses")
		}
		if tok.Type == TypeSpecial && tok.Value == "(" {
			nesting++
		}
		if tok.Type == TypeSpecial && tok.Value == ")" {
			nesting--
			if nesting == 0 {
				end = tok.Pos
				break
			}
		}
		if _, err := s.Get(); err != nil {
			return "", err
		}
	}

	return s.src[start:end], nil
}

// CaptureUntil returns the raw source up to (not including) the next
// top-level occurrence of the given keyword or special lexeme, or to the
// end of input when stop never appears. The stop token is left in the
// stream.
func (s *Stream) CaptureUntil(stop string) (string, error) {
	first, err := s.Peek()
	if err != nil {
		return "", err
	}
	start := first.Pos
	end := start

	nesting := 0
	for {
		tok, err := s.Peek()
		if err != nil {
			return "", err
		}
		if tok.Type == TypeEmpty {
			end = tok.Pos
			break
		}
		if tok.Type == TypeSpecial && tok.Value == "(" {
			nesting++
		}
		if tok.Type == TypeSpecial && tok.Value == ")" {
			nesting--
		}
		if nesting == 0 && tok.Type != TypeString && tok.Like(stop) {
			end = tok.Pos
			break
		}
		if _, err := s.Get(); err != nil {
			return "", err
		}
	}

	return s.src[start:end], nil
}

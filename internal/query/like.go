package query

import (
	"regexp"
	"strings"
)

// likeToRegexp rewrites a LIKE pattern as an anchored regular
// expression: % matches any sequence, _ exactly one character, anything
// else itself.
func likeToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, c := range pattern {
		switch c {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

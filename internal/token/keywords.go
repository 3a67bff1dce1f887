package token

import "strings"

var keywords = []string{
	"SELECT",
	"DELETE",
	"FROM",
	"WHERE",
	"GROUP",
	"BY",
	"HAVING",
	"INSERT",
	"INTO",
	"VALUES",
	"DROP",
	"TABLE",
	"CREATE",
	"ALL",
	"DISTINCT",
	"MAX",
	"MIN",
	"AVG",
	"COUNT",
	"SUM",
	"BETWEEN",
	"LIKE",
	"NULL",
	"AND",
	"OR",
	"NOT",
	"ANY",
	"EXISTS",
	"IN",
	"IS",
}

// IsKeyword reports whether a word is reserved, case-insensitively.
func IsKeyword(word string) bool {
	upper := strings.ToUpper(word)
	for _, keyword := range keywords {
		if upper == keyword {
			return true
		}
	}
	return false
}

package query

import "fmt"

// QueryError is the user-visible error for structurally valid but
// semantically invalid queries.
type QueryError struct{ msg string }

func (e *QueryError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &QueryError{msg: fmt.Sprintf(format, args...)}
}

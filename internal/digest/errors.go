package digest

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline and repositories.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrEmptyResult  = errors.New("empty result")
)

// Error carries a user-facing message while matching its kind via errors.Is.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

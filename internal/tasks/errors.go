package tasks

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTitleLength   = errors.New("invalid title length")
	ErrInvalidTitleEncoding = errors.New("invalid UTF-8")
	ErrInvalidStatus        = errors.New("invalid status")
)

// ValidationError is returned when a task field fails its constraints.
// No task is produced alongside it.
type ValidationError struct {
	Field  string
	Length int // normalized title length, only set for title errors
	Err    error
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrInvalidTitleLength) {
		return fmt.Sprintf("%s: %s (got %d characters, want %d-%d)",
			e.Field, e.Err, e.Length, MinTitleLength, MaxTitleLength)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

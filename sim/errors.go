package sim

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer of the simulator. Callers match them with errors.Is.
var (
	// ErrConfiguration marks an experiment or process tree that cannot be built:
	// unknown kinds, missing fields, bad probability tables, empty child lists.
	ErrConfiguration = errors.New("configuration error")

	// ErrDegenerateInput marks a numeric input outside its domain, such as a
	// non-positive rate or a negative scheduling delay.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrAbstractMethod marks a call that only a concrete leaf distribution can serve.
	ErrAbstractMethod = errors.New("abstract method")
)

// FieldError names the configuration field that caused a failure.
// It unwraps to one of the sentinel kinds above.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: field %q: %s", e.Err, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// NewFieldError builds a FieldError of the given kind.
func NewFieldError(kind error, field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), Err: kind}
}

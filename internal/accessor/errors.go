package accessor

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNilTarget indicates a segment reached with a nil value and no guard.
	ErrNilTarget = errors.New("nil value")
	// ErrNotFound indicates that no member with the requested name exists.
	ErrNotFound = errors.New("member not found")
	// ErrNotAssignable indicates a terminal segment that cannot be written.
	ErrNotAssignable = errors.New("not assignable")
	// ErrNoMatch indicates that no overload accepts the supplied arguments.
	ErrNoMatch = errors.New("no matching overload")
	// ErrIndex indicates an index outside the collection bounds or a value
	// that cannot be indexed.
	ErrIndex = errors.New("invalid index")
	// ErrCompilationNotSupported is matched by every CompilationNotSupportedError.
	ErrCompilationNotSupported = errors.New("compilation not supported")
)

// PropertyAccessError reports a chain segment that could not be completed.
type PropertyAccessError struct {
	// Op is the kind of segment that failed ("property", "method", "index", ...).
	Op string
	// Name is the member name or index rendering.
	Name string
	// Type is the dynamic type of the value the segment ran against, or nil.
	Type reflect.Type
	Err  error
}

func (e *PropertyAccessError) Error() string {
	if e.Type == nil {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %q on %v: %v", e.Op, e.Name, e.Type, e.Err)
}

func (e *PropertyAccessError) Unwrap() error { return e.Err }

// NewAccessError builds a PropertyAccessError for op/name against target.
func NewAccessError(op, name string, target any, err error) *PropertyAccessError {
	return &PropertyAccessError{Op: op, Name: name, Type: reflect.TypeOf(target), Err: err}
}

// CompilationNotSupportedError reports a chain the compiled strategy declines.
// It is a local tiering signal and never an evaluation failure.
type CompilationNotSupportedError struct {
	Node   Kind
	Name   string
	Reason string
}

func (e *CompilationNotSupportedError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("compilation not supported: %s: %s", e.Node, e.Reason)
	}
	return fmt.Sprintf("compilation not supported: %s %q: %s", e.Node, e.Name, e.Reason)
}

func (e *CompilationNotSupportedError) Unwrap() error { return ErrCompilationNotSupported }

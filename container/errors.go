package container

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoValue is returned when resolving a binding that was never given a value source.
var ErrNoValue = errors.New("binding has no value")

// NotFoundError reports a lookup of an unknown key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no binding found for key %q", e.Key)
}

// LockedError reports an attempt to mutate or replace a locked binding.
type LockedError struct {
	Key string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("binding %q is locked", e.Key)
}

// CircularDependencyError reports an alias chain that loops back on itself.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Chain, " -> "))
}

// ResolutionError wraps a failure raised while producing a binding's value.
type ResolutionError struct {
	Key string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Key, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TypeMismatchError reports a resolved value that does not have the requested type.
type TypeMismatchError struct {
	Key      string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("binding %q is %s, want %s", e.Key, e.Got, e.Expected)
}

// IsNotFound reports whether err is, or wraps, a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

package shared

import (
	"errors"
	"fmt"
)

// ErrMissingReference is matched by every MissingReferenceError.
var ErrMissingReference = errors.New("missing reference")

// MissingReferenceError reports a required related record that does not exist.
type MissingReferenceError struct {
	Entity string
	Key    string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("missing reference: %s %s", e.Entity, e.Key)
}

// Is lets errors.Is(err, ErrMissingReference) match.
func (e *MissingReferenceError) Is(target error) bool {
	return target == ErrMissingReference
}

// MissingReference builds a MissingReferenceError.
func MissingReference(entity string, key any) error {
	return &MissingReferenceError{Entity: entity, Key: fmt.Sprint(key)}
}

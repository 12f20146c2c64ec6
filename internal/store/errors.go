package store

import (
	"errors"
	"fmt"
)

// RepositoryError wraps a storage failure with the operation that hit it.
// Persistence callers treat these as non-fatal and retry on the next
// trigger.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// IsRepositoryError reports whether err is (or wraps) a RepositoryError.
func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}

func repoErr(op string, err error) error {
	return &RepositoryError{Op: op, Err: err}
}

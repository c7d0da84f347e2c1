package attemptlog

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is returned for queries with unknown sort orders or
// negative paging.
var ErrInvalidQuery = errors.New("invalid attempt query")

// StorageError is returned by Store implementations.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("attempt storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// RetentionError is returned when pruning fails.
type RetentionError struct {
	Phase string
	Cause error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("attempt retention error [phase=%s]: %v", e.Phase, e.Cause)
}

func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// Validate checks q and fills defaults.
func (q *Query) Validate() error {
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidQuery)
	}
	switch q.Order {
	case "":
		q.Order = SortDesc
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: order must be %q or %q, got %q", ErrInvalidQuery, SortAsc, SortDesc, q.Order)
	}
	if q.Since != nil && q.Until != nil && q.Until.Before(*q.Since) {
		return fmt.Errorf("%w: until is before since", ErrInvalidQuery)
	}
	if q.Limit == 0 {
		q.Limit = DefaultQueryLimit
	}
	return nil
}

// ExportError is returned when writing records out fails.
type ExportError struct {
	Format  string
	Written int
	Cause   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("attempt export error [format=%s, written=%d]: %v", e.Format, e.Written, e.Cause)
}

func (e *ExportError) Unwrap() error {
	return e.Cause
}

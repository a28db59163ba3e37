package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLedger is returned by Backend.Load when nothing has been persisted yet.
	ErrNoLedger = errors.New("no persisted ledger")

	// ErrMalformed marks a persisted ledger that exists but cannot be decoded.
	ErrMalformed = errors.New("malformed ledger")

	// ErrNotFound is returned by Get for a sequence number past the chain tip.
	ErrNotFound = errors.New("record not found")
)

// ValidationError is returned when a caller supplies an empty or invalid field.
// It is raised before any state is touched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// StorageError wraps a failed durable read or write. Op is "load", "save",
// "quarantine" or "close".
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

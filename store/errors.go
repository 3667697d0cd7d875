package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced item doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("notebook: item not found")

	// ErrIntegrity is returned when a parent/child relationship does not hold.
	ErrIntegrity = errors.New("notebook: integrity violation")

	// ErrMalformedItem is returned when a stored item is missing a required
	// attribute or holds one of the wrong type.
	ErrMalformedItem = errors.New("notebook: malformed item")

	// ErrTransaction is returned when the store rejects a transactional write.
	ErrTransaction = errors.New("notebook: transaction rejected")

	// ErrGateway is returned for any other storage-layer failure.
	ErrGateway = errors.New("notebook: storage gateway failure")

	// ErrAlreadyExists is returned when an item with the same key already exists.
	ErrAlreadyExists = errors.New("notebook: item already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("notebook: item was modified concurrently")

	// ErrInvalidInput is returned for requests the core refuses before touching the store.
	ErrInvalidInput = errors.New("notebook: invalid input")
)

// OpError records the gateway operation, table and key behind a failure.
type OpError struct {
	Op    string
	Table string
	Key   Key
	Err   error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Table != "" {
		b.WriteString(" ")
		b.WriteString(e.Table)
	}
	if e.Key != (Key{}) {
		b.WriteString(" ")
		b.WriteString(e.Key.String())
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// TransactionError is returned when a transactional write is cancelled.
// Failed lists the indices of the writes whose condition did not hold; it
// is empty when the store cancelled for another reason.
type TransactionError struct {
	Table  string
	Failed []int
	Reason string
}

func (e *TransactionError) Error() string {
	msg := "notebook: transaction rejected"
	if e.Table != "" {
		msg += " on " + e.Table
	}
	if len(e.Failed) > 0 {
		msg += fmt.Sprintf(": condition failed at %v", e.Failed)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is makes errors.Is(err, ErrTransaction) hold.
func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }

// FailedAt reports whether the write at index i failed its condition.
func (e *TransactionError) FailedAt(i int) bool {
	for _, f := range e.Failed {
		if f == i {
			return true
		}
	}
	return false
}

// MalformedItemError describes a stored item that cannot be decoded.
type MalformedItemError struct {
	Key  Key
	Attr string
	Want Kind
	Got  Kind
}

func (e *MalformedItemError) Error() string {
	if e.Got == KindAbsent {
		return fmt.Sprintf("notebook: malformed item %s: missing %s attribute %q", e.Key, e.Want, e.Attr)
	}
	return fmt.Sprintf("notebook: malformed item %s: attribute %q is %s, want %s", e.Key, e.Attr, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrMalformedItem) hold.
func (e *MalformedItemError) Is(target error) bool { return target == ErrMalformedItem }

// WrapGatewayError wraps a lower-level failure so that it matches ErrGateway.
func WrapGatewayError(op, table string, key Key, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Table: table, Key: key, Err: fmt.Errorf("%w: %w", ErrGateway, err)}
}

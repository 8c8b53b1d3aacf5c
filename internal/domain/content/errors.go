package content

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKind = errors.New("invalid content kind")
	ErrInvalidKey  = errors.New("invalid content key")

	// ErrLeaseLost is returned when the generation lock no longer carries this
	// attempt's token at persist time. Nothing is written.
	ErrLeaseLost = errors.New("generation lease lost before persist")

	// ErrHandedOff tells the orchestrator that a background worker now owns the
	// attempt and its lease; the lock must not be released by the caller.
	ErrHandedOff = errors.New("generation handed off to background worker")
)

// StorageError wraps any failure of the relational store. Callers treat it as
// non-retryable for the current request.
type StorageError struct {
	Op   string
	Code string
	Err  error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("content store %s (sqlstate %s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("content store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// GeneratorError wraps a failed or timed out call to the external generator.
type GeneratorError struct {
	Kind Kind
	Err  error
}

func (e *GeneratorError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("generate %s: %v", e.Kind, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

// LockBackendError wraps a failure of the keyed cache holding generation locks.
// It is logged and absorbed according to the lock failure policy, never returned
// to request handlers.
type LockBackendError struct {
	Op  string
	Err error
}

func (e *LockBackendError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("lock backend %s: %v", e.Op, e.Err)
}

func (e *LockBackendError) Unwrap() error { return e.Err }

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func IsGeneratorError(err error) bool {
	var ge *GeneratorError
	return errors.As(err, &ge)
}

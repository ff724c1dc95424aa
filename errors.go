package blockfirst

import (
	"errors"
	"fmt"
)

// Error represents a harness error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("blockfirst: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("blockfirst: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ErrNotFoundError) matches any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrorCode classifies harness failures. The set is closed: every failure
// a run can report maps onto exactly one of these.
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = 0

	// ErrNotFound is the store's "key/data pair not found" signal. It is the
	// expected outcome of a seek on the empty table.
	ErrNotFound ErrorCode = -30798

	// ErrSetup indicates environment or table creation failed
	ErrSetup ErrorCode = -31000

	// ErrProtocol indicates begin, cursor open, cursor close or commit failed
	ErrProtocol ErrorCode = -31001

	// ErrCorrectness indicates a seek on the empty table reported anything
	// other than not found
	ErrCorrectness ErrorCode = -31002

	// ErrExclusion indicates two workers held the full-range lock at once
	ErrExclusion ErrorCode = -31003

	// ErrSerialization indicates the run finished faster than serialized
	// lock holds allow
	ErrSerialization ErrorCode = -31004

	// ErrStopped indicates a worker stopped because the run was cancelled
	ErrStopped ErrorCode = -31005

	// ErrLockTimeout indicates a store gave up waiting for a lock
	ErrLockTimeout ErrorCode = -31006

	// ErrInvalidConfig indicates a configuration value is out of range
	ErrInvalidConfig ErrorCode = -31007

	// ErrUnknownStore indicates no store is registered under a name
	ErrUnknownStore ErrorCode = -31008
)

var errorMessages = map[ErrorCode]string{
	Success:          "success",
	ErrNotFound:      "key/data pair not found",
	ErrSetup:         "store setup failed",
	ErrProtocol:      "store protocol failure",
	ErrCorrectness:   "seek-first on empty table did not report not found",
	ErrExclusion:     "full-range lock held by more than one transaction",
	ErrSerialization: "lock holds were not serialized",
	ErrStopped:       "run stopped",
	ErrLockTimeout:   "lock wait timeout",
	ErrInvalidConfig: "invalid configuration",
	ErrUnknownStore:  "unknown store",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// Errorf creates an Error whose message is the code's message followed by
// the formatted detail.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	e := NewError(code)
	e.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return e
}

// ErrNotFoundError is what adapters return from a seek on an empty table.
var ErrNotFoundError = NewError(ErrNotFound)

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrNotFound
	}
	return false
}

// IsSetup returns true if the error is a setup failure
func IsSetup(err error) bool { return hasCode(err, ErrSetup) }

// IsProtocol returns true if the error is a protocol failure
func IsProtocol(err error) bool { return hasCode(err, ErrProtocol) }

// IsCorrectness returns true if the error is a correctness violation
func IsCorrectness(err error) bool { return hasCode(err, ErrCorrectness) }

// IsExclusion returns true if the error is a mutual exclusion violation
func IsExclusion(err error) bool { return hasCode(err, ErrExclusion) }

// IsSerialization returns true if the error is a serialization bound violation
func IsSerialization(err error) bool { return hasCode(err, ErrSerialization) }

// IsStopped returns true if the error reports a cancelled run
func IsStopped(err error) bool { return hasCode(err, ErrStopped) }

// IsLockTimeout returns true if the error is a store lock wait timeout
func IsLockTimeout(err error) bool { return hasCode(err, ErrLockTimeout) }

// IsInvalidConfig returns true if the error rejects a configuration
func IsInvalidConfig(err error) bool { return hasCode(err, ErrInvalidConfig) }

// IsUnknownStore returns true if no store is registered under the requested name
func IsUnknownStore(err error) bool { return hasCode(err, ErrUnknownStore) }

// Code returns the outermost error code, or ErrProtocol if err is not a
// harness error.
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrProtocol
}

// Outcome is the classification of a seek-first call.
type Outcome uint8

const (
	// OutcomeNotFound means the store reported no key in the table.
	OutcomeNotFound Outcome = iota
	// OutcomeFound means the store returned a key/value pair.
	OutcomeFound
	// OutcomeError means the store returned any other error.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not-found"
	case OutcomeFound:
		return "found"
	default:
		return "error"
	}
}

// Classify maps the error returned by Cursor.FirstForUpdate to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeFound
	case IsNotFound(err):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

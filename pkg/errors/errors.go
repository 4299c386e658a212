// Package errors defines the coded errors of the prefetch engine.
//
// Each failure carries a [Code], so callers can tell a corrupt download from
// a typo in a lockfile without matching on strings. The first group of
// codes is the engine taxonomy; any of them aborts the whole invocation,
// since a hermetic build is all-or-nothing:
//
//	INVALID_LOCATOR         a dependency reference is syntactically malformed
//	MALFORMED_LOCKFILE      a lockfile violates its format
//	UNRESOLVABLE_REFERENCE  a reference cannot be mapped to a package
//	UNSUPPORTED_FEATURE     a recognized construct prefetch cannot act on
//	CHECKSUM_CONFLICT       two records claim one identity with different checksums
//	CHECKSUM_MISMATCH       fetched bytes disagree with the declared checksum
//	FETCH_FAILED            retries for a transient failure were exhausted
//
// The remaining codes report bad input to the command line and library
// misuse.
//
//	if errors.Is(err, errors.ErrCodeChecksumMismatch) {
//	    // the mirror served a tampered artifact
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an [Error].
type Code string

// Engine taxonomy.
const (
	ErrCodeInvalidLocator        Code = "INVALID_LOCATOR"
	ErrCodeMalformedLockfile     Code = "MALFORMED_LOCKFILE"
	ErrCodeUnresolvableReference Code = "UNRESOLVABLE_REFERENCE"
	ErrCodeUnsupportedFeature    Code = "UNSUPPORTED_FEATURE"
	ErrCodeChecksumConflict      Code = "CHECKSUM_CONFLICT"
	ErrCodeChecksumMismatch      Code = "CHECKSUM_MISMATCH"
	ErrCodeFetchFailed           Code = "FETCH_FAILED"
)

// Input and usage.
const (
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeInvalidEcosystem Code = "INVALID_ECOSYSTEM"
	ErrCodeInvalidPackage   Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath      Code = "INVALID_PATH"
	ErrCodeFileNotFound     Code = "FILE_NOT_FOUND"
	ErrCodeUnsupported      Code = "UNSUPPORTED"
	ErrCodeInternal         Code = "INTERNAL_ERROR"
)

// Error is a coded error, optionally wrapping the error that caused it.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an error with code and a printf-style message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap is like [New] and records cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

// Is reports whether any error in err's tree, joined errors included, is
// an [*Error] with code.
func Is(err error, code Code) bool {
	switch x := err.(type) {
	case nil:
		return false
	case *Error:
		if x.Code == code {
			return true
		}
		return Is(x.Cause, code)
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if Is(inner, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return Is(x.Unwrap(), code)
	}
	return false
}

// GetCode returns the code of the first [*Error] in err's chain, or "".
func GetCode(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// IsFatal reports whether err carries an engine taxonomy code.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidLocator, ErrCodeMalformedLockfile, ErrCodeUnresolvableReference,
		ErrCodeUnsupportedFeature, ErrCodeChecksumConflict, ErrCodeChecksumMismatch,
		ErrCodeFetchFailed:
		return true
	}
	return false
}

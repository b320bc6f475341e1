// Package errors provides structured error types for depot.
//
// Every error surfaced by the engine carries a machine-readable [Code] so that
// callers can tell the categories of failure apart without string matching:
//   - Usage errors (nil requests, operating a closed connector) are returned
//     synchronously and indicate a programming mistake.
//   - Descriptor errors mean a node's own dependency list could not be read.
//     They are attached to results and never abort sibling resolution.
//   - Transfer errors are isolated to a single download or upload.
//   - Cancelled marks a transfer vetoed by a listener.
//   - Resolution and deployment errors aggregate the non-fatal errors of a
//     whole operation when its success criterion is not met.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUsage, "connector for %s is closed", repo)
//	if errors.Is(err, errors.ErrCodeUsage) {
//	    // caller bug
//	}
//
//	err := errors.Wrap(errors.ErrCodeTransfer, cause, "download %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

const (
	// Input validation errors
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidCoordinate Code = "INVALID_COORDINATE"
	ErrCodeInvalidVersion    Code = "INVALID_VERSION"
	ErrCodeInvalidPath       Code = "INVALID_PATH"
	ErrCodeInvalidConfig     Code = "INVALID_CONFIG"

	// Usage errors: the API was driven incorrectly.
	ErrCodeUsage Code = "USAGE"

	// Descriptor errors
	ErrCodeDescriptorMissing Code = "DESCRIPTOR_MISSING"
	ErrCodeDescriptorInvalid Code = "DESCRIPTOR_INVALID"
	ErrCodeRelocationLimit   Code = "RELOCATION_LIMIT"

	// Transfer errors
	ErrCodeNotFound    Code = "NOT_FOUND"
	ErrCodeTransfer    Code = "TRANSFER_FAILED"
	ErrCodeChecksum    Code = "CHECKSUM_MISMATCH"
	ErrCodeCancelled   Code = "CANCELLED"
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeNoConnector Code = "NO_CONNECTOR"
	ErrCodeOffline     Code = "OFFLINE"

	// Aggregated operation errors
	ErrCodeResolution Code = "RESOLUTION_FAILED"
	ErrCodeInstall    Code = "INSTALL_FAILED"
	ErrCodeDeployment Code = "DEPLOYMENT_FAILED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match two *Error values by code alone, so sentinel
// values such as transfer.ErrCancelled match any error with that code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Code == e.Code
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Sentinel returns a message-less Error usable as an errors.Is target for
// every error carrying code.
func Sentinel(code Code) *Error {
	return &Error{Code: code}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Collect flattens err into its leaf errors. Joined errors (errors.Join) are
// expanded; anything else is returned as a single element. nil yields nil.
func Collect(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, Collect(e)...)
		}
		return out
	}
	return []error{err}
}

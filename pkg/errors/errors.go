package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Resolution errors
	ErrUnresolvedName        ErrorCode = "UNRESOLVED_NAME"
	ErrChannelUnavailable    ErrorCode = "CHANNEL_UNAVAILABLE"
	ErrNoBottleForTarget     ErrorCode = "NO_BOTTLE_FOR_TARGET"
	ErrUnsupportedRelocation ErrorCode = "UNSUPPORTED_RELOCATION"
	ErrSizeProbeFailed       ErrorCode = "SIZE_PROBE_FAILED"

	// Transfer errors. Transport and integrity failures are kept
	// distinct so callers can tell a flaky mirror from a bad archive.
	ErrDownloadFailed   ErrorCode = "DOWNLOAD_FAILED"
	ErrChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"

	// Install errors
	ErrArchiveInvalid    ErrorCode = "ARCHIVE_INVALID"
	ErrRelocationFailed  ErrorCode = "RELOCATION_FAILED"
	ErrLinkFailed        ErrorCode = "LINK_FAILED"
	ErrPostInstallFailed ErrorCode = "POST_INSTALL_FAILED"
	ErrMetaPersist       ErrorCode = "META_PERSIST"

	// FileSystem errors
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess   ErrorCode = "FILE_ACCESS"
	ErrFileCreate   ErrorCode = "FILE_CREATE"
	ErrFileWrite    ErrorCode = "FILE_WRITE"
	ErrDirCreate    ErrorCode = "DIR_CREATE"
)

// PourtreeError represents a structured error with code and details
type PourtreeError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *PourtreeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *PourtreeError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *PourtreeError) Is(target error) bool {
	var targetErr *PourtreeError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new PourtreeError with the given code and message
func New(code ErrorCode, message string) *PourtreeError {
	return &PourtreeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new PourtreeError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *PourtreeError {
	return &PourtreeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a PourtreeError
func Wrap(err error, code ErrorCode, message string) *PourtreeError {
	if err == nil {
		return nil
	}
	return &PourtreeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *PourtreeError {
	if err == nil {
		return nil
	}
	return &PourtreeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *PourtreeError) WithDetail(key string, value interface{}) *PourtreeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var perr *PourtreeError
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a PourtreeError
func GetErrorCode(err error) ErrorCode {
	var perr *PourtreeError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a PourtreeError
func GetErrorDetails(err error) map[string]interface{} {
	var perr *PourtreeError
	if errors.As(err, &perr) {
		return perr.Details
	}
	return nil
}

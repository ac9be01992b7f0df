package repositories

import (
	"errors"
	"fmt"
)

// DownloadErrorCode enumerates failure reasons for entitlement counter operations.
type DownloadErrorCode string

const (
	// DownloadErrorUnknown represents an unspecified failure.
	DownloadErrorUnknown DownloadErrorCode = "download_unknown"
	// DownloadErrorInvalidInput indicates the caller supplied invalid arguments.
	DownloadErrorInvalidInput DownloadErrorCode = "download_invalid_input"
	// DownloadErrorLimitReached indicates the line's download cap is exhausted.
	DownloadErrorLimitReached DownloadErrorCode = "download_limit_reached"
)

// DownloadError wraps entitlement-specific failures with machine readable codes.
type DownloadError struct {
	Op      string
	Code    DownloadErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *DownloadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewDownloadError constructs a typed download error.
func NewDownloadError(code DownloadErrorCode, message string, err error) *DownloadError {
	if message == "" {
		message = string(code)
	}
	return &DownloadError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsDownloadLimitReached reports whether err carries the limit-reached code.
func IsDownloadLimitReached(err error) bool {
	var downloadErr *DownloadError
	if errors.As(err, &downloadErr) {
		return downloadErr.Code == DownloadErrorLimitReached
	}
	return false
}

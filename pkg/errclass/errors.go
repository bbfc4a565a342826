// Package errclass defines the stable error classes reported by autosync.
package errclass

import (
	"errors"
	"fmt"
)

// SyncError is a stable, machine-readable error class.
type SyncError struct {
	Code    string
	Message string
}

func (e *SyncError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new SyncError with the same Code but a specific message.
func (e *SyncError) WithMessage(msg string) *SyncError {
	return &SyncError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new SyncError with a formatted message.
func (e *SyncError) WithMessagef(format string, args ...any) *SyncError {
	return &SyncError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Configuration errors are fatal at startup.
var (
	ErrConfigNotFound = &SyncError{Code: "E_CONFIG_NOT_FOUND"}
	ErrConfigInvalid  = &SyncError{Code: "E_CONFIG_INVALID"}
	ErrNoProjects     = &SyncError{Code: "E_NO_PROJECTS"}
	ErrNameInvalid    = &SyncError{Code: "E_NAME_INVALID"}
)

// Per-project errors are logged and isolated to the offending project.
var (
	ErrSourceMissing = &SyncError{Code: "E_SOURCE_MISSING"}
	ErrWatchSetup    = &SyncError{Code: "E_WATCH_SETUP"}
	ErrToolNotFound  = &SyncError{Code: "E_TOOL_NOT_FOUND"}
)

// IsFatal reports whether err belongs to the configuration class, which aborts
// startup before any project is touched.
func IsFatal(err error) bool {
	for _, e := range []*SyncError{ErrConfigNotFound, ErrConfigInvalid, ErrNoProjects, ErrNameInvalid} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

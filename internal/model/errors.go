package model

import (
	"github.com/rotisserie/eris"
)

// Error taxonomy shared by every layer. Callers wrap these with eris and
// match them with eris.Is.
var (
	// ErrNotFound means a referenced lead, campaign, template, execution,
	// or alert does not exist.
	ErrNotFound = eris.New("not found")
	// ErrExternalUnavailable means a gateway or dispatcher failed.
	ErrExternalUnavailable = eris.New("external service unavailable")
	// ErrInvariantViolation means persisted state broke a core rule.
	ErrInvariantViolation = eris.New("invariant violation")
	// ErrValidation means operator or template input was malformed.
	ErrValidation = eris.New("validation failed")
	// ErrAlreadyActive refuses a workflow start when the lead already has a
	// live execution.
	ErrAlreadyActive = eris.New("lead already has a live workflow execution")
)

func wrapInvariant(format string, args ...any) error {
	return eris.Wrapf(ErrInvariantViolation, format, args...)
}

func wrapValidation(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return eris.Wrapf(ErrNotFound, format, args...)
}

// Validationf wraps ErrValidation with context.
func Validationf(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}

// Unavailablef wraps ErrExternalUnavailable with context.
func Unavailablef(format string, args ...any) error {
	return eris.Wrapf(ErrExternalUnavailable, format, args...)
}

// NewAlreadyActive reports the live execution that blocks a start.
func NewAlreadyActive(leadID, executionID string) error {
	return eris.Wrapf(ErrAlreadyActive, "lead %s has live execution %s", leadID, executionID)
}

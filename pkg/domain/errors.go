package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned by stores when a session ID cannot be found.
var ErrSessionNotFound = errors.New("session not found")

// ErrorCode classifies a structured engine failure.
type ErrorCode string

const (
	// CodeValidation marks a bad field value; the session does not advance.
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	// CodeInvariant marks a broken workflow-model rule; rejected before any
	// session is affected.
	CodeInvariant ErrorCode = "INVARIANT_VIOLATION"
	// CodeNotFound marks an unknown session or step.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeConflictsUnresolved marks a finalize blocked by target collisions.
	CodeConflictsUnresolved ErrorCode = "CONFLICTS_UNRESOLVED"
	// CodeInternal marks an unexpected failure; persisted state stays consistent.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Detail is one (path, reason) entry of a structured error.
type Detail struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Error is the structured error envelope every renderer receives.
// Renderers display Message and may enumerate Details, but must not infer
// workflow behavior from Code beyond generic presentation.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details []Detail  `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Path, d.Reason))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
}

// Validation builds a VALIDATION_ERROR.
func Validation(message string, details ...Detail) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// Invariant builds an INVARIANT_VIOLATION.
func Invariant(message string, details ...Detail) *Error {
	return &Error{Code: CodeInvariant, Message: message, Details: details}
}

// NotFound builds a NOT_FOUND error.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// ConflictsUnresolved builds a CONFLICTS_UNRESOLVED error. Each conflict
// contributes one (target path, offending source) detail pair.
func ConflictsUnresolved(message string, conflicts []Conflict) *Error {
	details := make([]Detail, 0, len(conflicts))
	for _, c := range conflicts {
		details = append(details, Detail{Path: c.TargetPath, Reason: "conflicts with " + c.SourceUnit})
	}
	return &Error{Code: CodeConflictsUnresolved, Message: message, Details: details}
}

// Internal builds an INTERNAL_ERROR wrapping an unexpected failure.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: err.Error()}
}

// AsError extracts a structured *Error from err, converting unknown errors
// to INTERNAL_ERROR so renderers always see the envelope.
func AsError(err error) *Error {
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	if errors.Is(err, ErrSessionNotFound) {
		return NotFound(err.Error())
	}
	return Internal(err)
}

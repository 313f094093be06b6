package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ProjectNotFound indicates the target identity is absent from the graph
	ProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"
	// ContainerCreationFailed indicates the grouping container could not be resolved or created
	ContainerCreationFailed ErrorCode = "CONTAINER_CREATION_FAILED"
	// MoveFailed indicates the host rejected the relocation
	MoveFailed ErrorCode = "MOVE_FAILED"
	// MoveTargetMissing indicates the project file vanished while it was being moved
	MoveTargetMissing ErrorCode = "MOVE_TARGET_MISSING"
	// DuplicateReference indicates a holder already carries an edge to the relocated identity
	DuplicateReference ErrorCode = "DUPLICATE_REFERENCE"
	// HostUnavailable indicates the host could not be enumerated
	HostUnavailable ErrorCode = "HOST_UNAVAILABLE"
	// HostInconsistent indicates host data violates identity uniqueness
	HostInconsistent ErrorCode = "HOST_INCONSISTENT"
	// HostError indicates a host call failed for a reason with no dedicated code
	HostError ErrorCode = "HOST_ERROR"
	// InvalidArgument indicates the caller supplied an unusable value
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// ManualCheck suggests inspecting the project tree by hand
	ManualCheck FixActionType = "manual-check"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
}

// RelocationError represents an error with code, message, and suggestions
type RelocationError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new RelocationError with the default fixes for its code
func New(code ErrorCode, message string, cause error) *RelocationError {
	return &RelocationError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf is New with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *RelocationError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *RelocationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *RelocationError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *RelocationError) WithDetails(details interface{}) *RelocationError {
	e.Details = details
	return e
}

// IsMoveFailure reports whether the code belongs to the move family.
func (c ErrorCode) IsMoveFailure() bool {
	return c == MoveFailed || c == MoveTargetMissing
}

// CodeOf returns the code of the first RelocationError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var re *RelocationError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return InternalError
}

// Is reports whether err carries the given code. A MoveTargetMissing error
// also satisfies Is(err, MoveFailed).
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	got := CodeOf(err)
	if got == code {
		return true
	}
	return code == MoveFailed && got == MoveTargetMissing
}

// IsPostMove reports whether err happened at or after the point of no
// return, leaving the host tree in a state only a manual check can confirm.
func IsPostMove(err error) bool {
	return err != nil && CodeOf(err).IsMoveFailure()
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	ProjectNotFound: {
		{
			Type:        RunCommand,
			Command:     "solmove projects",
			Safe:        true,
			Description: "List the projects the host reports",
		},
	},
	ContainerCreationFailed: {
		{
			Type:        RunCommand,
			Command:     "solmove projects",
			Safe:        true,
			Description: "Check for a project that already uses the folder name",
		},
	},
	MoveFailed: {
		{
			Type:        ManualCheck,
			Description: "The project may be detached or partially moved; inspect the solution",
		},
		{
			Type:        RunCommand,
			Command:     "solmove restore ${request_id}",
			Description: "Restore the files captured before the move",
		},
	},
	MoveTargetMissing: {
		{
			Type:        ManualCheck,
			Description: "The project file no longer exists at its recorded path",
		},
		{
			Type:        RunCommand,
			Command:     "solmove restore ${request_id}",
			Description: "Restore the files captured before the move",
		},
	},
	DuplicateReference: {
		{
			Type:        RunCommand,
			Command:     "solmove refs ${project}",
			Safe:        true,
			Description: "List the references that point at the relocated project",
		},
	},
	HostUnavailable: {
		{
			Type:        RunCommand,
			Command:     "solmove config show",
			Safe:        true,
			Description: "Check the configured host and solution path",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}

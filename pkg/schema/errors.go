package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeExecution  = "EXECUTION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeRebuild    = "REBUILD_ERROR"
)

// CourierError is the structured error type for all courier operations.
type CourierError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Cause      error          `json:"-"`
}

func (e *CourierError) Error() string {
	if e.WorkflowID != "" {
		return fmt.Sprintf("[%s] workflow %s: %s", e.Code, e.WorkflowID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CourierError) Unwrap() error {
	return e.Cause
}

// NewError creates a new CourierError.
func NewError(code, message string) *CourierError {
	return &CourierError{Code: code, Message: message}
}

// NewErrorf creates a new CourierError with a formatted message.
func NewErrorf(code, format string, args ...any) *CourierError {
	return &CourierError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithWorkflow attaches a workflow ID to the error.
func (e *CourierError) WithWorkflow(workflowID string) *CourierError {
	e.WorkflowID = workflowID
	return e
}

// WithCause attaches an underlying cause.
func (e *CourierError) WithCause(err error) *CourierError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *CourierError) WithDetails(details map[string]any) *CourierError {
	e.Details = details
	return e
}

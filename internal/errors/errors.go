// Package errors provides categorized errors for overlay and patch
// operations, plus a collector for non-fatal per-file failures.
package errors

import (
	"fmt"
	"strings"
)

// Category classifies errors for better handling and reporting.
type Category string

const (
	CategoryMount        Category = "mount"
	CategoryFilesystem   Category = "filesystem"
	CategoryPrecondition Category = "precondition"
	CategoryValidation   Category = "validation"
	CategoryUnknown      Category = "unknown"
)

// OpError represents an error from an overlay or patch operation. For
// failed external commands, Output carries the captured command output so
// mount failures are diagnosable instead of silently ignored.
type OpError struct {
	Category  Category
	Operation string
	Message   string
	Output    string
	Cause     error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	msg := e.Message
	if e.Operation != "" {
		msg = fmt.Sprintf("%s: %s", e.Operation, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg = fmt.Sprintf("%s (output: %s)", msg, out)
	}
	return fmt.Sprintf("[%s] %s", e.Category, msg)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Cause
}

// IsPrecondition returns true for errors that abort a run before any
// filesystem mutation happened.
func (e *OpError) IsPrecondition() bool {
	return e.Category == CategoryPrecondition
}

// NewMountError creates a mount/unmount related error carrying the captured
// output of the failed command.
func NewMountError(operation, message, output string, cause error) *OpError {
	return &OpError{
		Category:  CategoryMount,
		Operation: operation,
		Message:   message,
		Output:    output,
		Cause:     cause,
	}
}

// NewFilesystemError creates a filesystem-related error.
func NewFilesystemError(operation, message string, cause error) *OpError {
	return &OpError{
		Category:  CategoryFilesystem,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewPreconditionError creates a fatal pre-mutation error.
func NewPreconditionError(operation, message string) *OpError {
	return &OpError{
		Category:  CategoryPrecondition,
		Operation: operation,
		Message:   message,
	}
}

// NewValidationError creates a validation-related error.
func NewValidationError(operation, message string, cause error) *OpError {
	return &OpError{
		Category:  CategoryValidation,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// WrapError wraps an existing error with operation context. An OpError is
// returned as-is.
func WrapError(err error, operation string) *OpError {
	if err == nil {
		return nil
	}

	if opErr, ok := err.(*OpError); ok {
		return opErr
	}

	return &OpError{
		Category:  CategoryUnknown,
		Operation: operation,
		Message:   err.Error(),
		Cause:     err,
	}
}

// ErrorCollector collects non-fatal errors during a patch walk so one
// failing file does not abort the remaining files.
type ErrorCollector struct {
	errors []*OpError
}

// NewErrorCollector creates a new error collector.
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]*OpError, 0),
	}
}

// Add adds an error to the collector. Nil errors are ignored.
func (c *ErrorCollector) Add(err *OpError) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// HasErrors returns true if there are any collected errors.
func (c *ErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all collected errors.
func (c *ErrorCollector) Errors() []*OpError {
	return c.errors
}

// ToError converts the collector to a single error, or nil if empty.
func (c *ErrorCollector) ToError() error {
	if len(c.errors) == 0 {
		return nil
	}

	if len(c.errors) == 1 {
		return c.errors[0]
	}

	messages := make([]string, len(c.errors))
	for i, err := range c.errors {
		messages[i] = err.Error()
	}

	return &OpError{
		Category: CategoryFilesystem,
		Message:  fmt.Sprintf("%d files failed: %s", len(c.errors), strings.Join(messages, "; ")),
	}
}

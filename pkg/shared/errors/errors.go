// Package errors provides lightweight error wrapping shared across all
// pathwell services, mirroring the structured-cause style used throughout
// the codebase instead of bare fmt.Errorf chains.
package errors

import "fmt"

// OperationError describes a failed operation with enough structure for
// both logs and error messages to stay consistent.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("failed to %s", e.Operation)
	if e.Component != "" {
		msg += fmt.Sprintf(", component: %s", e.Component)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(", cause: %s", e.Cause)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal OperationError with just an action and an
// optional cause. Most call sites that don't need component/resource
// context use this.
func FailedTo(action string, cause error) *OperationError {
	return &OperationError{Operation: action, Cause: cause}
}

// FailedToWithDetails builds an OperationError carrying component and
// resource context in addition to the action and cause.
func FailedToWithDetails(action, component, resource string, cause error) *OperationError {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

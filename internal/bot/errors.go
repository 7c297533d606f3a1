package bot

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
)

// ValidationError carries the message shown to the user for a rejected parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PermissionError names the predicate that denied the call. The reason is logged only.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return "permission denied: " + e.Reason }

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

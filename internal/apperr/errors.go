package apperr

import "fmt"

// Error is a typed engine failure. Sentinels below are compared with errors.Is;
// With attaches detail without losing identity.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so detailed copies still compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) With(format string, args ...any) error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrWrongState         = &Error{Code: "WRONG_STATE", Message: "transition not allowed from the current state"}
	ErrWrongActor         = &Error{Code: "WRONG_ACTOR", Message: "actor is not authorized for this step"}
	ErrConflict           = &Error{Code: "BOOKING_CONFLICT", Message: "slot overlaps an approved booking"}
	ErrInsufficientStock  = &Error{Code: "INSUFFICIENT_STOCK", Message: "not enough components available"}
	ErrMissingAssignment  = &Error{Code: "MISSING_ASSIGNMENT", Message: "department needs both an HOD and a lab coordinator"}
	ErrDuplicateExtension = &Error{Code: "DUPLICATE_EXTENSION", Message: "an extension request is already pending"}
	ErrNotFound           = &Error{Code: "NOT_FOUND", Message: "not found"}
	ErrValidation         = &Error{Code: "VALIDATION_FAILED", Message: "invalid input"}
)

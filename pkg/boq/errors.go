package boq

import "fmt"

// ValidationError is a precondition failure caused by caller input. It is
// surfaced as-is and never retried.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("boq: validation failed: %s", e.Message)
}

func Validationf(format string, args ...any) ValidationError {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

// LockedDocumentError rejects edits of budget-relevant data once the parent
// BOQ has left the editable states. Enforced in the repository layer, not
// only in services.
type LockedDocumentError struct {
	BoqId int
	State State
}

func (e LockedDocumentError) Error() string {
	return fmt.Sprintf("boq %d is %s: budget lines can no longer be edited", e.BoqId, e.State)
}

// InvalidStateError rejects an operation that is not legal in the document's
// current lifecycle state.
type InvalidStateError struct {
	BoqId     int
	State     State
	Operation string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("boq %d is %s: cannot %s", e.BoqId, e.State, e.Operation)
}

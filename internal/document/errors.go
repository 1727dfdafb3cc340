package document

import "fmt"

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// AuthorizationError reports an actor attempting an operation they do not
// own, such as a non-creator sending a document or the wrong signatory
// filling a field.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string {
	return e.Msg
}

// StateError reports a transition attempted from an invalid current state,
// such as signing a cancelled document.
type StateError struct {
	Current Status
	Msg     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s (document is %s)", e.Msg, e.Current)
}

// PersistenceError wraps a failed state-defining write. Best-effort writes
// (notification emails, audit details) are logged instead.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

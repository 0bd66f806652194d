package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCreate   Phase = "create"   // context construction
	PhaseDestroy  Phase = "destroy"  // context teardown
	PhaseCall     Phase = "call"     // outbound engine call
	PhaseRegister Phase = "register" // handler or policy registration
	PhaseDispatch Phase = "dispatch" // subject trampoline
	PhaseDecision Phase = "decision" // AAA trampoline
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseLoad     Phase = "load"     // engine backend loading
)

// Kind categorizes the error
type Kind string

const (
	KindEngine          Kind = "engine"
	KindInitialization  Kind = "initialization"
	KindUnknownHandle   Kind = "unknown_handle"
	KindDuplicateHandle Kind = "duplicate_handle"
	KindDestroyed       Kind = "destroyed"
	KindInvalidInput    Kind = "invalid_input"
	KindUnsupported     Kind = "unsupported"
	KindPolicy          Kind = "policy"
	KindHandler         Kind = "handler"
	KindConfig          Kind = "config"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Op         string
	StatusText string
	Detail     string
	Status     int
	HasStatus  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.HasStatus {
		b.WriteString(": status ")
		b.WriteString(strconv.Itoa(e.Status))
		if e.StatusText != "" {
			b.WriteString(" (")
			b.WriteString(e.StatusText)
			b.WriteByte(')')
		}
	}

	if e.Detail != "" {
		if e.HasStatus {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// StatusOf returns the first engine status code found in err's chain.
func StatusOf(err error) (int, bool) {
	var e *Error
	for err != nil && errors.As(err, &e) {
		if e.HasStatus {
			return e.Status, true
		}
		err = e.Cause
	}
	return 0, false
}

// Engine creates an error for a non-success engine status
func Engine(phase Phase, op string, code int, text string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindEngine,
		Op:         op,
		Status:     code,
		StatusText: text,
		HasStatus:  true,
	}
}

// Initialization creates a context construction error
func Initialization(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCreate,
		Kind:   KindInitialization,
		Detail: detail,
		Cause:  cause,
	}
}

// UnknownHandle creates an error for a lookup of an unregistered handle.
// Trampolines pass PhaseDispatch or PhaseDecision.
func UnknownHandle(phase Phase, handle any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownHandle,
		Detail: fmt.Sprintf("no live context for handle %v", handle),
		Value:  handle,
	}
}

// DuplicateHandle creates an error for a handle registered twice
func DuplicateHandle(handle any) *Error {
	return &Error{
		Phase:  PhaseCreate,
		Kind:   KindDuplicateHandle,
		Detail: fmt.Sprintf("handle %v already registered", handle),
		Value:  handle,
	}
}

// Destroyed creates an error for a call on a destroyed context
func Destroyed(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDestroyed,
		Op:     op,
		Detail: "context already destroyed",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Policy creates an error for a failed AAA policy evaluation
func Policy(seat string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecision,
		Kind:   KindPolicy,
		Op:     seat,
		Detail: "policy failed, access denied",
		Cause:  cause,
	}
}

// Handler creates an error for a failed subject handler
func Handler(subject string, index int, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindHandler,
		Op:     subject,
		Detail: fmt.Sprintf("handler %d failed", index),
		Value:  index,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfig,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates an engine backend loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInitialization,
		Detail: detail,
		Cause:  cause,
	}
}

// Panicked converts a recovered panic value into an error
func Panicked(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}

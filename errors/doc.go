// Package errors provides structured error types for neuropil-go.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Engine failures additionally carry the engine status code and its text.
//
// Errors are built with constructors named after the failure:
//
//	err := errors.Engine(errors.PhaseCall, "listen", 4, "argument is invalid")
//	err := errors.UnknownHandle(errors.PhaseDecision, h)
//	err := errors.Destroyed(errors.PhaseCall, "send")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
